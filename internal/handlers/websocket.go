package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope sent to unfiltered (dashboard) connections.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// wsClient is one connected websocket, with a write mutex since gorilla
// connections do not allow concurrent writers.
type wsClient struct {
	jobID string // non-empty = only this job's status updates, as bare snapshots
	mu    sync.Mutex
}

// WebSocketHandler pushes job status, template and document events to
// connected clients. Connections opened with ?job_id= receive the raw
// JobStatusUpdate stream the status notifier client consumes; connections
// without a filter receive all events wrapped in WSMessage envelopes.
type WebSocketHandler struct {
	logger  arbor.ILogger
	events  interfaces.EventService
	mu      sync.RWMutex
	clients map[*websocket.Conn]*wsClient
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:  logger,
		events:  eventService,
		clients: make(map[*websocket.Conn]*wsClient),
	}

	if eventService != nil {
		h.subscribeToEvents()
	}

	return h
}

func (h *WebSocketHandler) subscribeToEvents() {
	h.events.Subscribe(interfaces.EventJobStatusChanged, func(ctx context.Context, event interfaces.Event) error {
		update, ok := event.Payload.(*models.JobStatusUpdate)
		if !ok {
			h.logger.Warn().Msg("Invalid job status event payload type")
			return nil
		}
		h.BroadcastJobStatus(update)
		return nil
	})

	h.events.Subscribe(interfaces.EventTemplateParsed, func(ctx context.Context, event interfaces.Event) error {
		template, ok := event.Payload.(*models.Template)
		if !ok {
			h.logger.Warn().Msg("Invalid template event payload type")
			return nil
		}
		h.broadcastEnvelope("template_parsed", template)
		return nil
	})

	h.events.Subscribe(interfaces.EventDocumentCompleted, func(ctx context.Context, event interfaces.Event) error {
		doc, ok := event.Payload.(*models.Document)
		if !ok {
			h.logger.Warn().Msg("Invalid document event payload type")
			return nil
		}
		h.broadcastEnvelope("document_completed", doc)
		return nil
	})
}

// HandleWebSocket upgrades the connection and keeps it registered until the
// client disconnects.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &wsClient{jobID: r.URL.Query().Get("job_id")}

	h.mu.Lock()
	h.clients[conn] = client
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().
		Str("job_id", client.jobID).
		Msgf("WebSocket client connected (total: %d)", clientCount)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	// Read loop keeps the connection alive and detects disconnects; inbound
	// messages are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
	}
}

// BroadcastJobStatus delivers a job status snapshot. Filtered clients
// watching this job get the bare snapshot; unfiltered clients get it wrapped
// in an envelope.
func (h *WebSocketHandler) BroadcastJobStatus(update *models.JobStatusUpdate) {
	snapshot, err := json.Marshal(update)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal job status update")
		return
	}
	envelope, err := json.Marshal(WSMessage{Type: "job_status", Payload: update})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal job status envelope")
		return
	}

	for conn, client := range h.snapshotClients() {
		switch client.jobID {
		case update.ID:
			h.send(conn, client, snapshot)
		case "":
			h.send(conn, client, envelope)
		}
	}
}

// broadcastEnvelope sends a wrapped event to all unfiltered clients.
func (h *WebSocketHandler) broadcastEnvelope(msgType string, payload interface{}) {
	data, err := json.Marshal(WSMessage{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("type", msgType).Msg("Failed to marshal event message")
		return
	}

	for conn, client := range h.snapshotClients() {
		if client.jobID == "" {
			h.send(conn, client, data)
		}
	}
}

// snapshotClients copies the registry so writes happen outside the lock.
func (h *WebSocketHandler) snapshotClients() map[*websocket.Conn]*wsClient {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make(map[*websocket.Conn]*wsClient, len(h.clients))
	for conn, client := range h.clients {
		clients[conn] = client
	}
	return clients
}

func (h *WebSocketHandler) send(conn *websocket.Conn, client *wsClient, data []byte) {
	client.mu.Lock()
	err := conn.WriteMessage(websocket.TextMessage, data)
	client.mu.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send message to WebSocket client")
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
