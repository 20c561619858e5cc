// -----------------------------------------------------------------------
// Job Status Notifier - push subscription with polling fallback
// -----------------------------------------------------------------------

package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trado/internal/common"
	"github.com/ternarybob/trado/internal/models"
)

// NotifierState is the watcher's delivery state. Transitions:
// subscribing -> pushing (handshake ok), subscribing|pushing -> polling
// (connection error), any -> stopped (terminal status or teardown). Exactly
// one delivery mechanism is active at a time.
type NotifierState string

const (
	StateSubscribing NotifierState = "subscribing"
	StatePushing     NotifierState = "pushing"
	StatePolling     NotifierState = "polling"
	StateStopped     NotifierState = "stopped"
)

// Client observes generation jobs over the server's push channel, degrading
// to snapshot polling when the push channel is unavailable
type Client struct {
	baseURL      string
	http         *http.Client
	logger       arbor.ILogger
	pollInterval time.Duration
	pushTimeout  time.Duration
}

// NewClient creates a job status client for the given server base URL
func NewClient(config *common.Config, baseURL string, logger arbor.ILogger) (*Client, error) {
	pollInterval, err := time.ParseDuration(config.Notifier.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid poll interval '%s': %w", config.Notifier.PollInterval, err)
	}
	pushTimeout, err := time.ParseDuration(config.Notifier.PushTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid push timeout '%s': %w", config.Notifier.PushTimeout, err)
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: 15 * time.Second},
		logger:       logger,
		pollInterval: pollInterval,
		pushTimeout:  pushTimeout,
	}, nil
}

// Watcher is one active observation of a job. Updates delivers every
// observed snapshot in order and is closed once a terminal state is seen or
// the watcher is stopped.
type Watcher struct {
	updates chan *models.JobStatusUpdate
	cancel  context.CancelFunc

	mu    sync.Mutex
	state NotifierState
}

// Updates returns the snapshot stream
func (w *Watcher) Updates() <-chan *models.JobStatusUpdate {
	return w.updates
}

// State returns the watcher's current delivery state
func (w *Watcher) State() NotifierState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Stop tears the watcher down. Idempotent; Updates is closed shortly after.
func (w *Watcher) Stop() {
	w.cancel()
}

func (w *Watcher) setState(state NotifierState) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
}

func (w *Watcher) emit(ctx context.Context, update *models.JobStatusUpdate) {
	select {
	case w.updates <- update:
	case <-ctx.Done():
	}
}

// Watch starts observing a job. The initial snapshot is always fetched
// first; a job that is already terminal produces one update and stops
// without opening a subscription.
func (c *Client) Watch(ctx context.Context, jobID string) *Watcher {
	watchCtx, cancel := context.WithCancel(ctx)
	watcher := &Watcher{
		updates: make(chan *models.JobStatusUpdate, 8),
		cancel:  cancel,
		state:   StateSubscribing,
	}

	go c.run(watchCtx, jobID, watcher)
	return watcher
}

func (c *Client) run(ctx context.Context, jobID string, w *Watcher) {
	defer close(w.updates)
	defer w.setState(StateStopped)
	defer w.cancel()

	snapshot, err := c.fetchSnapshot(ctx, jobID)
	if err == nil {
		w.emit(ctx, snapshot)
		if snapshot.IsTerminal() {
			return
		}

		if c.push(ctx, jobID, w) {
			return
		}
	} else {
		c.logger.Warn().Err(err).Str("job_id", jobID).Msg("Initial snapshot fetch failed, falling back to polling")
	}

	if ctx.Err() != nil {
		return
	}

	w.setState(StatePolling)
	c.poll(ctx, jobID, w)
}

// push opens the websocket subscription and relays updates until a terminal
// state. Returns true when the watch is finished (terminal observed or
// teardown); false means the push channel failed and polling should take
// over.
func (c *Client) push(ctx context.Context, jobID string, w *Watcher) bool {
	w.setState(StateSubscribing)

	wsURL, err := c.websocketURL(jobID)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Invalid websocket URL, falling back to polling")
		return false
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.pushTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		c.logger.Warn().Err(err).Str("job_id", jobID).Msg("Push subscription failed, falling back to polling")
		return false
	}
	defer conn.Close()

	w.setState(StatePushing)

	// Unblock the read loop on teardown
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-readDone:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true
			}
			c.logger.Warn().Err(err).Str("job_id", jobID).Msg("Push channel lost, falling back to polling")
			return false
		}

		var update models.JobStatusUpdate
		if err := json.Unmarshal(payload, &update); err != nil {
			c.logger.Warn().Err(err).Msg("Discarding malformed push update")
			continue
		}
		if update.ID != jobID {
			continue
		}

		w.emit(ctx, &update)
		if update.IsTerminal() {
			return true
		}
	}
}

// poll fetches the snapshot at a fixed interval until a terminal state is
// observed or the watch is torn down
func (c *Client) poll(ctx context.Context, jobID string, w *Watcher) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snapshot, err := c.fetchSnapshot(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Str("job_id", jobID).Msg("Snapshot poll failed")
			continue
		}

		w.emit(ctx, snapshot)
		if snapshot.IsTerminal() {
			return
		}
	}
}

func (c *Client) fetchSnapshot(ctx context.Context, jobID string) (*models.JobStatusUpdate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/jobs/%s", c.baseURL, jobID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot request returned %d", resp.StatusCode)
	}

	var update models.JobStatusUpdate
	if err := json.NewDecoder(resp.Body).Decode(&update); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &update, nil
}

func (c *Client) websocketURL(jobID string) (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	parsed.Path = "/ws"
	parsed.RawQuery = url.Values{"job_id": []string{jobID}}.Encode()
	return parsed.String(), nil
}
