package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trado/internal/common"
	"github.com/ternarybob/trado/internal/models"
)

// jobServer simulates the job snapshot endpoint and the push channel
type jobServer struct {
	mu        sync.Mutex
	snapshot  *models.JobStatusUpdate
	pollCalls int

	// pushUpdates, when non-nil, is streamed to websocket subscribers
	pushUpdates []*models.JobStatusUpdate
	enablePush  bool
}

func (s *jobServer) setSnapshot(update *models.JobStatusUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = update
}

func (s *jobServer) polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollCalls
}

func (s *jobServer) handler() http.Handler {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.pollCalls++
		snapshot := s.snapshot
		s.mu.Unlock()

		if snapshot == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snapshot)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if !s.enablePush {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		jobID := r.URL.Query().Get("job_id")
		for _, update := range s.pushUpdates {
			if update.ID != jobID {
				continue
			}
			payload, _ := json.Marshal(update)
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		// Hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	return mux
}

func snapshotFor(jobID string, status models.JobStatus, progress int) *models.JobStatusUpdate {
	return &models.JobStatusUpdate{
		ID:         jobID,
		DocumentID: "doc_1",
		Status:     status,
		Progress:   progress,
	}
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	config := common.NewDefaultConfig()
	config.Notifier.PollInterval = "10ms"
	config.Notifier.PushTimeout = "1s"

	client, err := NewClient(config, serverURL, arbor.NewLogger())
	require.NoError(t, err)
	return client
}

func collectUntilClosed(t *testing.T, watcher *Watcher) []*models.JobStatusUpdate {
	t.Helper()
	var updates []*models.JobStatusUpdate
	timeout := time.After(5 * time.Second)
	for {
		select {
		case update, ok := <-watcher.Updates():
			if !ok {
				return updates
			}
			updates = append(updates, update)
		case <-timeout:
			t.Fatal("watcher did not finish in time")
		}
	}
}

func TestWatch_TerminalSnapshotStopsWithoutSubscription(t *testing.T) {
	server := &jobServer{enablePush: false}
	server.setSnapshot(snapshotFor("job_1", models.JobStatusCompleted, 100))
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	client := newTestClient(t, ts.URL)
	watcher := client.Watch(context.Background(), "job_1")

	updates := collectUntilClosed(t, watcher)
	require.Len(t, updates, 1)
	assert.Equal(t, models.JobStatusCompleted, updates[0].Status)
	assert.Equal(t, StateStopped, watcher.State())
	assert.Equal(t, 1, server.polls(), "a terminal job needs exactly one fetch")
}

func TestWatch_PushDeliversUntilTerminal(t *testing.T) {
	server := &jobServer{
		enablePush: true,
		pushUpdates: []*models.JobStatusUpdate{
			snapshotFor("job_1", models.JobStatusProcessing, 33),
			snapshotFor("job_2", models.JobStatusProcessing, 50), // other job, filtered
			snapshotFor("job_1", models.JobStatusProcessing, 66),
			snapshotFor("job_1", models.JobStatusCompleted, 100),
		},
	}
	server.setSnapshot(snapshotFor("job_1", models.JobStatusProcessing, 0))
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	client := newTestClient(t, ts.URL)
	watcher := client.Watch(context.Background(), "job_1")

	updates := collectUntilClosed(t, watcher)
	require.Len(t, updates, 4) // initial snapshot + 3 matching pushes
	assert.Equal(t, 0, updates[0].Progress)
	assert.Equal(t, 33, updates[1].Progress)
	assert.Equal(t, 66, updates[2].Progress)
	assert.Equal(t, models.JobStatusCompleted, updates[3].Status)

	assert.Equal(t, 1, server.polls(), "push delivery must not also poll")
	assert.Equal(t, StateStopped, watcher.State())
}

func TestWatch_FallsBackToPollingWhenPushUnavailable(t *testing.T) {
	server := &jobServer{enablePush: false}
	server.setSnapshot(snapshotFor("job_1", models.JobStatusProcessing, 10))
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	client := newTestClient(t, ts.URL)
	watcher := client.Watch(context.Background(), "job_1")

	require.Eventually(t, func() bool {
		return watcher.State() == StatePolling
	}, 2*time.Second, 5*time.Millisecond)

	server.setSnapshot(snapshotFor("job_1", models.JobStatusCompleted, 100))

	updates := collectUntilClosed(t, watcher)
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, models.JobStatusCompleted, last.Status)
	assert.Greater(t, server.polls(), 1)
	assert.Equal(t, StateStopped, watcher.State())
}

func TestWatch_InitialFetchFailurePolls(t *testing.T) {
	server := &jobServer{enablePush: false}
	// No snapshot yet: initial fetch 404s
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	client := newTestClient(t, ts.URL)
	watcher := client.Watch(context.Background(), "job_1")

	require.Eventually(t, func() bool {
		return watcher.State() == StatePolling
	}, 2*time.Second, 5*time.Millisecond)

	server.setSnapshot(snapshotFor("job_1", models.JobStatusFailed, 40))

	updates := collectUntilClosed(t, watcher)
	require.NotEmpty(t, updates)
	assert.Equal(t, models.JobStatusFailed, updates[len(updates)-1].Status)
}

func TestWatch_StopTearsDownMidPush(t *testing.T) {
	server := &jobServer{
		enablePush: true,
		pushUpdates: []*models.JobStatusUpdate{
			snapshotFor("job_1", models.JobStatusProcessing, 25),
		},
	}
	server.setSnapshot(snapshotFor("job_1", models.JobStatusProcessing, 0))
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	client := newTestClient(t, ts.URL)
	watcher := client.Watch(context.Background(), "job_1")

	require.Eventually(t, func() bool {
		return watcher.State() == StatePushing
	}, 2*time.Second, 5*time.Millisecond)

	watcher.Stop()

	require.Eventually(t, func() bool {
		return watcher.State() == StateStopped
	}, 2*time.Second, 5*time.Millisecond)

	// Drain: the channel must be closed after teardown
	for range watcher.Updates() {
	}
}

func TestWebsocketURL(t *testing.T) {
	config := common.NewDefaultConfig()
	client, err := NewClient(config, "http://localhost:8080/", arbor.NewLogger())
	require.NoError(t, err)

	wsURL, err := client.websocketURL("job_9")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(wsURL, "ws://localhost:8080/ws?"))
	assert.Contains(t, wsURL, "job_id=job_9")

	secure, err := NewClient(config, "https://example.com", arbor.NewLogger())
	require.NoError(t, err)
	wssURL, err := secure.websocketURL("job_9")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(wssURL, "wss://example.com/ws?"))
}
