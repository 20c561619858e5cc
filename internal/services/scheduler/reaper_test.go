package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trado/internal/common"
	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
)

type reaperStore struct {
	mu    sync.Mutex
	jobs  map[string]*models.GenerationJob
	docs  map[string]*models.Document
	kv    map[string][]byte
	stale []string
}

func newReaperStore() *reaperStore {
	return &reaperStore{
		jobs: make(map[string]*models.GenerationJob),
		docs: make(map[string]*models.Document),
		kv:   make(map[string][]byte),
	}
}

func (s *reaperStore) DocumentStorage() interfaces.DocumentStorage { return s }
func (s *reaperStore) JobStorage() interfaces.JobStorage           { return s }
func (s *reaperStore) SectionStorage() interfaces.SectionStorage   { return nil }
func (s *reaperStore) TemplateStorage() interfaces.TemplateStorage { return nil }
func (s *reaperStore) ProposalStorage() interfaces.ProposalStorage { return nil }
func (s *reaperStore) KVStorage() interfaces.KVStorage             { return s }
func (s *reaperStore) Close() error                                { return nil }

func (s *reaperStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = append([]byte(nil), value...)
	return nil
}

func (s *reaperStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.kv[key]
	if !ok {
		return nil, fmt.Errorf("key not found: %s", key)
	}
	return append([]byte(nil), value...), nil
}

func (s *reaperStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	return nil
}

func (s *reaperStore) SaveJob(ctx context.Context, job *models.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *reaperStore) GetJob(ctx context.Context, id string) (*models.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	copied := *job
	return &copied, nil
}

func (s *reaperStore) GetJobsByDocument(ctx context.Context, documentID string) ([]*models.GenerationJob, error) {
	return nil, nil
}

func (s *reaperStore) DeleteJobsByDocument(ctx context.Context, documentID string) error { return nil }

func (s *reaperStore) GetStaleJobs(ctx context.Context, olderThanSeconds int64) ([]*models.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.GenerationJob
	for _, id := range s.stale {
		if job, ok := s.jobs[id]; ok {
			copied := *job
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *reaperStore) SaveDocument(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *doc
	s.docs[doc.ID] = &copied
	return nil
}

func (s *reaperStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	copied := *doc
	return &copied, nil
}

func (s *reaperStore) ListDocuments(ctx context.Context, tenantID string) ([]*models.Document, error) {
	return nil, nil
}

func (s *reaperStore) DeleteDocument(ctx context.Context, id string) error { return nil }

type captureEvents struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (c *captureEvents) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	return nil
}

func (c *captureEvents) Publish(ctx context.Context, event interfaces.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureEvents) PublishSync(ctx context.Context, event interfaces.Event) error {
	return c.Publish(ctx, event)
}

func (c *captureEvents) Close() error { return nil }

func TestReaper_FailsStaleJobs(t *testing.T) {
	store := newReaperStore()
	events := &captureEvents{}
	ctx := context.Background()

	doc := models.NewDocument("tenant-1", "stuck doc")
	doc.Status = models.DocumentStatusGenerating
	require.NoError(t, store.SaveDocument(ctx, doc))

	stuck := models.NewGenerationJob(doc.ID, doc.TenantID)
	stuck.MarkStarted()
	stuck.Checkpoint(40, "generating_content (1/3)")
	require.NoError(t, store.SaveJob(ctx, stuck))
	store.stale = []string{stuck.ID}

	healthy := models.NewGenerationJob(doc.ID, doc.TenantID)
	healthy.MarkStarted()
	require.NoError(t, store.SaveJob(ctx, healthy))

	reaper, err := NewReaper(common.NewDefaultConfig(), store, events, arbor.NewLogger())
	require.NoError(t, err)

	reaper.RunNow()

	reaped, err := store.GetJob(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, reaped.Status)
	assert.Contains(t, reaped.ErrorMessage, "timed out")
	assert.NotNil(t, reaped.CompletedAt)

	untouched, err := store.GetJob(ctx, healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, untouched.Status)

	erroredDoc, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusError, erroredDoc.Status)

	events.mu.Lock()
	defer events.mu.Unlock()
	require.Len(t, events.events, 1)
	assert.Equal(t, interfaces.EventJobStatusChanged, events.events[0].Type)
	update := events.events[0].Payload.(*models.JobStatusUpdate)
	assert.Equal(t, models.JobStatusFailed, update.Status)
}

func TestReaper_RecordsSweepBookkeeping(t *testing.T) {
	store := newReaperStore()
	ctx := context.Background()

	doc := models.NewDocument("tenant-1", "stuck doc")
	require.NoError(t, store.SaveDocument(ctx, doc))

	stuck := models.NewGenerationJob(doc.ID, doc.TenantID)
	stuck.MarkStarted()
	require.NoError(t, store.SaveJob(ctx, stuck))
	store.stale = []string{stuck.ID}

	reaper, err := NewReaper(common.NewDefaultConfig(), store, &captureEvents{}, arbor.NewLogger())
	require.NoError(t, err)

	reaper.RunNow()

	raw, err := store.Get(ctx, "reaper:last_sweep")
	require.NoError(t, err)
	_, err = time.Parse(time.RFC3339, string(raw))
	assert.NoError(t, err)

	raw, err = store.Get(ctx, "reaper:total_reaped")
	require.NoError(t, err)
	assert.Equal(t, "1", string(raw))

	// Counter accumulates across sweeps; an idle sweep refreshes the
	// timestamp without touching it.
	store.stale = []string{stuck.ID}
	reaper.RunNow()
	store.stale = nil
	reaper.RunNow()

	raw, err = store.Get(ctx, "reaper:total_reaped")
	require.NoError(t, err)
	assert.Equal(t, "2", string(raw))
}

func TestReaper_StartStop(t *testing.T) {
	store := newReaperStore()
	reaper, err := NewReaper(common.NewDefaultConfig(), store, &captureEvents{}, arbor.NewLogger())
	require.NoError(t, err)

	require.NoError(t, reaper.Start())
	time.Sleep(10 * time.Millisecond)
	reaper.Stop()
}

func TestReaper_RejectsInvalidConfig(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Jobs.StaleAfter = "not-a-duration"

	_, err := NewReaper(config, newReaperStore(), &captureEvents{}, arbor.NewLogger())
	assert.Error(t, err)
}
