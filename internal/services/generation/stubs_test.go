package generation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
)

// memStore is an in-memory StorageManager for orchestrator tests
type memStore struct {
	mu        sync.Mutex
	docs      map[string]*models.Document
	jobs      map[string]*models.GenerationJob
	sections  map[string]*models.DocumentSection
	templates map[string]*models.Template
	proposals map[string]*models.StructureProposal
	kv        map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{
		docs:      make(map[string]*models.Document),
		jobs:      make(map[string]*models.GenerationJob),
		sections:  make(map[string]*models.DocumentSection),
		templates: make(map[string]*models.Template),
		proposals: make(map[string]*models.StructureProposal),
		kv:        make(map[string][]byte),
	}
}

func (m *memStore) DocumentStorage() interfaces.DocumentStorage { return m }
func (m *memStore) JobStorage() interfaces.JobStorage           { return m }
func (m *memStore) SectionStorage() interfaces.SectionStorage   { return m }
func (m *memStore) TemplateStorage() interfaces.TemplateStorage { return m }
func (m *memStore) ProposalStorage() interfaces.ProposalStorage { return m }
func (m *memStore) KVStorage() interfaces.KVStorage             { return m }
func (m *memStore) Close() error                                { return nil }

func (m *memStore) SaveDocument(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *doc
	m.docs[doc.ID] = &copied
	return nil
}

func (m *memStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	copied := *doc
	return &copied, nil
}

func (m *memStore) ListDocuments(ctx context.Context, tenantID string) ([]*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Document
	for _, doc := range m.docs {
		if doc.TenantID == tenantID {
			copied := *doc
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memStore) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *memStore) SaveJob(ctx context.Context, job *models.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memStore) GetJob(ctx context.Context, id string) (*models.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	copied := *job
	return &copied, nil
}

func (m *memStore) GetJobsByDocument(ctx context.Context, documentID string) ([]*models.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.GenerationJob
	for _, job := range m.jobs {
		if job.DocumentID == documentID {
			copied := *job
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memStore) GetStaleJobs(ctx context.Context, olderThanSeconds int64) ([]*models.GenerationJob, error) {
	return nil, nil
}

func (m *memStore) DeleteJobsByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, job := range m.jobs {
		if job.DocumentID == documentID {
			delete(m.jobs, id)
		}
	}
	return nil
}

func (m *memStore) SaveSection(ctx context.Context, section *models.DocumentSection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *section
	m.sections[section.ID] = &copied
	return nil
}

func (m *memStore) GetSectionsByDocument(ctx context.Context, documentID string) ([]*models.DocumentSection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.DocumentSection
	for _, section := range m.sections {
		if section.DocumentID == documentID {
			copied := *section
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SectionOrder < out[j].SectionOrder })
	return out, nil
}

func (m *memStore) DeleteSectionsByDocument(ctx context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, section := range m.sections {
		if section.DocumentID == documentID {
			delete(m.sections, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memStore) SaveTemplate(ctx context.Context, template *models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *template
	m.templates[template.ID] = &copied
	return nil
}

func (m *memStore) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	template, ok := m.templates[id]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", id)
	}
	copied := *template
	return &copied, nil
}

func (m *memStore) ListTemplates(ctx context.Context, tenantID string) ([]*models.Template, error) {
	return nil, nil
}

func (m *memStore) DeleteTemplate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.templates, id)
	return nil
}

func (m *memStore) SaveProposal(ctx context.Context, proposal *models.StructureProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *proposal
	m.proposals[proposal.ID] = &copied
	return nil
}

func (m *memStore) GetProposal(ctx context.Context, id string) (*models.StructureProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	proposal, ok := m.proposals[id]
	if !ok {
		return nil, fmt.Errorf("proposal not found: %s", id)
	}
	copied := *proposal
	return &copied, nil
}

func (m *memStore) GetProposalsByDocument(ctx context.Context, documentID string) ([]*models.StructureProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.StructureProposal
	for _, proposal := range m.proposals {
		if proposal.DocumentID == documentID {
			copied := *proposal
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memStore) GetLatestApprovedProposal(ctx context.Context, documentID string) (*models.StructureProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.StructureProposal
	for _, proposal := range m.proposals {
		if proposal.DocumentID != documentID || proposal.Status != models.ProposalStatusApproved {
			continue
		}
		if latest == nil || proposal.CreatedAt.After(latest.CreatedAt) {
			latest = proposal
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (m *memStore) DeleteProposalsByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, proposal := range m.proposals {
		if proposal.DocumentID == documentID {
			delete(m.proposals, id)
		}
	}
	return nil
}

func (m *memStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.kv[key]
	if !ok {
		return nil, fmt.Errorf("key not found: %s", key)
	}
	return value, nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	return nil
}

// stubAggregator returns a fixed corpus
type stubAggregator struct {
	corpus *models.Corpus
	calls  int
}

func (a *stubAggregator) Aggregate(ctx context.Context, doc *models.Document) (*models.Corpus, models.CorpusSummary) {
	a.calls++
	if a.corpus == nil {
		return &models.Corpus{}, models.CorpusSummary{}
	}
	return a.corpus, a.corpus.Summary()
}

// stubLLM replays canned responses and records every prompt it was sent
type stubLLM struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string

	// blockUntil, when set, is received from before each call returns
	blockUntil chan struct{}
}

func (l *stubLLM) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	l.mu.Lock()
	for _, msg := range messages {
		l.prompts = append(l.prompts, msg.Content)
	}
	block := l.blockUntil
	l.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if l.err != nil {
		return "", l.err
	}
	return l.response, nil
}

func (l *stubLLM) ProviderName() string                  { return "stub" }
func (l *stubLLM) HealthCheck(ctx context.Context) error { return nil }

func (l *stubLLM) sentPrompts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.prompts...)
}

// recordingEvents captures published events in order
type recordingEvents struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (r *recordingEvents) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	return nil
}

func (r *recordingEvents) Publish(ctx context.Context, event interfaces.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) PublishSync(ctx context.Context, event interfaces.Event) error {
	return r.Publish(ctx, event)
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) statusUpdates() []*models.JobStatusUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.JobStatusUpdate
	for _, event := range r.events {
		if event.Type == interfaces.EventJobStatusChanged {
			out = append(out, event.Payload.(*models.JobStatusUpdate))
		}
	}
	return out
}
