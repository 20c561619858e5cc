package handlers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
)

// handlerStore is an in-memory StorageManager for handler tests
type handlerStore struct {
	mu        sync.Mutex
	docs      map[string]*models.Document
	jobs      map[string]*models.GenerationJob
	sections  map[string]*models.DocumentSection
	templates map[string]*models.Template
	proposals map[string]*models.StructureProposal
}

func newHandlerStore() *handlerStore {
	return &handlerStore{
		docs:      make(map[string]*models.Document),
		jobs:      make(map[string]*models.GenerationJob),
		sections:  make(map[string]*models.DocumentSection),
		templates: make(map[string]*models.Template),
		proposals: make(map[string]*models.StructureProposal),
	}
}

func (m *handlerStore) DocumentStorage() interfaces.DocumentStorage { return m }
func (m *handlerStore) JobStorage() interfaces.JobStorage           { return m }
func (m *handlerStore) SectionStorage() interfaces.SectionStorage   { return m }
func (m *handlerStore) TemplateStorage() interfaces.TemplateStorage { return m }
func (m *handlerStore) ProposalStorage() interfaces.ProposalStorage { return m }
func (m *handlerStore) KVStorage() interfaces.KVStorage             { return nil }
func (m *handlerStore) Close() error                                { return nil }

func (m *handlerStore) SaveDocument(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *doc
	m.docs[doc.ID] = &copied
	return nil
}

func (m *handlerStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	copied := *doc
	return &copied, nil
}

func (m *handlerStore) ListDocuments(ctx context.Context, tenantID string) ([]*models.Document, error) {
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

func (m *handlerStore) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *handlerStore) SaveJob(ctx context.Context, job *models.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *handlerStore) GetJob(ctx context.Context, id string) (*models.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	copied := *job
	return &copied, nil
}

func (m *handlerStore) GetJobsByDocument(ctx context.Context, documentID string) ([]*models.GenerationJob, error) {
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

func (m *handlerStore) GetStaleJobs(ctx context.Context, olderThanSeconds int64) ([]*models.GenerationJob, error) {
	return nil, nil
}

func (m *handlerStore) DeleteJobsByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, job := range m.jobs {
		if job.DocumentID == documentID {
			delete(m.jobs, id)
		}
	}
	return nil
}

func (m *handlerStore) SaveSection(ctx context.Context, section *models.DocumentSection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *section
	m.sections[section.ID] = &copied
	return nil
}

func (m *handlerStore) GetSectionsByDocument(ctx context.Context, documentID string) ([]*models.DocumentSection, error) {
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

func (m *handlerStore) DeleteSectionsByDocument(ctx context.Context, documentID string) (int, error) {
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

func (m *handlerStore) SaveTemplate(ctx context.Context, template *models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *template
	m.templates[template.ID] = &copied
	return nil
}

func (m *handlerStore) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	template, ok := m.templates[id]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", id)
	}
	copied := *template
	return &copied, nil
}

func (m *handlerStore) ListTemplates(ctx context.Context, tenantID string) ([]*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Template
	for _, template := range m.templates {
		if template.TenantID == tenantID {
			copied := *template
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *handlerStore) DeleteTemplate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.templates, id)
	return nil
}

func (m *handlerStore) SaveProposal(ctx context.Context, proposal *models.StructureProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *proposal
	m.proposals[proposal.ID] = &copied
	return nil
}

func (m *handlerStore) GetProposal(ctx context.Context, id string) (*models.StructureProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	proposal, ok := m.proposals[id]
	if !ok {
		return nil, fmt.Errorf("proposal not found: %s", id)
	}
	copied := *proposal
	return &copied, nil
}

func (m *handlerStore) GetProposalsByDocument(ctx context.Context, documentID string) ([]*models.StructureProposal, error) {
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

func (m *handlerStore) GetLatestApprovedProposal(ctx context.Context, documentID string) (*models.StructureProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.StructureProposal
	for _, proposal := range m.proposals {
		if proposal.DocumentID != documentID || proposal.Status != models.ProposalStatusApproved {
			continue
		}
		if latest == nil || proposal.CreatedAt.After(latest.CreatedAt) {
			copied := *proposal
			latest = &copied
		}
	}
	return latest, nil
}

func (m *handlerStore) DeleteProposalsByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, proposal := range m.proposals {
		if proposal.DocumentID == documentID {
			delete(m.proposals, id)
		}
	}
	return nil
}

// stubGenerator records pipeline launches without running them
type stubGenerator struct {
	mu        sync.Mutex
	generated [][2]string // (documentID, jobID)
	proposal  *models.StructureProposal
	err       error
}

func (g *stubGenerator) Generate(ctx context.Context, documentID, jobID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generated = append(g.generated, [2]string{documentID, jobID})
	return g.err
}

func (g *stubGenerator) ProposeStructure(ctx context.Context, documentID string) (*models.StructureProposal, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.proposal != nil {
		return g.proposal, nil
	}
	proposal := models.NewStructureProposal(documentID, models.DefaultProposalSections())
	return proposal, nil
}

func (g *stubGenerator) launches() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.generated)
}

// stubExporter returns canned export bytes
type stubExporter struct {
	pdf  []byte
	docx []byte
	err  error
}

func (e *stubExporter) ExportPDF(ctx context.Context, documentID string) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.pdf, nil
}

func (e *stubExporter) ExportDOCX(ctx context.Context, documentID string) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.docx, nil
}
