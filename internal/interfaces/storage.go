package interfaces

import (
	"context"

	"github.com/ternarybob/trado/internal/models"
)

// DocumentStorage - interface for handover document persistence
type DocumentStorage interface {
	SaveDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, tenantID string) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

// JobStorage - interface for generation job persistence
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.GenerationJob) error
	GetJob(ctx context.Context, id string) (*models.GenerationJob, error)
	GetJobsByDocument(ctx context.Context, documentID string) ([]*models.GenerationJob, error)
	// GetStaleJobs returns non-terminal jobs whose last update is older than
	// the cutoff, used by the reaper.
	GetStaleJobs(ctx context.Context, olderThanSeconds int64) ([]*models.GenerationJob, error)
	DeleteJobsByDocument(ctx context.Context, documentID string) error
}

// SectionStorage - interface for generated section persistence
type SectionStorage interface {
	SaveSection(ctx context.Context, section *models.DocumentSection) error
	GetSectionsByDocument(ctx context.Context, documentID string) ([]*models.DocumentSection, error)
	DeleteSectionsByDocument(ctx context.Context, documentID string) (int, error)
}

// TemplateStorage - interface for template persistence
type TemplateStorage interface {
	SaveTemplate(ctx context.Context, template *models.Template) error
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	ListTemplates(ctx context.Context, tenantID string) ([]*models.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
}

// ProposalStorage - interface for AI structure proposal persistence
type ProposalStorage interface {
	SaveProposal(ctx context.Context, proposal *models.StructureProposal) error
	GetProposal(ctx context.Context, id string) (*models.StructureProposal, error)
	GetProposalsByDocument(ctx context.Context, documentID string) ([]*models.StructureProposal, error)
	// GetLatestApprovedProposal returns the most recently created approved
	// proposal for the document, or nil when none exists.
	GetLatestApprovedProposal(ctx context.Context, documentID string) (*models.StructureProposal, error)
	DeleteProposalsByDocument(ctx context.Context, documentID string) error
}

// KVStorage - interface for small operational key/value data
type KVStorage interface {
	Set(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// StorageManager provides access to all storage interfaces and owns the
// underlying database lifecycle
type StorageManager interface {
	DocumentStorage() DocumentStorage
	JobStorage() JobStorage
	SectionStorage() SectionStorage
	TemplateStorage() TemplateStorage
	ProposalStorage() ProposalStorage
	KVStorage() KVStorage
	Close() error
}
