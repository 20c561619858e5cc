package interfaces

import (
	"context"

	"github.com/ternarybob/trado/internal/models"
)

// GenerationService drives the handover generation pipeline
type GenerationService interface {
	// Generate runs the checkpointed pipeline for (document, job). It
	// always leaves the job in a terminal state before returning.
	Generate(ctx context.Context, documentID, jobID string) error

	// ProposeStructure aggregates the document's sources and asks the AI
	// service for a section outline, persisting it as a pending proposal.
	ProposeStructure(ctx context.Context, documentID string) (*models.StructureProposal, error)
}

// TemplateService owns template records and structure extraction
type TemplateService interface {
	CreateTemplate(ctx context.Context, tenantID, name, filePath, fileType string) (*models.Template, error)
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	ListTemplates(ctx context.Context, tenantID string) ([]*models.Template, error)

	// ParseTemplate extracts the heading outline from the template's file
	// and transitions the record processing -> ready|error. The template is
	// never left in processing on return.
	ParseTemplate(ctx context.Context, templateID string) (*models.ParsedOutline, error)
}

// ExportService renders a generated document to a downloadable artifact
type ExportService interface {
	ExportPDF(ctx context.Context, documentID string) ([]byte, error)
	ExportDOCX(ctx context.Context, documentID string) ([]byte, error)
}
