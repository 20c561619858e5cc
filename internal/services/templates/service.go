package templates

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
)

// Service implements TemplateService: template records plus heading
// structure extraction from uploaded DOCX and PDF files.
type Service struct {
	storage interfaces.TemplateStorage
	events  interfaces.EventService
	logger  arbor.ILogger
}

// NewService creates a template service
func NewService(storage interfaces.TemplateStorage, events interfaces.EventService, logger arbor.ILogger) (*Service, error) {
	if storage == nil {
		return nil, fmt.Errorf("template storage cannot be nil")
	}
	if events == nil {
		return nil, fmt.Errorf("event service cannot be nil")
	}

	return &Service{
		storage: storage,
		events:  events,
		logger:  logger,
	}, nil
}

// CreateTemplate registers an uploaded template file awaiting extraction
func (s *Service) CreateTemplate(ctx context.Context, tenantID, name, filePath, fileType string) (*models.Template, error) {
	fileType = strings.ToLower(strings.TrimSpace(fileType))

	template := models.NewTemplate(tenantID, name, filePath, fileType)
	if err := s.storage.SaveTemplate(ctx, template); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("template_id", template.ID).
		Str("file_type", fileType).
		Msg("Template created")

	return template, nil
}

// GetTemplate retrieves a template record by id
func (s *Service) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	return s.storage.GetTemplate(ctx, id)
}

// ListTemplates retrieves all templates for a tenant
func (s *Service) ListTemplates(ctx context.Context, tenantID string) ([]*models.Template, error) {
	return s.storage.ListTemplates(ctx, tenantID)
}

// ParseTemplate extracts the heading outline from the template's file and
// transitions the record processing -> ready|error. Every exit path persists
// a terminal status, so a template is never left stuck in processing.
func (s *Service) ParseTemplate(ctx context.Context, templateID string) (*models.ParsedOutline, error) {
	template, err := s.storage.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	template.Status = models.TemplateStatusProcessing
	template.ErrorMessage = ""
	if err := s.storage.SaveTemplate(ctx, template); err != nil {
		return nil, err
	}

	outline, parseErr := s.extractOutline(template)
	if parseErr != nil {
		s.logger.Warn().
			Err(parseErr).
			Str("template_id", template.ID).
			Str("file_type", template.FileType).
			Msg("Template structure extraction failed")

		template.MarkError(parseErr.Error())
		if saveErr := s.storage.SaveTemplate(ctx, template); saveErr != nil {
			return nil, fmt.Errorf("failed to persist error status: %w", saveErr)
		}
		s.publishParsed(ctx, template)
		return nil, parseErr
	}

	template.MarkReady(outline)
	if err := s.storage.SaveTemplate(ctx, template); err != nil {
		return nil, err
	}
	s.publishParsed(ctx, template)

	s.logger.Info().
		Str("template_id", template.ID).
		Int("sections", len(outline.Sections)).
		Msg("Template structure extracted")

	return outline, nil
}

func (s *Service) extractOutline(template *models.Template) (*models.ParsedOutline, error) {
	fileBytes, err := os.ReadFile(template.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read template file: %v", models.ErrTemplateParse, err)
	}

	switch template.FileType {
	case models.TemplateFormatDocx:
		return parseDocx(fileBytes)
	case models.TemplateFormatPDF:
		return parsePDF(fileBytes)
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedTemplateFormat, template.FileType)
	}
}

func (s *Service) publishParsed(ctx context.Context, template *models.Template) {
	if err := s.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventTemplateParsed,
		Payload: template,
	}); err != nil {
		s.logger.Warn().Err(err).Str("template_id", template.ID).Msg("Failed to publish template parsed event")
	}
}
