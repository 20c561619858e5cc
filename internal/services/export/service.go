package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
)

// Service renders a generated document's sections into a downloadable PDF.
// It implements interfaces.ExportService.
type Service struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewService creates the export service
func NewService(storage interfaces.StorageManager, logger arbor.ILogger) (*Service, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage manager cannot be nil")
	}
	return &Service{
		storage: storage,
		logger:  logger,
	}, nil
}

// ExportPDF assembles the document's sections into one markdown body and
// renders it to PDF bytes
func (s *Service) ExportPDF(ctx context.Context, documentID string) ([]byte, error) {
	markdown, sections, err := s.assembledMarkdown(ctx, documentID)
	if err != nil {
		return nil, err
	}

	pdfBytes, err := renderMarkdownPDF(markdown)
	if err != nil {
		s.logger.Error().Err(err).Str("document_id", documentID).Msg("PDF rendering failed")
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}

	s.logger.Info().
		Str("document_id", documentID).
		Str("format", "pdf").
		Int("sections", sections).
		Int("size", len(pdfBytes)).
		Msg("Document exported")

	return pdfBytes, nil
}

// ExportDOCX renders the same assembled markdown as a Word document
func (s *Service) ExportDOCX(ctx context.Context, documentID string) ([]byte, error) {
	markdown, sections, err := s.assembledMarkdown(ctx, documentID)
	if err != nil {
		return nil, err
	}

	docxBytes, err := renderMarkdownDOCX(markdown)
	if err != nil {
		s.logger.Error().Err(err).Str("document_id", documentID).Msg("DOCX rendering failed")
		return nil, fmt.Errorf("failed to render docx: %w", err)
	}

	s.logger.Info().
		Str("document_id", documentID).
		Str("format", "docx").
		Int("sections", sections).
		Int("size", len(docxBytes)).
		Msg("Document exported")

	return docxBytes, nil
}

// assembledMarkdown loads the document and its sections and joins them into
// one markdown source, returning the section count alongside
func (s *Service) assembledMarkdown(ctx context.Context, documentID string) (string, int, error) {
	doc, err := s.storage.DocumentStorage().GetDocument(ctx, documentID)
	if err != nil {
		return "", 0, err
	}

	sections, err := s.storage.SectionStorage().GetSectionsByDocument(ctx, documentID)
	if err != nil {
		return "", 0, err
	}
	if len(sections) == 0 {
		return "", 0, fmt.Errorf("document %s has no generated sections to export", documentID)
	}

	return assembleMarkdown(doc, sections), len(sections), nil
}

// assembleMarkdown joins the document title and section bodies into one
// markdown source. Section titles become headings at their plan level so a
// section whose AI content already starts with its own heading is not
// double-titled.
func assembleMarkdown(doc *models.Document, sections []*models.DocumentSection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.Title)

	for _, section := range sections {
		content := strings.TrimSpace(section.Content)
		if !startsWithHeading(content, section.Title) {
			fmt.Fprintf(&b, "## %s\n\n", section.Title)
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}

	return b.String()
}

// startsWithHeading reports whether the content already opens with a heading
// carrying the section's title
func startsWithHeading(content, title string) bool {
	if !strings.HasPrefix(content, "#") {
		return false
	}
	firstLine := content
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		firstLine = content[:idx]
	}
	return strings.Contains(firstLine, title)
}
