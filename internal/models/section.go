package models

import (
	"time"

	"github.com/ternarybob/trado/internal/common"
)

// DocumentSection is one produced unit of content, written exactly once per
// planned section during generation. Sections are never updated in place; a
// re-run replaces the document's sections wholesale.
type DocumentSection struct {
	ID            string    `json:"id" badgerhold:"key"`
	DocumentID    string    `json:"document_id" badgerhold:"index"`
	SectionOrder  int       `json:"section_order"` // 1-based display order, not necessarily contiguous
	Title         string    `json:"title"`
	Content       string    `json:"content,omitempty"` // markdown, empty until generated
	SourceTags    []string  `json:"source_tags,omitempty"`
	IsAIGenerated bool      `json:"is_ai_generated"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewDocumentSection creates a section row for a planned section
func NewDocumentSection(documentID string, order int, title string) *DocumentSection {
	return &DocumentSection{
		ID:           common.NewSectionID(),
		DocumentID:   documentID,
		SectionOrder: order,
		Title:        title,
		CreatedAt:    time.Now(),
	}
}
