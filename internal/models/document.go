package models

import (
	"time"

	"github.com/ternarybob/trado/internal/common"
)

// GenerationMode determines where the document's section structure comes from
type GenerationMode string

const (
	// GenerationModeTemplate uses the outline parsed from an uploaded template
	GenerationModeTemplate GenerationMode = "template"
	// GenerationModeAIProposal uses the most recently approved AI-proposed outline
	GenerationModeAIProposal GenerationMode = "ai_proposal"
)

// DocumentStatus represents the document-level lifecycle flag. It mirrors the
// job's terminal status as a separate field so the document stays readable
// mid-generation.
type DocumentStatus string

const (
	DocumentStatusDraft      DocumentStatus = "draft"
	DocumentStatusGenerating DocumentStatus = "generating"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusError      DocumentStatus = "error"
)

// Source type identifiers used in data_sources, section source tags and
// corpus filtering
const (
	SourceCalendar    = "calendar"
	SourceMessaging   = "messaging"
	SourceSpreadsheet = "spreadsheet"
)

// AllSources lists every supported source type
var AllSources = []string{SourceCalendar, SourceMessaging, SourceSpreadsheet}

// IsValidSource checks whether a source type identifier is supported
func IsValidSource(source string) bool {
	switch source {
	case SourceCalendar, SourceMessaging, SourceSpreadsheet:
		return true
	default:
		return false
	}
}

// Document is the handover artifact being assembled. Owned by the creating
// user's tenant.
type Document struct {
	ID              string         `json:"id" badgerhold:"key"`
	TenantID        string         `json:"tenant_id" badgerhold:"index"`
	Title           string         `json:"title"`
	TargetUserEmail string         `json:"target_user_email"`
	GenerationMode  GenerationMode `json:"generation_mode"`
	TemplateID      string         `json:"template_id,omitempty"`
	DateRangeStart  time.Time      `json:"date_range_start"`
	DateRangeEnd    time.Time      `json:"date_range_end"`
	DataSources     []string       `json:"data_sources"` // subset of AllSources

	// Metadata is an opaque bag for source selection details, e.g.
	// "slack_channel_ids" and "spreadsheet_ids".
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	Status    DocumentStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewDocument creates a draft document
func NewDocument(tenantID, title string) *Document {
	now := time.Now()
	return &Document{
		ID:        common.NewDocumentID(),
		TenantID:  tenantID,
		Title:     title,
		Status:    DocumentStatusDraft,
		Metadata:  map[string]interface{}{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasSource reports whether a source type was selected for this document
func (d *Document) HasSource(source string) bool {
	for _, s := range d.DataSources {
		if s == source {
			return true
		}
	}
	return false
}

// StringSliceMeta reads a []string value out of the metadata bag, tolerating
// the []interface{} shape JSON decoding produces.
func (d *Document) StringSliceMeta(key string) []string {
	raw, ok := d.Metadata[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
