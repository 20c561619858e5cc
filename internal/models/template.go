package models

import (
	"time"

	"github.com/ternarybob/trado/internal/common"
)

// TemplateStatus tracks structure extraction for an uploaded template
type TemplateStatus string

const (
	TemplateStatusProcessing TemplateStatus = "processing"
	TemplateStatusReady      TemplateStatus = "ready"
	TemplateStatusError      TemplateStatus = "error"
)

// Supported template file types
const (
	TemplateFormatDocx = "docx"
	TemplateFormatPDF  = "pdf"
)

// Template is an uploaded document whose heading structure drives generation
// in template mode. Structure extraction transitions the record through
// processing -> {ready | error}; it is never left in processing on the
// caller's return path.
type Template struct {
	ID           string         `json:"id" badgerhold:"key"`
	TenantID     string         `json:"tenant_id" badgerhold:"index"`
	Name         string         `json:"name"`
	FilePath     string         `json:"file_path"`
	FileType     string         `json:"file_type"` // docx, pdf
	Status       TemplateStatus `json:"status"`
	Outline      *ParsedOutline `json:"outline,omitempty"` // set when status=ready
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewTemplate creates a template record awaiting structure extraction
func NewTemplate(tenantID, name, filePath, fileType string) *Template {
	now := time.Now()
	return &Template{
		ID:        common.NewTemplateID(),
		TenantID:  tenantID,
		Name:      name,
		FilePath:  filePath,
		FileType:  fileType,
		Status:    TemplateStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkReady records a successful extraction
func (t *Template) MarkReady(outline *ParsedOutline) {
	t.Status = TemplateStatusReady
	t.Outline = outline
	t.ErrorMessage = ""
	t.UpdatedAt = time.Now()
}

// MarkError records a failed extraction
func (t *Template) MarkError(errorMsg string) {
	t.Status = TemplateStatusError
	t.ErrorMessage = errorMsg
	t.UpdatedAt = time.Now()
}
