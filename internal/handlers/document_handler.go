package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
)

var validate = validator.New()

type DocumentHandler struct {
	storage   interfaces.StorageManager
	generator interfaces.GenerationService
	exporter  interfaces.ExportService
	logger    arbor.ILogger

	// genMu serializes the active-job check and job creation in
	// GenerateHandler so concurrent requests cannot both pass the scan
	genMu sync.Mutex
}

func NewDocumentHandler(storage interfaces.StorageManager, generator interfaces.GenerationService, exporter interfaces.ExportService, logger arbor.ILogger) *DocumentHandler {
	return &DocumentHandler{
		storage:   storage,
		generator: generator,
		exporter:  exporter,
		logger:    logger,
	}
}

// CreateDocumentRequest is the POST /api/documents body.
// Metadata carries source selection details such as "slack_channel_ids".
type CreateDocumentRequest struct {
	TenantID        string                 `json:"tenant_id" validate:"required"`
	Title           string                 `json:"title" validate:"required"`
	TargetUserEmail string                 `json:"target_user_email" validate:"omitempty,email"`
	GenerationMode  string                 `json:"generation_mode" validate:"omitempty,oneof=template ai_proposal"`
	TemplateID      string                 `json:"template_id"`
	DateRangeStart  time.Time              `json:"date_range_start"`
	DateRangeEnd    time.Time              `json:"date_range_end"`
	DataSources     []string               `json:"data_sources" validate:"omitempty,dive,oneof=calendar messaging spreadsheet"`
	Metadata        map[string]interface{} `json:"metadata"`
}

// CreateHandler handles POST /api/documents
func (h *DocumentHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}
	if req.GenerationMode == string(models.GenerationModeTemplate) && req.TemplateID == "" {
		WriteError(w, http.StatusBadRequest, "template_id is required for template mode")
		return
	}

	doc := models.NewDocument(req.TenantID, req.Title)
	doc.TargetUserEmail = req.TargetUserEmail
	doc.GenerationMode = models.GenerationMode(req.GenerationMode)
	if doc.GenerationMode == "" {
		doc.GenerationMode = models.GenerationModeAIProposal
	}
	doc.TemplateID = req.TemplateID
	doc.DateRangeStart = req.DateRangeStart
	doc.DateRangeEnd = req.DateRangeEnd
	doc.DataSources = req.DataSources
	if len(doc.DataSources) == 0 {
		doc.DataSources = append([]string{}, models.AllSources...)
	}
	if req.Metadata != nil {
		doc.Metadata = req.Metadata
	}

	if err := h.storage.DocumentStorage().SaveDocument(r.Context(), doc); err != nil {
		h.logger.Error().Err(err).Msg("Failed to save document")
		WriteError(w, http.StatusInternalServerError, "Failed to save document")
		return
	}

	h.logger.Info().
		Str("document_id", doc.ID).
		Str("tenant_id", doc.TenantID).
		Str("mode", string(doc.GenerationMode)).
		Msg("Document created")

	WriteJSON(w, http.StatusCreated, doc)
}

// ListHandler handles GET /api/documents?tenant_id=...
func (h *DocumentHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		WriteError(w, http.StatusBadRequest, "tenant_id query parameter is required")
		return
	}

	docs, err := h.storage.DocumentStorage().ListDocuments(r.Context(), tenantID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list documents")
		WriteError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"count":     len(docs),
	})
}

// GetHandler handles GET /api/documents/{id}, returning the document with
// its generated sections in order.
func (h *DocumentHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := PathID(r.URL.Path, "/api/documents/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	doc, err := h.storage.DocumentStorage().GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			WriteError(w, http.StatusNotFound, "Document not found")
			return
		}
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to get document")
		WriteError(w, http.StatusInternalServerError, "Failed to get document")
		return
	}

	sections, err := h.storage.SectionStorage().GetSectionsByDocument(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to load sections")
		WriteError(w, http.StatusInternalServerError, "Failed to load sections")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"document": doc,
		"sections": sections,
	})
}

// GenerateHandler handles POST /api/documents/{id}/generate. It creates a
// pending job, launches the pipeline in the background and returns 202 with
// the job snapshot. A document with a non-terminal job gets 409.
func (h *DocumentHandler) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	id := PathID(r.URL.Path, "/api/documents/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	doc, err := h.storage.DocumentStorage().GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			WriteError(w, http.StatusNotFound, "Document not found")
			return
		}
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to get document")
		WriteError(w, http.StatusInternalServerError, "Failed to get document")
		return
	}

	job, activeID, err := h.newJobExclusive(r.Context(), doc)
	if activeID != "" {
		WriteError(w, http.StatusConflict, fmt.Sprintf(
			"Document already has an active generation job (%s)", activeID))
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to create generation job")
		WriteError(w, http.StatusInternalServerError, "Failed to create generation job")
		return
	}

	h.logger.Info().
		Str("document_id", doc.ID).
		Str("job_id", job.ID).
		Msg("Generation job created")

	// The pipeline outlives the request, so it cannot run on the request
	// context. It marks the job terminal on every path; failures surface
	// through job status, not this response.
	go func() {
		if err := h.generator.Generate(context.Background(), doc.ID, job.ID); err != nil {
			h.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Generation finished with error")
		}
	}()

	WriteJSON(w, http.StatusAccepted, job.Snapshot())
}

// newJobExclusive scans for a non-terminal job and creates the new one under
// one lock. Returns the active job's ID instead when the document is busy.
func (h *DocumentHandler) newJobExclusive(ctx context.Context, doc *models.Document) (*models.GenerationJob, string, error) {
	h.genMu.Lock()
	defer h.genMu.Unlock()

	jobs, err := h.storage.JobStorage().GetJobsByDocument(ctx, doc.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check existing jobs: %w", err)
	}
	for _, existing := range jobs {
		if !existing.IsTerminal() {
			return nil, existing.ID, nil
		}
	}

	job := models.NewGenerationJob(doc.ID, doc.TenantID)
	if err := h.storage.JobStorage().SaveJob(ctx, job); err != nil {
		return nil, "", fmt.Errorf("failed to save job: %w", err)
	}
	return job, "", nil
}

// ExportHandler handles GET /api/documents/{id}/export?format=pdf|docx,
// streaming the rendered file as a download. Format defaults to pdf.
func (h *DocumentHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := PathID(r.URL.Path, "/api/documents/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	var (
		payload     []byte
		contentType string
		extension   string
		err         error
	)
	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "pdf":
		payload, err = h.exporter.ExportPDF(r.Context(), id)
		contentType = "application/pdf"
		extension = "pdf"
	case "docx":
		payload, err = h.exporter.ExportDOCX(r.Context(), id)
		contentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		extension = "docx"
	default:
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported export format: %s", format))
		return
	}
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			WriteError(w, http.StatusNotFound, "Document not found")
			return
		}
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to export document")
		WriteError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Failed to export document: %v", err))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="document-%s.%s"`, id, extension))
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// UpdateDocumentRequest is the PUT /api/documents/{id} body. Absent fields
// keep their current values.
type UpdateDocumentRequest struct {
	Title           *string `json:"title"`
	TargetUserEmail *string `json:"target_user_email" validate:"omitempty,email"`
}

// UpdateHandler handles PUT /api/documents/{id}
func (h *DocumentHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}

	id := PathID(r.URL.Path, "/api/documents/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	var req UpdateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		WriteError(w, http.StatusBadRequest, "title cannot be empty")
		return
	}

	doc, err := h.storage.DocumentStorage().GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			WriteError(w, http.StatusNotFound, "Document not found")
			return
		}
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to get document")
		WriteError(w, http.StatusInternalServerError, "Failed to get document")
		return
	}

	if req.Title != nil {
		doc.Title = *req.Title
	}
	if req.TargetUserEmail != nil {
		doc.TargetUserEmail = *req.TargetUserEmail
	}
	doc.UpdatedAt = time.Now()

	if err := h.storage.DocumentStorage().SaveDocument(r.Context(), doc); err != nil {
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to update document")
		WriteError(w, http.StatusInternalServerError, "Failed to update document")
		return
	}

	WriteJSON(w, http.StatusOK, doc)
}

// DeleteHandler handles DELETE /api/documents/{id}, removing the document
// together with its sections, jobs and proposals.
func (h *DocumentHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	id := PathID(r.URL.Path, "/api/documents/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	if _, err := h.storage.DocumentStorage().GetDocument(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			WriteError(w, http.StatusNotFound, "Document not found")
			return
		}
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to get document")
		WriteError(w, http.StatusInternalServerError, "Failed to get document")
		return
	}

	if _, err := h.storage.SectionStorage().DeleteSectionsByDocument(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to delete sections")
		WriteError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}
	if err := h.storage.JobStorage().DeleteJobsByDocument(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to delete jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}
	if err := h.storage.ProposalStorage().DeleteProposalsByDocument(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to delete proposals")
		WriteError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}
	if err := h.storage.DocumentStorage().DeleteDocument(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to delete document")
		WriteError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}

	h.logger.Info().Str("document_id", id).Msg("Document deleted")
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSectionRequest is the PUT /api/documents/{id}/sections/{sid} body
type UpdateSectionRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// UpdateSectionHandler handles PUT /api/documents/{id}/sections/{sid}. A
// manual edit clears the section's AI-generated flag.
func (h *DocumentHandler) UpdateSectionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}

	docID := PathID(r.URL.Path, "/api/documents/")
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/documents/"+docID+"/sections/"), "/")
	if docID == "" || rest == "" || strings.Contains(rest, "/") {
		WriteError(w, http.StatusBadRequest, "Document and section IDs are required")
		return
	}
	sectionID := rest

	var req UpdateSectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	sections, err := h.storage.SectionStorage().GetSectionsByDocument(r.Context(), docID)
	if err != nil {
		h.logger.Error().Err(err).Str("document_id", docID).Msg("Failed to load sections")
		WriteError(w, http.StatusInternalServerError, "Failed to load sections")
		return
	}

	var section *models.DocumentSection
	for _, candidate := range sections {
		if candidate.ID == sectionID {
			section = candidate
			break
		}
	}
	if section == nil {
		WriteError(w, http.StatusNotFound, "Section not found")
		return
	}

	if req.Title != nil {
		section.Title = *req.Title
	}
	if req.Content != nil {
		section.Content = *req.Content
	}
	section.IsAIGenerated = false

	if err := h.storage.SectionStorage().SaveSection(r.Context(), section); err != nil {
		h.logger.Error().Err(err).Str("section_id", sectionID).Msg("Failed to save section")
		WriteError(w, http.StatusInternalServerError, "Failed to save section")
		return
	}

	WriteJSON(w, http.StatusOK, section)
}

// ProposeHandler handles POST /api/documents/{id}/proposals, generating an
// AI structure proposal for review.
func (h *DocumentHandler) ProposeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	id := PathID(r.URL.Path, "/api/documents/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	proposal, err := h.generator.ProposeStructure(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			WriteError(w, http.StatusNotFound, "Document not found")
			return
		}
		if errors.Is(err, models.ErrAIGeneration) {
			WriteError(w, http.StatusBadGateway, fmt.Sprintf("AI proposal failed: %v", err))
			return
		}
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to propose structure")
		WriteError(w, http.StatusInternalServerError, "Failed to propose structure")
		return
	}

	WriteJSON(w, http.StatusCreated, proposal)
}
