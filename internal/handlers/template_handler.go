package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
)

type TemplateHandler struct {
	templates interfaces.TemplateService
	logger    arbor.ILogger
}

func NewTemplateHandler(templates interfaces.TemplateService, logger arbor.ILogger) *TemplateHandler {
	return &TemplateHandler{
		templates: templates,
		logger:    logger,
	}
}

// CreateTemplateRequest is the POST /api/templates body. FilePath points at
// an already-uploaded file on shared storage.
type CreateTemplateRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	FilePath string `json:"file_path" validate:"required"`
	FileType string `json:"file_type" validate:"required,oneof=docx pdf DOCX PDF"`
}

// CreateHandler handles POST /api/templates
func (h *TemplateHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}

	template, err := h.templates.CreateTemplate(r.Context(), req.TenantID, req.Name, req.FilePath, req.FileType)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create template")
		WriteError(w, http.StatusInternalServerError, "Failed to create template")
		return
	}

	WriteJSON(w, http.StatusCreated, template)
}

// GetHandler handles GET /api/templates/{id}
func (h *TemplateHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := PathID(r.URL.Path, "/api/templates/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Template ID is required")
		return
	}

	template, err := h.templates.GetTemplate(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Template not found")
		return
	}

	WriteJSON(w, http.StatusOK, template)
}

// ListHandler handles GET /api/templates?tenant_id=...
func (h *TemplateHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		WriteError(w, http.StatusBadRequest, "tenant_id query parameter is required")
		return
	}

	templates, err := h.templates.ListTemplates(r.Context(), tenantID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list templates")
		WriteError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"templates": templates,
		"count":     len(templates),
	})
}

// ParseHandler handles POST /api/templates/{id}/parse. Extraction is fast
// enough to run inline, so the response carries the parse outcome; the
// template's status and the template_parsed event track it as well.
func (h *TemplateHandler) ParseHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	id := PathID(r.URL.Path, "/api/templates/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Template ID is required")
		return
	}

	template, err := h.templates.GetTemplate(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Template not found")
		return
	}

	if err := validateParseable(template); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	outline, err := h.templates.ParseTemplate(r.Context(), id)
	if err != nil {
		h.logger.Warn().Err(err).Str("template_id", id).Msg("Template parse failed")
		WriteError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Failed to parse template: %v", err))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"template_id": id,
		"sections":    len(outline.Sections),
	})
}

func validateParseable(template *models.Template) error {
	if template.FilePath == "" {
		return errors.New("template has no file to parse")
	}
	return nil
}
