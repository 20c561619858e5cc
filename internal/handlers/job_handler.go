package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trado/internal/interfaces"
)

type JobHandler struct {
	storage interfaces.JobStorage
	logger  arbor.ILogger
}

func NewJobHandler(storage interfaces.JobStorage, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		storage: storage,
		logger:  logger,
	}
}

// GetJobHandler handles GET /api/jobs/{id}. This is the polling endpoint the
// status notifier falls back to, so it serves the same snapshot shape the
// push channel carries.
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := PathID(r.URL.Path, "/api/jobs/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.storage.GetJob(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	WriteJSON(w, http.StatusOK, job.Snapshot())
}

// ListJobsHandler handles GET /api/jobs?document_id=...
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	documentID := r.URL.Query().Get("document_id")
	if documentID == "" {
		WriteError(w, http.StatusBadRequest, "document_id query parameter is required")
		return
	}

	jobs, err := h.storage.GetJobsByDocument(r.Context(), documentID)
	if err != nil {
		h.logger.Error().Err(err).Str("document_id", documentID).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}
