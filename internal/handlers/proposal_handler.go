package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
)

type ProposalHandler struct {
	storage interfaces.ProposalStorage
	logger  arbor.ILogger
}

func NewProposalHandler(storage interfaces.ProposalStorage, logger arbor.ILogger) *ProposalHandler {
	return &ProposalHandler{
		storage: storage,
		logger:  logger,
	}
}

// GetHandler handles GET /api/proposals/{id}
func (h *ProposalHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := PathID(r.URL.Path, "/api/proposals/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Proposal ID is required")
		return
	}

	proposal, err := h.storage.GetProposal(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Proposal not found")
		return
	}

	WriteJSON(w, http.StatusOK, proposal)
}

// ApproveHandler handles POST /api/proposals/{id}/approve. An approved
// proposal becomes the document's section structure on the next generation
// run.
func (h *ProposalHandler) ApproveHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	h.review(w, r, true)
}

// RejectHandler handles POST /api/proposals/{id}/reject
func (h *ProposalHandler) RejectHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	h.review(w, r, false)
}

func (h *ProposalHandler) review(w http.ResponseWriter, r *http.Request, approve bool) {
	id := PathID(r.URL.Path, "/api/proposals/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Proposal ID is required")
		return
	}

	proposal, err := h.storage.GetProposal(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Proposal not found")
		return
	}

	if proposal.Status != models.ProposalStatusPending {
		WriteError(w, http.StatusConflict, "Proposal has already been reviewed")
		return
	}

	if approve {
		proposal.Approve()
	} else {
		proposal.Reject()
	}

	if err := h.storage.SaveProposal(r.Context(), proposal); err != nil {
		h.logger.Error().Err(err).Str("proposal_id", id).Msg("Failed to save proposal review")
		WriteError(w, http.StatusInternalServerError, "Failed to save proposal")
		return
	}

	h.logger.Info().
		Str("proposal_id", id).
		Str("status", string(proposal.Status)).
		Msg("Proposal reviewed")

	WriteJSON(w, http.StatusOK, proposal)
}
