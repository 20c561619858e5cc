package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (job status push channel)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Documents
	mux.HandleFunc("/api/documents", func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{
			http.MethodGet:  s.app.DocumentHandler.ListHandler,
			http.MethodPost: s.app.DocumentHandler.CreateHandler,
		})
	})
	mux.HandleFunc("/api/documents/", s.handleDocumentRoutes)

	// API routes - Structure proposals
	mux.HandleFunc("/api/proposals/", s.handleProposalRoutes)

	// API routes - Generation jobs
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListJobsHandler)
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.GetJobHandler)

	// API routes - Templates
	mux.HandleFunc("/api/templates", func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{
			http.MethodGet:  s.app.TemplateHandler.ListHandler,
			http.MethodPost: s.app.TemplateHandler.CreateHandler,
		})
	})
	mux.HandleFunc("/api/templates/", s.handleTemplateRoutes)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleDocumentRoutes routes /api/documents/{id} and its subpaths
func (s *Server) handleDocumentRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case strings.HasSuffix(path, "/generate"):
		s.app.DocumentHandler.GenerateHandler(w, r)
	case strings.HasSuffix(path, "/export"):
		s.app.DocumentHandler.ExportHandler(w, r)
	case strings.HasSuffix(path, "/proposals"):
		s.app.DocumentHandler.ProposeHandler(w, r)
	case strings.Contains(path, "/sections/"):
		s.app.DocumentHandler.UpdateSectionHandler(w, r)
	default:
		RouteByMethod(w, r, MethodRouter{
			http.MethodGet:    s.app.DocumentHandler.GetHandler,
			http.MethodPut:    s.app.DocumentHandler.UpdateHandler,
			http.MethodDelete: s.app.DocumentHandler.DeleteHandler,
		})
	}
}

// handleProposalRoutes routes /api/proposals/{id} and its review subpaths
func (s *Server) handleProposalRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case strings.HasSuffix(path, "/approve"):
		s.app.ProposalHandler.ApproveHandler(w, r)
	case strings.HasSuffix(path, "/reject"):
		s.app.ProposalHandler.RejectHandler(w, r)
	default:
		s.app.ProposalHandler.GetHandler(w, r)
	}
}

// handleTemplateRoutes routes /api/templates/{id} and its parse subpath
func (s *Server) handleTemplateRoutes(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/parse") {
		s.app.TemplateHandler.ParseHandler(w, r)
		return
	}
	s.app.TemplateHandler.GetHandler(w, r)
}
