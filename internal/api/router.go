package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	// The legacy clients address every resource with a trailing slash.
	r.Use(middleware.StripSlashes)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such resource")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed for this resource")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/audit", s.handleListAuditLogs)
		r.Get("/ports", s.handleListPorts)

		r.Route("/readers", func(r chi.Router) {
			r.Get("/", s.handleListReaders)
			r.Post("/", s.handleAddReader)
			r.Delete("/", s.handleDeleteAllReaders)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetReader)
				r.Put("/", s.handleUpdateReader)
				r.Patch("/", s.handleUpdateReader)
				r.Delete("/", s.handleDeleteReader)
				r.Put("/start", s.handleStartReader)
				r.Put("/stop", s.handleStopReader)

				r.Route("/tags", func(r chi.Router) {
					r.Get("/", s.handleReadTags)
					r.Put("/", s.handleWriteTags)
					r.Delete("/", s.handleClearTags)
					r.Get("/inventory", s.handleInventory)
				})
			})
		})

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"readers": s.registry.Len(),
	})
}
