package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/rfidhub/internal/audit"
)

// handleListAuditLogs returns recorded registry mutations, newest first.
//
// Query parameters:
//   - event_type: e.g. reader.added, readers.cleared
//   - reader_id: filter by reader
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		EventType: q.Get("event_type"),
		ReaderID:  q.Get("reader_id"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleListPorts lists serial ports readers may be attached to.
func (s *Server) handleListPorts(w http.ResponseWriter, _ *http.Request) {
	if s.ports == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "driver cannot enumerate ports")
		return
	}
	ports, err := s.ports.Ports()
	if err != nil {
		s.logger.Error("failed to list serial ports", "error", err)
		writeInternalError(w, "failed to list serial ports")
		return
	}
	if ports == nil {
		ports = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ports": ports, "count": len(ports)})
}
