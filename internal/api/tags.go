package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

var errNotTagList = errors.New("request body must be a JSON array of tag identifiers")

// tagIDs collects the tag ids of a read or clear request: repeated tag_id
// query parameters, or a JSON array body as sent by older clients. No ids
// means every tag in the field.
func tagIDs(r *http.Request) ([]string, error) {
	if ids := r.URL.Query()["tag_id"]; len(ids) > 0 {
		return ids, nil
	}
	if r.Body == nil {
		return nil, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, errNotTagList
	}
	return ids, nil
}

// handleInventory lists tag identifiers in the reader's field.
//
// GET /readers/{id}/tags/inventory
// Response: {"response": ["E0040100", "E0040101"]}
func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	tags, err := s.registry.Inventory(r.Context(), readerID(r))
	writeEnvelope(w, http.StatusOK, tags, err)
}

// handleReadTags reads tag payloads.
//
// GET /readers/{id}/tags?tag_id=E0040100&tag_id=E0040101
// Response: {"response": {"E0040100": "text"}, "error": {"E0040101": {...}}}
func (s *Server) handleReadTags(w http.ResponseWriter, r *http.Request) {
	ids, err := tagIDs(r)
	if err != nil {
		writeEnvelope(w, http.StatusOK, nil, shapeError(err))
		return
	}
	batch, err := s.registry.ReadTags(r.Context(), readerID(r), ids)
	writeBatch(w, batch, err)
}

// handleWriteTags writes payload text to tags.
//
// PUT /readers/{id}/tags
// Body: {"E0040100": "text", "E0040101": "other"}
// Response: {"response": {"E0040100": 0}, "error": {"E0040101": {...}}}
func (s *Server) handleWriteTags(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeEnvelope(w, http.StatusOK, nil, shapeError(err))
		return
	}
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil || data == nil {
		writeEnvelope(w, http.StatusOK, nil, shapeError(errNotObject))
		return
	}
	batch, err := s.registry.WriteTags(r.Context(), readerID(r), data, false)
	writeBatch(w, batch, err)
}

// handleClearTags blanks tag payloads.
//
// DELETE /readers/{id}/tags?tag_id=E0040100
func (s *Server) handleClearTags(w http.ResponseWriter, r *http.Request) {
	ids, err := tagIDs(r)
	if err != nil {
		writeEnvelope(w, http.StatusOK, nil, shapeError(err))
		return
	}
	batch, err := s.registry.ClearTags(r.Context(), readerID(r), ids)
	writeBatch(w, batch, err)
}
