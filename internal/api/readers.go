package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/rfidhub/internal/reader"
)

// errNotObject is reported when a body that must be a JSON object is not.
var errNotObject = errors.New("request body must be a JSON object")

// decodeFields decodes a JSON object body. Numbers are kept as json.Number
// so the registry can tell 1 from 1.5 and true from 1.
func decodeFields(r *http.Request) (reader.Fields, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errNotObject
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var f reader.Fields
	if err := dec.Decode(&f); err != nil || f == nil {
		return nil, errNotObject
	}
	return f, nil
}

// shapeError converts a body decoding failure to the envelope error.
func shapeError(err error) error {
	return reader.WrongRequestShape.Describe(err.Error())
}

func readerID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// handleListReaders returns every reader keyed by id.
func (s *Server) handleListReaders(w http.ResponseWriter, _ *http.Request) {
	writeEnvelope(w, http.StatusOK, s.registry.ListReaders(), nil)
}

// handleGetReader returns one reader keyed by its id, the same shape as one
// entry of the list.
func (s *Server) handleGetReader(w http.ResponseWriter, r *http.Request) {
	id := readerID(r)
	info, err := s.registry.GetReader(id)
	if err != nil {
		writeEnvelope(w, http.StatusOK, nil, err)
		return
	}
	writeEnvelope(w, http.StatusOK, map[string]reader.ReaderInfo{id: info}, nil)
}

// handleAddReader registers a reader from {reader_id, bus_addr, port_number[, state]}.
func (s *Server) handleAddReader(w http.ResponseWriter, r *http.Request) {
	f, err := decodeFields(r)
	if err != nil {
		writeEnvelope(w, http.StatusCreated, nil, shapeError(err))
		return
	}
	writeEnvelope(w, http.StatusCreated, nil, s.registry.AddReader(r.Context(), f))
}

// handleUpdateReader applies a partial update.
func (s *Server) handleUpdateReader(w http.ResponseWriter, r *http.Request) {
	f, err := decodeFields(r)
	if err != nil {
		writeEnvelope(w, http.StatusOK, nil, shapeError(err))
		return
	}
	writeEnvelope(w, http.StatusOK, nil, s.registry.UpdateReader(r.Context(), readerID(r), f))
}

func (s *Server) handleDeleteReader(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusOK, nil, s.registry.DeleteReader(r.Context(), readerID(r)))
}

func (s *Server) handleDeleteAllReaders(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusOK, nil, s.registry.DeleteAllReaders(r.Context()))
}

func (s *Server) handleStartReader(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusOK, nil, s.registry.Connect(r.Context(), readerID(r)))
}

func (s *Server) handleStopReader(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusOK, nil, s.registry.Disconnect(r.Context(), readerID(r)))
}
