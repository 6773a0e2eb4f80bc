package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/rfidhub/internal/reader"
)

// Error is the body of failures outside the reader envelope: unknown
// routes, panics and the auxiliary endpoints.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeInternal       = "internal_error"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeEnvelope writes a registry result. success is the status used when
// err is nil.
func writeEnvelope(w http.ResponseWriter, success int, v any, err error) {
	if err != nil {
		e := reader.AsError(err)
		writeJSON(w, statusFor(e), reader.Envelope(nil, e))
		return
	}
	writeJSON(w, success, reader.Envelope(v, nil))
}

// writeBatch writes a tag batch. A batch with at least one success is a
// 200; otherwise the status follows the first failure class present.
func writeBatch(w http.ResponseWriter, b *reader.TagBatch, err error) {
	if err != nil {
		writeEnvelope(w, http.StatusOK, nil, err)
		return
	}
	writeJSON(w, batchStatus(b), b)
}

func batchStatus(b *reader.TagBatch) int {
	if b.Succeeded() > 0 || b.Failed() == 0 {
		return http.StatusOK
	}
	for _, e := range b.Errors {
		if statusFor(e) == http.StatusInternalServerError {
			return http.StatusInternalServerError
		}
	}
	return http.StatusBadRequest
}

// statusFor maps a catalogue error to its HTTP status.
func statusFor(e *reader.Error) int {
	switch {
	case e.Native():
		return http.StatusInternalServerError
	case e.Is(reader.ReaderNotExists):
		return http.StatusNotFound
	case e.Is(reader.StorageFailure), e.Is(reader.DeviceTimeout), e.Is(reader.InternalFailure):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
