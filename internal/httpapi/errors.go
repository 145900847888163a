package httpapi

import (
	"encoding/json"
	"net/http"

	"inferd/internal/scheduler"
	"inferd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps scheduler error classes to HTTP status codes.
func statusForError(err error) int {
	switch {
	case scheduler.IsTooBusy(err):
		return http.StatusTooManyRequests
	case scheduler.IsModelNotFound(err):
		return http.StatusNotFound
	case scheduler.IsAdmission(err):
		return http.StatusBadRequest
	case scheduler.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	case scheduler.IsClosed(err):
		return http.StatusServiceUnavailable
	default:
		if he, ok := err.(HTTPError); ok {
			return he.StatusCode()
		}
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeSchedulerError maps err and writes it, bumping the backpressure
// counter for 429s.
func writeSchedulerError(w http.ResponseWriter, err error) int {
	status := statusForError(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("queue_full")
	}
	writeJSONError(w, status, err.Error())
	return status
}
