package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"llmserverd/internal/worker"
	"llmserverd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps well-known dispatch errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case worker.IsUnknownModel(err):
		return http.StatusNotFound
	case worker.IsBusy(err):
		IncrementBackpressure("mailbox_full")
		return http.StatusTooManyRequests
	case worker.IsWorkerClosed(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		var he HTTPError
		if errors.As(err, &he) {
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
