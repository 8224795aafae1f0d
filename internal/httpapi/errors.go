package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"personad/internal/engine"
	"personad/internal/manager"
	"personad/internal/voice"
	"personad/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusOf maps an error from the service layer to an HTTP status.
func statusOf(err error) int {
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	switch {
	case errors.Is(err, manager.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, voice.ErrDisabled):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// stageOf names the pipeline or generation stage err failed in, if any.
func stageOf(err error) string {
	var le *manager.LoadError
	if errors.As(err, &le) {
		return string(le.Stage)
	}
	return string(engine.StageOf(err))
}

// writeError writes err as a JSON error payload and returns the status used.
func writeError(w http.ResponseWriter, err error) int {
	status := statusOf(err)
	if status == http.StatusTooManyRequests {
		var tb *manager.TooBusyError
		if errors.As(err, &tb) {
			IncrementBackpressure(tb.Reason)
		}
	}
	writeJSON(w, status, types.ErrorResponse{Error: err.Error(), Code: status, Stage: stageOf(err)})
	return status
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
