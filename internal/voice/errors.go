package voice

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrDisabled is returned when the voice endpoint is not configured.
var ErrDisabled = errors.New("voice chat disabled")

// UpstreamError reports a failed call to a speech or chat backend.
type UpstreamError struct {
	Service string // stt, llm or tts
	Status  int    // upstream HTTP status, 0 on transport errors
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s upstream returned %d: %v", e.Service, e.Status, e.Err)
	}
	return fmt.Sprintf("%s upstream: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// StatusCode maps upstream failures to 502.
func (e *UpstreamError) StatusCode() int { return http.StatusBadGateway }

// IsUpstream reports whether err is an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
