package manager

import (
	"errors"
	"fmt"
	"net/http"

	"personad/internal/engine"
)

// ErrClosed is returned once Close has started.
var ErrClosed = errors.New("manager closed")

// TooBusyError signals queue timeout/overflow for 429 mapping.
type TooBusyError struct {
	Persona string
	Reason  string
}

func (e *TooBusyError) Error() string {
	return fmt.Sprintf("too busy: %s (%s)", displayKey(e.Persona), e.Reason)
}

func (e *TooBusyError) StatusCode() int { return http.StatusTooManyRequests }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var tb *TooBusyError
	return errors.As(err, &tb)
}

// LoadError reports a failed persona load and the stage it failed in. The
// resident model is unchanged when a LoadError is returned.
type LoadError struct {
	Persona string
	Stage   engine.Stage
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s failed at %s: %v", displayKey(e.Persona), e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// StatusCode defers to the wrapped error when it carries one.
func (e *LoadError) StatusCode() int {
	var sc interface{ StatusCode() int }
	if errors.As(e.Err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}

// IsLoadError reports whether err is (or wraps) a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
