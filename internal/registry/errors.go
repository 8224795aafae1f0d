package registry

import (
	"errors"
	"fmt"
	"net/http"
)

// NotFoundError indicates that no adapter directory exists for Name.
type NotFoundError struct{ Name string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("adapter not found: %s", e.Name) }

// StatusCode implements the HTTP layer's error interface.
func (e *NotFoundError) StatusCode() int { return http.StatusNotFound }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// PayloadError means the adapter directory exists but its contents are unusable.
type PayloadError struct {
	Dir    string
	Reason string
}

func (e *PayloadError) Error() string { return fmt.Sprintf("adapter %s: %s", e.Dir, e.Reason) }

func (e *PayloadError) StatusCode() int { return http.StatusUnprocessableEntity }
