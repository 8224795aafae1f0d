package engine

import (
	"errors"
	"fmt"
	"net/http"
)

// Stage names a step of model preparation or inference.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StageApply    Stage = "apply"
	StageMerge    Stage = "merge"
	StageQuantize Stage = "quantize"
	StageLoad     Stage = "load"
	StageEncode   Stage = "encode"
	StageGenerate Stage = "generate"
	StageDecode   Stage = "decode"
)

var (
	// ErrQuantizedBase is returned by Apply when the base is not full precision.
	ErrQuantizedBase = errors.New("base model is not full precision")
	// ErrNotFullPrecision is returned by Merge for compressed weights.
	ErrNotFullPrecision = errors.New("merge requires full-precision weights")
	// ErrNoAdapter is returned by Merge for a model with nothing to merge.
	ErrNoAdapter = errors.New("model has no adapter attached")
	// ErrNotLoaded is returned when inference is requested on an unloaded or released model.
	ErrNotLoaded = errors.New("model is not loaded")
)

// IncompatibleAdapterError means the adapter payload does not fit the base
// model: wrong architecture or tensor shapes, not a LoRA, or an unreadable
// header.
type IncompatibleAdapterError struct {
	Adapter string
	Reason  string
}

func (e *IncompatibleAdapterError) Error() string {
	return fmt.Sprintf("adapter %s incompatible with base model: %s", e.Adapter, e.Reason)
}

func (e *IncompatibleAdapterError) StatusCode() int { return http.StatusUnprocessableEntity }

// IsIncompatibleAdapter reports whether err is (or wraps) an IncompatibleAdapterError.
func IsIncompatibleAdapter(err error) bool {
	var ia *IncompatibleAdapterError
	return errors.As(err, &ia)
}

// Failure is an engine error tagged with the stage it happened in.
type Failure struct {
	Stage Stage
	Err   error
}

func (e *Failure) Error() string { return fmt.Sprintf("engine %s: %v", e.Stage, e.Err) }

func (e *Failure) Unwrap() error { return e.Err }

// StatusCode maps wrapped dependency errors to 503; everything else is a 500.
func (e *Failure) StatusCode() int {
	if IsDependencyUnavailable(e.Err) {
		return http.StatusServiceUnavailable
	}
	if IsIncompatibleAdapter(e.Err) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func fail(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	return &Failure{Stage: stage, Err: err}
}

// StageOf returns the stage recorded in err, or "".
func StageOf(err error) Stage {
	var f *Failure
	if errors.As(err, &f) {
		return f.Stage
	}
	return ""
}

// dependencyUnavailableError signals a missing external dependency (llama.cpp
// binaries, a build without the llama tag) so the HTTP layer returns 503.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

func (e dependencyUnavailableError) StatusCode() int { return http.StatusServiceUnavailable }

// ErrDependencyUnavailable constructs a dependency-unavailable error.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var d dependencyUnavailableError
	return errors.As(err, &d)
}
