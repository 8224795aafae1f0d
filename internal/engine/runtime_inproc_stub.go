//go:build !llama

package engine

import "context"

// Without the 'llama' build tag the in-process runtime refuses to start,
// keeping default builds CGO-free.

const inprocBuilt = false

type inprocRuntime struct{}

func newInprocRuntime(Options) runtime { return inprocRuntime{} }

func (inprocRuntime) Name() string { return "inproc" }

func (inprocRuntime) Start(context.Context, string) (instance, error) {
	return nil, ErrDependencyUnavailable("inproc runtime not built (missing 'llama' build tag)")
}
