// Package engine is the inference engine behind persona models: it prepares
// model weights (apply an adapter, merge, quantize), brings them up in a
// runtime, and runs tokenization and generation against a loaded model.
//
// The Engine interface is the only surface the cache and the chat service
// see. LlamaCPP implements it on top of the llama.cpp tools and runtimes;
// enginetest provides an in-memory implementation for tests.
package engine

import (
	"context"
	"strings"

	"personad/pkg/types"
)

// Engine is the capability set a persona model cache needs from a runtime.
//
// Apply, Merge and Quantize never modify their input model; each returns a new
// model. Release frees whatever a model owns (runtime instance, files on disk)
// and must never be called with Base().
type Engine interface {
	Base() *Model
	Apply(ctx context.Context, base *Model, adapter types.Adapter) (*Model, error)
	Merge(ctx context.Context, m *Model) (*Model, error)
	Quantize(ctx context.Context, m *Model) (*Model, error)
	Load(ctx context.Context, m *Model) (*Model, error)
	Encode(ctx context.Context, m *Model, text string) ([]int, error)
	Decode(ctx context.Context, m *Model, tokens []int) (string, error)
	Generate(ctx context.Context, m *Model, p Prompt, params Params) (Completion, error)
	Release(m *Model) error
	Close() error
}

// Precision names the weight encoding of a model file.
type Precision string

const (
	F32  Precision = "F32"
	F16  Precision = "F16"
	BF16 Precision = "BF16"
	Q8_0 Precision = "Q8_0"
)

// Full reports whether weights are stored at full precision, the only
// encoding an adapter may be merged into.
func (p Precision) Full() bool {
	switch Precision(strings.ToUpper(string(p))) {
	case F32, F16, BF16:
		return true
	}
	return false
}

// Model describes one set of weights known to the engine. Models are
// immutable once returned.
type Model struct {
	ID string
	// Adapter is the adapter name merged (or to be merged) into the weights.
	// Empty for the unmodified base model.
	Adapter string
	// Path is the GGUF weights file.
	Path      string
	Arch      string
	Precision Precision
	// LoRA and Scale are set between Apply and Merge.
	LoRA  string
	Scale float64
	// Merged is true once the adapter has been folded into Path.
	Merged bool
	// Owned models have a Path the engine created and deletes on Release.
	Owned bool
	// Loaded is true for models returned by Load.
	Loaded bool
}

// Prompt is generation input. Tokens, when present, take precedence over Text.
type Prompt struct {
	Text   string
	Tokens []int
}

// Params are sampling parameters for a single generation.
type Params struct {
	MaxNewTokens int
	Temperature  float64
	TopP         float64
	Stop         []string
	Seed         int
}

// Completion is the result of Generate. Either Text or Tokens (or both) is set.
type Completion struct {
	Text         string
	Tokens       []int
	FinishReason string
	Usage        types.Usage
}
