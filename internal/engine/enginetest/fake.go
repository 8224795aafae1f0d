// Package enginetest provides an in-memory engine.Engine for tests of the
// packages built on top of it.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"personad/internal/engine"
	"personad/pkg/types"
)

// Fake is an engine.Engine that keeps models in memory. Weights are
// represented by the name of the adapter merged into them, so generation
// output identifies which persona's weights served it.
type Fake struct {
	// Fail makes the named stage fail for the named adapter ("" is the base).
	Fail map[string]engine.Stage
	// Incompatible makes Apply reject the named adapters.
	Incompatible map[string]bool
	// TokensOnly makes Generate return tokens without text.
	TokensOnly bool
	// BeforeLoad, when set, runs at the start of every Load.
	BeforeLoad func(ctx context.Context, adapter string) error
	// DuringGenerate, when set, runs while a generation holds its model.
	DuringGenerate func(ctx context.Context, m *engine.Model) error

	mu        sync.Mutex
	base      *engine.Model
	live      map[string]*engine.Model
	counts    map[string]map[engine.Stage]int
	released  []string
	baseTouch int
	closed    bool
}

var _ engine.Engine = (*Fake)(nil)

// New returns a Fake over an F16 base model.
func New() *Fake {
	return &Fake{
		Fail:         map[string]engine.Stage{},
		Incompatible: map[string]bool{},
		base:         &engine.Model{ID: "base", Path: "base-f16.gguf", Arch: "llama", Precision: engine.F16},
		live:         map[string]*engine.Model{},
		counts:       map[string]map[engine.Stage]int{},
	}
}

func (f *Fake) Base() *engine.Model { return f.base }

func (f *Fake) record(adapter string, st engine.Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[adapter] == nil {
		f.counts[adapter] = map[engine.Stage]int{}
	}
	f.counts[adapter][st]++
	if f.Fail[adapter] == st {
		return &engine.Failure{Stage: st, Err: errors.New("injected failure")}
	}
	return nil
}

func (f *Fake) derive(m *engine.Model, mut func(*engine.Model)) *engine.Model {
	out := *m
	out.ID = uuid.NewString()
	mut(&out)
	f.mu.Lock()
	f.live[out.ID] = &out
	f.mu.Unlock()
	return &out
}

func (f *Fake) Apply(ctx context.Context, base *engine.Model, a types.Adapter) (*engine.Model, error) {
	if base != f.base {
		return nil, &engine.Failure{Stage: engine.StageApply, Err: errors.New("apply needs the base model")}
	}
	if err := f.record(a.Name, engine.StageApply); err != nil {
		return nil, err
	}
	if f.Incompatible[a.Name] {
		return nil, &engine.IncompatibleAdapterError{Adapter: a.Name, Reason: "shape mismatch"}
	}
	return f.derive(base, func(m *engine.Model) {
		m.Adapter = a.Name
		m.LoRA = a.File
		m.Scale = a.Config.Scale()
	}), nil
}

func (f *Fake) Merge(ctx context.Context, m *engine.Model) (*engine.Model, error) {
	if m == f.base {
		f.mu.Lock()
		f.baseTouch++
		f.mu.Unlock()
		return nil, &engine.Failure{Stage: engine.StageMerge, Err: engine.ErrNoAdapter}
	}
	if !m.Precision.Full() {
		return nil, &engine.Failure{Stage: engine.StageMerge, Err: engine.ErrNotFullPrecision}
	}
	if err := f.record(m.Adapter, engine.StageMerge); err != nil {
		return nil, err
	}
	return f.derive(m, func(o *engine.Model) {
		o.Merged = true
		o.Owned = true
		o.Path = o.Adapter + "-merged.gguf"
	}), nil
}

func (f *Fake) Quantize(ctx context.Context, m *engine.Model) (*engine.Model, error) {
	if !m.Precision.Full() {
		return m, nil
	}
	if err := f.record(m.Adapter, engine.StageQuantize); err != nil {
		return nil, err
	}
	return f.derive(m, func(o *engine.Model) {
		o.Precision = engine.Q8_0
		o.Owned = true
		o.Path = strings.TrimSuffix(o.Path, ".gguf") + "-q8_0.gguf"
	}), nil
}

func (f *Fake) Load(ctx context.Context, m *engine.Model) (*engine.Model, error) {
	if f.BeforeLoad != nil {
		if err := f.BeforeLoad(ctx, m.Adapter); err != nil {
			return nil, &engine.Failure{Stage: engine.StageLoad, Err: err}
		}
	}
	if err := f.record(m.Adapter, engine.StageLoad); err != nil {
		return nil, err
	}
	f.mu.Lock()
	closed := f.closed
	delete(f.live, m.ID)
	f.mu.Unlock()
	if closed {
		return nil, &engine.Failure{Stage: engine.StageLoad, Err: errors.New("engine closed")}
	}
	return f.derive(m, func(o *engine.Model) { o.Loaded = true }), nil
}

func (f *Fake) loaded(m *engine.Model) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.live[m.ID]
	return ok && l.Loaded
}

func (f *Fake) Encode(ctx context.Context, m *engine.Model, text string) ([]int, error) {
	if !f.loaded(m) {
		return nil, &engine.Failure{Stage: engine.StageEncode, Err: engine.ErrNotLoaded}
	}
	toks := make([]int, len(strings.Fields(text)))
	for i := range toks {
		toks[i] = i + 1
	}
	return toks, nil
}

func (f *Fake) Decode(ctx context.Context, m *engine.Model, tokens []int) (string, error) {
	if !f.loaded(m) {
		return "", &engine.Failure{Stage: engine.StageDecode, Err: engine.ErrNotLoaded}
	}
	return fmt.Sprintf("%s<|eot_id|>", Reply(m.Adapter)), nil
}

// Reply is the text a Fake generates for weights carrying adapter.
func Reply(adapter string) string {
	if adapter == "" {
		adapter = "base"
	}
	return "reply from " + adapter + " weights"
}

func (f *Fake) Generate(ctx context.Context, m *engine.Model, p engine.Prompt, params engine.Params) (engine.Completion, error) {
	if !f.loaded(m) {
		return engine.Completion{}, &engine.Failure{Stage: engine.StageGenerate, Err: engine.ErrNotLoaded}
	}
	if err := f.record(m.Adapter, engine.StageGenerate); err != nil {
		return engine.Completion{}, err
	}
	if f.DuringGenerate != nil {
		if err := f.DuringGenerate(ctx, m); err != nil {
			return engine.Completion{}, &engine.Failure{Stage: engine.StageGenerate, Err: err}
		}
	}
	// the weights must still be resident when generation finishes
	if !f.loaded(m) {
		return engine.Completion{}, &engine.Failure{Stage: engine.StageGenerate, Err: errors.New("model released during generation")}
	}
	c := engine.Completion{Tokens: []int{42, 43}}
	if !f.TokensOnly {
		c.Text = " " + Reply(m.Adapter) + "<|eot_id|>"
	}
	c.Usage = types.Usage{PromptTokens: len(p.Tokens), CompletionTokens: 2, TotalTokens: len(p.Tokens) + 2}
	return c, nil
}

func (f *Fake) Release(m *engine.Model) error {
	if m == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if m == f.base || m.ID == f.base.ID {
		f.baseTouch++
		return errors.New("base model released")
	}
	if _, ok := f.live[m.ID]; !ok {
		return fmt.Errorf("release of unknown model %s", m.ID)
	}
	delete(f.live, m.ID)
	if m.Loaded {
		f.released = append(f.released, m.Adapter)
	}
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Count returns how many times stage ran for adapter.
func (f *Fake) Count(adapter string, st engine.Stage) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[adapter][st]
}

// Released lists adapters whose loaded models were released, in order.
func (f *Fake) Released() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.released...)
}

// Live returns the number of models not yet released or consumed.
func (f *Fake) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

// BaseTouched reports whether anything tried to merge into or release the base.
func (f *Fake) BaseTouched() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.baseTouch > 0
}
