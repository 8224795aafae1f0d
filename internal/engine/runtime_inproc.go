//go:build llama

package engine

import (
	"context"
	"errors"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// inprocBuilt indicates this binary was compiled with in-process llama support.
const inprocBuilt = true

// inprocRuntime loads models into this process through go-llama.cpp.
type inprocRuntime struct {
	ctxSize int
	threads int
	ngl     int
}

func newInprocRuntime(o Options) runtime {
	return &inprocRuntime{ctxSize: o.CtxSize, threads: o.Threads, ngl: o.NGL}
}

func (r *inprocRuntime) Name() string { return "inproc" }

func (r *inprocRuntime) Start(ctx context.Context, path string) (instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := []llama.ModelOption{llama.SetContext(zn(r.ctxSize, 2048))}
	if r.ngl > 0 {
		opts = append(opts, llama.SetGPULayers(r.ngl))
	}
	m, err := llama.New(path, opts...)
	if err != nil {
		return nil, err
	}
	return &inprocInstance{model: m, threads: zn(r.threads, 1)}, nil
}

// inprocInstance owns a go-llama.cpp model. The binding is not safe for
// concurrent use, so every call holds mu.
type inprocInstance struct {
	mu      sync.Mutex
	model   *llama.LLama
	threads int
}

func (s *inprocInstance) Tokenize(ctx context.Context, text string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model == nil {
		return nil, ErrNotLoaded
	}
	_, toks, err := s.model.TokenizeString(text, llama.SetThreads(s.threads))
	if err != nil {
		return nil, err
	}
	out := make([]int, len(toks))
	for i, t := range toks {
		out[i] = int(t)
	}
	return out, nil
}

// Detokenize is not exposed by the binding; Complete always returns text.
func (s *inprocInstance) Detokenize(ctx context.Context, tokens []int) (string, error) {
	return "", errors.New("detokenize not supported by the inproc runtime")
}

func (s *inprocInstance) Complete(ctx context.Context, p Prompt, params Params) (Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model == nil {
		return Completion{}, ErrNotLoaded
	}
	if p.Text == "" {
		return Completion{}, errors.New("inproc runtime needs prompt text")
	}
	n := 0
	s.model.SetTokenCallback(func(string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		n++
		return true
	})
	po := []llama.PredictOption{
		llama.SetTokens(max(1, params.MaxNewTokens)),
		llama.SetThreads(s.threads),
		llama.SetTopP(zf(float32(params.TopP), llama.DefaultOptions.TopP)),
		llama.SetTemperature(zf(float32(params.Temperature), llama.DefaultOptions.Temperature)),
	}
	if params.Seed != 0 {
		po = append(po, llama.SetSeed(params.Seed))
	}
	if len(params.Stop) > 0 {
		po = append(po, llama.SetStopWords(params.Stop...))
	}
	text, err := s.model.Predict(p.Text, po...)
	if err != nil {
		if ctx.Err() != nil {
			return Completion{}, ctx.Err()
		}
		return Completion{}, err
	}
	c := Completion{Text: text, FinishReason: "stop"}
	c.Usage.PromptTokens = len(p.Tokens)
	c.Usage.CompletionTokens = n
	c.Usage.TotalTokens = len(p.Tokens) + n
	return c, ctx.Err()
}

func (s *inprocInstance) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model != nil {
		s.model.Free()
		s.model = nil
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}
