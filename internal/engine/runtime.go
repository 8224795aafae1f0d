package engine

import (
	"context"
	"sync"
)

// runtime brings a weights file up so it can serve inference.
type runtime interface {
	Name() string
	Start(ctx context.Context, path string) (instance, error)
}

// instance is one running model.
type instance interface {
	Tokenize(ctx context.Context, text string) ([]int, error)
	Detokenize(ctx context.Context, tokens []int) (string, error)
	Complete(ctx context.Context, p Prompt, params Params) (Completion, error)
	Stop() error
}

// tailBuffer keeps the last max bytes written to it. Used to capture a
// subprocess's stderr for error messages.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer { return &tailBuffer{max: max} }

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
