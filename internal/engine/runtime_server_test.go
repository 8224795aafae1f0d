package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestServerRuntimeLifecycle(t *testing.T) {
	bin := buildTestBinary(t, "./testdata/fake_llama_server.go")
	rt := newServerRuntime(Options{ServerBin: bin, Host: "127.0.0.1", ReadyTimeout: 10 * time.Second}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	inst, err := rt.Start(ctx, "/models/lawyer-q8_0.gguf")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer inst.Stop()

	toks, err := inst.Tokenize(ctx, "a b c d")
	if err != nil || len(toks) != 4 {
		t.Fatalf("tokenize: %v %v", toks, err)
	}
	c, err := inst.Complete(ctx, Prompt{Tokens: toks}, Params{MaxNewTokens: 8, Temperature: 0.2, TopP: 0.9})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if c.Text != "reply from lawyer-q8_0.gguf" || len(c.Tokens) != 3 || c.Usage.TotalTokens != 8 || c.FinishReason != "stop" {
		t.Fatalf("unexpected completion: %+v", c)
	}
	s, err := inst.Detokenize(ctx, c.Tokens)
	if err != nil || s != "3 tokens" {
		t.Fatalf("detokenize: %q %v", s, err)
	}
	if err := inst.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := inst.Complete(ctx, Prompt{Text: "x"}, Params{}); err == nil {
		t.Fatalf("expected error after stop")
	}
}

func TestServerRuntimeEarlyExit(t *testing.T) {
	bin := buildTestBinary(t, "./testdata/exit_1.go")
	rt := newServerRuntime(Options{ServerBin: bin, ReadyTimeout: 5 * time.Second}, zerolog.Nop())
	_, err := rt.Start(context.Background(), "m.gguf")
	if err == nil || !strings.Contains(err.Error(), "failed to load model") {
		t.Fatalf("expected early exit with stderr tail, got %v", err)
	}
}

func TestServerRuntimeMissingBinary(t *testing.T) {
	rt := newServerRuntime(Options{}, zerolog.Nop())
	if _, err := rt.Start(context.Background(), "m.gguf"); !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	rt = newServerRuntime(Options{ServerBin: "/definitely/not/llama-server"}, zerolog.Nop())
	if _, err := rt.Start(context.Background(), "m.gguf"); err == nil {
		t.Fatalf("expected start error")
	}
}

func TestPickPorts(t *testing.T) {
	p, err := pickFreePort("127.0.0.1")
	if err != nil || p <= 0 {
		t.Fatalf("pickFreePort: %d %v", p, err)
	}
	if _, err := pickPortInRange("127.0.0.1", 2, 1); err == nil {
		t.Fatalf("expected error for empty range")
	}
}

func TestTailBufferKeepsSuffix(t *testing.T) {
	b := newTailBuffer(4)
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	if got := b.String(); got != "defg" {
		t.Fatalf("tail = %q", got)
	}
}
