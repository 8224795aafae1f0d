package engine

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
)

// newTestEngine returns an engine over an F16 llama base in a temp dir whose
// tools are recorded instead of executed.
func newTestEngine(t *testing.T, quant string) (*LlamaCPP, *toolLog) {
	t.Helper()
	dir := t.TempDir()
	base := writeGGUF(t, dir, "base-f16.gguf", baseGGUF("llama", 1))
	e, err := New(Options{
		BaseModel:     base,
		QuantType:     quant,
		WorkDir:       filepath.Join(dir, "work"),
		ServerBin:     "/nonexistent/llama-server",
		ExportLoraBin: "export-lora",
		QuantizeBin:   "quantize",
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	tl := &toolLog{}
	e.run = tl.run
	e.rt = &fakeRuntime{}
	t.Cleanup(func() { _ = e.Close() })
	return e, tl
}

// toolLog fakes the llama.cpp tools: it records calls and writes the output
// file named on the command line.
type toolLog struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (l *toolLog) run(ctx context.Context, bin string, args ...string) error {
	l.mu.Lock()
	l.calls = append(l.calls, append([]string{bin}, args...))
	err := l.err
	l.mu.Unlock()
	if err != nil {
		return err
	}
	out := ""
	switch bin {
	case "export-lora":
		for i, a := range args {
			if a == "-o" && i+1 < len(args) {
				out = args[i+1]
			}
		}
	case "quantize":
		out = args[1]
	}
	if out == "" {
		return errors.New("no output argument")
	}
	return os.WriteFile(out, []byte("GGUF"), 0o644)
}

func (l *toolLog) Calls() [][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]string(nil), l.calls...)
}

type fakeRuntime struct {
	mu      sync.Mutex
	started []string
	err     error
}

func (r *fakeRuntime) Name() string { return "fake" }

func (r *fakeRuntime) Start(ctx context.Context, path string) (instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.started = append(r.started, path)
	return &fakeInstance{path: path}, nil
}

type fakeInstance struct {
	mu      sync.Mutex
	path    string
	stopped bool
}

func (f *fakeInstance) Tokenize(ctx context.Context, text string) ([]int, error) {
	return []int{1, 2, 3}, nil
}

func (f *fakeInstance) Detokenize(ctx context.Context, tokens []int) (string, error) {
	return "decoded", nil
}

func (f *fakeInstance) Complete(ctx context.Context, p Prompt, params Params) (Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return Completion{}, errors.New("stopped")
	}
	return Completion{Text: "from " + filepath.Base(f.path)}, nil
}

func (f *fakeInstance) Stop() error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	return nil
}

// buildTestBinary compiles a program under testdata and returns its path.
func buildTestBinary(t *testing.T, src string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode")
	}
	bin := filepath.Join(t.TempDir(), "fake_bin")
	cmd := exec.Command("go", "build", "-o", bin, src)
	cmd.Dir = "."
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build %s: %v: %s", src, err, string(out))
	}
	return bin
}
