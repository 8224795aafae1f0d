package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"personad/internal/chat"
	"personad/internal/engine/enginetest"
	"personad/internal/httpapi"
	"personad/internal/manager"
	"personad/internal/prompt"
	"personad/internal/registry"
)

// createAdaptersDir creates an adapters root with one directory per persona,
// each holding an adapter.gguf payload.
func createAdaptersDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", p, err)
		}
		if err := os.WriteFile(filepath.Join(p, "adapter.gguf"), []byte("GGUF"), 0o644); err != nil {
			t.Fatalf("write adapter %s: %v", p, err)
		}
	}
	return dir
}

type testServer struct {
	*httptest.Server
	mgr  *manager.Manager
	fake *enginetest.Fake
	dir  string
}

// newServer wires registry, cache, chat service and HTTP API over the
// in-memory engine. mut may adjust the cache config before construction.
func newServer(t *testing.T, mut func(*manager.Config), personas ...string) *testServer {
	t.Helper()
	dir := createAdaptersDir(t, personas...)
	reg, err := registry.Open(dir, registry.Options{})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	fake := enginetest.New()
	cfg := manager.Config{
		Engine:         fake,
		Registry:       reg,
		BaseAliases:    []string{"none", "base"},
		PromptPersonas: []string{"chef"},
		MaxWait:        time.Second,
		DrainTimeout:   time.Second,
	}
	if mut != nil {
		mut(&cfg)
	}
	mgr := manager.New(cfg)
	svc := chat.New(chat.Options{Cache: mgr, Prompt: prompt.Builder{AssistantName: prompt.DefaultAssistantName}})
	srv := httptest.NewServer(httpapi.NewMux(httpapi.NewBackend(svc, mgr, reg, nil)))
	t.Cleanup(func() {
		srv.Close()
		_ = mgr.Close(context.Background())
	})
	return &testServer{Server: srv, mgr: mgr, fake: fake, dir: dir}
}

func (s *testServer) post(t *testing.T, path string, body any) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, s.URL+path, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(t, req)
}

func (s *testServer) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, s.URL+path, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	return s.do(t, req)
}

func (s *testServer) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, b
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return v
}
