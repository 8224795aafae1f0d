package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"personad/internal/engine/enginetest"
	"personad/internal/registry"
)

// adaptersRoot creates an adapters tree with one directory per name.
func adaptersRoot(t testing.TB, names ...string) string {
	t.Helper()
	root, err := os.MkdirTemp("", "personad-adapters-*")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(root) })
	for _, n := range names {
		dir := filepath.Join(root, n)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "adapter.gguf"), []byte("GGUF"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

// newTestManager wires a Manager to a fake engine and a registry holding
// the lawyer and doctor adapters. mut may adjust the config.
func newTestManager(t testing.TB, mut func(*Config)) (*Manager, *enginetest.Fake, *MemoryPublisher) {
	t.Helper()
	reg, err := registry.Open(adaptersRoot(t, "lawyer", "doctor"), registry.Options{})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	fake := enginetest.New()
	pub := NewMemoryPublisher()
	cfg := Config{
		Engine:         fake,
		Registry:       reg,
		BaseAliases:    []string{"none", "base"},
		PromptPersonas: []string{"chef"},
		MaxWait:        200 * time.Millisecond,
		DrainTimeout:   200 * time.Millisecond,
		Publisher:      pub,
	}
	if mut != nil {
		mut(&cfg)
	}
	m := New(cfg)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m, fake, pub
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t testing.TB) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

// residentKey returns the slot key of the resident model, or "<none>".
func residentKey(m *Manager) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return "<none>"
	}
	return m.cur.key
}

// use takes and immediately releases a lease on persona.
func use(t testing.TB, m *Manager, persona string) error {
	t.Helper()
	l, err := m.GetOrLoad(testCtx(t), persona)
	if err != nil {
		return err
	}
	l.Release()
	return nil
}
