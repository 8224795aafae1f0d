// Package registry enumerates the adapters stored under a root directory.
// Each immediate subdirectory of the root is one adapter; its name is the
// persona key that selects it.
package registry

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"personad/internal/common/fsutil"
	"personad/pkg/types"
)

// Options tune a Registry.
type Options struct {
	// Cached serves List from a snapshot and rescans only when Resolve misses.
	Cached bool
	Logger *zerolog.Logger
}

// Registry lists and resolves adapters. It is safe for concurrent use.
type Registry struct {
	root   string
	cached bool
	log    zerolog.Logger

	mu      sync.RWMutex
	names   []string
	present map[string]struct{}
	scanned bool
}

// Open returns a registry rooted at root. The directory is not required to
// exist yet; List reports the error when it is read.
func Open(root string, opts Options) (*Registry, error) {
	if root == "" {
		return nil, fmt.Errorf("adapters dir not configured")
	}
	abs, err := fsutil.Resolve(root)
	if err != nil {
		return nil, err
	}
	r := &Registry{root: abs, cached: opts.Cached, log: zerolog.Nop()}
	if opts.Logger != nil {
		r.log = *opts.Logger
	}
	return r, nil
}

// Root returns the absolute adapters directory.
func (r *Registry) Root() string { return r.root }

// List returns the sorted adapter names.
func (r *Registry) List() ([]string, error) {
	if !r.cached {
		return scanDir(r.root)
	}
	r.mu.RLock()
	if r.scanned {
		out := append([]string(nil), r.names...)
		r.mu.RUnlock()
		return out, nil
	}
	r.mu.RUnlock()
	names, err := r.rescan()
	if err != nil {
		return nil, err
	}
	return append([]string(nil), names...), nil
}

// Resolve returns the adapter stored under name, or NotFoundError.
func (r *Registry) Resolve(name string) (types.Adapter, error) {
	if !validName(name) {
		return types.Adapter{}, &NotFoundError{Name: name}
	}
	if r.cached && !r.known(name) {
		// refresh on miss
		if _, err := r.rescan(); err != nil {
			return types.Adapter{}, err
		}
		if !r.known(name) {
			return types.Adapter{}, &NotFoundError{Name: name}
		}
	}
	dir := filepath.Join(r.root, name)
	if !fsutil.IsDir(dir) {
		if r.cached {
			r.forget(name)
		}
		return types.Adapter{}, &NotFoundError{Name: name}
	}
	return readAdapter(r.root, name)
}

// Refresh drops any cached listing and rescans storage.
func (r *Registry) Refresh() error {
	_, err := r.rescan()
	return err
}

func (r *Registry) known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.present[name]
	return ok
}

func (r *Registry) forget(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.present[name]; !ok {
		return
	}
	delete(r.present, name)
	kept := r.names[:0]
	for _, n := range r.names {
		if n != name {
			kept = append(kept, n)
		}
	}
	r.names = kept
}

func (r *Registry) rescan() ([]string, error) {
	names, err := scanDir(r.root)
	if err != nil {
		return nil, err
	}
	present := make(map[string]struct{}, len(names))
	for _, n := range names {
		present[n] = struct{}{}
	}
	r.mu.Lock()
	r.names = names
	r.present = present
	r.scanned = true
	r.mu.Unlock()
	r.log.Debug().Str("event", "registry_scan").Str("root", r.root).Int("adapters", len(names)).Msg("registry")
	return names, nil
}
