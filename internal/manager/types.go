package manager

import (
	"sync"
	"time"

	"personad/internal/engine"
)

// State represents the lifecycle state of the cache.
type State string

const (
	StateEmpty    State = "empty"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateError    State = "error"
	StateDraining State = "draining"
)

// slot is one resident (or retired) persona model. Fields other than the
// channels are guarded by Manager.mu.
type slot struct {
	key      string // adapter name; "" is the base model
	model    *engine.Model
	loadedAt time.Time
	lastUsed time.Time
	refs     int
	pinned   int // refs taken by load, not yet handed to a waiter
	retired  bool
	released bool
	// Queueing primitives
	genCh   chan struct{} // capacity = parallel generations
	queueCh chan struct{} // buffered: queue slots
}

func newSlot(key string, model *engine.Model, depth, parallel int) *slot {
	now := time.Now()
	return &slot{
		key:      key,
		model:    model,
		loadedAt: now,
		lastUsed: now,
		genCh:    make(chan struct{}, parallel),
		queueCh:  make(chan struct{}, depth),
	}
}

// Lease pins a persona model for the duration of a request. It must be
// released exactly once; further calls to Release are no-ops.
type Lease struct {
	m    *Manager
	s    *slot
	once sync.Once
}

// Persona returns the slot key the lease was taken on ("" for the base model).
func (l *Lease) Persona() string { return l.s.key }

// Model returns the leased model. It stays loaded until the lease is released.
func (l *Lease) Model() *engine.Model { return l.s.model }

// Release gives the lease back.
func (l *Lease) Release() {
	l.once.Do(func() { l.m.releaseLease(l.s) })
}

// Snapshot is a read-only projection of the cache state.
type Snapshot struct {
	State   State
	Persona string // resident slot key
	ModelID string
	Loading string
	Err     string
}
