package manager

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"personad/internal/engine"
)

// Manager is the single-slot persona model cache.
type Manager struct {
	eng  engine.Engine
	reg  Resolver
	pub  EventPublisher
	log  zerolog.Logger
	base map[string]struct{}
	// prompt-only personas
	prompt      map[string]struct{}
	promptAny   bool
	depth       int
	parallel    int
	maxWait     time.Duration
	drainTO     time.Duration
	loadTimeout time.Duration

	// loadMu serializes pipeline runs; group collapses identical ones.
	loadMu sync.Mutex
	group  singleflight.Group

	// ctx outlives individual requests so a disconnecting caller never
	// aborts a load other callers are waiting on.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	cur     *slot
	retired []*slot
	loading string
	isLoad  bool
	lastErr string
	closed  bool

	hits, misses, loads, evictions uint64
	startTime                      time.Time
}

// New constructs a Manager. cfg.Engine and cfg.Registry are required.
func New(cfg Config) *Manager {
	cfg.applyDefaults()
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		eng:         cfg.Engine,
		reg:         cfg.Registry,
		pub:         cfg.Publisher,
		log:         log,
		base:        map[string]struct{}{"": {}},
		prompt:      map[string]struct{}{},
		promptAny:   cfg.AllowPromptOnly,
		depth:       cfg.MaxQueueDepth,
		parallel:    cfg.Parallel,
		maxWait:     cfg.MaxWait,
		drainTO:     cfg.DrainTimeout,
		loadTimeout: cfg.LoadTimeout,
		ctx:         ctx,
		cancel:      cancel,
		startTime:   time.Now(),
	}
	for _, a := range cfg.BaseAliases {
		m.base[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
	}
	for _, p := range cfg.PromptPersonas {
		m.prompt[strings.TrimSpace(p)] = struct{}{}
	}
	return m
}

// Ready reports whether a resident model can serve requests.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed && m.cur != nil
}

// Engine returns the engine the cache prepares models with.
func (m *Manager) Engine() engine.Engine { return m.eng }

// IsBaseAlias reports whether persona selects the unmodified base model.
func (m *Manager) IsBaseAlias(persona string) bool {
	_, ok := m.base[strings.ToLower(strings.TrimSpace(persona))]
	return ok
}
