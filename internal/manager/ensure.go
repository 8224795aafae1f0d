package manager

import (
	"context"
	"strings"
	"time"

	"personad/internal/engine"
	"personad/internal/registry"
	"personad/pkg/types"
)

// GetOrLoad returns a lease on the model serving persona, loading it first if
// another persona is resident. A hit does no I/O. Concurrent misses for the
// same persona share one load; loads for different personas run one at a
// time. A failed load leaves the resident model in place.
//
// ctx bounds only how long this caller waits; the load itself runs on the
// manager's lifetime context.
func (m *Manager) GetOrLoad(ctx context.Context, persona string) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	persona = strings.TrimSpace(persona)
	key := persona
	if m.IsBaseAlias(persona) {
		key = ""
	}
	if l, err := m.tryHit(key); l != nil || err != nil {
		return l, err
	}

	key, adapter, err := m.resolve(persona)
	if err != nil {
		m.log.Debug().Str("event", "resolve_error").Str("persona", persona).Err(err).Msg("manager")
		return nil, err
	}
	// prompt-only personas share the base slot
	if l, err := m.tryHit(key); l != nil || err != nil {
		return l, err
	}

	m.mu.Lock()
	m.misses++
	m.mu.Unlock()
	cacheRequests.WithLabelValues("miss").Inc()

	for attempt := 1; ; attempt++ {
		ch := m.group.DoChan(key, func() (any, error) {
			return m.load(key, adapter)
		})
		select {
		case <-ctx.Done():
			// the load may hand this caller its pinned reference
			go func() {
				if res := <-ch; res.Err == nil {
					if l := m.acquire(res.Val.(*slot)); l != nil {
						l.Release()
					}
				}
			}()
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
			if l := m.acquire(res.Val.(*slot)); l != nil {
				return l, nil
			}
			// another waiter took the pin and the slot was replaced since
			if attempt >= maxLeaseAttempts {
				return nil, &TooBusyError{Persona: key, Reason: "persona replaced before it could be leased"}
			}
			m.log.Debug().Str("event", "lease_retry").Str("persona", key).Int("attempt", attempt).Msg("manager")
		}
	}
}

const maxLeaseAttempts = 3

// tryHit leases the resident slot when its key matches.
func (m *Manager) tryHit(key string) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	s := m.cur
	if s == nil || s.key != key {
		return nil, nil
	}
	s.refs++
	s.lastUsed = time.Now()
	m.hits++
	cacheRequests.WithLabelValues("hit").Inc()
	return &Lease{m: m, s: s}, nil
}

// acquire pins s unless its model has already been released. A reference
// pinned by load is handed over first.
func (m *Manager) acquire(s *slot) *Lease {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case s.pinned > 0:
		s.pinned--
	case s.released:
		return nil
	default:
		s.refs++
	}
	s.lastUsed = time.Now()
	return &Lease{m: m, s: s}
}

// resolve maps a persona to its slot key and adapter. Order: base alias,
// registry adapter, prompt-only persona; anything else is NotFound.
func (m *Manager) resolve(persona string) (string, *types.Adapter, error) {
	if m.IsBaseAlias(persona) {
		return "", nil, nil
	}
	a, err := m.reg.Resolve(persona)
	if err == nil {
		return a.Name, &a, nil
	}
	if registry.IsNotFound(err) {
		if m.promptOnly(persona) {
			return "", nil, nil
		}
		return "", nil, err
	}
	return "", nil, &LoadError{Persona: persona, Stage: engine.StageResolve, Err: err}
}

func (m *Manager) promptOnly(persona string) bool {
	if m.promptAny {
		return true
	}
	_, ok := m.prompt[persona]
	return ok
}

// load runs the pipeline for key and installs the result. Callers go through
// the singleflight group, so there is at most one load per key in flight. The
// returned slot carries one pinned reference that acquire hands out.
func (m *Manager) load(key string, adapter *types.Adapter) (*slot, error) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	// a load queued ahead of us may have installed key already
	if m.cur != nil && m.cur.key == key {
		s := m.cur
		s.refs++
		s.pinned++
		m.mu.Unlock()
		return s, nil
	}
	m.loading, m.isLoad = key, true
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(m.ctx, m.loadTimeout)
	defer cancel()
	start := time.Now()
	m.log.Info().Str("event", "load_start").Str("persona", displayKey(key)).Msg("manager")
	m.pub.Publish(Event{Name: "load_start", Persona: key})

	model, err := Build(ctx, m.eng, m.eng.Base(), adapter, observeStage)
	if err != nil {
		stage := engine.StageOf(err)
		m.mu.Lock()
		m.loading, m.isLoad = "", false
		m.lastErr = err.Error()
		m.mu.Unlock()
		cacheLoads.WithLabelValues("error").Inc()
		m.log.Warn().Str("event", "load_error").Str("persona", displayKey(key)).Str("stage", string(stage)).Err(err).Msg("manager")
		m.pub.Publish(Event{Name: "load_error", Persona: key, Fields: map[string]any{"stage": string(stage), "error": err.Error()}})
		return nil, &LoadError{Persona: key, Stage: stage, Err: err}
	}

	ns := newSlot(key, model, m.depth, m.parallel)
	// held for the first waiter so a swap right after install cannot free it
	ns.refs, ns.pinned = 1, 1
	m.mu.Lock()
	old := m.cur
	m.cur = ns
	m.loading, m.isLoad = "", false
	m.lastErr = ""
	m.loads++
	free := m.retireLocked(old)
	m.mu.Unlock()
	if free != nil {
		m.releaseModel(free)
	}

	took := time.Since(start)
	cacheLoads.WithLabelValues("success").Inc()
	m.log.Info().Str("event", "load_ready").Str("persona", displayKey(key)).Str("model", model.ID).Dur("took", took).Msg("manager")
	m.pub.Publish(Event{Name: "load_ready", Persona: key, Fields: map[string]any{"model_id": model.ID, "took_ms": took.Milliseconds()}})
	return ns, nil
}

func displayKey(key string) string {
	if key == "" {
		return "base"
	}
	return key
}
