package manager

import (
	"context"
	"time"
)

// Close stops accepting work, waits up to the drain timeout (or ctx) for
// in-flight generations and leases to finish, then releases the resident
// model. Leases still held after the drain release their model themselves.
// The engine is not closed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	m.pub.Publish(Event{Name: "drain_start"})
	m.log.Info().Str("event", "drain_start").Msg("manager")

	deadline := time.Now().Add(m.drainTO)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		m.mu.RLock()
		busy := 0
		if m.cur != nil {
			busy += m.cur.refs
		}
		for _, s := range m.retired {
			busy += s.refs
		}
		m.mu.RUnlock()
		if busy == 0 {
			break
		}
		if time.Now().After(deadline) {
			m.log.Warn().Str("event", "drain_timeout").Int("leases", busy).Msg("manager")
			m.pub.Publish(Event{Name: "drain_timeout", Fields: map[string]any{"leases": busy}})
			break
		}
		select {
		case <-ctx.Done():
			deadline = time.Now()
		case <-tick.C:
		}
	}

	// wait out a running load; it sees closed and installs nothing new after it
	m.cancel()
	m.loadMu.Lock()
	m.mu.Lock()
	free := m.retireLocked(m.cur)
	m.cur = nil
	m.mu.Unlock()
	m.loadMu.Unlock()
	if free != nil {
		m.releaseModel(free)
	}
	m.pub.Publish(Event{Name: "drain_done"})
	m.log.Info().Str("event", "drain_done").Msg("manager")
	return nil
}
