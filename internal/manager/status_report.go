package manager

import (
	"time"

	"personad/pkg/types"
)

// sanityChecker is implemented by engines that can report on their
// external dependencies.
type sanityChecker interface {
	SanityCheck() types.SanityReport
}

func (m *Manager) stateLocked() State {
	switch {
	case m.closed:
		return StateDraining
	case m.isLoad:
		return StateLoading
	case m.cur != nil:
		return StateReady
	case m.lastErr != "":
		return StateError
	}
	return StateEmpty
}

// Snapshot returns a read-only view of the cache state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{State: m.stateLocked(), Err: m.lastErr}
	if m.isLoad {
		s.Loading = displayKey(m.loading)
	}
	if m.cur != nil {
		s.Persona = m.cur.key
		s.ModelID = m.cur.model.ID
	}
	return s
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	resp := types.StatusResponse{
		State:          string(m.stateLocked()),
		LastError:      m.lastErr,
		UptimeSeconds:  int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
		LoadsTotal:     m.loads,
		EvictionsTotal: m.evictions,
		HitsTotal:      m.hits,
		MissesTotal:    m.misses,
	}
	if m.isLoad {
		resp.Loading = displayKey(m.loading)
	}
	if s := m.cur; s != nil {
		resp.Slot = &types.SlotStatus{
			Persona:       displayKey(s.key),
			State:         string(StateReady),
			Precision:     string(s.model.Precision),
			LoadedAt:      s.loadedAt.Unix(),
			LastUsed:      s.lastUsed.Unix(),
			Leases:        s.refs,
			QueueLen:      len(s.queueCh),
			Inflight:      len(s.genCh),
			MaxQueueDepth: cap(s.queueCh),
		}
	}
	m.mu.RUnlock()
	if sc, ok := m.eng.(sanityChecker); ok {
		r := sc.SanityCheck()
		resp.Sanity = &r
	}
	return resp
}
