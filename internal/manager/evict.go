package manager

// retireLocked marks s as replaced. It returns s when nothing holds a lease on
// it, in which case the caller must releaseModel(s) after dropping m.mu.
// Otherwise the last Lease.Release frees it.
func (m *Manager) retireLocked(s *slot) *slot {
	if s == nil || s.retired {
		return nil
	}
	s.retired = true
	m.evictions++
	if s.refs == 0 {
		s.released = true
		return s
	}
	m.retired = append(m.retired, s)
	return nil
}

// releaseLease drops one reference on s and frees it if it was the last one
// on a retired slot.
func (m *Manager) releaseLease(s *slot) {
	m.mu.Lock()
	s.refs--
	var free bool
	if s.retired && s.refs == 0 && !s.released {
		s.released = true
		free = true
		m.dropRetiredLocked(s)
	}
	m.mu.Unlock()
	if free {
		m.releaseModel(s)
	}
}

func (m *Manager) dropRetiredLocked(s *slot) {
	kept := m.retired[:0]
	for _, r := range m.retired {
		if r != s {
			kept = append(kept, r)
		}
	}
	m.retired = kept
}

// releaseModel hands a slot's model back to the engine.
func (m *Manager) releaseModel(s *slot) {
	if s.model == m.eng.Base() {
		return
	}
	if err := m.eng.Release(s.model); err != nil {
		m.log.Warn().Str("event", "evict_error").Str("persona", displayKey(s.key)).Err(err).Msg("manager")
	}
	cacheEvictions.Inc()
	m.log.Info().Str("event", "evict").Str("persona", displayKey(s.key)).Str("model", s.model.ID).Msg("manager")
	m.pub.Publish(Event{Name: "evict", Persona: s.key, Fields: map[string]any{"model_id": s.model.ID}})
}
