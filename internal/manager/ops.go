package manager

import (
	"context"

	"github.com/google/uuid"
)

// Warm loads the base model so the first request does not pay for it.
func (m *Manager) Warm(ctx context.Context) error {
	l, err := m.GetOrLoad(ctx, "")
	if err != nil {
		return err
	}
	l.Release()
	return nil
}

// Switch resolves persona and preloads it in the background. It returns an
// operation id; progress is visible through Status and switch_* events.
// Unknown personas fail immediately.
func (m *Manager) Switch(ctx context.Context, persona string) (string, error) {
	if _, _, err := m.resolve(persona); err != nil {
		return "", err
	}
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return "", ErrClosed
	}
	op := uuid.NewString()
	m.pub.Publish(Event{Name: "switch_start", Persona: persona, Fields: map[string]any{"op_id": op}})
	go func() {
		// detached from ctx: the caller only waits for the op id
		l, err := m.GetOrLoad(m.ctx, persona)
		fields := map[string]any{"op_id": op}
		if err != nil {
			fields["error"] = err.Error()
			m.log.Warn().Str("event", "switch_error").Str("op", op).Str("persona", persona).Err(err).Msg("manager")
		} else {
			l.Release()
		}
		m.pub.Publish(Event{Name: "switch_done", Persona: persona, Fields: fields})
	}()
	return op, nil
}
