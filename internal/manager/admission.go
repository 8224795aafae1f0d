package manager

import (
	"context"
	"time"
)

// Begin reserves a queue slot and then a generation slot on the leased
// model. It returns a done func to be deferred. Requests that wait longer
// than the configured max wait get a TooBusyError.
func (l *Lease) Begin(ctx context.Context) (func(), error) {
	m, s := l.m, l.s
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return func() {}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()
	select {
	case s.queueCh <- struct{}{}:
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, &TooBusyError{Persona: s.key, Reason: "queue_full"}
	}

	acquired := false
	defer func() {
		if !acquired {
			<-s.queueCh
		}
	}()
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	select {
	case s.genCh <- struct{}{}:
		acquired = true
		m.mu.Lock()
		s.lastUsed = time.Now()
		m.mu.Unlock()
		return func() { <-s.genCh; <-s.queueCh }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, &TooBusyError{Persona: s.key, Reason: "queue_timeout"}
	}
}
