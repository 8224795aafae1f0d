package manager

// Event represents a cache lifecycle event: load_start, load_ready,
// load_error, evict, switch_start, switch_done, drain_start, drain_done.
type Event struct {
	Name    string
	Persona string
	Fields  map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
