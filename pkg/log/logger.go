package log

import "sync"

// Logger receives protocol capture events.
// Implementations must be safe for concurrent use and must not block.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards all events. The zero value is ready to use.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// MemoryLogger keeps events in memory. It is intended for tests and for the
// interactive console's "history" command.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewMemoryLogger creates a MemoryLogger retaining at most limit events.
// A limit of zero keeps everything.
func NewMemoryLogger(limit int) *MemoryLogger {
	return &MemoryLogger{limit: limit}
}

// Log appends the event, evicting the oldest once the limit is reached.
func (m *MemoryLogger) Log(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	if m.limit > 0 && len(m.events) > m.limit {
		m.events = m.events[len(m.events)-m.limit:]
	}
}

// Events returns a copy of the retained events, oldest first.
func (m *MemoryLogger) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Filter returns the retained events matching f.
func (m *MemoryLogger) Filter(f Filter) []Event {
	var out []Event
	for _, e := range m.Events() {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops all retained events.
func (m *MemoryLogger) Reset() {
	m.mu.Lock()
	m.events = nil
	m.mu.Unlock()
}

var (
	_ Logger = NoopLogger{}
	_ Logger = (*MemoryLogger)(nil)
)
