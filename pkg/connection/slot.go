package connection

import (
	"sync"
	"sync/atomic"
)

// Slot holds the current Connection for one device.
//
// Any number of goroutines may Load; writers are serialized. Readers always
// see either the old or the new Connection, never a partially replaced one.
type Slot struct {
	mu  sync.Mutex
	cur atomic.Pointer[Connection]
}

// Load returns the current Connection, or nil.
func (s *Slot) Load() *Connection {
	return s.cur.Load()
}

// Store publishes c.
func (s *Slot) Store(c *Connection) {
	s.mu.Lock()
	s.cur.Store(c)
	s.mu.Unlock()
}

// Swap publishes c and returns the previous value.
func (s *Slot) Swap(c *Connection) *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.Swap(c)
}

// Replace calls fn with the current Connection and publishes its result.
// On error the slot is left unchanged. Concurrent Replace calls run one at
// a time.
func (s *Slot) Replace(fn func(old *Connection) (*Connection, error)) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.cur.Load())
	if err != nil {
		return nil, err
	}
	s.cur.Store(next)
	return next, nil
}
