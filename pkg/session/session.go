package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avrbridge/avrbridge-go/pkg/connection"
	"github.com/avrbridge/avrbridge-go/pkg/log"
	"github.com/avrbridge/avrbridge-go/pkg/registry"
	"github.com/avrbridge/avrbridge-go/pkg/wire"
)

// Default session settings.
const (
	DefaultFailureThreshold     = 3
	DefaultMaxReconnectAttempts = 5
)

// Config configures a Session.
type Config struct {
	Host string
	Port int

	// ConnectionOptions are passed to every connection.Connect.
	ConnectionOptions []connection.Option

	// Introspect runs introspection after the initial connect.
	// Reconnects always introspect.
	Introspect bool

	// Registry validates operators and values of known commands
	// (default: registry.Default()). Unregistered names pass through.
	Registry *registry.Registry

	// FailureThreshold is the number of consecutive failures that mark the
	// device DISCONNECTED and trigger a reconnect on timeouts (default: 3).
	FailureThreshold int

	// MaxReconnectAttempts bounds each reconnect or Open; 0 means until the
	// context ends (default: 5).
	MaxReconnectAttempts int

	Backoff BackoffConfig

	Logger *slog.Logger

	// ProtocolLogger receives session state events. It is also handed to
	// connections unless ConnectionOptions set one.
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config for host:port.
func DefaultConfig(host string, port int) Config {
	return Config{
		Host:                 host,
		Port:                 port,
		Introspect:           true,
		FailureThreshold:     DefaultFailureThreshold,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
	}
}

// Session serializes access to one receiver.
type Session struct {
	cfg     Config
	logger  *slog.Logger
	backoff *Backoff
	slot    connection.Slot

	mu        sync.Mutex
	health    health
	lastState connection.State
	closed    bool

	cbMu          sync.RWMutex
	onStateChange func(old, new connection.State)
	onTelemetry   func(wire.Line)
}

// New creates a Session. Call Open before sending.
func New(cfg Config) *Session {
	if cfg.Registry == nil {
		cfg.Registry = registry.Default()
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.MaxReconnectAttempts < 0 {
		cfg.MaxReconnectAttempts = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Session{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "session", "device", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		backoff: NewBackoffWithConfig(cfg.Backoff),
		health:  health{threshold: cfg.FailureThreshold},
	}
}

// OnStateChange registers a callback for connection state transitions.
// Callbacks run after the Session lock is released.
func (s *Session) OnStateChange(fn func(old, new connection.State)) {
	s.cbMu.Lock()
	s.onStateChange = fn
	s.cbMu.Unlock()
}

// OnTelemetry registers a callback for unsolicited lines found in replies.
func (s *Session) OnTelemetry(fn func(wire.Line)) {
	s.cbMu.Lock()
	s.onTelemetry = fn
	s.cbMu.Unlock()
}

// Open connects, retrying with backoff up to MaxReconnectAttempts.
func (s *Session) Open(ctx context.Context) error {
	var ev events
	defer func() { s.fire(ev) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if c := s.slot.Load(); c != nil && c.Connected() {
		return nil
	}

	return s.retryLocked(ctx, &ev, func(*connection.Connection) (*connection.Connection, error) {
		c, err := connection.Connect(s.cfg.Host, s.cfg.Port, s.connectionOptions()...)
		if err != nil {
			return nil, err
		}
		ev.state(s, connection.StateConnected)
		if s.cfg.Introspect {
			if err := c.Introspect(); err != nil {
				c.Disconnect()
				ev.state(s, connection.StateDisconnected)
				return nil, err
			}
			ev.state(s, connection.StateIntrospected)
		}
		return c, nil
	})
}

// Reconnect replaces the current connection, retrying with backoff.
func (s *Session) Reconnect(ctx context.Context) error {
	var ev events
	defer func() { s.fire(ev) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.reconnectLocked(ctx, &ev)
}

func (s *Session) reconnectLocked(ctx context.Context, ev *events) error {
	if s.slot.Load() == nil {
		return ErrNotOpen
	}
	return s.retryLocked(ctx, ev, func(old *connection.Connection) (*connection.Connection, error) {
		if old.Connected() {
			ev.state(s, connection.StateDisconnected)
		}
		next, err := old.Reconnect()
		if err != nil {
			return nil, err
		}
		s.health.reconnects++
		ev.state(s, next.State())
		return next, nil
	})
}

// retryLocked runs attempt through the slot with backoff between failures.
func (s *Session) retryLocked(ctx context.Context, ev *events, attempt func(*connection.Connection) (*connection.Connection, error)) error {
	var lastErr error
	for n := 1; s.cfg.MaxReconnectAttempts == 0 || n <= s.cfg.MaxReconnectAttempts; n++ {
		if err := ctx.Err(); err != nil {
			break
		}

		c, err := s.slot.Replace(attempt)
		if err == nil {
			s.backoff.Reset()
			s.logger.Info("device connected", "model", c.Model(), "attempt", n)
			return nil
		}
		lastErr = err
		s.health.lost(err)

		if n == s.cfg.MaxReconnectAttempts {
			s.logger.Warn("connect attempt failed", "attempt", n, "error", err)
			break
		}
		delay := s.backoff.Next()
		s.logger.Warn("connect attempt failed", "attempt", n, "retry_in", delay, "error", err)

		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return fmt.Errorf("connect %s:%d: %w", s.cfg.Host, s.cfg.Port, lastErr)
}

// Send validates raw, sends it and returns the reply burst.
func (s *Session) Send(ctx context.Context, raw string) (string, error) {
	var ev events
	defer func() { s.fire(ev) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := s.slot.Load()
	if c == nil {
		return "", ErrNotOpen
	}
	if !c.Connected() {
		if err := s.reconnectLocked(ctx, &ev); err != nil {
			return "", err
		}
		c = s.slot.Load()
	}

	name, err := s.validate(raw)
	if err != nil {
		return "", err
	}

	text, err := c.SendCommand(raw)
	if err != nil {
		s.handleFailureLocked(ctx, &ev, err)
		return "", err
	}

	s.health.success()
	if name != "" {
		for _, l := range wire.ParseLines(text) {
			if l.Name != name {
				ev.telemetry = append(ev.telemetry, l)
			}
		}
	}
	return text, nil
}

// validate checks registered commands against the registry and returns the
// command name, or "" for commands without an operator.
func (s *Session) validate(raw string) (string, error) {
	name, op, value, err := wire.ParseCommand(raw)
	if err != nil {
		return "", nil
	}
	if _, known := s.cfg.Registry.Lookup(name); !known {
		return name, nil
	}
	if err := s.cfg.Registry.Validate(name, op, value); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Session) handleFailureLocked(ctx context.Context, ev *events, err error) {
	switch {
	case errors.Is(err, connection.ErrIO):
		s.health.lost(err)
	case errors.Is(err, connection.ErrTimeout):
		s.health.failure(err)
		if s.health.failures < s.cfg.FailureThreshold {
			return
		}
	default:
		// Rejections are the caller's fault, not the device's.
		return
	}

	s.logger.Warn("device failure, reconnecting", "error", err, "failures", s.health.failures)
	if rerr := s.reconnectLocked(ctx, ev); rerr != nil {
		s.logger.Error("reconnect failed", "error", rerr)
	}
}

// Get queries name and returns its value.
func (s *Session) Get(ctx context.Context, name string) (string, error) {
	return s.valueOf(ctx, name, registry.BuildCommand(name, wire.OpQuery, ""))
}

// Set assigns value to name and returns the value the device reports.
func (s *Session) Set(ctx context.Context, name, value string) (string, error) {
	return s.valueOf(ctx, name, registry.BuildCommand(name, wire.OpSet, value))
}

// Step sends name+ or name- and returns the new value.
func (s *Session) Step(ctx context.Context, name string, op wire.Operator) (string, error) {
	if op != wire.OpIncrement && op != wire.OpDecrement {
		return "", fmt.Errorf("%w: step needs + or -, got %q", registry.ErrInvalidOperator, op.String())
	}
	return s.valueOf(ctx, name, registry.BuildCommand(name, op, ""))
}

func (s *Session) valueOf(ctx context.Context, name, raw string) (string, error) {
	text, err := s.Send(ctx, raw)
	if err != nil {
		return "", err
	}
	v, err := wire.ParseValue(text, name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// Connection returns the current connection, or nil before Open.
func (s *Session) Connection() *connection.Connection {
	return s.slot.Load()
}

// Health returns the current health snapshot.
func (s *Session) Health() HealthSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := HealthSnapshot{
		Status:              s.health.status,
		ConsecutiveFailures: s.health.failures,
		LastError:           s.health.lastError,
		LastSuccess:         s.health.lastSuccess,
		Reconnects:          s.health.reconnects,
	}
	if c := s.slot.Load(); c != nil {
		snap.Model = c.Model()
	}
	return snap
}

// Close disconnects. It is idempotent.
func (s *Session) Close() {
	var ev events
	defer func() { s.fire(ev) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if c := s.slot.Swap(nil); c != nil && c.Connected() {
		c.Disconnect()
		ev.state(s, connection.StateDisconnected)
	}
	s.logger.Info("session closed")
}

func (s *Session) connectionOptions() []connection.Option {
	opts := []connection.Option{connection.WithLogger(s.cfg.Logger)}
	if s.cfg.ProtocolLogger != nil {
		opts = append(opts, connection.WithProtocolLogger(s.cfg.ProtocolLogger))
	}
	return append(opts, s.cfg.ConnectionOptions...)
}

// events collects callbacks to run once the lock is released.
type events struct {
	states    [][2]connection.State
	telemetry []wire.Line
}

// state records a transition from the last observed state. Requires s.mu.
func (e *events) state(s *Session, next connection.State) {
	if next == s.lastState {
		return
	}
	e.states = append(e.states, [2]connection.State{s.lastState, next})
	s.logState(s.lastState, next)
	s.lastState = next
}

func (s *Session) fire(ev events) {
	s.cbMu.RLock()
	onState, onTelemetry := s.onStateChange, s.onTelemetry
	s.cbMu.RUnlock()

	if onState != nil {
		for _, st := range ev.states {
			onState(st[0], st[1])
		}
	}
	if onTelemetry != nil {
		for _, l := range ev.telemetry {
			onTelemetry(l)
		}
	}
}

func (s *Session) logState(old, next connection.State) {
	if s.cfg.ProtocolLogger == nil {
		return
	}
	var id string
	if c := s.slot.Load(); c != nil {
		id = c.ID()
	}
	s.cfg.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: id,
		Layer:        log.LayerSession,
		Category:     log.CategoryState,
		RemoteAddr:   fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: old.String(),
			NewState: next.String(),
		},
	})
}
