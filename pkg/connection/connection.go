package connection

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avrbridge/avrbridge-go/pkg/log"
	"github.com/avrbridge/avrbridge-go/pkg/transport"
	"github.com/avrbridge/avrbridge-go/pkg/wire"
)

// Connection is one live session to one receiver.
type Connection struct {
	cfg    Config
	t      transport.Transport
	logger *slog.Logger

	model        string
	supported    map[string]struct{}
	introspected bool

	state     atomic.Uint32
	closeOnce sync.Once
}

// Connect dials host:port and reads the receiver greeting.
func Connect(host string, port int, opts ...Option) (*Connection, error) {
	cfg := DefaultConfig(host, port)
	for _, opt := range opts {
		opt(&cfg)
	}
	return ConnectConfig(cfg)
}

// ConnectConfig dials cfg.Host:cfg.Port and reads the receiver greeting.
// Dial failures match ErrConnect. A missing or malformed greeting is not an
// error; Model is then empty.
func ConnectConfig(cfg Config) (*Connection, error) {
	cfg = cfg.withDefaults()

	t, err := cfg.Dialer(cfg.Host, cfg.Port, cfg.transportConfig())
	if err != nil {
		return nil, err
	}

	c := &Connection{
		cfg:    cfg,
		t:      t,
		logger: cfg.Logger.With("conn_id", t.ID(), "remote", t.RemoteAddr()),
	}
	c.state.Store(uint32(StateConnected))

	if err := c.handshake(); err != nil {
		t.Close()
		c.state.Store(uint32(StateDisconnected))
		return nil, err
	}

	c.logger.Info("connected", "model", c.model)
	c.logState(StateDisconnected, StateConnected, "")
	return c, nil
}

func (c *Connection) handshake() error {
	frame, err := c.t.ReadUntil(wire.FrameEnd, c.cfg.ReadTimeout)
	if errors.Is(err, transport.ErrTimeout) {
		c.logger.Warn("no greeting from device", "timeout", c.cfg.ReadTimeout)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}

	model, err := wire.ParseValue(string(frame), "")
	if err != nil {
		c.logger.Warn("unparsable greeting", "frame", string(frame), "error", err)
		return nil
	}
	c.model = model
	if l, ok := wire.ParseLine(wire.UnwrapResponse(string(frame))); ok {
		c.logLine(log.DirectionIn, l.Name, 0, l.Value, false)
	}
	return nil
}

// Introspect sends the bare "?" command and records the reported command
// names. A reply with no frames fails with ErrTimeout and leaves the
// Connection unchanged.
func (c *Connection) Introspect() error {
	if !c.Connected() {
		return &CommandError{Op: "introspect", Err: ErrNotConnected}
	}

	start := time.Now()
	text, err := c.exchange(wire.IntrospectCommand, "")
	if err != nil {
		return &CommandError{Op: "introspect", Command: wire.IntrospectCommand, Err: err}
	}

	c.supported = wire.ParseIntrospectionSet(text)
	c.introspected = true
	c.state.Store(uint32(StateIntrospected))

	c.logger.Info("introspected", "commands", len(c.supported), "duration", time.Since(start))
	c.logState(StateConnected, StateIntrospected, fmt.Sprintf("%d commands", len(c.supported)))
	return nil
}

// SendCommand writes raw (e.g. "Main.Power=On") and returns the reply burst.
//
// After Introspect, a command whose name the device did not report fails with
// *UnsupportedCommandError before anything is written. Errors are returned as
// *CommandError.
func (c *Connection) SendCommand(raw string) (string, error) {
	if !c.Connected() {
		return "", &CommandError{Op: "send", Command: raw, Err: ErrNotConnected}
	}

	var name string
	if n, err := wire.ParseCommandName(raw); err == nil {
		name = n
	} else if c.introspected {
		return "", &CommandError{Op: "send", Command: raw, Err: err}
	}

	if c.introspected {
		if _, ok := c.supported[name]; !ok {
			return "", &CommandError{
				Op:      "send",
				Command: raw,
				Err:     &UnsupportedCommandError{Command: raw, Name: name},
			}
		}
	}

	text, err := c.exchange(raw, name)
	if err != nil {
		return "", &CommandError{Op: "send", Command: raw, Err: err}
	}
	return text, nil
}

// exchange writes one command and drains the reply.
func (c *Connection) exchange(raw, name string) (string, error) {
	if err := c.t.Write([]byte(wire.Wrap(raw))); err != nil {
		return "", err
	}
	if cmdName, op, value, err := wire.ParseCommand(raw); err == nil {
		c.logLine(log.DirectionOut, cmdName, op, value, false)
	}

	lines, err := c.drain(name)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// drain collects frames until the stream is idle for DrainTimeout. The first
// frame may take ReadTimeout.
func (c *Connection) drain(name string) ([]string, error) {
	var lines []string
	timeout := c.cfg.ReadTimeout

	for len(lines) < c.cfg.MaxDrainLines {
		frame, err := c.t.ReadUntil(wire.FrameEnd, timeout)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) && len(lines) > 0 {
				return lines, nil
			}
			return nil, err
		}
		timeout = c.cfg.DrainTimeout

		line := wire.UnwrapResponse(string(frame))
		if line == "" {
			continue
		}
		lines = append(lines, line)

		if l, ok := wire.ParseLine(line); ok {
			c.logLine(log.DirectionIn, l.Name, 0, l.Value, name != "" && l.Name != name)
		}
	}

	c.logger.Warn("reply truncated", "max_lines", c.cfg.MaxDrainLines)
	return lines, nil
}

// Reconnect closes the transport, connects again with the same settings and
// re-runs introspection. The receiver is left disconnected; on success the
// returned Connection replaces it.
func (c *Connection) Reconnect() (*Connection, error) {
	c.Disconnect()

	fresh, err := ConnectConfig(c.cfg)
	if err != nil {
		return nil, err
	}
	if err := fresh.Introspect(); err != nil {
		fresh.Disconnect()
		return nil, err
	}
	return fresh, nil
}

// Disconnect closes the transport. It is safe to call more than once and
// from any goroutine.
func (c *Connection) Disconnect() {
	c.closeOnce.Do(func() {
		old := c.State()
		c.state.Store(uint32(StateDisconnected))
		if err := c.t.Close(); err != nil {
			c.logger.Debug("transport close", "error", err)
		}
		c.logger.Info("disconnected")
		c.logState(old, StateDisconnected, "")
	})
}

// State returns the lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Connected reports whether the transport is open.
func (c *Connection) Connected() bool {
	return c.State() != StateDisconnected
}

// Introspected reports whether the supported command set is known.
func (c *Connection) Introspected() bool {
	return c.introspected
}

// Model returns the model from the greeting, or "" if none was received.
func (c *Connection) Model() string {
	return c.model
}

// Supports reports whether the device reported name during introspection.
// It returns false before Introspect.
func (c *Connection) Supports(name string) bool {
	_, ok := c.supported[name]
	return ok
}

// Supported returns the introspected command names in sorted order, or nil
// before Introspect.
func (c *Connection) Supported() []string {
	if c.supported == nil {
		return nil
	}
	names := make([]string, 0, len(c.supported))
	for n := range c.supported {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ID returns the transport connection ID.
func (c *Connection) ID() string {
	return c.t.ID()
}

// Host returns the configured host.
func (c *Connection) Host() string {
	return c.cfg.Host
}

// Port returns the configured port.
func (c *Connection) Port() int {
	return c.cfg.Port
}

// Config returns the effective configuration.
func (c *Connection) Config() Config {
	return c.cfg
}

func (c *Connection) logLine(dir log.Direction, name string, op wire.Operator, value string, unsolicited bool) {
	if c.cfg.ProtocolLogger == nil {
		return
	}
	cat := log.CategoryFrame
	if unsolicited {
		cat = log.CategoryTelemetry
	}
	le := &log.LineEvent{Name: name, Value: value, Unsolicited: unsolicited}
	if op != 0 {
		le.Operator = op.String()
	}
	c.cfg.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.t.ID(),
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     cat,
		RemoteAddr:   c.t.RemoteAddr(),
		Model:        c.model,
		Line:         le,
	})
}

func (c *Connection) logState(oldState, newState State, reason string) {
	if c.cfg.ProtocolLogger == nil {
		return
	}
	c.cfg.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.t.ID(),
		Layer:        log.LayerWire,
		Category:     log.CategoryState,
		RemoteAddr:   c.t.RemoteAddr(),
		Model:        c.model,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState.String(),
			NewState: newState.String(),
			Reason:   reason,
		},
	})
}
