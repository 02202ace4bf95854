package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ziutek/telnet"

	"github.com/avrbridge/avrbridge-go/pkg/log"
)

// Conn is a telnet session to one receiver.
//
// ReadUntil must not be called concurrently with itself, and neither may
// Write. Close may be called from any goroutine.
type Conn struct {
	id     string
	remote string
	tc     *telnet.Conn
	config Config

	// pending holds bytes read before a timeout, owned by the reader.
	pending []byte

	closed    atomic.Bool
	closeOnce sync.Once
}

// Dial opens a telnet session to host:port.
// Failures match ErrConnect.
func Dial(host string, port int, cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	tc, err := telnet.DialTimeout("tcp", addr, cfg.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, addr, err)
	}

	c := &Conn{
		id:     uuid.New().String(),
		remote: addr,
		tc:     tc,
		config: cfg,
	}
	c.logState("", "CONNECTED", "")
	return c, nil
}

// DialTransport is Dial returning the Transport interface.
func DialTransport(host string, port int, cfg Config) (Transport, error) {
	c, err := Dial(host, port, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ID returns the connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// RemoteAddr returns the dialled address.
func (c *Conn) RemoteAddr() string {
	return c.remote
}

// ReadUntil reads bytes up to, excluding, delim.
func (c *Conn) ReadUntil(delim byte, timeout time.Duration) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.tc.SetReadDeadline(deadline); err != nil {
		return nil, c.ioError("set read deadline", err)
	}

	for {
		b, err := c.tc.ReadByte()
		if err != nil {
			if isTimeout(err) {
				return nil, ErrTimeout
			}
			return nil, c.ioError("read", err)
		}
		if b == delim {
			frame := c.pending
			c.pending = nil
			c.logFrame(log.DirectionIn, frame, delim)
			return frame, nil
		}
		if len(c.pending) >= c.config.MaxLineSize {
			c.pending = nil
			return nil, fmt.Errorf("%w: limit %d bytes", ErrLineTooLong, c.config.MaxLineSize)
		}
		c.pending = append(c.pending, b)
	}
}

// Write sends p in full.
func (c *Conn) Write(p []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}

	if c.config.WriteTimeout > 0 {
		if err := c.tc.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return c.ioError("set write deadline", err)
		}
	}

	n, err := c.tc.Write(p)
	if err != nil {
		return c.ioError("write", err)
	}
	if n < len(p) {
		return c.ioError("write", io.ErrShortWrite)
	}
	c.logFrame(log.DirectionOut, p)
	return nil
}

// Close closes the session and discards buffered input.
// Repeated calls return nil.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.tc.Close()
		c.logState("CONNECTED", "CLOSED", "")
	})
	return err
}

// Pending reports how many bytes of an unterminated frame are buffered.
func (c *Conn) Pending() int {
	return len(c.pending)
}

func (c *Conn) ioError(op string, err error) error {
	if c.closed.Load() && errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	c.logError(op, err)
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Conn) logFrame(dir log.Direction, data []byte, suffix ...byte) {
	if c.config.ProtocolLogger == nil {
		return
	}
	if len(suffix) > 0 {
		data = append(append(make([]byte, 0, len(data)+len(suffix)), data...), suffix...)
	}
	c.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryFrame,
		RemoteAddr:   c.remote,
		Frame:        log.NewFrameEvent(data),
	})
}

func (c *Conn) logState(oldState, newState, reason string) {
	if c.config.ProtocolLogger == nil {
		return
	}
	c.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   c.remote,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (c *Conn) logError(op string, err error) {
	if c.config.ProtocolLogger == nil {
		return
	}
	c.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerTransport,
		Category:     log.CategoryError,
		RemoteAddr:   c.remote,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Context: op,
		},
	})
}
