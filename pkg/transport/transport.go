package transport

import (
	"time"

	"github.com/avrbridge/avrbridge-go/pkg/log"
)

// Default transport settings.
const (
	DefaultPort           = 23
	DefaultConnectTimeout = 5 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultMaxLineSize    = 64 * 1024
)

// Transport is a bidirectional, delimiter-framed byte stream.
// Implemented by *Conn.
type Transport interface {
	// ID returns the connection identifier used in protocol logs.
	ID() string

	// RemoteAddr returns the peer address as host:port.
	RemoteAddr() string

	// ReadUntil reads up to, but excluding, delim.
	// A zero timeout blocks until data or failure.
	ReadUntil(delim byte, timeout time.Duration) ([]byte, error)

	// Write delivers p in full or fails.
	Write(p []byte) error

	// Close releases the stream. It is idempotent.
	Close() error
}

// Dialer opens a Transport. Dial is the production implementation; tests
// substitute their own.
type Dialer func(host string, port int, cfg Config) (Transport, error)

// Config configures a Conn.
type Config struct {
	// ConnectTimeout bounds Dial (default: 5s).
	ConnectTimeout time.Duration

	// WriteTimeout bounds each Write (default: 5s, negative disables).
	WriteTimeout time.Duration

	// MaxLineSize caps a single frame (default: 64KiB).
	MaxLineSize int

	// ProtocolLogger receives frame and state events. Nil disables capture.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default transport configuration.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: DefaultConnectTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		MaxLineSize:    DefaultMaxLineSize,
	}
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxLineSize <= 0 {
		c.MaxLineSize = DefaultMaxLineSize
	}
	return c
}

var (
	_ Transport = (*Conn)(nil)
	_ Dialer    = DialTransport
)
