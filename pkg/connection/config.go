package connection

import (
	"log/slog"
	"time"

	"github.com/avrbridge/avrbridge-go/pkg/log"
	"github.com/avrbridge/avrbridge-go/pkg/transport"
)

// Default connection settings.
const (
	DefaultReadTimeout   = 2 * time.Second
	DefaultDrainTimeout  = 500 * time.Millisecond
	DefaultMaxDrainLines = 4096
)

// Config configures a Connection.
type Config struct {
	Host string
	Port int

	// ConnectTimeout bounds the TCP dial (default: 5s).
	ConnectTimeout time.Duration

	// ReadTimeout bounds the greeting and the first frame of every reply
	// (default: 2s).
	ReadTimeout time.Duration

	// DrainTimeout is the idle gap that ends a reply burst (default: 500ms).
	DrainTimeout time.Duration

	// WriteTimeout bounds each command write (default: 5s).
	WriteTimeout time.Duration

	// MaxDrainLines caps the frames collected for one reply.
	MaxDrainLines int

	// Logger receives operational logs. Nil means slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events. Nil disables capture.
	ProtocolLogger log.Logger

	// Dialer opens the transport. Nil means transport.DialTransport.
	Dialer transport.Dialer
}

// DefaultConfig returns a Config for host:port with default timeouts.
func DefaultConfig(host string, port int) Config {
	return Config{
		Host:           host,
		Port:           port,
		ConnectTimeout: transport.DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		DrainTimeout:   DefaultDrainTimeout,
		WriteTimeout:   transport.DefaultWriteTimeout,
		MaxDrainLines:  DefaultMaxDrainLines,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.Host, c.Port)
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = d.DrainTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxDrainLines <= 0 {
		c.MaxDrainLines = d.MaxDrainLines
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Dialer == nil {
		c.Dialer = transport.DialTransport
	}
	return c
}

func (c Config) transportConfig() transport.Config {
	return transport.Config{
		ConnectTimeout: c.ConnectTimeout,
		WriteTimeout:   c.WriteTimeout,
		ProtocolLogger: c.ProtocolLogger,
	}
}

// Option adjusts a Config.
type Option func(*Config)

// WithConnectTimeout sets the dial timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectTimeout = d }
}

// WithReadTimeout sets the greeting and first-frame timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReadTimeout = d }
}

// WithDrainTimeout sets the idle gap that ends a reply burst.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Config) { c.DrainTimeout = d }
}

// WithWriteTimeout sets the per-write timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) { c.WriteTimeout = d }
}

// WithMaxDrainLines caps the frames collected per reply.
func WithMaxDrainLines(n int) Option {
	return func(c *Config) { c.MaxDrainLines = n }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithProtocolLogger enables protocol capture.
func WithProtocolLogger(l log.Logger) Option {
	return func(c *Config) { c.ProtocolLogger = l }
}

// WithDialer replaces the transport dialer.
func WithDialer(d transport.Dialer) Option {
	return func(c *Config) { c.Dialer = d }
}
