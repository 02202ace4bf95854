// Package config loads the YAML configuration shared by the avrbridge
// commands and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/avrbridge/avrbridge-go/pkg/connection"
	"github.com/avrbridge/avrbridge-go/pkg/session"
	"github.com/avrbridge/avrbridge-go/pkg/transport"
)

// Environment variables consulted by Load.
const (
	EnvHost         = "AVR_HOST"
	EnvPort         = "AVR_PORT"
	EnvDrainTimeout = "AVR_DRAIN_TIMEOUT"
	EnvLogLevel     = "AVR_LOG_LEVEL"
)

// Value sources recorded in Meta.
const (
	SourceDefault = "default"
	SourceYAML    = "yaml"
	SourceEnv     = "env"
	SourceFlag    = "flag"
)

// ErrInvalid indicates a configuration that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Meta records where values came from. It never affects behavior.
type Meta struct {
	LoadedAt string
	YAMLPath string

	HostSource         string
	PortSource         string
	DrainTimeoutSource string
	LogLevelSource     string

	EnvUsed  map[string]string
	Warnings []string
}

// Config is the command configuration.
type Config struct {
	Device struct {
		Host           string        `yaml:"host"`
		Port           int           `yaml:"port"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		DrainTimeout   time.Duration `yaml:"drain_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		MaxDrainLines  int           `yaml:"max_drain_lines"`
		Introspect     *bool         `yaml:"introspect"`
	} `yaml:"device"`

	Session struct {
		FailureThreshold     int           `yaml:"failure_threshold"`
		MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
		BackoffInitial       time.Duration `yaml:"backoff_initial"`
		BackoffMax           time.Duration `yaml:"backoff_max"`
	} `yaml:"session"`

	Log struct {
		Level       string `yaml:"level"`
		Format      string `yaml:"format"`
		ProtocolLog string `yaml:"protocol_log"`
	} `yaml:"log"`

	Discovery struct {
		Interface string        `yaml:"interface"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"discovery"`

	Meta Meta `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Device.Port = transport.DefaultPort
	cfg.Device.ConnectTimeout = transport.DefaultConnectTimeout
	cfg.Device.ReadTimeout = connection.DefaultReadTimeout
	cfg.Device.DrainTimeout = connection.DefaultDrainTimeout
	cfg.Device.WriteTimeout = transport.DefaultWriteTimeout
	cfg.Device.MaxDrainLines = connection.DefaultMaxDrainLines
	cfg.Session.FailureThreshold = session.DefaultFailureThreshold
	cfg.Session.MaxReconnectAttempts = session.DefaultMaxReconnectAttempts
	cfg.Session.BackoffInitial = session.InitialBackoff
	cfg.Session.BackoffMax = session.MaxBackoff
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Meta = Meta{
		HostSource:         SourceDefault,
		PortSource:         SourceDefault,
		DrainTimeoutSource: SourceDefault,
		LogLevelSource:     SourceDefault,
		EnvUsed:            map[string]string{},
	}
	return cfg
}

// Load reads path (skipped when empty), fills defaults and applies
// environment overrides. It does not validate; call Validate once flags
// have been applied.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	cfg.Meta.LoadedAt = time.Now().UTC().Format(time.RFC3339)

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := cfg.merge(b); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		cfg.Meta.YAMLPath = path
	}

	cfg.applyEnv(lookup)
	return cfg, nil
}

// merge overlays YAML onto the defaults, tagging the tracked keys.
func (c *Config) merge(b []byte) error {
	var file Config
	if err := yaml.Unmarshal(b, &file); err != nil {
		return err
	}

	if file.Device.Host != "" {
		c.Device.Host = file.Device.Host
		c.Meta.HostSource = SourceYAML
	}
	if file.Device.Port != 0 {
		c.Device.Port = file.Device.Port
		c.Meta.PortSource = SourceYAML
	}
	if file.Device.DrainTimeout != 0 {
		c.Device.DrainTimeout = file.Device.DrainTimeout
		c.Meta.DrainTimeoutSource = SourceYAML
	}
	if file.Log.Level != "" {
		c.Log.Level = file.Log.Level
		c.Meta.LogLevelSource = SourceYAML
	}

	setDuration(&c.Device.ConnectTimeout, file.Device.ConnectTimeout)
	setDuration(&c.Device.ReadTimeout, file.Device.ReadTimeout)
	setDuration(&c.Device.WriteTimeout, file.Device.WriteTimeout)
	setInt(&c.Device.MaxDrainLines, file.Device.MaxDrainLines)
	if file.Device.Introspect != nil {
		c.Device.Introspect = file.Device.Introspect
	}

	setInt(&c.Session.FailureThreshold, file.Session.FailureThreshold)
	setInt(&c.Session.MaxReconnectAttempts, file.Session.MaxReconnectAttempts)
	setDuration(&c.Session.BackoffInitial, file.Session.BackoffInitial)
	setDuration(&c.Session.BackoffMax, file.Session.BackoffMax)

	if file.Log.Format != "" {
		c.Log.Format = file.Log.Format
	}
	c.Log.ProtocolLog = file.Log.ProtocolLog
	c.Discovery = file.Discovery
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			return "", false
		}
		c.Meta.EnvUsed[key] = v
		return v, true
	}

	if v, ok := get(EnvHost); ok {
		c.Device.Host = v
		c.Meta.HostSource = SourceEnv
	}
	if v, ok := get(EnvPort); ok {
		if p, err := strconv.Atoi(v); err == nil {
			c.Device.Port = p
			c.Meta.PortSource = SourceEnv
		} else {
			c.Meta.Warnings = append(c.Meta.Warnings, fmt.Sprintf("invalid %s %q ignored", EnvPort, v))
		}
	}
	if v, ok := get(EnvDrainTimeout); ok {
		if d, err := parseDuration(v); err == nil {
			c.Device.DrainTimeout = d
			c.Meta.DrainTimeoutSource = SourceEnv
		} else {
			c.Meta.Warnings = append(c.Meta.Warnings, fmt.Sprintf("invalid %s %q ignored", EnvDrainTimeout, v))
		}
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Log.Level = v
		c.Meta.LogLevelSource = SourceEnv
	}
}

// parseDuration accepts Go durations ("750ms") or bare milliseconds ("750").
func parseDuration(s string) (time.Duration, error) {
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

// SetHost overrides the host from a command-line flag.
func (c *Config) SetHost(host string) {
	c.Device.Host = host
	c.Meta.HostSource = SourceFlag
}

// SetPort overrides the port from a command-line flag.
func (c *Config) SetPort(port int) {
	c.Device.Port = port
	c.Meta.PortSource = SourceFlag
}

// SetLogLevel overrides the log level from a command-line flag.
func (c *Config) SetLogLevel(level string) {
	c.Log.Level = level
	c.Meta.LogLevelSource = SourceFlag
}

// Validate reports unusable settings.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Device.Host) == "" {
		errs = append(errs, fmt.Errorf("%w: device.host is required", ErrInvalid))
	}
	if c.Device.Port <= 0 || c.Device.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: device.port %d out of range", ErrInvalid, c.Device.Port))
	}
	if c.Device.DrainTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: device.drain_timeout must be positive", ErrInvalid))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: log.format %q (want text or json)", ErrInvalid, c.Log.Format))
	}
	return errors.Join(errs...)
}

// Introspect reports whether to introspect after connecting (default true).
func (c *Config) Introspect() bool {
	return c.Device.Introspect == nil || *c.Device.Introspect
}

// ConnectionOptions converts the device section into connection options.
func (c *Config) ConnectionOptions() []connection.Option {
	return []connection.Option{
		connection.WithConnectTimeout(c.Device.ConnectTimeout),
		connection.WithReadTimeout(c.Device.ReadTimeout),
		connection.WithDrainTimeout(c.Device.DrainTimeout),
		connection.WithWriteTimeout(c.Device.WriteTimeout),
		connection.WithMaxDrainLines(c.Device.MaxDrainLines),
	}
}

// SessionConfig builds a session configuration.
func (c *Config) SessionConfig(logger *slog.Logger) session.Config {
	sc := session.DefaultConfig(c.Device.Host, c.Device.Port)
	sc.ConnectionOptions = c.ConnectionOptions()
	sc.Introspect = c.Introspect()
	sc.FailureThreshold = c.Session.FailureThreshold
	sc.MaxReconnectAttempts = c.Session.MaxReconnectAttempts
	sc.Backoff = session.BackoffConfig{
		Initial: c.Session.BackoffInitial,
		Max:     c.Session.BackoffMax,
	}
	sc.Logger = logger
	return sc
}

// ParseLevel converts a level name to slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, s)
	}
	return l, nil
}

// NewLogger builds the operational logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
