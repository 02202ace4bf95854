package stubdevice

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ziutek/telnet"

	"github.com/avrbridge/avrbridge-go/pkg/registry"
	"github.com/avrbridge/avrbridge-go/pkg/wire"
)

// Config configures a stub receiver.
type Config struct {
	// Addr is the listen address (default: "127.0.0.1:0").
	Addr string

	// Model is announced in the greeting (default: "T778").
	Model string

	// Registry supplies commands and value domains (default: registry.Default()).
	Registry *registry.Registry

	// SilentGreeting suppresses the greeting frame.
	SilentGreeting bool

	// TelemetryInterval, when positive, pushes Main.Temp.PSU to all clients.
	TelemetryInterval time.Duration

	// ReplyDelay is slept before every reply.
	ReplyDelay time.Duration

	Logger *slog.Logger
}

// Server is a fake receiver.
type Server struct {
	config Config
	ln     net.Listener
	logger *slog.Logger

	mu         sync.Mutex
	values     map[string]string
	clients    map[string]*client
	received   []string
	telemetry  []string
	responsive bool
	closed     bool

	wg     sync.WaitGroup
	stopCh chan struct{}
}

type client struct {
	id   string
	conn *telnet.Conn
	wmu  sync.Mutex
}

func (c *client) send(lines ...string) error {
	if len(lines) == 0 {
		return nil
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(wire.Wrap(l))
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.conn.Write([]byte(b.String()))
	return err
}

// New creates a stub receiver. Call Start to listen.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.Model == "" {
		cfg.Model = "T778"
	}
	if cfg.Registry == nil {
		cfg.Registry = registry.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		config:     cfg,
		logger:     cfg.Logger.With("component", "stubdevice"),
		values:     initialValues(cfg.Registry, cfg.Model),
		clients:    make(map[string]*client),
		responsive: true,
		stopCh:     make(chan struct{}),
	}
}

// Start listens and begins accepting clients.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	s.ln = ln
	s.logger.Info("stub receiver listening", "addr", ln.Addr().String(), "model", s.config.Model)

	s.wg.Add(1)
	go s.acceptLoop()

	if s.config.TelemetryInterval > 0 {
		s.wg.Add(1)
		go s.telemetryLoop()
	}
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Host returns the listen host.
func (s *Server) Host() string {
	return s.ln.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the listen port.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Close stops listening and disconnects every client.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopCh)
	s.mu.Unlock()

	err := s.ln.Close()
	s.DropConnections()
	s.wg.Wait()
	return err
}

// DropConnections closes every client connection, simulating a device
// reboot or network fault. The listener stays open.
func (s *Server) DropConnections() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

// Connections returns the number of connected clients.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// SetResponsive controls whether commands get replies. An unresponsive stub
// still reads and records commands.
func (s *Server) SetResponsive(on bool) {
	s.mu.Lock()
	s.responsive = on
	s.mu.Unlock()
}

// InjectTelemetry queues unsolicited lines sent ahead of the next reply.
func (s *Server) InjectTelemetry(lines ...string) {
	s.mu.Lock()
	s.telemetry = append(s.telemetry, lines...)
	s.mu.Unlock()
}

// Push sends lines to every client immediately.
func (s *Server) Push(lines ...string) {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.send(lines...); err != nil {
			s.logger.Debug("push failed", "client", c.id, "error", err)
		}
	}
}

// Received returns every command read so far, unframed.
func (s *Server) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

// Value returns the stub's current value for name.
func (s *Server) Value(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok
}

// SetValue overrides a value without notifying clients.
func (s *Server) SetValue(name, value string) {
	s.mu.Lock()
	s.values[name] = value
	s.mu.Unlock()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("accept failed", "error", err)
			}
			return
		}
		tc, err := telnet.NewConn(nc)
		if err != nil {
			nc.Close()
			continue
		}
		s.wg.Add(1)
		go s.serve(&client{id: uuid.New().String(), conn: tc})
	}
}

func (s *Server) serve(c *client) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		c.conn.Close()
	}()

	s.logger.Debug("client connected", "client", c.id, "remote", c.conn.RemoteAddr().String())

	if !s.config.SilentGreeting {
		if err := c.send("Main.Model=" + s.config.Model); err != nil {
			return
		}
	}

	// Register after the greeting so pushes never overtake it.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.clients[c.id] = c
	s.mu.Unlock()

	for {
		raw, err := c.conn.ReadString(wire.FrameEnd)
		if err != nil {
			return
		}
		cmd := strings.Trim(raw, "\r\n")
		if cmd == "" {
			continue
		}

		out := s.handle(cmd)
		if len(out) == 0 {
			continue
		}
		if s.config.ReplyDelay > 0 {
			time.Sleep(s.config.ReplyDelay)
		}
		if err := c.send(out...); err != nil {
			return
		}
	}
}

// handle applies cmd and returns the lines to send: queued telemetry first,
// then the reply. Unknown commands produce no reply.
func (s *Server) handle(cmd string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.received = append(s.received, cmd)
	if !s.responsive {
		return nil
	}
	out := s.telemetry
	s.telemetry = nil

	if cmd == wire.IntrospectCommand {
		return append(out, s.dumpLocked()...)
	}

	name, op, value, err := wire.ParseCommand(cmd)
	if err != nil {
		return out
	}
	def, ok := s.config.Registry.Lookup(name)
	if !ok || !def.Supports(op) {
		return out
	}

	switch op {
	case wire.OpSet:
		if def.ValidateValue(value) == nil {
			s.values[name] = value
		}
	case wire.OpIncrement, wire.OpDecrement:
		s.values[name] = step(def, s.values[name], op)
	}
	return append(out, name+"="+s.values[name])
}

func (s *Server) dumpLocked() []string {
	names := make([]string, 0, len(s.values))
	for n := range s.values {
		names = append(names, n)
	}
	sort.Strings(names)

	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = n + "=" + s.values[n]
	}
	return lines
}

func (s *Server) telemetryLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.TelemetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			v, _ := s.Value("Main.Temp.PSU")
			s.Push("Main.Temp.PSU=" + v)
		}
	}
}
