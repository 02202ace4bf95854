package stubdevice

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avrbridge/avrbridge-go/pkg/registry"
	"github.com/avrbridge/avrbridge-go/pkg/wire"
)

type rawClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func startStub(t *testing.T, cfg Config) *Server {
	t.Helper()
	s := New(cfg)
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Close() })
	return s
}

func dial(t *testing.T, s *Server) *rawClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.Addr(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &rawClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *rawClient) send(cmd string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(wire.Wrap(cmd)))
	require.NoError(c.t, err)
}

// line reads one frame and returns it unwrapped, or "" on timeout.
func (c *rawClient) line(timeout time.Duration) string {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	s, err := c.r.ReadString(wire.FrameEnd)
	if err != nil {
		return ""
	}
	return wire.UnwrapResponse(s)
}

func TestGreeting(t *testing.T) {
	s := startStub(t, Config{Model: "C368"})
	c := dial(t, s)
	assert.Equal(t, "Main.Model=C368", c.line(time.Second))
}

func TestSilentGreeting(t *testing.T) {
	s := startStub(t, Config{SilentGreeting: true})
	c := dial(t, s)
	assert.Empty(t, c.line(100*time.Millisecond))
}

func TestQuerySetStep(t *testing.T) {
	s := startStub(t, Config{})
	c := dial(t, s)
	require.Equal(t, "Main.Model=T778", c.line(time.Second))

	tests := []struct {
		cmd  string
		want string
	}{
		{"Main.Power?", "Main.Power=On"},
		{"Main.Power=Off", "Main.Power=Off"},
		{"Main.Power+", "Main.Power=On"},
		{"Main.Volume?", "Main.Volume=-48"},
		{"Main.Volume+", "Main.Volume=-47"},
		{"Main.Volume-", "Main.Volume=-48"},
		{"Main.Volume=12", "Main.Volume=12"},
		{"Main.Volume+", "Main.Volume=12"},
		{"Main.Volume=40", "Main.Volume=12"},
		{"Tuner.FM.Frequency+", "Tuner.FM.Frequency=98.6"},
		{"Main.Model?", "Main.Model=T778"},
	}

	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			c.send(tt.cmd)
			assert.Equal(t, tt.want, c.line(time.Second))
		})
	}

	v, ok := s.Value("Main.Volume")
	require.True(t, ok)
	assert.Equal(t, "12", v)
	assert.Contains(t, s.Received(), "Main.Power=Off")
}

func TestUnknownAndUnsupportedGetNoReply(t *testing.T) {
	s := startStub(t, Config{})
	c := dial(t, s)
	c.line(time.Second)

	c.send("Main.Bogus?")
	assert.Empty(t, c.line(100*time.Millisecond))

	c.send("Main.Model=X")
	assert.Empty(t, c.line(100*time.Millisecond))

	c.send("garbage")
	assert.Empty(t, c.line(100*time.Millisecond))

	assert.Equal(t, []string{"Main.Bogus?", "Main.Model=X", "garbage"}, s.Received())
}

func TestIntrospectionDump(t *testing.T) {
	s := startStub(t, Config{})
	c := dial(t, s)
	c.line(time.Second)

	c.send(wire.IntrospectCommand)
	var lines []string
	for {
		l := c.line(200 * time.Millisecond)
		if l == "" {
			break
		}
		lines = append(lines, l)
	}

	assert.Len(t, lines, registry.Default().Len())
	set := wire.ParseIntrospectionSet(strings.Join(lines, "\n"))
	assert.Contains(t, set, "Main.Power")
	assert.Contains(t, set, "Zone2.Volume")
}

func TestInjectedTelemetryPrecedesReply(t *testing.T) {
	s := startStub(t, Config{})
	c := dial(t, s)
	c.line(time.Second)

	s.InjectTelemetry("Main.Temp.PSU=33")
	c.send("Main.Mute?")
	assert.Equal(t, "Main.Temp.PSU=33", c.line(time.Second))
	assert.Equal(t, "Main.Mute=Off", c.line(time.Second))

	c.send("Main.Mute?")
	assert.Equal(t, "Main.Mute=Off", c.line(time.Second))
}

func TestPeriodicTelemetry(t *testing.T) {
	s := startStub(t, Config{TelemetryInterval: 20 * time.Millisecond})
	c := dial(t, s)
	c.line(time.Second)

	assert.Equal(t, "Main.Temp.PSU=32", c.line(time.Second))
}

func TestUnresponsive(t *testing.T) {
	s := startStub(t, Config{})
	c := dial(t, s)
	c.line(time.Second)

	s.SetResponsive(false)
	c.send("Main.Power?")
	assert.Empty(t, c.line(100*time.Millisecond))

	s.SetResponsive(true)
	c.send("Main.Power?")
	assert.Equal(t, "Main.Power=On", c.line(time.Second))
}

func TestDropConnections(t *testing.T) {
	s := startStub(t, Config{})
	c := dial(t, s)
	c.line(time.Second)
	require.Eventually(t, func() bool { return s.Connections() == 1 }, time.Second, 10*time.Millisecond)

	s.DropConnections()
	require.Eventually(t, func() bool { return s.Connections() == 0 }, time.Second, 10*time.Millisecond)

	c.conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err := c.r.ReadByte()
	assert.Error(t, err)

	c2 := dial(t, s)
	assert.Equal(t, "Main.Model=T778", c2.line(time.Second))
}

func TestCloseIdempotent(t *testing.T) {
	s := New(Config{})
	require.NoError(t, s.Start())
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestStep(t *testing.T) {
	reg := registry.Default()
	vol, _ := reg.Lookup("Main.Volume")
	assert.Equal(t, "-98", step(vol, "-99", wire.OpIncrement))
	assert.Equal(t, "-99", step(vol, "-99", wire.OpDecrement))

	sleep, _ := reg.Lookup("Main.Sleep")
	assert.Equal(t, "30", step(sleep, "Off", wire.OpIncrement))
	assert.Equal(t, "90", step(sleep, "Off", wire.OpDecrement))

	am, _ := reg.Lookup("Tuner.AM.Frequency")
	assert.Equal(t, "1020", step(am, "1010", wire.OpIncrement))

	assert.Equal(t, "87.5", formatStep(87.5, 0.1))
	assert.Equal(t, "-48", formatStep(-48, 1))
}
