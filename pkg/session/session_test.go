package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avrbridge/avrbridge-go/pkg/connection"
	"github.com/avrbridge/avrbridge-go/pkg/registry"
	"github.com/avrbridge/avrbridge-go/pkg/stubdevice"
	"github.com/avrbridge/avrbridge-go/pkg/wire"
)

func startStub(t *testing.T) *stubdevice.Server {
	t.Helper()
	s := stubdevice.New(stubdevice.Config{Model: "T778"})
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Close() })
	return s
}

func testConfig(host string, port int) Config {
	cfg := DefaultConfig(host, port)
	cfg.MaxReconnectAttempts = 2
	cfg.Backoff = BackoffConfig{Initial: 10 * time.Millisecond, Max: 20 * time.Millisecond, Jitter: -1}
	cfg.ConnectionOptions = []connection.Option{
		connection.WithReadTimeout(200 * time.Millisecond),
		connection.WithDrainTimeout(50 * time.Millisecond),
		connection.WithConnectTimeout(time.Second),
	}
	return cfg
}

func openSession(t *testing.T, stub *stubdevice.Server) *Session {
	t.Helper()
	s := New(testConfig(stub.Host(), stub.Port()))
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(s.Close)
	return s
}

// stateRecorder collects state transitions.
type stateRecorder struct {
	mu     sync.Mutex
	states []string
}

func (r *stateRecorder) record(old, next connection.State) {
	r.mu.Lock()
	r.states = append(r.states, old.String()+"->"+next.String())
	r.mu.Unlock()
}

func (r *stateRecorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func TestOpenGetSetStep(t *testing.T) {
	stub := startStub(t)
	s := New(testConfig(stub.Host(), stub.Port()))
	rec := &stateRecorder{}
	s.OnStateChange(rec.record)

	ctx := context.Background()
	require.NoError(t, s.Open(ctx))
	t.Cleanup(s.Close)
	require.NoError(t, s.Open(ctx))

	assert.Equal(t, []string{"DISCONNECTED->CONNECTED", "CONNECTED->INTROSPECTED"}, rec.get())
	assert.Equal(t, HealthUnknown, s.Health().Status)
	assert.Equal(t, "T778", s.Health().Model)

	v, err := s.Get(ctx, "Main.Volume")
	require.NoError(t, err)
	assert.Equal(t, "-48", v)

	v, err = s.Step(ctx, "Main.Volume", wire.OpIncrement)
	require.NoError(t, err)
	assert.Equal(t, "-47", v)

	v, err = s.Set(ctx, "Main.Power", "Off")
	require.NoError(t, err)
	assert.Equal(t, "Off", v)

	h := s.Health()
	assert.Equal(t, HealthOK, h.Status)
	assert.Zero(t, h.ConsecutiveFailures)
	assert.False(t, h.LastSuccess.IsZero())
}

func TestValidation(t *testing.T) {
	stub := startStub(t)
	s := openSession(t, stub)
	ctx := context.Background()

	_, err := s.Set(ctx, "Main.Power", "Maybe")
	assert.ErrorIs(t, err, registry.ErrInvalidValue)
	assert.Equal(t, KindInvalid, Classify(err))

	_, err = s.Send(ctx, "Main.Model=X")
	assert.ErrorIs(t, err, registry.ErrInvalidOperator)

	_, err = s.Step(ctx, "Main.Volume", wire.OpSet)
	assert.ErrorIs(t, err, registry.ErrInvalidOperator)

	_, err = s.Get(ctx, "Main.Secret")
	assert.Equal(t, KindUnsupported, Classify(err))

	for _, cmd := range stub.Received() {
		assert.NotContains(t, []string{"Main.Power=Maybe", "Main.Model=X", "Main.Secret?"}, cmd)
	}
	assert.Equal(t, HealthUnknown, s.Health().Status)
}

func TestTelemetryCallback(t *testing.T) {
	stub := startStub(t)
	s := openSession(t, stub)

	var got []wire.Line
	s.OnTelemetry(func(l wire.Line) { got = append(got, l) })

	stub.InjectTelemetry("Main.Temp.PSU=41")
	v, err := s.Get(context.Background(), "Main.Mute")
	require.NoError(t, err)
	assert.Equal(t, "Off", v)
	assert.Equal(t, []wire.Line{{Name: "Main.Temp.PSU", Value: "41"}}, got)
}

func TestReconnectAfterIOError(t *testing.T) {
	stub := startStub(t)
	s := openSession(t, stub)
	rec := &stateRecorder{}
	s.OnStateChange(rec.record)
	ctx := context.Background()

	first := s.Connection()
	stub.DropConnections()
	time.Sleep(50 * time.Millisecond)

	_, err := s.Get(ctx, "Main.Power")
	require.Error(t, err)
	assert.Equal(t, KindUnavailable, Classify(err))

	assert.NotSame(t, first, s.Connection())
	assert.Equal(t, 1, s.Health().Reconnects)
	assert.Equal(t, []string{"INTROSPECTED->DISCONNECTED", "DISCONNECTED->INTROSPECTED"}, rec.get())

	v, err := s.Get(ctx, "Main.Power")
	require.NoError(t, err)
	assert.Equal(t, "On", v)
	assert.Equal(t, HealthOK, s.Health().Status)
}

func TestTimeoutsDegradeThenDisconnect(t *testing.T) {
	stub := startStub(t)
	s := openSession(t, stub)
	ctx := context.Background()

	stub.SetResponsive(false)

	_, err := s.Get(ctx, "Main.Power")
	assert.Equal(t, KindTimeout, Classify(err))
	assert.Equal(t, HealthDegraded, s.Health().Status)

	_, err = s.Get(ctx, "Main.Power")
	assert.ErrorIs(t, err, connection.ErrTimeout)
	assert.Equal(t, 2, s.Health().ConsecutiveFailures)

	// Third timeout reaches the threshold; reconnect fails because the
	// device still ignores introspection.
	_, err = s.Get(ctx, "Main.Power")
	assert.ErrorIs(t, err, connection.ErrTimeout)
	assert.Equal(t, HealthDisconnected, s.Health().Status)
	assert.False(t, s.Connection().Connected())

	stub.SetResponsive(true)
	v, err := s.Get(ctx, "Main.Power")
	require.NoError(t, err)
	assert.Equal(t, "On", v)
	assert.Equal(t, HealthOK, s.Health().Status)
}

func TestOpenFailure(t *testing.T) {
	stub := stubdevice.New(stubdevice.Config{})
	require.NoError(t, stub.Start())
	host, port := stub.Host(), stub.Port()
	require.NoError(t, stub.Close())

	s := New(testConfig(host, port))
	err := s.Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, connection.ErrConnect)
	assert.Equal(t, KindUnavailable, Classify(err))
	assert.Equal(t, HealthDisconnected, s.Health().Status)
	assert.Nil(t, s.Connection())
}

func TestOpenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(testConfig("127.0.0.1", 1))
	err := s.Open(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNotOpenAndClosed(t *testing.T) {
	s := New(DefaultConfig("127.0.0.1", 1))
	_, err := s.Send(context.Background(), "Main.Power?")
	assert.ErrorIs(t, err, ErrNotOpen)

	s.Close()
	s.Close()
	_, err = s.Send(context.Background(), "Main.Power?")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Open(context.Background()), ErrClosed)
}

func TestCloseDisconnects(t *testing.T) {
	stub := startStub(t)
	s := New(testConfig(stub.Host(), stub.Port()))
	require.NoError(t, s.Open(context.Background()))
	c := s.Connection()

	s.Close()
	assert.False(t, c.Connected())
	assert.Nil(t, s.Connection())
}

func TestSendSerializes(t *testing.T) {
	stub := startStub(t)
	s := openSession(t, stub)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Get(context.Background(), "Main.Power")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		want   Kind
		status int
	}{
		{&connection.CommandError{Op: "send", Err: connection.ErrTimeout}, KindTimeout, http.StatusGatewayTimeout},
		{fmt.Errorf("x: %w", connection.ErrIO), KindUnavailable, http.StatusServiceUnavailable},
		{connection.ErrNotConnected, KindUnavailable, http.StatusServiceUnavailable},
		{ErrClosed, KindUnavailable, http.StatusServiceUnavailable},
		{&connection.UnsupportedCommandError{Command: "A.B?", Name: "A.B"}, KindUnsupported, http.StatusNotFound},
		{wire.ErrInvalidCommand, KindInvalid, http.StatusBadRequest},
		{registry.ErrInvalidValue, KindInvalid, http.StatusBadRequest},
		{errors.New("other"), KindOther, http.StatusInternalServerError},
		{nil, KindOther, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			k := Classify(tt.err)
			assert.Equal(t, tt.want, k)
			assert.Equal(t, tt.status, k.HTTPStatus())
		})
	}
}

func TestHealthStatusString(t *testing.T) {
	assert.Equal(t, "DEGRADED", HealthDegraded.String())
	assert.Equal(t, "DISCONNECTED", HealthDisconnected.String())
}
