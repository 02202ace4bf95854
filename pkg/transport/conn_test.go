package transport_test

import (
	"bufio"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/avrbridge/avrbridge-go/pkg/log"
	"github.com/avrbridge/avrbridge-go/pkg/transport"
)

// startPeer accepts one connection and hands it to the test.
func startPeer(t *testing.T) (host string, port int, peer <-chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	ch := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(ch)
			return
		}
		ch <- c
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, ch
}

func dialPeer(t *testing.T, cfg transport.Config) (*transport.Conn, net.Conn) {
	t.Helper()
	host, port, peerCh := startPeer(t)
	conn, err := transport.Dial(host, port, cfg)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	select {
	case peer, ok := <-peerCh:
		if !ok {
			t.Fatal("peer accept failed")
		}
		t.Cleanup(func() { peer.Close() })
		return conn, peer
	case <-time.After(2 * time.Second):
		t.Fatal("peer never accepted")
	}
	return nil, nil
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = transport.Dial("127.0.0.1", port, transport.Config{ConnectTimeout: time.Second})
	if !errors.Is(err, transport.ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
}

func TestConnIdentity(t *testing.T) {
	conn, _ := dialPeer(t, transport.DefaultConfig())

	if conn.ID() == "" {
		t.Error("expected a connection ID")
	}
	_, portStr, err := net.SplitHostPort(conn.RemoteAddr())
	if err != nil {
		t.Fatalf("RemoteAddr %q: %v", conn.RemoteAddr(), err)
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		t.Errorf("RemoteAddr port %q not numeric", portStr)
	}
}

func TestReadUntil(t *testing.T) {
	conn, peer := dialPeer(t, transport.DefaultConfig())

	if _, err := peer.Write([]byte("\nMain.Model=T778\r\nMain.Power=On\r")); err != nil {
		t.Fatalf("peer write: %v", err)
	}

	first, err := conn.ReadUntil('\r', time.Second)
	if err != nil {
		t.Fatalf("ReadUntil: %v", err)
	}
	if string(first) != "\nMain.Model=T778" {
		t.Errorf("first frame = %q", first)
	}

	second, err := conn.ReadUntil('\r', time.Second)
	if err != nil {
		t.Fatalf("ReadUntil: %v", err)
	}
	if string(second) != "\nMain.Power=On" {
		t.Errorf("second frame = %q", second)
	}
}

func TestReadUntilTimeoutKeepsPartialFrame(t *testing.T) {
	conn, peer := dialPeer(t, transport.DefaultConfig())

	if _, err := peer.Write([]byte("\nMain.Vol")); err != nil {
		t.Fatalf("peer write: %v", err)
	}

	_, err := conn.ReadUntil('\r', 100*time.Millisecond)
	if !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if conn.Pending() != len("\nMain.Vol") {
		t.Errorf("Pending() = %d", conn.Pending())
	}

	if _, err := peer.Write([]byte("ume=-48\r")); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	frame, err := conn.ReadUntil('\r', time.Second)
	if err != nil {
		t.Fatalf("ReadUntil: %v", err)
	}
	if string(frame) != "\nMain.Volume=-48" {
		t.Errorf("frame = %q", frame)
	}
	if conn.Pending() != 0 {
		t.Errorf("Pending() = %d after full frame", conn.Pending())
	}
}

func TestReadUntilPeerClosed(t *testing.T) {
	conn, peer := dialPeer(t, transport.DefaultConfig())
	peer.Close()

	_, err := conn.ReadUntil('\r', time.Second)
	if !errors.Is(err, transport.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if errors.Is(err, transport.ErrTimeout) {
		t.Fatal("closed stream must not look like a timeout")
	}
}

func TestReadUntilLineTooLong(t *testing.T) {
	conn, peer := dialPeer(t, transport.Config{MaxLineSize: 8})

	if _, err := peer.Write([]byte("\nMain.Power=On\r")); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	_, err := conn.ReadUntil('\r', time.Second)
	if !errors.Is(err, transport.ErrLineTooLong) {
		t.Fatalf("expected ErrLineTooLong, got %v", err)
	}
	if !errors.Is(err, transport.ErrIO) {
		t.Fatal("ErrLineTooLong should match ErrIO")
	}
}

func TestWrite(t *testing.T) {
	conn, peer := dialPeer(t, transport.DefaultConfig())

	if err := conn.Write([]byte("\nMain.Power?\r")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	peer.SetReadDeadline(time.Now().Add(time.Second))
	got, err := bufio.NewReader(peer).ReadString('\r')
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if got != "\nMain.Power?\r" {
		t.Errorf("peer received %q", got)
	}
}

func TestCloseIdempotent(t *testing.T) {
	conn, _ := dialPeer(t, transport.DefaultConfig())

	if err := conn.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := conn.Write([]byte("x")); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Write after Close = %v", err)
	}
	if _, err := conn.ReadUntil('\r', time.Second); !errors.Is(err, transport.ErrIO) {
		t.Errorf("ReadUntil after Close = %v", err)
	}
}

func TestCloseUnblocksReader(t *testing.T) {
	conn, _ := dialPeer(t, transport.DefaultConfig())

	done := make(chan error, 1)
	go func() {
		_, err := conn.ReadUntil('\r', 0)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	conn.Close()

	select {
	case err := <-done:
		if !errors.Is(err, transport.ErrIO) {
			t.Fatalf("expected ErrIO, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reader not unblocked by Close")
	}
}

func TestProtocolLogging(t *testing.T) {
	mem := log.NewMemoryLogger(0)
	conn, peer := dialPeer(t, transport.Config{ProtocolLogger: mem})

	if err := conn.Write([]byte("\nMain.Power?\r")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	peer.Write([]byte("\nMain.Power=On\r"))
	if _, err := conn.ReadUntil('\r', time.Second); err != nil {
		t.Fatalf("ReadUntil: %v", err)
	}
	conn.Close()

	frames := mem.Filter(log.Filter{Category: ptr(log.CategoryFrame)})
	if len(frames) != 2 {
		t.Fatalf("expected 2 frame events, got %d", len(frames))
	}
	if frames[0].Direction != log.DirectionOut || string(frames[0].Frame.Data) != "\nMain.Power?\r" {
		t.Errorf("out frame = %+v", frames[0].Frame)
	}
	if frames[1].Direction != log.DirectionIn || string(frames[1].Frame.Data) != "\nMain.Power=On\r" {
		t.Errorf("in frame = %+v", frames[1].Frame)
	}
	for _, e := range frames {
		if e.ConnectionID != conn.ID() {
			t.Errorf("event connection ID %q, want %q", e.ConnectionID, conn.ID())
		}
	}

	states := mem.Filter(log.Filter{Category: ptr(log.CategoryState)})
	if len(states) != 2 || states[1].StateChange.NewState != "CLOSED" {
		t.Errorf("state events = %+v", states)
	}
}

func ptr[T any](v T) *T { return &v }
