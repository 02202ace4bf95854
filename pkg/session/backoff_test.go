package session

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Run("DefaultSequence", func(t *testing.T) {
		b := NewBackoff()

		expected := []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
			32 * time.Second,
			60 * time.Second,
			60 * time.Second,
		}

		for i, exp := range expected {
			base := b.Current()
			b.Next()
			if base != exp {
				t.Errorf("attempt %d: base = %v, want %v", i, base, exp)
			}
		}
		if b.Attempts() != len(expected) {
			t.Errorf("Attempts() = %d, want %d", b.Attempts(), len(expected))
		}
	})

	t.Run("JitterBounds", func(t *testing.T) {
		b := NewBackoff()
		for i := 0; i < 50; i++ {
			b.Reset()
			d := b.Next()
			if d < time.Second || d > 1250*time.Millisecond {
				t.Fatalf("sample %d: %v outside [1s, 1.25s]", i, d)
			}
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff()
		for i := 0; i < 5; i++ {
			b.Next()
		}
		b.Reset()
		if b.Current() != InitialBackoff {
			t.Errorf("Current() after Reset = %v", b.Current())
		}
		if b.Attempts() != 0 {
			t.Errorf("Attempts() after Reset = %d", b.Attempts())
		}
	})

	t.Run("CustomConfigNoJitter", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial:    10 * time.Millisecond,
			Max:        25 * time.Millisecond,
			Multiplier: 3,
			Jitter:     -1,
		})
		got := []time.Duration{b.Next(), b.Next(), b.Next()}
		want := []time.Duration{10 * time.Millisecond, 25 * time.Millisecond, 25 * time.Millisecond}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("delay %d = %v, want %v", i, got[i], want[i])
			}
		}
	})

	t.Run("MaxBelowInitial", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: time.Second, Max: time.Millisecond, Jitter: -1})
		b.Next()
		if b.Current() != time.Second {
			t.Errorf("Current() = %v, want 1s", b.Current())
		}
	})
}
