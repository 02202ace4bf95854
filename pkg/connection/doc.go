// Package connection manages the lifecycle of one receiver connection.
//
// A Connection moves through three states:
//
//	DISCONNECTED ──Connect──▶ CONNECTED ──Introspect──▶ INTROSPECTED
//	      ▲                        │                          │
//	      └────────Disconnect──────┴──────────────────────────┘
//
// Connect dials the receiver and reads its greeting ("Main.Model=<model>")
// to learn the model. Introspect sends the bare "?" command and records every
// command name the receiver reports. Once introspected, SendCommand rejects
// names outside that set without writing anything to the wire.
//
// # Response Draining
//
// The protocol has no end-of-response marker, and receivers interleave
// unsolicited telemetry with replies. SendCommand therefore reads frames
// until the stream goes quiet: the first frame may take up to ReadTimeout,
// and every later frame must arrive within DrainTimeout of the previous one.
// All frames of the burst are returned joined with "\n".
//
// # Ownership
//
// A Connection is not safe for concurrent command use; callers serialize.
// Disconnect may be called from another goroutine to abort a blocked command,
// which then fails with ErrIO. Reconnect returns a new Connection rather than
// mutating the old one; Slot publishes the current value to readers.
//
// Nothing in this package retries. Retry policy belongs to the caller
// (see package session).
package connection
