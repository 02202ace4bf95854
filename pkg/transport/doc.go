// Package transport provides the byte-stream layer for receiver control ports.
//
// A receiver exposes a plaintext telnet service (port 23 on most models).
// This package opens that session, performs telnet option handling through
// github.com/ziutek/telnet, and reads the stream one delimiter-terminated
// frame at a time.
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   Name=Value lines (pkg/wire)  │
//	├────────────────────────────────┤
//	│   \n ... \r framing            │
//	├────────────────────────────────┤
//	│   Telnet (IAC handling)        │
//	├────────────────────────────────┤
//	│            TCP                 │
//	└────────────────────────────────┘
//
// # Timeouts
//
// Every read takes its own timeout. A read that times out keeps whatever
// bytes arrived so far; they are prepended to the next read, so a frame split
// across a timeout is never lost.
//
// Closing a Conn from another goroutine unblocks a pending ReadUntil, which
// then fails with an error matching ErrIO.
package transport
