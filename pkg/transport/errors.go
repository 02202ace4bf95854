package transport

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	// ErrConnect indicates the TCP session could not be established.
	ErrConnect = errors.New("connect failed")

	// ErrTimeout indicates no delimiter arrived before the read deadline.
	ErrTimeout = errors.New("read timeout")

	// ErrIO indicates the stream failed: closed, reset, or a write error.
	ErrIO = errors.New("i/o error")

	// ErrClosed indicates use of a Conn after Close. It matches ErrIO.
	ErrClosed = fmt.Errorf("%w: transport closed", ErrIO)

	// ErrLineTooLong indicates a frame larger than Config.MaxLineSize.
	// It matches ErrIO; the stream cannot be resynchronised reliably.
	ErrLineTooLong = fmt.Errorf("%w: line too long", ErrIO)
)
