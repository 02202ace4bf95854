package connection

import (
	"errors"
	"fmt"

	"github.com/avrbridge/avrbridge-go/pkg/transport"
	"github.com/avrbridge/avrbridge-go/pkg/wire"
)

// Connection errors. Transport and codec sentinels are re-exported so
// callers need only import this package.
var (
	ErrConnect        = transport.ErrConnect
	ErrTimeout        = transport.ErrTimeout
	ErrIO             = transport.ErrIO
	ErrInvalidCommand = wire.ErrInvalidCommand

	// ErrUnsupportedCommand indicates a command the receiver did not report
	// during introspection.
	ErrUnsupportedCommand = errors.New("unsupported command")

	// ErrNotConnected indicates use of a disconnected Connection.
	ErrNotConnected = errors.New("not connected")
)

// UnsupportedCommandError is returned when an introspected receiver does not
// support a command. It matches ErrUnsupportedCommand.
type UnsupportedCommandError struct {
	Command string
	Name    string
}

func (e *UnsupportedCommandError) Error() string {
	return fmt.Sprintf("unsupported command %q (%s not reported by device)", e.Command, e.Name)
}

// Is reports whether target is ErrUnsupportedCommand.
func (e *UnsupportedCommandError) Is(target error) bool {
	return target == ErrUnsupportedCommand
}

// CommandError wraps a failure of a Connection operation.
type CommandError struct {
	// Op is the operation: "send" or "introspect".
	Op      string
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Command == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
