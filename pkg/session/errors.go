package session

import (
	"errors"
	"net/http"

	"github.com/avrbridge/avrbridge-go/pkg/connection"
	"github.com/avrbridge/avrbridge-go/pkg/registry"
	"github.com/avrbridge/avrbridge-go/pkg/wire"
)

// Session errors.
var (
	// ErrClosed indicates use of a closed Session.
	ErrClosed = errors.New("session closed")

	// ErrNotOpen indicates a command before a successful Open.
	ErrNotOpen = errors.New("session not open")
)

// Kind classifies an error for callers mapping failures onto a response.
type Kind uint8

const (
	KindOther Kind = iota
	KindTimeout
	KindUnavailable
	KindUnsupported
	KindInvalid
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "TIMEOUT"
	case KindUnavailable:
		return "UNAVAILABLE"
	case KindUnsupported:
		return "UNSUPPORTED"
	case KindInvalid:
		return "INVALID"
	default:
		return "OTHER"
	}
}

// HTTPStatus returns the status code an HTTP front end should use.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindUnsupported:
		return http.StatusNotFound
	case KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Classify maps err onto a Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindOther
	case errors.Is(err, connection.ErrTimeout):
		return KindTimeout
	case errors.Is(err, connection.ErrIO),
		errors.Is(err, connection.ErrConnect),
		errors.Is(err, connection.ErrNotConnected),
		errors.Is(err, ErrClosed),
		errors.Is(err, ErrNotOpen):
		return KindUnavailable
	case errors.Is(err, connection.ErrUnsupportedCommand),
		errors.Is(err, registry.ErrUnknownCommand):
		return KindUnsupported
	case errors.Is(err, wire.ErrInvalidCommand),
		errors.Is(err, registry.ErrInvalidOperator),
		errors.Is(err, registry.ErrInvalidValue):
		return KindInvalid
	default:
		return KindOther
	}
}
