package registry

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/avrbridge/avrbridge-go/pkg/wire"
)

// Validation errors.
var (
	// ErrUnknownCommand indicates a name missing from the registry.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrInvalidOperator indicates an operator the command does not accept.
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrInvalidValue indicates a value outside the command's domain.
	ErrInvalidValue = errors.New("invalid value")
)

// DomainKind identifies the shape of a value domain.
type DomainKind uint8

const (
	// DomainNone means any value is accepted.
	DomainNone DomainKind = iota

	// DomainEnum restricts values to a fixed set of strings.
	DomainEnum

	// DomainRange restricts values to numbers within [Min, Max].
	DomainRange
)

// String returns a human-readable domain kind.
func (k DomainKind) String() string {
	switch k {
	case DomainNone:
		return "NONE"
	case DomainEnum:
		return "ENUM"
	case DomainRange:
		return "RANGE"
	default:
		return "UNKNOWN"
	}
}

// Domain describes the values a command accepts.
type Domain struct {
	Kind   DomainKind
	Values []string
	Min    float64
	Max    float64
	Step   float64
}

// Contains reports whether v is a member of the domain.
func (d Domain) Contains(v string) bool {
	switch d.Kind {
	case DomainEnum:
		return slices.Contains(d.Values, v)
	case DomainRange:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return false
		}
		return f >= d.Min && f <= d.Max
	default:
		return true
	}
}

// String describes the domain for help output, e.g. "On|Off" or "-99..12".
func (d Domain) String() string {
	switch d.Kind {
	case DomainEnum:
		return strings.Join(d.Values, "|")
	case DomainRange:
		return formatNumber(d.Min) + ".." + formatNumber(d.Max)
	default:
		return ""
	}
}

// Definition is an immutable command description.
type Definition struct {
	Name        string
	Operators   []wire.Operator
	Description string
	Domain      Domain
}

// Supports reports whether the command accepts op.
func (d Definition) Supports(op wire.Operator) bool {
	return slices.Contains(d.Operators, op)
}

// ValidateValue checks v against the command's value domain.
func (d Definition) ValidateValue(v string) error {
	if !d.Domain.Contains(v) {
		return fmt.Errorf("%w: %s=%q (allowed: %s)", ErrInvalidValue, d.Name, v, d.Domain)
	}
	return nil
}

// OperatorString returns the accepted operators in wire order, e.g. "?=+-".
func (d Definition) OperatorString() string {
	var b strings.Builder
	for _, op := range d.Operators {
		b.WriteByte(byte(op))
	}
	return b.String()
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
