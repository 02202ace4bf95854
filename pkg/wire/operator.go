package wire

import "fmt"

// Operator is the single character that follows a command name on the wire.
type Operator byte

const (
	// OpQuery asks the device for the current value.
	OpQuery Operator = '?'

	// OpSet assigns a value.
	OpSet Operator = '='

	// OpIncrement steps the value up.
	OpIncrement Operator = '+'

	// OpDecrement steps the value down.
	OpDecrement Operator = '-'
)

// operatorChars lists every operator character, in wire order.
const operatorChars = "?=+-"

// String returns the operator as it appears on the wire.
func (o Operator) String() string {
	return string(rune(o))
}

// Name returns a human-readable operator name.
func (o Operator) Name() string {
	switch o {
	case OpQuery:
		return "Query"
	case OpSet:
		return "Set"
	case OpIncrement:
		return "Increment"
	case OpDecrement:
		return "Decrement"
	default:
		return "Unknown"
	}
}

// IsValid returns true if o is one of the four protocol operators.
func (o Operator) IsValid() bool {
	switch o {
	case OpQuery, OpSet, OpIncrement, OpDecrement:
		return true
	}
	return false
}

// ParseOperator converts a one-character string to an Operator.
func ParseOperator(s string) (Operator, error) {
	if len(s) != 1 || !Operator(s[0]).IsValid() {
		return 0, fmt.Errorf("invalid operator %q", s)
	}
	return Operator(s[0]), nil
}
