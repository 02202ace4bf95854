package wire

import (
	"errors"
	"strings"
)

// Frame delimiters.
const (
	// FrameStart precedes every frame.
	FrameStart = '\n'

	// FrameEnd terminates every frame.
	FrameEnd = '\r'

	// IntrospectCommand is the bare query that makes a device dump every
	// Name=Value pair it knows.
	IntrospectCommand = "?"
)

// Codec errors.
var (
	// ErrNoValue indicates a response without any '='.
	ErrNoValue = errors.New("no value in response")

	// ErrNotFound indicates no line of a response carried the requested name.
	ErrNotFound = errors.New("command not found in response")

	// ErrInvalidCommand indicates a command string without an operator.
	ErrInvalidCommand = errors.New("invalid command")
)

// Line is one Name=Value pair from an inbound frame.
type Line struct {
	Name  string
	Value string
}

// String returns the line in wire form, without delimiters.
func (l Line) String() string {
	return l.Name + "=" + l.Value
}

// WrapCommand builds the outbound frame for name, operator and value.
// The value is omitted when empty.
func WrapCommand(name string, op Operator, value string) string {
	return Wrap(name + op.String() + value)
}

// Wrap frames an already assembled command string.
func Wrap(command string) string {
	var b strings.Builder
	b.Grow(len(command) + 2)
	b.WriteByte(FrameStart)
	b.WriteString(command)
	b.WriteByte(FrameEnd)
	return b.String()
}

// UnwrapResponse strips one leading "\n" and one trailing "\r".
// Either delimiter may be missing.
func UnwrapResponse(raw string) string {
	raw = strings.TrimPrefix(raw, string(rune(FrameStart)))
	return strings.TrimSuffix(raw, string(rune(FrameEnd)))
}

// ParseValue extracts a value from a response.
//
// With an empty name the text after the first '=' is returned. With a name,
// the response is treated as "\n"-separated Name=Value lines and the value of
// the line whose name equals name is returned; when the device answered more
// than once within one burst the last line wins.
func ParseValue(response, name string) (string, error) {
	response = UnwrapResponse(response)
	if name == "" {
		_, value, ok := strings.Cut(response, "=")
		if !ok {
			return "", ErrNoValue
		}
		return value, nil
	}

	var (
		value string
		found bool
	)
	for _, l := range ParseLines(response) {
		if l.Name == name {
			value = l.Value
			found = true
		}
	}
	if !found {
		return "", ErrNotFound
	}
	return value, nil
}

// ParseLine splits a single line at its first '='.
// Surrounding frame delimiters are ignored.
func ParseLine(s string) (Line, bool) {
	s = strings.Trim(s, "\r\n")
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return Line{}, false
	}
	return Line{Name: name, Value: value}, true
}

// ParseLines returns every Name=Value line of a response in arrival order.
// Lines without '=' are skipped.
func ParseLines(response string) []Line {
	var lines []Line
	for _, raw := range strings.Split(response, "\n") {
		if l, ok := ParseLine(raw); ok {
			lines = append(lines, l)
		}
	}
	return lines
}

// ParseCommandName returns the bare dotted name of a command string, e.g.
// "Main.Power" for "Main.Power=On". The name ends at the first operator
// character.
func ParseCommandName(command string) (string, error) {
	name, _, _, err := ParseCommand(command)
	return name, err
}

// ParseCommand splits a command string into name, operator and value.
func ParseCommand(command string) (string, Operator, string, error) {
	command = UnwrapResponse(command)
	i := strings.IndexAny(command, operatorChars)
	if i <= 0 {
		return "", 0, "", ErrInvalidCommand
	}
	return command[:i], Operator(command[i]), command[i+1:], nil
}

// ParseIntrospectionSet returns the names found in an introspection dump.
// Lines without '=' are discarded.
func ParseIntrospectionSet(response string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, l := range ParseLines(response) {
		set[l.Name] = struct{}{}
	}
	return set
}
