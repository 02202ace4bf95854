package connection

// State is the lifecycle state of a Connection.
type State uint32

const (
	// StateDisconnected means the transport is closed.
	StateDisconnected State = iota

	// StateConnected means the transport is open and the greeting was read.
	StateConnected

	// StateIntrospected means the supported command set is known.
	StateIntrospected
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	case StateIntrospected:
		return "INTROSPECTED"
	default:
		return "UNKNOWN"
	}
}
