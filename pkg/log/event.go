package log

import "time"

// MaxFrameData is the number of frame bytes kept in a FrameEvent.
const MaxFrameData = 512

// Event is a single protocol capture record.
// CBOR encoding uses integer keys.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint"`
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`

	// RemoteAddr is the receiver address (host:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Model is the receiver model, once the handshake has been read.
	Model string `cbor:"7,keyasint,omitempty"`

	// Exactly one payload is set.
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Line        *LineEvent        `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn is data received from the receiver.
	DirectionIn Direction = 0
	// DirectionOut is data sent to the receiver.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the raw byte stream.
	LayerTransport Layer = 0
	// LayerWire is parsed Name=Value lines.
	LayerWire Layer = 1
	// LayerSession is connection lifecycle management.
	LayerSession Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event.
type Category uint8

const (
	// CategoryFrame is a frame or a line belonging to a command exchange.
	CategoryFrame Category = 0
	// CategoryTelemetry is an unsolicited line pushed by the receiver.
	CategoryTelemetry Category = 1
	// CategoryState is a lifecycle transition.
	CategoryState Category = 2
	// CategoryError is a failure at any layer.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategoryTelemetry:
		return "TELEMETRY"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent holds raw bytes seen by the transport.
type FrameEvent struct {
	// Size is the full frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the frame, cut to MaxFrameData bytes.
	Data []byte `cbor:"2,keyasint,omitempty"`

	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewFrameEvent builds a FrameEvent from data, truncating if needed.
func NewFrameEvent(data []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(data)}
	if len(data) > MaxFrameData {
		fe.Data = append([]byte(nil), data[:MaxFrameData]...)
		fe.Truncated = true
	} else {
		fe.Data = append([]byte(nil), data...)
	}
	return fe
}

// LineEvent holds one parsed protocol line.
type LineEvent struct {
	Name string `cbor:"1,keyasint"`

	// Operator is set for outbound commands ('?', '=', '+', '-').
	Operator string `cbor:"2,keyasint,omitempty"`

	Value string `cbor:"3,keyasint,omitempty"`

	// Unsolicited marks lines that did not answer the pending command.
	Unsolicited bool `cbor:"4,keyasint,omitempty"`
}

// Text renders the line as it appears on the wire, without framing.
func (l *LineEvent) Text() string {
	op := l.Operator
	if op == "" && l.Value != "" {
		op = "="
	}
	return l.Name + op + l.Value
}

// StateChangeEvent holds a lifecycle transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntityConnection is a single Connection value.
	StateEntityConnection StateEntity = 0
	// StateEntitySession is the supervising session.
	StateEntitySession StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData holds a failure.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Context names the operation that failed, e.g. "introspect".
	Context string `cbor:"3,keyasint,omitempty"`
}
