package log

import (
	"fmt"
	"strings"
	"time"
)

// Event is one trace record. Exactly one payload field is set.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the session (UUID).
	SessionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// Resource is the instrument's resource name.
	Resource string `cbor:"6,keyasint,omitempty"`

	// Model is the resource model the session was opened with.
	Model string `cbor:"7,keyasint,omitempty"`

	Message     *MessageEvent     `cbor:"10,keyasint,omitempty"`
	Status      *StatusEvent      `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Register    *RegisterEvent    `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction of the traffic an event describes.
type Direction uint8

const (
	// DirectionIn is data read from the instrument.
	DirectionIn Direction = 0
	// DirectionOut is data sent to the instrument.
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

// Layer is where an event was captured.
type Layer uint8

const (
	LayerChannel  Layer = 0
	LayerRegister Layer = 1
	LayerSession  Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerChannel:
		return "CHANNEL"
	case LayerRegister:
		return "REGISTER"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies an event.
type Category uint8

const (
	CategoryMessage        Category = 0
	CategoryStatus         Category = 1
	CategoryState          Category = 2
	CategoryRegister       Category = 3
	CategoryError          Category = 4
	CategoryServiceRequest Category = 5
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryStatus:
		return "STATUS"
	case CategoryState:
		return "STATE"
	case CategoryRegister:
		return "REGISTER"
	case CategoryError:
		return "ERROR"
	case CategoryServiceRequest:
		return "SERVICE_REQUEST"
	default:
		return "UNKNOWN"
	}
}

// MessageEvent is one line of text exchanged with the instrument.
type MessageEvent struct {
	Type MessageType `cbor:"1,keyasint"`
	Text string      `cbor:"2,keyasint"`

	// Latency is the time from the preceding query to this response.
	Latency *time.Duration `cbor:"3,keyasint,omitempty"`
}

// MessageType distinguishes commands, queries and responses.
type MessageType uint8

const (
	MessageTypeCommand  MessageType = 0
	MessageTypeQuery    MessageType = 1
	MessageTypeResponse MessageType = 2
	MessageTypeClear    MessageType = 3
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeCommand:
		return "COMMAND"
	case MessageTypeQuery:
		return "QUERY"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeClear:
		return "CLEAR"
	default:
		return "UNKNOWN"
	}
}

// StatusEvent is a status byte observation.
type StatusEvent struct {
	StatusByte uint8        `cbor:"1,keyasint"`
	Source     StatusSource `cbor:"2,keyasint"`

	// Description names the set bits.
	Description string `cbor:"3,keyasint,omitempty"`

	// Reading is a message read because the status byte reported one.
	Reading string `cbor:"4,keyasint,omitempty"`
}

// StatusSource is how a status byte was obtained.
type StatusSource uint8

const (
	StatusSourceRead           StatusSource = 0
	StatusSourcePoll           StatusSource = 1
	StatusSourceServiceRequest StatusSource = 2
	StatusSourceSequencer      StatusSource = 3
	StatusSourceForeground     StatusSource = 4
)

// String returns the source name.
func (s StatusSource) String() string {
	switch s {
	case StatusSourceRead:
		return "READ"
	case StatusSourcePoll:
		return "POLL"
	case StatusSourceServiceRequest:
		return "SRQ"
	case StatusSourceSequencer:
		return "SEQUENCER"
	case StatusSourceForeground:
		return "FOREGROUND"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent records a lifecycle transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity is what changed state.
type StateEntity uint8

const (
	StateEntitySession    StateEntity = 0
	StateEntitySequence   StateEntity = 1
	StateEntityDispatcher StateEntity = 2
)

// String returns the entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySession:
		return "SESSION"
	case StateEntitySequence:
		return "SEQUENCE"
	case StateEntityDispatcher:
		return "DISPATCHER"
	default:
		return "UNKNOWN"
	}
}

// RegisterEvent records a change of a cached register value. A nil value
// is unknown.
type RegisterEvent struct {
	Family string  `cbor:"1,keyasint"`
	Field  string  `cbor:"2,keyasint"`
	Old    *uint16 `cbor:"3,keyasint,omitempty"`
	New    *uint16 `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData records a failure at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code is the instrument error code, if the failure came from one.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context is the action being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}

// ParseLayer parses a layer name (case-insensitive).
func ParseLayer(s string) (Layer, error) {
	for _, l := range []Layer{LayerChannel, LayerRegister, LayerSession} {
		if strings.EqualFold(s, l.String()) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("invalid layer: %s (must be channel, register or session)", s)
}

// ParseDirection parses "in" or "out" (case-insensitive).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return DirectionIn, nil
	case "out":
		return DirectionOut, nil
	}
	return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
}

// ParseCategory parses a category name (case-insensitive; "srq" is
// accepted for service requests).
func ParseCategory(s string) (Category, error) {
	if strings.EqualFold(s, "srq") {
		return CategoryServiceRequest, nil
	}
	key := strings.ReplaceAll(s, "-", "_")
	for c := CategoryMessage; c <= CategoryServiceRequest; c++ {
		if strings.EqualFold(key, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("invalid category: %s", s)
}
