package log

import (
	"time"
)

// Event represents a protocol event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the owning connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// DeviceID is the device identifier, when known.
	DeviceID string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"` // Connection state
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
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

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the byte-stream layer (raw frames).
	LayerTransport Layer = 0
	// LayerWire is the packet decoding layer.
	LayerWire Layer = 1
	// LayerConnection is the connection/session layer.
	LayerConnection Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerConnection:
		return "CONNECTION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryFrame indicates a raw frame event.
	CategoryFrame Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including framing overhead).
	Size int `cbor:"1,keyasint"`

	// Data is the frame payload, possibly truncated.
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated reports whether Data was cut to the log size limit.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// StateChangeEvent captures a connection state transition.
type StateChangeEvent struct {
	// From is the previous state name.
	From string `cbor:"1,keyasint"`

	// To is the new state name.
	To string `cbor:"2,keyasint"`

	// Reason describes what triggered the transition, if anything notable.
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`
}

// MaxFrameDataSize is the maximum frame payload size carried in a log
// event. Larger frames are truncated to bound capture memory.
const MaxFrameDataSize = 4096

// NewFrameEvent builds a frame event, truncating oversized payloads.
func NewFrameEvent(connID string, dir Direction, data []byte) Event {
	frameData := data
	truncated := false
	if len(data) > MaxFrameDataSize {
		frameData = data[:MaxFrameDataSize]
		truncated = true
	}
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        LayerTransport,
		Category:     CategoryFrame,
		Frame: &FrameEvent{
			Size:      len(data),
			Data:      frameData,
			Truncated: truncated,
		},
	}
}

// NewStateEvent builds a connection state change event.
func NewStateEvent(connID, from, to, reason string) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        LayerConnection,
		Category:     CategoryState,
		StateChange: &StateChangeEvent{
			From:   from,
			To:     to,
			Reason: reason,
		},
	}
}

// NewErrorEvent builds an error event for the given layer.
func NewErrorEvent(connID string, layer Layer, err error) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    DirectionIn,
		Layer:        layer,
		Category:     CategoryError,
		Error: &ErrorEventData{
			Message: err.Error(),
		},
	}
}
