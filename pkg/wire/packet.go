package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PacketType identifies the kind of payload a packet carries.
type PacketType uint8

const (
	// PacketText carries a UTF-8 text message.
	PacketText PacketType = 1

	// PacketNodeInfo announces a node's identity (name, short name).
	PacketNodeInfo PacketType = 2

	// PacketNodeDeparture signals that a node is leaving the mesh.
	PacketNodeDeparture PacketType = 3

	// PacketAck acknowledges a previously sent packet by id.
	PacketAck PacketType = 4

	// PacketStatus carries device status (battery, uptime).
	PacketStatus PacketType = 5

	// PacketWantConfig requests the device's node table dump.
	PacketWantConfig PacketType = 6

	// PacketConfigComplete terminates a node table dump.
	PacketConfigComplete PacketType = 7

	// PacketAdmin carries a device administration payload (radio config).
	PacketAdmin PacketType = 8
)

// String returns the packet type name.
func (t PacketType) String() string {
	switch t {
	case PacketText:
		return "TEXT"
	case PacketNodeInfo:
		return "NODE_INFO"
	case PacketNodeDeparture:
		return "NODE_DEPARTURE"
	case PacketAck:
		return "ACK"
	case PacketStatus:
		return "STATUS"
	case PacketWantConfig:
		return "WANT_CONFIG"
	case PacketConfigComplete:
		return "CONFIG_COMPLETE"
	case PacketAdmin:
		return "ADMIN"
	default:
		return "UNKNOWN"
	}
}

// IsValid reports whether t is a known packet type.
func (t PacketType) IsValid() bool {
	return t >= PacketText && t <= PacketAdmin
}

// Broadcast is the node address that targets every node on the mesh.
const Broadcast uint32 = 0xFFFFFFFF

// DefaultHopLimit is the hop limit applied to outgoing packets.
const DefaultHopLimit = 3

// Broadcast destination spellings accepted from callers. The canonical
// string form is BroadcastID.
const (
	// BroadcastID is the canonical broadcast destination string.
	BroadcastID = "!broadcast"

	// broadcastAlt is an alternate spelling used by some hosts.
	broadcastAlt = "^all"
)

// Addressing errors.
var (
	// ErrInvalidNodeID indicates a destination string that is neither a
	// broadcast sentinel nor a "!xxxxxxxx" node id.
	ErrInvalidNodeID = errors.New("invalid node id")
)

// FormatNodeID renders a numeric node address in the "!%08x" string form.
func FormatNodeID(n uint32) string {
	if n == Broadcast {
		return BroadcastID
	}
	return fmt.Sprintf("!%08x", n)
}

// ParseNodeID parses a "!xxxxxxxx" node id string.
func ParseNodeID(s string) (uint32, error) {
	if !strings.HasPrefix(s, "!") || len(s) != 9 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
	}
	n, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
	}
	return uint32(n), nil
}

// ParseDestination resolves a caller-supplied destination string.
// Empty strings and the broadcast sentinels resolve to Broadcast.
func ParseDestination(s string) (uint32, error) {
	switch s {
	case "", BroadcastID, broadcastAlt:
		return Broadcast, nil
	}
	return ParseNodeID(s)
}

// Packet is the unit of payload carried inside a frame.
//
// CBOR encoding uses integer keys:
//
//	{
//	  1: type,      // uint8
//	  2: from,      // uint32 node address
//	  3: to,        // uint32 node address (0xFFFFFFFF = broadcast)
//	  4: id,        // uint32 packet id
//	  5: payload,   // type-specific bytes
//	  6: hopLimit,  // uint8
//	  7: wantAck    // bool
//	}
type Packet struct {
	Type     PacketType `cbor:"1,keyasint"`
	From     uint32     `cbor:"2,keyasint"`
	To       uint32     `cbor:"3,keyasint"`
	ID       uint32     `cbor:"4,keyasint"`
	Payload  []byte     `cbor:"5,keyasint,omitempty"`
	HopLimit uint8      `cbor:"6,keyasint,omitempty"`
	WantAck  bool       `cbor:"7,keyasint,omitempty"`
}

// Validate checks the packet for structural problems.
func (p *Packet) Validate() error {
	if !p.Type.IsValid() {
		return fmt.Errorf("invalid packet type: %d", p.Type)
	}
	if len(p.Payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(p.Payload), MaxPayloadSize)
	}
	return nil
}

// nodeInfoPayload is the CBOR payload of a PacketNodeInfo packet.
type nodeInfoPayload struct {
	LongName  string `cbor:"1,keyasint"`
	ShortName string `cbor:"2,keyasint,omitempty"`
}

// statusPayload is the CBOR payload of a PacketStatus packet.
type statusPayload struct {
	BatteryLevel uint8  `cbor:"1,keyasint,omitempty"`
	UptimeSec    uint32 `cbor:"2,keyasint,omitempty"`
}

// ackPayload is the CBOR payload of a PacketAck packet.
type ackPayload struct {
	AckedID uint32 `cbor:"1,keyasint"`
}
