package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/lora-comms/loracomms-go/pkg/log"
)

// encMode is the CBOR encoder mode for packets.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for packets.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient decoding for forward compatibility with newer firmware.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// EncodePacket encodes a packet and wraps it in the device framing.
func EncodePacket(p *Packet) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid packet: %w", err)
	}
	payload, err := Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode packet: %w", err)
	}
	return EncodeFrame(payload)
}

// DecodePacket decodes a frame payload into a packet.
func DecodePacket(payload []byte) (*Packet, error) {
	var p Packet
	if err := Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode packet: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid packet: %w", err)
	}
	return &p, nil
}

// Cipher encrypts and decrypts packet payloads. Implemented by
// channel.Key; a nil Cipher leaves payloads in the clear.
type Cipher interface {
	// Encrypt encrypts a payload. The packet id and sender address
	// parameterize the nonce, so each packet encrypts differently.
	Encrypt(packetID, from uint32, payload []byte) []byte

	// Decrypt reverses Encrypt.
	Decrypt(packetID, from uint32, payload []byte) ([]byte, error)
}

// Codec errors.
var (
	// ErrMessageTooLong indicates a text message that does not fit in a
	// single frame. Messages are failed, never truncated or split.
	ErrMessageTooLong = errors.New("message too long for a single frame")
)

// maxTextSize bounds the text payload so that the encoded packet fits
// within MaxPayloadSize after CBOR and cipher overhead.
const maxTextSize = MaxPayloadSize - 64

// Codec encodes application messages into frames and decodes inbound byte
// chunks into protocol events. Encode methods are safe for concurrent use;
// Feed is owned by a single reader goroutine.
type Codec struct {
	// LocalNode is the packet source address for outgoing packets.
	LocalNode uint32

	// PacketID returns the next outgoing packet id. Defaults to a
	// process-wide counter when nil.
	PacketID func() uint32

	// Cipher optionally encrypts text payloads.
	Cipher Cipher

	// Logger receives protocol diagnostics. Nil disables logging.
	Logger log.Logger

	// ConnID tags log events with the owning connection.
	ConnID string

	scanner FrameScanner
}

// EncodeText encodes a text message addressed to dest into a single frame.
// dest may be a "!xxxxxxxx" node id or a broadcast sentinel; the
// destination does not need to be a known node.
func (c *Codec) EncodeText(text, dest string) ([]byte, uint32, error) {
	if len(text) > maxTextSize {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrMessageTooLong, len(text))
	}
	to, err := ParseDestination(dest)
	if err != nil {
		return nil, 0, err
	}

	id := c.nextID()
	payload := []byte(text)
	if c.Cipher != nil {
		payload = c.Cipher.Encrypt(id, c.LocalNode, payload)
	}

	frame, err := EncodePacket(&Packet{
		Type:     PacketText,
		From:     c.LocalNode,
		To:       to,
		ID:       id,
		Payload:  payload,
		HopLimit: DefaultHopLimit,
		WantAck:  to != Broadcast,
	})
	if err != nil {
		return nil, 0, err
	}
	return frame, id, nil
}

// EncodeWantConfig encodes the handshake request for a node table dump.
func (c *Codec) EncodeWantConfig(nonce uint32) ([]byte, error) {
	return EncodePacket(&Packet{
		Type: PacketWantConfig,
		From: c.LocalNode,
		To:   c.LocalNode,
		ID:   nonce,
	})
}

// EncodeNodeInfo encodes the local node's identity announcement.
func (c *Codec) EncodeNodeInfo(name, shortName string) ([]byte, error) {
	payload, err := Marshal(nodeInfoPayload{LongName: name, ShortName: shortName})
	if err != nil {
		return nil, err
	}
	return EncodePacket(&Packet{
		Type:     PacketNodeInfo,
		From:     c.LocalNode,
		To:       Broadcast,
		ID:       c.nextID(),
		Payload:  payload,
		HopLimit: DefaultHopLimit,
	})
}

// EncodeStatus encodes a status heartbeat frame.
func (c *Codec) EncodeStatus() ([]byte, error) {
	return EncodePacket(&Packet{
		Type: PacketStatus,
		From: c.LocalNode,
		To:   c.LocalNode,
		ID:   c.nextID(),
	})
}

// EncodeAdmin encodes a device administration frame with an opaque
// CBOR payload (see pkg/radio).
func (c *Codec) EncodeAdmin(payload []byte) ([]byte, error) {
	return EncodePacket(&Packet{
		Type:    PacketAdmin,
		From:    c.LocalNode,
		To:      c.LocalNode,
		ID:      c.nextID(),
		Payload: payload,
		WantAck: true,
	})
}

// Feed appends inbound bytes and returns the protocol events decoded from
// every complete frame now available. Malformed frames and undecodable
// packets are dropped with a log event.
func (c *Codec) Feed(p []byte) []Event {
	c.scanner.Write(p)

	var events []Event
	for {
		payload, ok := c.scanner.Next()
		if !ok {
			return events
		}
		pkt, err := DecodePacket(payload)
		if err != nil {
			c.logDrop(err)
			continue
		}
		ev, err := c.packetToEvent(pkt)
		if err != nil {
			c.logDrop(err)
			continue
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
}

// Scanner exposes the decode counters for diagnostics.
func (c *Codec) Scanner() *FrameScanner {
	return &c.scanner
}

// packetToEvent maps a decoded packet to a protocol event.
// Unknown packet types decode to nil, not an error: newer firmware may
// emit types this core does not understand.
func (c *Codec) packetToEvent(p *Packet) (Event, error) {
	from := FormatNodeID(p.From)

	switch p.Type {
	case PacketNodeInfo:
		var info nodeInfoPayload
		if err := Unmarshal(p.Payload, &info); err != nil {
			return nil, fmt.Errorf("bad node info payload: %w", err)
		}
		return NodeAnnouncement{ID: from, Name: info.LongName, ShortName: info.ShortName}, nil

	case PacketNodeDeparture:
		return NodeDeparture{ID: from}, nil

	case PacketAck:
		var ack ackPayload
		if err := Unmarshal(p.Payload, &ack); err != nil {
			return nil, fmt.Errorf("bad ack payload: %w", err)
		}
		return MessageAck{PacketID: ack.AckedID, From: from}, nil

	case PacketStatus:
		var st statusPayload
		if len(p.Payload) > 0 {
			if err := Unmarshal(p.Payload, &st); err != nil {
				return nil, fmt.Errorf("bad status payload: %w", err)
			}
		}
		return StatusUpdate{From: from, BatteryLevel: st.BatteryLevel, UptimeSec: st.UptimeSec}, nil

	case PacketText:
		text := p.Payload
		if c.Cipher != nil {
			clear, err := c.Cipher.Decrypt(p.ID, p.From, p.Payload)
			if err != nil {
				return nil, fmt.Errorf("undecryptable text payload: %w", err)
			}
			text = clear
		}
		return MessageReceived{
			PacketID: p.ID,
			From:     from,
			To:       FormatNodeID(p.To),
			Text:     string(text),
		}, nil

	case PacketConfigComplete:
		return ConfigComplete{Nonce: p.ID}, nil

	default:
		return nil, nil
	}
}

// logDrop records a discarded frame. Protocol noise is expected on radio
// links and must never fail the connection.
func (c *Codec) logDrop(err error) {
	if c.Logger == nil {
		return
	}
	c.Logger.Log(log.NewErrorEvent(c.ConnID, log.LayerWire, err))
}

func (c *Codec) nextID() uint32 {
	if c.PacketID != nil {
		return c.PacketID()
	}
	return nextGlobalID()
}
