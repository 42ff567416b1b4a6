package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
)

// Framing constants.
const (
	// FrameStart1 is the first start-of-frame marker byte.
	FrameStart1 = 0x94

	// FrameStart2 is the second start-of-frame marker byte.
	FrameStart2 = 0xC3

	// FrameHeaderSize is the size of the frame header in bytes
	// (two marker bytes plus the uint16 length).
	FrameHeaderSize = 4

	// FrameChecksumSize is the size of the trailing checksum in bytes.
	FrameChecksumSize = 1

	// MaxPayloadSize is the maximum frame payload size. Radios reject
	// larger frames, so the encoder fails rather than splitting.
	MaxPayloadSize = 512
)

// Framing errors.
var (
	// ErrPayloadEmpty indicates an empty frame payload.
	ErrPayloadEmpty = errors.New("frame payload is empty")

	// ErrPayloadTooLarge indicates the payload exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("frame payload too large")

	// ErrBadChecksum indicates a checksum mismatch on a received frame.
	ErrBadChecksum = errors.New("frame checksum mismatch")
)

// FrameSize returns the total on-wire size for a payload of the given length.
func FrameSize(payloadSize int) int {
	return FrameHeaderSize + payloadSize + FrameChecksumSize
}

// EncodeFrame wraps a payload in the device framing.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrPayloadEmpty
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	frame := make([]byte, 0, FrameSize(len(payload)))
	frame = append(frame, FrameStart1, FrameStart2)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)
	frame = append(frame, xorChecksum(payload))
	return frame, nil
}

// xorChecksum computes the single-byte XOR checksum over the payload.
func xorChecksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum ^= b
	}
	return sum
}

// FrameScanner extracts complete frames from an append-only byte stream.
// Write and Next are owned by a single reader goroutine; the counters are
// atomic so diagnostics can read them concurrently.
type FrameScanner struct {
	buf []byte

	// discarded counts bytes skipped while resynchronizing.
	discarded atomic.Int64

	// badFrames counts frames dropped for checksum or length errors.
	badFrames atomic.Int64
}

// Write appends received bytes to the scanner's buffer.
func (s *FrameScanner) Write(p []byte) {
	s.buf = append(s.buf, p...)
}

// Next extracts the next complete, checksum-valid payload from the buffer.
// It returns false when no complete frame is buffered. Garbage between
// frames is skipped one byte at a time; frames with a bad checksum are
// dropped and counted, never returned.
func (s *FrameScanner) Next() ([]byte, bool) {
	for {
		// Resync to the start marker.
		for len(s.buf) > 0 && s.buf[0] != FrameStart1 {
			s.buf = s.buf[1:]
			s.discarded.Add(1)
		}
		if len(s.buf) < FrameHeaderSize {
			return nil, false
		}
		if s.buf[1] != FrameStart2 {
			s.buf = s.buf[1:]
			s.discarded.Add(1)
			continue
		}

		length := int(binary.LittleEndian.Uint16(s.buf[2:4]))
		if length == 0 || length > MaxPayloadSize {
			// Not a real header; skip the marker and rescan.
			s.buf = s.buf[1:]
			s.discarded.Add(1)
			s.badFrames.Add(1)
			continue
		}

		total := FrameSize(length)
		if len(s.buf) < total {
			// Partial frame; wait for more bytes.
			return nil, false
		}

		payload := s.buf[FrameHeaderSize : FrameHeaderSize+length]
		sum := s.buf[FrameHeaderSize+length]
		if sum != xorChecksum(payload) {
			s.buf = s.buf[1:]
			s.discarded.Add(1)
			s.badFrames.Add(1)
			continue
		}

		out := make([]byte, length)
		copy(out, payload)
		s.buf = s.buf[total:]
		return out, true
	}
}

// Discarded returns the number of bytes skipped during resynchronization.
func (s *FrameScanner) Discarded() int {
	return int(s.discarded.Load())
}

// BadFrames returns the number of frames dropped as malformed.
func (s *FrameScanner) BadFrames() int {
	return int(s.badFrames.Load())
}

// Reset clears the buffer and counters.
func (s *FrameScanner) Reset() {
	s.buf = nil
	s.discarded.Store(0)
	s.badFrames.Store(0)
}
