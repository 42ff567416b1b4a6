package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Capture CBOR modes: deterministic maps and nanosecond timestamps so
// replayed captures compare byte for byte.
var (
	captureEnc cbor.EncMode
	captureDec cbor.DecMode
)

func init() {
	var err error
	captureEnc, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture encoder mode: %v", err))
	}
	captureDec, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("capture decoder mode: %v", err))
	}
}

// EncodeEvent encodes one event with the capture CBOR mode.
func EncodeEvent(ev Event) ([]byte, error) {
	return captureEnc.Marshal(ev)
}

// DecodeEvent decodes one event encoded by EncodeEvent.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := captureDec.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Capture writes protocol events to a file as a CBOR stream for offline
// analysis. Safe for concurrent use.
type Capture struct {
	mu     sync.Mutex
	file   *os.File
	enc    *cbor.Encoder
	closed bool
}

// NewCapture opens a capture file at path, appending if it exists.
func NewCapture(path string) (*Capture, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Capture{file: f, enc: captureEnc.NewEncoder(f)}, nil
}

// Log appends one event. Encoding errors are dropped: capture trouble
// must never disrupt the session being captured.
func (c *Capture) Log(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	_ = c.enc.Encode(ev)
}

// Close closes the capture file. Idempotent; events logged after Close
// are silently dropped.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.file.Close()
}

var _ Logger = (*Capture)(nil)

// Filter selects events when replaying a capture. Zero fields match
// everything.
type Filter struct {
	// ConnectionID matches exactly.
	ConnectionID string

	// Direction matches the frame direction.
	Direction *Direction

	// Category matches the event category.
	Category *Category

	// Since matches events at or after this time.
	Since time.Time

	// Until matches events before this time.
	Until time.Time
}

func (f *Filter) matches(ev Event) bool {
	if f.ConnectionID != "" && ev.ConnectionID != f.ConnectionID {
		return false
	}
	if f.Direction != nil && ev.Direction != *f.Direction {
		return false
	}
	if f.Category != nil && ev.Category != *f.Category {
		return false
	}
	if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !ev.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// CaptureReader streams events back out of a capture file.
type CaptureReader struct {
	file   *os.File
	dec    *cbor.Decoder
	filter Filter
}

// OpenCapture reads every event in a capture file.
func OpenCapture(path string) (*CaptureReader, error) {
	return OpenCaptureFiltered(path, Filter{})
}

// OpenCaptureFiltered reads the events matching filter.
func OpenCaptureFiltered(path string, filter Filter) (*CaptureReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &CaptureReader{file: f, dec: captureDec.NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF at end of capture.
func (r *CaptureReader) Next() (Event, error) {
	for {
		var ev Event
		if err := r.dec.Decode(&ev); err != nil {
			if err == io.EOF {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.matches(ev) {
			return ev, nil
		}
	}
}

// Close closes the underlying file.
func (r *CaptureReader) Close() error {
	return r.file.Close()
}
