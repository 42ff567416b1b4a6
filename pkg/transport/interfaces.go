package transport

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/lora-comms/loracomms-go/pkg/device"
)

// Transport timing defaults.
const (
	// DefaultScanTimeout bounds a single backend's device enumeration.
	DefaultScanTimeout = 5 * time.Second

	// DefaultReadTimeout bounds a single Read call so a stalled device
	// cannot wedge connection teardown.
	DefaultReadTimeout = 500 * time.Millisecond

	// ScanRetries is the number of additional attempts after a failed
	// enumeration. Scan is the only operation that is retried.
	ScanRetries = 1
)

// Transport errors.
var (
	// ErrDeviceNotFound indicates the path does not resolve to a device.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrReadTimeout indicates a bounded read expired without data.
	ErrReadTimeout = errors.New("read timeout")

	// ErrClosed indicates an operation on a closed connection.
	ErrClosed = errors.New("transport closed")
)

// Conn is an open byte stream to a device.
//
// Read returns ErrReadTimeout (or an error wrapping it) when the configured
// read timeout expires without data; callers treat that as "no data yet",
// not a failure. Writes are not internally serialized; the connection layer
// holds a write lock.
type Conn interface {
	io.ReadWriteCloser

	// SetReadTimeout bounds each subsequent Read call.
	SetReadTimeout(d time.Duration) error
}

// Backend enumerates and dials devices of one transport class.
type Backend interface {
	// Kind returns the device type this backend serves.
	Kind() device.Type

	// Scan enumerates currently present devices. The context bounds the
	// enumeration; implementations return what they found so far on
	// context expiry rather than an error.
	Scan(ctx context.Context) ([]device.Descriptor, error)

	// Dial opens a byte stream to the device at path.
	Dial(ctx context.Context, path string) (Conn, error)
}
