package device

// Type identifies the transport class of a device. The numeric values are
// part of the external contract and shared with callers across the boundary.
type Type uint32

const (
	// TypeSerial is a serial (UART/USB-CDC) device.
	TypeSerial Type = 0

	// TypeBluetooth is a BLE device.
	TypeBluetooth Type = 1

	// TypeTCP is a network-attached device.
	TypeTCP Type = 2

	// TypeOther is a device reachable through an unrecognized transport.
	TypeOther Type = 3
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case TypeSerial:
		return "SERIAL"
	case TypeBluetooth:
		return "BLUETOOTH"
	case TypeTCP:
		return "TCP"
	case TypeOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// IsValid reports whether t is a known device type.
func (t Type) IsValid() bool {
	return t <= TypeOther
}

// Descriptor describes a discoverable radio device at the moment of a scan.
type Descriptor struct {
	// ID is a stable unique identifier for the device.
	// For serial devices this is the port path.
	ID string

	// Name is the display name (USB product string when available).
	Name string

	// Path is the transport-specific address used to connect
	// (port path, host:port, or BLE address).
	Path string

	// Type is the transport class.
	Type Type

	// Manufacturer is the USB manufacturer string, if known.
	Manufacturer string

	// VendorID is the USB vendor ID in lowercase hex, if known.
	VendorID string

	// ProductID is the USB product ID in lowercase hex, if known.
	ProductID string

	// Available reports whether the device was present at scan time.
	Available bool
}

// Clone returns an independent copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	// All fields are values; assignment is already a deep copy.
	return d
}

// CloneAll returns an independent copy of a descriptor slice.
func CloneAll(descs []Descriptor) []Descriptor {
	if descs == nil {
		return nil
	}
	out := make([]Descriptor, len(descs))
	copy(out, descs)
	return out
}
