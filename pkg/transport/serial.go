package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/lora-comms/loracomms-go/pkg/device"
)

// Serial defaults.
const (
	// DefaultBaudRate is the baud rate used by stock radio firmware.
	DefaultBaudRate = 115200
)

// knownRadioIDs lists VID/PID pairs of boards commonly flashed with
// mesh radio firmware (lowercase hex, as reported by the enumerator).
var knownRadioIDs = map[[2]string]string{
	{"10c4", "ea60"}: "Silicon Labs",    // CP210x UART bridge (Heltec, T-Beam)
	{"1a86", "7523"}: "QinHeng",         // CH340 serial converter
	{"1a86", "55d4"}: "QinHeng",         // CH9102 (TTGO LoRa32)
	{"0403", "6001"}: "FTDI",            // FT232R
	{"0403", "6010"}: "FTDI",            // FT2232
	{"0403", "6014"}: "FTDI",            // FT232H
	{"0403", "6015"}: "FTDI",            // FT X-Series
	{"239a", "80f2"}: "Adafruit",        // Feather ESP32-S2
	{"239a", "8014"}: "Adafruit",        // ESP32-S2
	{"303a", "1001"}: "Espressif",       // ESP32-S2
	{"303a", "0002"}: "Espressif",       // ESP32-S3
}

// SerialConfig configures the serial backend.
type SerialConfig struct {
	// BaudRate for opened ports. Zero selects DefaultBaudRate.
	BaudRate int

	// ReadTimeout bounds each Read. Zero selects DefaultReadTimeout.
	ReadTimeout time.Duration

	// AllPorts includes serial ports that do not look like radio
	// devices in scan results.
	AllPorts bool
}

// SerialBackend enumerates and dials serial radio devices.
type SerialBackend struct {
	config SerialConfig
}

// NewSerialBackend creates a serial backend.
func NewSerialBackend(config SerialConfig) *SerialBackend {
	if config.BaudRate == 0 {
		config.BaudRate = DefaultBaudRate
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	return &SerialBackend{config: config}
}

// Kind returns device.TypeSerial.
func (b *SerialBackend) Kind() device.Type {
	return device.TypeSerial
}

// Scan enumerates serial ports that look like radio devices.
func (b *SerialBackend) Scan(ctx context.Context) ([]device.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("serial enumeration failed: %w", err)
	}

	var devs []device.Descriptor
	for _, port := range ports {
		if !b.config.AllPorts && !likelyRadioPort(port.Name, port.IsUSB, port.VID, port.PID) {
			continue
		}

		d := device.Descriptor{
			ID:        port.Name,
			Name:      port.Name,
			Path:      port.Name,
			Type:      device.TypeSerial,
			Available: true,
		}
		if port.IsUSB {
			vid := strings.ToLower(port.VID)
			pid := strings.ToLower(port.PID)
			d.VendorID = vid
			d.ProductID = pid
			if port.Product != "" {
				d.Name = port.Product
			}
			if vendor, ok := knownRadioIDs[[2]string{vid, pid}]; ok {
				d.Manufacturer = vendor
			}
		}
		devs = append(devs, d)
	}
	return devs, nil
}

// Dial opens the serial port at path.
func (b *SerialBackend) Dial(ctx context.Context, path string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	port, err := serial.Open(path, &serial.Mode{BaudRate: b.config.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(b.config.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}
	return &serialConn{port: port}, nil
}

// likelyRadioPort reports whether a serial port looks like a radio device,
// by VID/PID for USB ports and by name pattern otherwise.
func likelyRadioPort(name string, isUSB bool, vid, pid string) bool {
	if isUSB {
		if _, ok := knownRadioIDs[[2]string{strings.ToLower(vid), strings.ToLower(pid)}]; ok {
			return true
		}
	}
	lower := strings.ToLower(name)
	for _, pat := range []string{"usbserial", "ttyusb", "ttyacm", "usbmodem", "wchusbserial"} {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}

// serialConn adapts a serial.Port to the Conn interface.
type serialConn struct {
	port serial.Port
}

// Read reads from the port. A zero-byte read after the timeout is mapped
// to ErrReadTimeout so callers can distinguish silence from EOF.
func (c *serialConn) Read(p []byte) (int, error) {
	n, err := c.port.Read(p)
	if err == nil && n == 0 {
		return 0, ErrReadTimeout
	}
	return n, err
}

func (c *serialConn) Write(p []byte) (int, error) {
	return c.port.Write(p)
}

func (c *serialConn) Close() error {
	return c.port.Close()
}

func (c *serialConn) SetReadTimeout(d time.Duration) error {
	return c.port.SetReadTimeout(d)
}

// Compile-time interface satisfaction checks.
var (
	_ Backend = (*SerialBackend)(nil)
	_ Conn    = (*serialConn)(nil)
)
