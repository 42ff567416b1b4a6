package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/lora-comms/loracomms-go/pkg/device"
)

// BLE constants. Radios expose a Nordic UART-style byte stream: one write
// characteristic toward the radio, one notify characteristic from it.
var (
	bleService = bluetooth.ServiceUUIDNordicUART
	bleRXChar  = bluetooth.CharacteristicUUIDUARTRX // host -> radio
	bleTXChar  = bluetooth.CharacteristicUUIDUARTTX // radio -> host
)

// bleWriteChunk is the largest write sent in one ATT operation.
const bleWriteChunk = 180

// BLEConfig configures the BLE backend.
type BLEConfig struct {
	// ScanTimeout bounds a Scan. Zero selects DefaultScanTimeout.
	ScanTimeout time.Duration

	// ReadTimeout bounds each Read. Zero selects DefaultReadTimeout.
	ReadTimeout time.Duration
}

// BLEBackend enumerates and dials BLE radio devices.
//
// Dial resolves addresses from the most recent Scan; scanning first is
// required because the platform stacks hand out opaque address values.
type BLEBackend struct {
	config  BLEConfig
	adapter *bluetooth.Adapter

	mu      sync.Mutex
	enabled bool
	found   map[string]bluetooth.Address // path -> address, from last scan
}

// NewBLEBackend creates a BLE backend on the default adapter.
func NewBLEBackend(config BLEConfig) *BLEBackend {
	if config.ScanTimeout == 0 {
		config.ScanTimeout = DefaultScanTimeout
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	return &BLEBackend{
		config:  config,
		adapter: bluetooth.DefaultAdapter,
		found:   make(map[string]bluetooth.Address),
	}
}

// Kind returns device.TypeBluetooth.
func (b *BLEBackend) Kind() device.Type {
	return device.TypeBluetooth
}

func (b *BLEBackend) enable() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enabled {
		return nil
	}
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w", err)
	}
	b.enabled = true
	return nil
}

// Scan advertisement-scans for radios carrying the UART service.
func (b *BLEBackend) Scan(ctx context.Context) ([]device.Descriptor, error) {
	if err := b.enable(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.config.ScanTimeout)
	defer cancel()

	var (
		mu    sync.Mutex
		devs  []device.Descriptor
		seen  = make(map[string]bool)
		found = make(map[string]bluetooth.Address)
	)

	done := make(chan error, 1)
	go func() {
		done <- b.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(bleService) {
				return
			}
			addr := result.Address.String()
			mu.Lock()
			defer mu.Unlock()
			if seen[addr] {
				return
			}
			seen[addr] = true
			found[addr] = result.Address

			name := result.LocalName()
			if name == "" {
				name = addr
			}
			devs = append(devs, device.Descriptor{
				ID:        addr,
				Name:      name,
				Path:      addr,
				Type:      device.TypeBluetooth,
				Available: true,
			})
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("BLE scan failed: %w", err)
		}
	case <-ctx.Done():
		_ = b.adapter.StopScan()
		<-done
	}

	mu.Lock()
	defer mu.Unlock()
	b.mu.Lock()
	for path, addr := range found {
		b.found[path] = addr
	}
	b.mu.Unlock()
	return devs, nil
}

// Dial connects to a previously scanned BLE radio.
func (b *BLEBackend) Dial(ctx context.Context, path string) (Conn, error) {
	if err := b.enable(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	addr, ok := b.found[path]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (scan first)", ErrDeviceNotFound, path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dev, err := b.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("BLE connect to %s failed: %w", path, err)
	}

	services, err := dev.DiscoverServices([]bluetooth.UUID{bleService})
	if err != nil || len(services) == 0 {
		_ = dev.Disconnect()
		return nil, fmt.Errorf("UART service discovery on %s failed: %w", path, err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{bleRXChar, bleTXChar})
	if err != nil || len(chars) < 2 {
		_ = dev.Disconnect()
		return nil, fmt.Errorf("UART characteristic discovery on %s failed: %w", path, err)
	}

	conn := &bleConn{
		device:      dev,
		rx:          chars[0],
		readTimeout: b.config.ReadTimeout,
		inbound:     make(chan []byte, 32),
		closed:      make(chan struct{}),
	}
	if err := chars[1].EnableNotifications(conn.onNotify); err != nil {
		_ = dev.Disconnect()
		return nil, fmt.Errorf("failed to enable notifications on %s: %w", path, err)
	}
	return conn, nil
}

// bleConn adapts a BLE UART connection to the Conn interface.
// Notifications are queued and drained by Read.
type bleConn struct {
	device bluetooth.Device
	rx     bluetooth.DeviceCharacteristic

	readTimeout time.Duration
	inbound     chan []byte
	pending     []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *bleConn) onNotify(buf []byte) {
	data := make([]byte, len(buf))
	copy(data, buf)
	select {
	case c.inbound <- data:
	case <-c.closed:
	default:
		// Queue full: drop the chunk. The frame scanner resynchronizes.
	}
}

func (c *bleConn) Read(p []byte) (int, error) {
	if len(c.pending) == 0 {
		select {
		case data := <-c.inbound:
			c.pending = data
		case <-c.closed:
			return 0, ErrClosed
		case <-time.After(c.readTimeout):
			return 0, ErrReadTimeout
		}
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *bleConn) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, ErrClosed
	default:
	}

	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > bleWriteChunk {
			chunk = chunk[:bleWriteChunk]
		}
		n, err := c.rx.WriteWithoutResponse(chunk)
		total += n
		if err != nil {
			return total, fmt.Errorf("BLE write failed: %w", err)
		}
		p = p[len(chunk):]
	}
	return total, nil
}

func (c *bleConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.device.Disconnect()
	})
	return err
}

func (c *bleConn) SetReadTimeout(d time.Duration) error {
	c.readTimeout = d
	return nil
}

// Compile-time interface satisfaction checks.
var (
	_ Backend = (*BLEBackend)(nil)
	_ Conn    = (*bleConn)(nil)
)
