// Package manager is the top level façade: it owns the transport
// backends, tracks open device connections, and exposes the scan,
// connect, send, and node query operations callers use.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lora-comms/loracomms-go/pkg/connection"
	"github.com/lora-comms/loracomms-go/pkg/device"
	"github.com/lora-comms/loracomms-go/pkg/log"
	"github.com/lora-comms/loracomms-go/pkg/nodes"
	"github.com/lora-comms/loracomms-go/pkg/radio"
	"github.com/lora-comms/loracomms-go/pkg/transport"
)

// Manager errors.
var (
	// ErrManagerClosed indicates the manager has been shut down.
	ErrManagerClosed = errors.New("manager closed")

	// ErrUnknownDevice indicates a device id with no open connection.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrNoBackend indicates no backend serves the requested device type.
	ErrNoBackend = errors.New("no backend for device type")
)

// Config configures a Manager.
type Config struct {
	// ScanTimeout bounds each backend's device enumeration.
	// Zero selects transport.DefaultScanTimeout.
	ScanTimeout time.Duration

	// Connection is the per-connection configuration template.
	Connection connection.Config

	// Backends overrides the default transport backends. Nil selects
	// serial, BLE, and TCP.
	Backends []transport.Backend

	// Logger receives protocol events from all connections. Nil disables.
	Logger log.Logger

	// Slog receives diagnostics. Nil disables.
	Slog *slog.Logger
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		ScanTimeout: transport.DefaultScanTimeout,
		Connection:  connection.DefaultConfig(),
	}
}

// Manager tracks transport backends and open device connections.
// All methods are safe for concurrent use.
type Manager struct {
	config   Config
	backends []transport.Backend
	logger   log.Logger
	slog     *slog.Logger

	mu      sync.Mutex
	closed  bool
	conns   map[string]*connection.Connection // device id -> connection
	byPath  map[string]string                 // transport path -> device id
	dialing map[string]chan struct{}          // transport path -> connect in flight
	scanned map[string]device.Descriptor      // device id -> last scan result
	radios  map[string]radio.Config           // device id -> applied config
	hook    connection.EventHook
}

// New creates a Manager. It never fails; backends that cannot operate on
// this host simply return empty scan results.
func New(config Config) *Manager {
	if config.ScanTimeout == 0 {
		config.ScanTimeout = transport.DefaultScanTimeout
	}
	if config.Logger == nil {
		config.Logger = log.NoopLogger{}
	}
	if config.Connection.Logger == nil {
		config.Connection.Logger = config.Logger
	}
	if config.Connection.Slog == nil {
		config.Connection.Slog = config.Slog
	}

	backends := config.Backends
	if backends == nil {
		backends = []transport.Backend{
			transport.NewSerialBackend(transport.SerialConfig{}),
			transport.NewBLEBackend(transport.BLEConfig{}),
			transport.NewTCPBackend(transport.TCPConfig{}),
		}
	}

	return &Manager{
		config:   config,
		backends: backends,
		logger:   config.Logger,
		slog:     config.Slog,
		conns:    make(map[string]*connection.Connection),
		byPath:   make(map[string]string),
		dialing:  make(map[string]chan struct{}),
		scanned:  make(map[string]device.Descriptor),
		radios:   make(map[string]radio.Config),
	}
}

// SetEventHook installs an observer for decoded events on all
// connections opened after the call.
func (m *Manager) SetEventHook(hook connection.EventHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

// ScanDevices enumerates candidate devices across all backends. Backends
// that fail are retried once and then skipped; a scan only fails if the
// manager is closed. Device ids are stable across scans for the same
// transport path.
func (m *Manager) ScanDevices(ctx context.Context) ([]device.Descriptor, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	backends := m.backends
	m.mu.Unlock()

	// Enumeration runs without the manager lock so connect and send
	// operations are never stalled behind a slow probe.
	var found []device.Descriptor
	for _, b := range backends {
		descs, err := m.scanBackend(ctx, b)
		if err != nil {
			if m.slog != nil {
				m.slog.Warn("device scan failed",
					"backend", b.Kind().String(),
					"error", err)
			}
			continue
		}
		found = append(found, descs...)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	for i := range found {
		found[i].ID = m.deviceIDLocked(found[i].Path)
		m.scanned[found[i].ID] = found[i]
	}
	return found, nil
}

func (m *Manager) scanBackend(ctx context.Context, b transport.Backend) ([]device.Descriptor, error) {
	var lastErr error
	for attempt := 0; attempt <= transport.ScanRetries; attempt++ {
		scanCtx, cancel := context.WithTimeout(ctx, m.config.ScanTimeout)
		descs, err := b.Scan(scanCtx)
		cancel()
		if err == nil {
			return descs, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// deviceIDLocked returns the stable device id for a transport path,
// allocating one on first sight. Caller holds m.mu.
func (m *Manager) deviceIDLocked(path string) string {
	if id, ok := m.byPath[path]; ok {
		return id
	}
	id := uuid.NewString()
	m.byPath[path] = id
	return id
}

// Connect dials a device and runs the protocol handshake. Connecting to
// a path that already has a live connection returns the existing device
// id. On handshake or dial failure no connection is retained.
func (m *Manager) Connect(ctx context.Context, path string, devType device.Type) (string, error) {
	if !devType.IsValid() {
		return "", fmt.Errorf("invalid device type %d", devType)
	}

	m.mu.Lock()
	for {
		if m.closed {
			m.mu.Unlock()
			return "", ErrManagerClosed
		}
		inflight, ok := m.dialing[path]
		if !ok {
			break
		}
		// Another Connect for this path is already dialing. Wait for it
		// and re-check so the two never race each other into the map.
		m.mu.Unlock()
		select {
		case <-inflight:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		m.mu.Lock()
	}
	deviceID := m.deviceIDLocked(path)
	var stale *connection.Connection
	if existing, ok := m.conns[deviceID]; ok {
		if state, _ := existing.State(); state == connection.StateConnected {
			m.mu.Unlock()
			return deviceID, nil
		}
		// Stale session from an earlier drop. Replace it.
		delete(m.conns, deviceID)
		stale = existing
	}
	backend := m.backendForLocked(devType)
	if backend == nil {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrNoBackend, devType)
	}
	done := make(chan struct{})
	m.dialing[path] = done
	hook := m.hook
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.dialing, path)
		m.mu.Unlock()
		close(done)
	}()

	if stale != nil {
		_ = stale.Close()
	}

	tc, err := backend.Dial(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to dial %s: %w", path, err)
	}

	conn := connection.New(deviceID, path, devType, tc, m.config.Connection)
	if hook != nil {
		conn.SetEventHook(hook)
	}
	if err := conn.Start(ctx); err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", path, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return "", ErrManagerClosed
	}
	m.conns[deviceID] = conn
	m.mu.Unlock()

	if m.slog != nil {
		m.slog.Info("device connected",
			"device_id", deviceID,
			"path", path,
			"type", devType.String())
	}
	return deviceID, nil
}

func (m *Manager) backendForLocked(devType device.Type) transport.Backend {
	for _, b := range m.backends {
		if b.Kind() == devType {
			return b
		}
	}
	return nil
}

// Disconnect closes a device's connection. Unknown device ids are a
// no-op.
func (m *Manager) Disconnect(deviceID string) error {
	m.mu.Lock()
	conn, ok := m.conns[deviceID]
	if ok {
		delete(m.conns, deviceID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return conn.Close()
}

// Send transmits a text message through a connected device. dest may be
// a node id such as "!a1b2c3d4" or a broadcast sentinel.
func (m *Manager) Send(deviceID, text, dest string) error {
	conn, err := m.connFor(deviceID)
	if err != nil {
		return err
	}
	return conn.Send(text, dest)
}

// Nodes returns the mesh nodes a device has learned. An unknown device
// id yields an empty list, not an error.
func (m *Manager) Nodes(deviceID string) []nodes.Descriptor {
	m.mu.Lock()
	conn, ok := m.conns[deviceID]
	m.mu.Unlock()
	if !ok {
		return []nodes.Descriptor{}
	}
	return conn.Nodes()
}

// ConnectionState reports a device's connection state.
func (m *Manager) ConnectionState(deviceID string) (connection.State, error) {
	m.mu.Lock()
	conn, ok := m.conns[deviceID]
	m.mu.Unlock()
	if !ok {
		return connection.StateDisconnected, nil
	}
	state, _ := conn.State()
	return state, nil
}

// History returns up to limit most recent messages on a device's
// connection, oldest first.
func (m *Manager) History(deviceID string, limit int) ([]connection.Message, error) {
	conn, err := m.connFor(deviceID)
	if err != nil {
		return nil, err
	}
	return conn.History(limit), nil
}

// ClearHistory drops a device's retained messages.
func (m *Manager) ClearHistory(deviceID string) error {
	conn, err := m.connFor(deviceID)
	if err != nil {
		return err
	}
	conn.ClearHistory()
	return nil
}

// Stats returns a device's connection counters.
func (m *Manager) Stats(deviceID string) (connection.Stats, error) {
	conn, err := m.connFor(deviceID)
	if err != nil {
		return connection.Stats{}, err
	}
	return conn.Stats(), nil
}

// SetRadioConfig validates a modem configuration, pushes it to the
// device over the admin channel, and records it.
func (m *Manager) SetRadioConfig(deviceID string, cfg radio.Config) error {
	conn, err := m.connFor(deviceID)
	if err != nil {
		return err
	}
	payload, err := radio.EncodeAdminPayload(cfg)
	if err != nil {
		return err
	}
	if err := conn.SendAdmin(payload); err != nil {
		return err
	}

	m.mu.Lock()
	m.radios[deviceID] = cfg
	m.mu.Unlock()
	return nil
}

// RadioConfig returns the last configuration applied to a device.
func (m *Manager) RadioConfig(deviceID string) (radio.Config, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.radios[deviceID]
	return cfg, ok
}

// ConnectedDevices lists the device ids with open connections.
func (m *Manager) ConnectedDevices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	return ids
}

// Close shuts the manager down, closing every open connection. Close is
// idempotent and best-effort: it always runs to completion and returns
// the first close error, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conns := make([]*connection.Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[string]*connection.Connection)
	m.mu.Unlock()

	var firstErr error
	for _, c := range conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Manager) connFor(deviceID string) (*connection.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	conn, ok := m.conns[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return conn, nil
}
