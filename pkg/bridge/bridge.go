// Package bridge is the foreign caller boundary. It wraps the manager in
// a flat, sentinel-style surface: failures collapse to empty strings,
// false, or empty arrays instead of error values, and every returned
// aggregate is a deep copy with an explicit release function, so callers
// that cannot hold Go references (embedders, host runtimes) get defined
// behavior without sharing memory with the manager.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/lora-comms/loracomms-go/pkg/device"
	"github.com/lora-comms/loracomms-go/pkg/manager"
)

// TestResponse is the fixed string Test returns, used by embedders to
// verify the library is loaded and callable.
const TestResponse = "loracomms bridge ok"

// DefaultOpTimeout bounds bridge operations that dial or scan.
const DefaultOpTimeout = 30 * time.Second

// Device is the flattened, caller-owned form of a device descriptor.
type Device struct {
	ID           string
	Name         string
	Path         string
	Type         uint32
	Manufacturer string
	Available    bool
}

// Node is the flattened, caller-owned form of a mesh node.
type Node struct {
	ID        string
	Name      string
	ShortName string
	Online    bool
	LastHeard int64 // unix seconds, 0 if never
}

// DeviceArray holds caller-owned device copies until released.
type DeviceArray struct {
	Devices []Device
}

// Release drops the array's contents. Further use is undefined.
func (a *DeviceArray) Release() {
	if a != nil {
		a.Devices = nil
	}
}

// NodeArray holds caller-owned node copies until released.
type NodeArray struct {
	Nodes []Node
}

// Release drops the array's contents. Further use is undefined.
func (a *NodeArray) Release() {
	if a != nil {
		a.Nodes = nil
	}
}

// FreeDeviceArray releases a device array. Nil is a no-op.
func FreeDeviceArray(a *DeviceArray) { a.Release() }

// FreeNodeArray releases a node array. Nil is a no-op.
func FreeNodeArray(a *NodeArray) { a.Release() }

// FreeString releases a string previously returned by the bridge.
// Go strings need no explicit release; the function exists so the
// foreign surface is symmetric.
func FreeString(s *string) {
	if s != nil {
		*s = ""
	}
}

// Bridge adapts a Manager to the foreign caller surface.
// The zero value is not usable; call Init first.
type Bridge struct {
	mu  sync.Mutex
	mgr *manager.Manager

	opTimeout time.Duration
}

// NewBridge creates an uninitialized bridge.
func NewBridge() *Bridge {
	return &Bridge{opTimeout: DefaultOpTimeout}
}

// Test returns a fixed diagnostic string. Always safe to call.
func (b *Bridge) Test() string {
	return TestResponse
}

// Init creates the underlying manager. Calling Init on an initialized
// bridge is a no-op. Init never fails.
func (b *Bridge) Init() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mgr == nil {
		b.mgr = manager.New(manager.DefaultConfig())
	}
}

// InitWith installs a caller-built manager, for embedders that need
// custom logging or transport configuration.
func (b *Bridge) InitWith(mgr *manager.Manager) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mgr == nil {
		b.mgr = mgr
	}
}

// Cleanup tears down the manager and all connections. Idempotent;
// errors from individual connection teardowns are swallowed.
func (b *Bridge) Cleanup() {
	b.mu.Lock()
	mgr := b.mgr
	b.mgr = nil
	b.mu.Unlock()
	if mgr != nil {
		_ = mgr.Close()
	}
}

func (b *Bridge) manager() *manager.Manager {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mgr
}

// ScanDevices enumerates candidate devices. On any failure, including an
// uninitialized bridge, it returns an empty array rather than nil.
func (b *Bridge) ScanDevices() *DeviceArray {
	out := &DeviceArray{Devices: []Device{}}
	mgr := b.manager()
	if mgr == nil {
		return out
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.opTimeout)
	defer cancel()

	descs, err := mgr.ScanDevices(ctx)
	if err != nil {
		return out
	}
	for _, d := range descs {
		out.Devices = append(out.Devices, Device{
			ID:           d.ID,
			Name:         d.Name,
			Path:         d.Path,
			Type:         uint32(d.Type),
			Manufacturer: d.Manufacturer,
			Available:    d.Available,
		})
	}
	return out
}

// ConnectDevice dials and handshakes a device, returning its id, or ""
// on any failure.
func (b *Bridge) ConnectDevice(path string, devType uint32) string {
	mgr := b.manager()
	if mgr == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.opTimeout)
	defer cancel()

	id, err := mgr.Connect(ctx, path, device.Type(devType))
	if err != nil {
		return ""
	}
	return id
}

// DisconnectDevice closes a device's connection. Unknown ids and an
// uninitialized bridge are no-ops.
func (b *Bridge) DisconnectDevice(deviceID string) {
	if mgr := b.manager(); mgr != nil {
		_ = mgr.Disconnect(deviceID)
	}
}

// SendMessage transmits text to dest through a connected device and
// reports success.
func (b *Bridge) SendMessage(deviceID, text, dest string) bool {
	mgr := b.manager()
	if mgr == nil {
		return false
	}
	return mgr.Send(deviceID, text, dest) == nil
}

// GetNodes returns a device's learned mesh nodes. Unknown device ids
// and an uninitialized bridge yield an empty array.
func (b *Bridge) GetNodes(deviceID string) *NodeArray {
	out := &NodeArray{Nodes: []Node{}}
	mgr := b.manager()
	if mgr == nil {
		return out
	}
	for _, n := range mgr.Nodes(deviceID) {
		var heard int64
		if !n.LastHeard.IsZero() {
			heard = n.LastHeard.Unix()
		}
		out.Nodes = append(out.Nodes, Node{
			ID:        n.ID,
			Name:      n.Name,
			ShortName: n.ShortName,
			Online:    n.Online,
			LastHeard: heard,
		})
	}
	return out
}
