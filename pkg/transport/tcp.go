package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/lora-comms/loracomms-go/pkg/device"
)

// mDNS constants for network-attached radios.
const (
	// MeshServiceType is the mDNS service type announced by network
	// radio devices.
	MeshServiceType = "_loramesh._tcp"

	// MDNSDomain is the mDNS domain.
	MDNSDomain = "local"

	// DefaultTCPPort is the API port of network radio devices.
	DefaultTCPPort = 4403
)

// TCPConfig configures the TCP backend.
type TCPConfig struct {
	// BrowseTimeout bounds the mDNS browse during Scan.
	// Zero selects DefaultScanTimeout.
	BrowseTimeout time.Duration

	// ReadTimeout bounds each Read. Zero selects DefaultReadTimeout.
	ReadTimeout time.Duration
}

// TCPBackend discovers network radios over mDNS and dials them over TCP.
type TCPBackend struct {
	config TCPConfig
}

// NewTCPBackend creates a TCP backend.
func NewTCPBackend(config TCPConfig) *TCPBackend {
	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = DefaultScanTimeout
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	return &TCPBackend{config: config}
}

// Kind returns device.TypeTCP.
func (b *TCPBackend) Kind() device.Type {
	return device.TypeTCP
}

// Scan browses mDNS for radio devices until the browse timeout elapses.
// Returns what was found so far when the parent context expires.
func (b *TCPBackend) Scan(ctx context.Context) ([]device.Descriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.BrowseTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		_ = zeroconf.Browse(ctx, MeshServiceType, MDNSDomain, entries, removed)
	}()

	seen := make(map[string]device.Descriptor)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return flatten(seen), nil
			}
			if d, ok := entryToDescriptor(entry); ok {
				seen[d.ID] = d
			}
		case entry, ok := <-removed:
			if !ok {
				continue
			}
			delete(seen, entry.Instance)
		case <-ctx.Done():
			return flatten(seen), nil
		}
	}
}

// Dial connects to the radio at path ("host:port", port optional).
func (b *TCPBackend) Dial(ctx context.Context, path string) (Conn, error) {
	if _, _, err := net.SplitHostPort(path); err != nil {
		path = net.JoinHostPort(path, strconv.Itoa(DefaultTCPPort))
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s failed: %w", path, err)
	}
	return &tcpConn{conn: conn, readTimeout: b.config.ReadTimeout}, nil
}

// entryToDescriptor converts an mDNS entry to a device descriptor.
func entryToDescriptor(entry *zeroconf.ServiceEntry) (device.Descriptor, bool) {
	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	default:
		return device.Descriptor{}, false
	}

	port := entry.Port
	if port == 0 {
		port = DefaultTCPPort
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	return device.Descriptor{
		ID:        entry.Instance,
		Name:      entry.Instance,
		Path:      addr,
		Type:      device.TypeTCP,
		Available: true,
	}, true
}

func flatten(m map[string]device.Descriptor) []device.Descriptor {
	out := make([]device.Descriptor, 0, len(m))
	for _, d := range m {
		out = append(out, d)
	}
	return out
}

// tcpConn adapts a net.Conn to the Conn interface, applying the read
// timeout as a per-read deadline.
type tcpConn struct {
	conn        net.Conn
	readTimeout time.Duration
}

func (c *tcpConn) Read(p []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	n, err := c.conn.Read(p)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, fmt.Errorf("%w: %v", ErrReadTimeout, err)
		}
	}
	return n, err
}

func (c *tcpConn) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func (c *tcpConn) SetReadTimeout(d time.Duration) error {
	c.readTimeout = d
	return nil
}

// Compile-time interface satisfaction checks.
var (
	_ Backend = (*TCPBackend)(nil)
	_ Conn    = (*tcpConn)(nil)
)
