package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lora-comms/loracomms-go/pkg/device"
	"github.com/lora-comms/loracomms-go/pkg/log"
	"github.com/lora-comms/loracomms-go/pkg/nodes"
	"github.com/lora-comms/loracomms-go/pkg/transport"
	"github.com/lora-comms/loracomms-go/pkg/wire"
)

// Timing defaults.
const (
	// DefaultHandshakeTimeout bounds the initial node-table handshake.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultHeartbeatInterval is the interval between status frames.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultSweepInterval is how often silent nodes are checked.
	DefaultSweepInterval = 60 * time.Second
)

// Connection errors.
var (
	// ErrNotConnected indicates an operation that requires a Connected
	// session.
	ErrNotConnected = errors.New("not connected")

	// ErrHandshakeTimeout indicates the device did not complete the
	// node-table handshake in time.
	ErrHandshakeTimeout = errors.New("handshake timeout")

	// ErrAlreadyStarted indicates a second Start on the same Connection.
	ErrAlreadyStarted = errors.New("connection already started")
)

// Config configures a Connection.
type Config struct {
	// HandshakeTimeout bounds the initial handshake.
	// Zero selects DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// HeartbeatInterval is the interval between outgoing status frames.
	// Zero selects DefaultHeartbeatInterval; negative disables.
	HeartbeatInterval time.Duration

	// SweepInterval is how often the registry is swept for silent nodes.
	// Zero selects DefaultSweepInterval.
	SweepInterval time.Duration

	// OfflineAfter is the node silence interval before marking offline.
	// Zero selects nodes.DefaultOfflineAfter.
	OfflineAfter time.Duration

	// HistorySize is the message history capacity.
	// Zero selects DefaultHistorySize.
	HistorySize int

	// LocalNode is the local mesh address. Zero selects a random one.
	LocalNode uint32

	// Cipher optionally encrypts text payloads (see pkg/channel).
	Cipher wire.Cipher

	// Logger receives protocol events. Nil disables.
	Logger log.Logger

	// Slog receives diagnostics. Nil disables.
	Slog *slog.Logger
}

// DefaultConfig returns the default connection configuration.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  DefaultHandshakeTimeout,
		HeartbeatInterval: DefaultHeartbeatInterval,
		SweepInterval:     DefaultSweepInterval,
	}
}

// EventHook observes decoded protocol events after they are applied.
// Called from the read loop; implementations must not block.
type EventHook func(deviceID string, ev wire.Event)

// Connection is one device session: a transport stream, a codec, and the
// node registry learned from the device's traffic.
type Connection struct {
	deviceID string
	connID   string
	path     string
	devType  device.Type

	conn     transport.Conn
	codec    *wire.Codec
	registry *nodes.Registry
	history  *history

	config Config
	logger log.Logger
	slog   *slog.Logger

	// writeMu serializes all frame writes: sends, handshake, heartbeat.
	writeMu sync.Mutex

	mu           sync.Mutex
	state        State
	started      bool
	failReason   error
	connectedAt  time.Time
	lastActivity time.Time
	sent         uint64
	received     uint64
	hook         EventHook

	stopOnce sync.Once
	stopCh   chan struct{}
	closeErr error
	wg       sync.WaitGroup
}

// New creates a Connection over an already dialed transport stream.
// Start must be called to run the handshake and begin the read loop.
func New(deviceID, path string, devType device.Type, conn transport.Conn, config Config) *Connection {
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if config.SweepInterval == 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.LocalNode == 0 {
		config.LocalNode = rand.Uint32()
	}
	if config.Logger == nil {
		config.Logger = log.NoopLogger{}
	}

	connID := uuid.NewString()
	return &Connection{
		deviceID: deviceID,
		connID:   connID,
		path:     path,
		devType:  devType,
		conn:     conn,
		codec: &wire.Codec{
			LocalNode: config.LocalNode,
			Cipher:    config.Cipher,
			Logger:    config.Logger,
			ConnID:    connID,
		},
		registry: nodes.NewRegistry(config.OfflineAfter),
		history:  newHistory(config.HistorySize),
		config:   config,
		logger:   config.Logger,
		slog:     config.Slog,
		stopCh:   make(chan struct{}),
	}
}

// DeviceID returns the device id this connection serves.
func (c *Connection) DeviceID() string { return c.deviceID }

// Path returns the transport address the connection was dialed to.
func (c *Connection) Path() string { return c.path }

// Type returns the device's transport class.
func (c *Connection) Type() device.Type { return c.devType }

// SetEventHook installs an observer for decoded events.
// Must be called before Start.
func (c *Connection) SetEventHook(hook EventHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hook = hook
}

// State returns the current state and, for StateFailed, the reason.
func (c *Connection) State() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.failReason
}

// Start runs the handshake and, on success, launches the read loop.
// On failure the connection transitions to StateFailed and the transport
// is closed; the Connection cannot be reused.
func (c *Connection) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	c.setState(StateConnecting, nil, "")

	if err := c.handshake(ctx); err != nil {
		c.setState(StateFailed, err, err.Error())
		c.stop()
		return err
	}

	c.mu.Lock()
	c.connectedAt = time.Now()
	c.lastActivity = c.connectedAt
	c.mu.Unlock()
	c.setState(StateConnected, nil, "handshake complete")

	c.wg.Add(1)
	go c.readLoop()
	return nil
}

// handshake requests the device's node table dump and waits for the
// terminating ConfigComplete, applying announcements as they arrive.
func (c *Connection) handshake(ctx context.Context) error {
	nonce := rand.Uint32()
	frame, err := c.codec.EncodeWantConfig(nonce)
	if err != nil {
		return fmt.Errorf("failed to encode handshake: %w", err)
	}
	if err := c.writeFrame(frame); err != nil {
		return fmt.Errorf("handshake write failed: %w", err)
	}

	deadline := time.Now().Add(c.config.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	buf := make([]byte, 1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return ErrHandshakeTimeout
		}

		n, err := c.conn.Read(buf)
		if err != nil && !errors.Is(err, transport.ErrReadTimeout) {
			return fmt.Errorf("handshake read failed: %w", err)
		}
		if n == 0 {
			continue
		}

		for _, ev := range c.codec.Feed(buf[:n]) {
			if done, ok := ev.(wire.ConfigComplete); ok && done.Nonce == nonce {
				return nil
			}
			c.applyEvent(ev)
		}
	}
}

// readLoop drains the transport, feeding the codec and applying events,
// until the connection is closed or the transport fails.
func (c *Connection) readLoop() {
	defer c.wg.Done()

	buf := make([]byte, 1024)
	lastBeat := time.Now()
	lastSweep := time.Now()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		n, err := c.conn.Read(buf)
		switch {
		case err == nil || errors.Is(err, transport.ErrReadTimeout):
			if n > 0 {
				for _, ev := range c.codec.Feed(buf[:n]) {
					c.applyEvent(ev)
				}
			}
		default:
			select {
			case <-c.stopCh:
				// Close in progress; the error is our own teardown.
			default:
				c.disconnect(err, fmt.Sprintf("transport read failed: %v", err))
			}
			return
		}

		now := time.Now()
		if c.config.HeartbeatInterval > 0 && now.Sub(lastBeat) >= c.config.HeartbeatInterval {
			lastBeat = now
			if err := c.sendHeartbeat(); err != nil {
				c.disconnect(err, fmt.Sprintf("heartbeat write failed: %v", err))
				return
			}
		}
		if now.Sub(lastSweep) >= c.config.SweepInterval {
			lastSweep = now
			c.registry.Sweep(now)
		}
	}
}

func (c *Connection) sendHeartbeat() error {
	frame, err := c.codec.EncodeStatus()
	if err != nil {
		return err
	}
	return c.writeFrame(frame)
}

// applyEvent updates the registry, history, and stats for one decoded
// event, then notifies the hook.
func (c *Connection) applyEvent(ev wire.Event) {
	now := time.Now()

	switch e := ev.(type) {
	case wire.NodeAnnouncement:
		c.registry.Upsert(e.ID, e.Name, e.ShortName, now)

	case wire.NodeDeparture:
		c.registry.Depart(e.ID)

	case wire.MessageAck:
		c.registry.Heard(e.From, now)
		c.history.MarkAcked(e.PacketID)

	case wire.StatusUpdate:
		c.registry.Heard(e.From, now)

	case wire.MessageReceived:
		c.registry.Heard(e.From, now)
		c.history.Add(Message{
			PacketID: e.PacketID,
			From:     e.From,
			To:       e.To,
			Text:     e.Text,
			Time:     now,
		})
		c.mu.Lock()
		c.received++
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.lastActivity = now
	hook := c.hook
	c.mu.Unlock()

	if hook != nil {
		hook(c.deviceID, ev)
	}
}

// Send encodes a text message for dest and writes it to the transport.
// dest may be a node id or a broadcast sentinel; it does not need to be a
// known node. A write failure disconnects the session.
func (c *Connection) Send(text, dest string) error {
	c.mu.Lock()
	if c.state != StateConnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: state is %s", ErrNotConnected, state)
	}
	c.mu.Unlock()

	frame, packetID, err := c.codec.EncodeText(text, dest)
	if err != nil {
		return err
	}
	if err := c.writeFrame(frame); err != nil {
		c.disconnect(err, fmt.Sprintf("send failed: %v", err))
		return err
	}

	to, _ := wire.ParseDestination(dest)
	now := time.Now()
	c.history.Add(Message{
		PacketID: packetID,
		From:     wire.FormatNodeID(c.config.LocalNode),
		To:       wire.FormatNodeID(to),
		Text:     text,
		Time:     now,
		Outgoing: true,
	})
	c.mu.Lock()
	c.sent++
	c.lastActivity = now
	c.mu.Unlock()
	return nil
}

// SendAdmin writes a device administration frame (see pkg/radio).
func (c *Connection) SendAdmin(payload []byte) error {
	c.mu.Lock()
	if c.state != StateConnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: state is %s", ErrNotConnected, state)
	}
	c.mu.Unlock()

	frame, err := c.codec.EncodeAdmin(payload)
	if err != nil {
		return err
	}
	if err := c.writeFrame(frame); err != nil {
		c.disconnect(err, fmt.Sprintf("admin write failed: %v", err))
		return err
	}
	return nil
}

// writeFrame writes one frame under the write lock so concurrent senders
// and the read loop's own writes never interleave bytes.
func (c *Connection) writeFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.conn.Write(frame); err != nil {
		return err
	}
	c.logger.Log(log.NewFrameEvent(c.connID, log.DirectionOut, frame))
	return nil
}

// Nodes returns a snapshot of the node registry.
func (c *Connection) Nodes() []nodes.Descriptor {
	return c.registry.Snapshot()
}

// History returns up to limit most recent messages, oldest first.
func (c *Connection) History(limit int) []Message {
	return c.history.Last(limit)
}

// ClearHistory drops all retained messages.
func (c *Connection) ClearHistory() {
	c.history.Clear()
}

// Stats returns a snapshot of the connection's counters.
func (c *Connection) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		MessagesSent:     c.sent,
		MessagesReceived: c.received,
		FramesDropped:    c.codec.Scanner().BadFrames(),
		ConnectedAt:      c.connectedAt,
		LastActivity:     c.lastActivity,
	}
}

// stop signals the read loop and closes the transport. Safe to call from
// any goroutine, including the read loop itself; it never waits.
func (c *Connection) stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.closeErr = c.conn.Close()
	})
}

// disconnect ends the session after a transport failure: the state
// transition plus the same teardown Close performs, minus the wait.
func (c *Connection) disconnect(reason error, detail string) {
	c.setState(StateDisconnected, reason, detail)
	c.stop()
}

// Close tears down the session: it stops the read loop, closes the
// transport, and waits for in-flight work to finish. Idempotent.
func (c *Connection) Close() error {
	c.stop()
	c.wg.Wait()

	c.mu.Lock()
	terminal := c.state == StateFailed
	c.mu.Unlock()
	if !terminal {
		c.setState(StateDisconnected, nil, "closed")
	}
	return c.closeErr
}

// setState transitions the connection state and logs the change.
func (c *Connection) setState(to State, reason error, detail string) {
	c.mu.Lock()
	from := c.state
	if from == to {
		c.mu.Unlock()
		return
	}
	c.state = to
	if to == StateFailed || to == StateDisconnected {
		c.failReason = reason
	}
	c.mu.Unlock()

	c.logger.Log(log.NewStateEvent(c.connID, from.String(), to.String(), detail))
	if c.slog != nil {
		c.slog.Debug("connection state changed",
			"device_id", c.deviceID,
			"from", from.String(),
			"to", to.String(),
			"reason", detail)
	}
}
