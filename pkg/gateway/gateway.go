// Package gateway publishes mesh traffic to an MQTT broker. It attaches
// to the manager's event hook and mirrors decoded events as JSON
// messages under a per-device topic tree, so home automation and
// monitoring stacks can consume mesh activity without speaking the radio
// protocol.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/lora-comms/loracomms-go/pkg/connection"
	"github.com/lora-comms/loracomms-go/pkg/wire"
)

// DefaultTopicPrefix is the root of the published topic tree.
const DefaultTopicPrefix = "loracomms"

// DefaultConnectTimeout bounds the initial broker connection.
const DefaultConnectTimeout = 10 * time.Second

// Gateway errors.
var (
	ErrNoBroker     = errors.New("broker URL not configured")
	ErrNotConnected = errors.New("gateway not connected")
)

// Config configures a Gateway.
type Config struct {
	// BrokerURL is the MQTT broker, e.g. "tcp://broker.local:1883".
	BrokerURL string

	// ClientID identifies this gateway to the broker.
	// Empty selects "loracomms-gateway".
	ClientID string

	// Username and Password are optional broker credentials.
	Username string
	Password string

	// TopicPrefix roots the published topic tree.
	// Empty selects DefaultTopicPrefix.
	TopicPrefix string

	// QoS is the publish quality of service (0, 1, or 2).
	QoS byte

	// Retain marks published messages as retained.
	Retain bool

	// ConnectTimeout bounds the initial broker connection.
	// Zero selects DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// Slog receives diagnostics. Nil disables.
	Slog *slog.Logger
}

// Stats counts gateway publish activity.
type Stats struct {
	// Published counts successfully queued messages.
	Published uint64

	// Dropped counts events not published because the broker link was
	// down or the publish failed.
	Dropped uint64
}

// Gateway mirrors decoded mesh events to an MQTT broker.
type Gateway struct {
	config Config
	slog   *slog.Logger
	client mqtt.Client

	mu    sync.Mutex
	stats Stats
}

// New creates a Gateway. Start must be called to connect to the broker.
func New(config Config) (*Gateway, error) {
	if config.BrokerURL == "" {
		return nil, ErrNoBroker
	}
	if config.ClientID == "" {
		config.ClientID = "loracomms-gateway"
	}
	if config.TopicPrefix == "" {
		config.TopicPrefix = DefaultTopicPrefix
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.QoS > 2 {
		return nil, fmt.Errorf("invalid QoS %d", config.QoS)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(config.BrokerURL).
		SetClientID(config.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}

	return &Gateway{
		config: config,
		slog:   config.Slog,
		client: mqtt.NewClient(opts),
	}, nil
}

// Start connects to the broker, blocking up to the configured timeout.
func (g *Gateway) Start() error {
	token := g.client.Connect()
	if !token.WaitTimeout(g.config.ConnectTimeout) {
		return fmt.Errorf("broker connect timed out after %s", g.config.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("broker connect failed: %w", err)
	}
	if g.slog != nil {
		g.slog.Info("mqtt gateway connected", "broker", g.config.BrokerURL)
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight publishes a
// short grace period.
func (g *Gateway) Close() {
	g.client.Disconnect(250)
}

// Stats returns a snapshot of the publish counters.
func (g *Gateway) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

// Hook returns the event hook to install on the manager. The hook never
// blocks the read loop: publishes ride paho's internal queue and
// failures only bump the drop counter.
func (g *Gateway) Hook() connection.EventHook {
	return func(deviceID string, ev wire.Event) {
		topic, payload := g.render(deviceID, ev)
		if topic == "" {
			return
		}
		g.publish(topic, payload)
	}
}

// Wire event JSON shapes. Field names follow MQTT consumer conventions
// rather than Go naming.
type messageJSON struct {
	PacketID uint32 `json:"packet_id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Text     string `json:"text"`
}

type nodeJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	ShortName string `json:"short_name,omitempty"`
	Online    bool   `json:"online"`
}

type ackJSON struct {
	PacketID uint32 `json:"packet_id"`
	From     string `json:"from"`
}

type statusJSON struct {
	From         string `json:"from"`
	BatteryLevel uint8  `json:"battery_level"`
	UptimeSec    uint32 `json:"uptime_sec"`
}

func (g *Gateway) render(deviceID string, ev wire.Event) (string, any) {
	prefix := g.config.TopicPrefix + "/" + deviceID
	switch e := ev.(type) {
	case wire.MessageReceived:
		return prefix + "/message", messageJSON{
			PacketID: e.PacketID,
			From:     e.From,
			To:       e.To,
			Text:     e.Text,
		}
	case wire.NodeAnnouncement:
		return prefix + "/node", nodeJSON{
			ID:        e.ID,
			Name:      e.Name,
			ShortName: e.ShortName,
			Online:    true,
		}
	case wire.NodeDeparture:
		return prefix + "/node", nodeJSON{ID: e.ID, Online: false}
	case wire.MessageAck:
		return prefix + "/ack", ackJSON{PacketID: e.PacketID, From: e.From}
	case wire.StatusUpdate:
		return prefix + "/status", statusJSON{
			From:         e.From,
			BatteryLevel: e.BatteryLevel,
			UptimeSec:    e.UptimeSec,
		}
	default:
		return "", nil
	}
}

func (g *Gateway) publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		g.drop(topic, err)
		return
	}
	if !g.client.IsConnectionOpen() {
		g.drop(topic, ErrNotConnected)
		return
	}

	token := g.client.Publish(topic, g.config.QoS, g.config.Retain, data)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			g.drop(topic, err)
			return
		}
		g.mu.Lock()
		g.stats.Published++
		g.mu.Unlock()
	}()
}

func (g *Gateway) drop(topic string, err error) {
	g.mu.Lock()
	g.stats.Dropped++
	g.mu.Unlock()
	if g.slog != nil {
		g.slog.Warn("mqtt publish dropped", "topic", topic, "error", err)
	}
}
