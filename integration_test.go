package loracomms_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/lora-comms/loracomms-go/pkg/connection"
	"github.com/lora-comms/loracomms-go/pkg/device"
	"github.com/lora-comms/loracomms-go/pkg/manager"
	"github.com/lora-comms/loracomms-go/pkg/transport"
	"github.com/lora-comms/loracomms-go/pkg/wire"
)

// fakeRadio is a TCP server that speaks the device framing: it answers
// the handshake with node announcements and acks text messages, like a
// network-attached radio would.
type fakeRadio struct {
	ln net.Listener

	mu       sync.Mutex
	received []string
}

func startFakeRadio(t *testing.T) *fakeRadio {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	r := &fakeRadio{ln: ln}
	go r.serve()
	t.Cleanup(func() { ln.Close() })
	return r
}

func (r *fakeRadio) addr() string {
	return r.ln.Addr().String()
}

func (r *fakeRadio) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.received...)
}

func (r *fakeRadio) serve() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		go r.handle(conn)
	}
}

func (r *fakeRadio) handle(conn net.Conn) {
	defer conn.Close()

	var scanner wire.FrameScanner
	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		scanner.Write(buf[:n])
		for {
			payload, ok := scanner.Next()
			if !ok {
				break
			}
			pkt, err := wire.DecodePacket(payload)
			if err != nil {
				continue
			}
			if err := r.reply(conn, pkt); err != nil {
				return
			}
		}
	}
}

func (r *fakeRadio) reply(conn net.Conn, pkt *wire.Packet) error {
	switch pkt.Type {
	case wire.PacketWantConfig:
		c := &wire.Codec{LocalNode: 0xA1}
		ann, err := c.EncodeNodeInfo("Ridge Repeater", "RDG")
		if err != nil {
			return err
		}
		done, err := wire.EncodePacket(&wire.Packet{
			Type: wire.PacketConfigComplete,
			From: 0xD0,
			ID:   pkt.ID,
		})
		if err != nil {
			return err
		}
		if _, err := conn.Write(ann); err != nil {
			return err
		}
		_, err = conn.Write(done)
		return err

	case wire.PacketText:
		r.mu.Lock()
		r.received = append(r.received, string(pkt.Payload))
		r.mu.Unlock()
		if !pkt.WantAck {
			return nil
		}
		payload, err := wire.Marshal(struct {
			AckedID uint32 `cbor:"1,keyasint"`
		}{AckedID: pkt.ID})
		if err != nil {
			return err
		}
		ack, err := wire.EncodePacket(&wire.Packet{
			Type:    wire.PacketAck,
			From:    0xA1,
			To:      pkt.From,
			ID:      9000,
			Payload: payload,
		})
		if err != nil {
			return err
		}
		_, err = conn.Write(ack)
		return err
	}
	return nil
}

// TestE2E_TCPConnectSendNodes runs the full stack over a loopback
// socket: dial, handshake, node table, broadcast, directed send with
// ack, and teardown.
func TestE2E_TCPConnectSendNodes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	radio := startFakeRadio(t)

	cfg := manager.DefaultConfig()
	cfg.Backends = []transport.Backend{
		transport.NewTCPBackend(transport.TCPConfig{ReadTimeout: 50 * time.Millisecond}),
	}
	cfg.Connection.HandshakeTimeout = 5 * time.Second
	mgr := manager.New(cfg)
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	deviceID, err := mgr.Connect(ctx, radio.addr(), device.TypeTCP)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	state, _ := mgr.ConnectionState(deviceID)
	if state != connection.StateConnected {
		t.Fatalf("State = %s, want CONNECTED", state)
	}

	nodes := mgr.Nodes(deviceID)
	if len(nodes) != 1 {
		t.Fatalf("len(nodes) = %d, want 1", len(nodes))
	}
	if nodes[0].ID != "!000000a1" || nodes[0].Name != "Ridge Repeater" {
		t.Errorf("Unexpected node: %+v", nodes[0])
	}
	if !nodes[0].Online {
		t.Error("Announced node should be online")
	}

	if err := mgr.Send(deviceID, "hello mesh", "!broadcast"); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}
	if err := mgr.Send(deviceID, "direct hello", "!000000a1"); err != nil {
		t.Fatalf("Directed send failed: %v", err)
	}

	// The radio saw both messages.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(radio.texts()) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	got := radio.texts()
	if len(got) != 2 || got[0] != "hello mesh" || got[1] != "direct hello" {
		t.Fatalf("Radio received %v", got)
	}

	// The directed message gets acked.
	for time.Now().Before(deadline) {
		msgs, err := mgr.History(deviceID, 10)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(msgs) == 2 && msgs[1].Acked {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	msgs, _ := mgr.History(deviceID, 10)
	if len(msgs) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(msgs))
	}
	if !msgs[1].Acked {
		t.Error("Directed message never acked")
	}
	if msgs[0].Acked {
		t.Error("Broadcast must not be acked")
	}

	stats, err := mgr.Stats(deviceID)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.MessagesSent != 2 {
		t.Errorf("MessagesSent = %d, want 2", stats.MessagesSent)
	}

	if err := mgr.Disconnect(deviceID); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if err := mgr.Send(deviceID, "after close", ""); err == nil {
		t.Error("Send after disconnect should fail")
	}
}

// TestE2E_ReconnectAfterDrop verifies that a dropped link is replaced by
// a fresh session on the next Connect.
func TestE2E_ReconnectAfterDrop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	radio := startFakeRadio(t)

	cfg := manager.DefaultConfig()
	cfg.Backends = []transport.Backend{
		transport.NewTCPBackend(transport.TCPConfig{ReadTimeout: 50 * time.Millisecond}),
	}
	cfg.Connection.HandshakeTimeout = 5 * time.Second
	mgr := manager.New(cfg)
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id1, err := mgr.Connect(ctx, radio.addr(), device.TypeTCP)
	if err != nil {
		t.Fatalf("First connect failed: %v", err)
	}
	if err := mgr.Disconnect(id1); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	id2, err := mgr.Connect(ctx, radio.addr(), device.TypeTCP)
	if err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("Device id changed across reconnect: %s != %s", id1, id2)
	}

	state, _ := mgr.ConnectionState(id2)
	if state != connection.StateConnected {
		t.Errorf("State = %s, want CONNECTED", state)
	}
}
