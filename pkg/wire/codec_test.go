package wire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatParseNodeID(t *testing.T) {
	tests := []struct {
		name string
		id   uint32
		want string
	}{
		{"simple", 0x0000002A, "!0000002a"},
		{"full width", 0xA1B2C3D4, "!a1b2c3d4"},
		{"broadcast", Broadcast, BroadcastID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatNodeID(tt.id))
		})
	}

	n, err := ParseNodeID("!a1b2c3d4")
	require.NoError(t, err)
	assert.Equal(t, uint32(0xA1B2C3D4), n)

	for _, bad := range []string{"", "a1b2c3d4", "!a1b2", "!zzzzzzzz", "!a1b2c3d4e"} {
		_, err := ParseNodeID(bad)
		assert.ErrorIs(t, err, ErrInvalidNodeID, "input %q", bad)
	}
}

func TestParseDestination(t *testing.T) {
	tests := []struct {
		name    string
		dest    string
		want    uint32
		wantErr bool
	}{
		{"empty means broadcast", "", Broadcast, false},
		{"canonical broadcast", "!broadcast", Broadcast, false},
		{"alternate broadcast", "^all", Broadcast, false},
		{"node id", "!00000a01", 0xA01, false},
		{"garbage", "node-1", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDestination(tt.dest)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodecTextRoundTrip(t *testing.T) {
	sender := &Codec{LocalNode: 0x11111111}
	receiver := &Codec{LocalNode: 0x22222222}

	frame, id, err := sender.EncodeText("hello mesh", "!22222222")
	require.NoError(t, err)
	require.NotZero(t, id)

	events := receiver.Feed(frame)
	require.Len(t, events, 1)

	msg, ok := events[0].(MessageReceived)
	require.True(t, ok)
	assert.Equal(t, id, msg.PacketID)
	assert.Equal(t, "!11111111", msg.From)
	assert.Equal(t, "!22222222", msg.To)
	assert.Equal(t, "hello mesh", msg.Text)
}

func TestCodecBroadcast(t *testing.T) {
	sender := &Codec{LocalNode: 1}
	receiver := &Codec{LocalNode: 2}

	frame, _, err := sender.EncodeText("to everyone", "!broadcast")
	require.NoError(t, err)

	events := receiver.Feed(frame)
	require.Len(t, events, 1)
	msg := events[0].(MessageReceived)
	assert.Equal(t, BroadcastID, msg.To)
}

func TestCodecMessageTooLong(t *testing.T) {
	c := &Codec{LocalNode: 1}
	_, _, err := c.EncodeText(strings.Repeat("x", maxTextSize+1), "")
	assert.ErrorIs(t, err, ErrMessageTooLong)

	// At the limit the message still fits in one frame.
	frame, _, err := c.EncodeText(strings.Repeat("x", maxTextSize), "")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(frame), FrameSize(MaxPayloadSize))
}

func TestCodecInvalidDestination(t *testing.T) {
	c := &Codec{LocalNode: 1}
	_, _, err := c.EncodeText("hi", "not-a-node")
	assert.ErrorIs(t, err, ErrInvalidNodeID)
}

func TestCodecWantAck(t *testing.T) {
	c := &Codec{LocalNode: 0xAA}

	decode := func(frame []byte) *Packet {
		var s FrameScanner
		s.Write(frame)
		payload, ok := s.Next()
		require.True(t, ok)
		pkt, err := DecodePacket(payload)
		require.NoError(t, err)
		return pkt
	}

	direct, _, err := c.EncodeText("hi", "!000000bb")
	require.NoError(t, err)
	assert.True(t, decode(direct).WantAck)

	broadcast, _, err := c.EncodeText("hi", "")
	require.NoError(t, err)
	assert.False(t, decode(broadcast).WantAck)
}

func TestCodecNodeInfoRoundTrip(t *testing.T) {
	device := &Codec{LocalNode: 0xC0FFEE}
	host := &Codec{LocalNode: 1}

	frame, err := device.EncodeNodeInfo("Base Station", "BASE")
	require.NoError(t, err)

	events := host.Feed(frame)
	require.Len(t, events, 1)
	ann, ok := events[0].(NodeAnnouncement)
	require.True(t, ok)
	assert.Equal(t, "!00c0ffee", ann.ID)
	assert.Equal(t, "Base Station", ann.Name)
	assert.Equal(t, "BASE", ann.ShortName)
}

func TestCodecConfigComplete(t *testing.T) {
	host := &Codec{LocalNode: 1}

	frame, err := EncodePacket(&Packet{
		Type: PacketConfigComplete,
		From: 0x99,
		ID:   0xDEADBEEF,
	})
	require.NoError(t, err)

	events := host.Feed(frame)
	require.Len(t, events, 1)
	done, ok := events[0].(ConfigComplete)
	require.True(t, ok)
	assert.Equal(t, uint32(0xDEADBEEF), done.Nonce)
}

func TestCodecAck(t *testing.T) {
	host := &Codec{LocalNode: 1}

	payload, err := Marshal(ackPayload{AckedID: 42})
	require.NoError(t, err)
	frame, err := EncodePacket(&Packet{
		Type:    PacketAck,
		From:    0x77,
		To:      1,
		ID:      100,
		Payload: payload,
	})
	require.NoError(t, err)

	events := host.Feed(frame)
	require.Len(t, events, 1)
	ack, ok := events[0].(MessageAck)
	require.True(t, ok)
	assert.Equal(t, uint32(42), ack.PacketID)
	assert.Equal(t, "!00000077", ack.From)
}

func TestCodecDropsMalformedPackets(t *testing.T) {
	host := &Codec{LocalNode: 1}

	// Structurally valid frame whose payload is not a packet.
	junk, err := EncodeFrame([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	good, _, err := (&Codec{LocalNode: 2}).EncodeText("still here", "")
	require.NoError(t, err)

	events := host.Feed(append(junk, good...))
	require.Len(t, events, 1)
	assert.Equal(t, "still here", events[0].(MessageReceived).Text)
}

func TestCodecIgnoresUnknownPacketTypes(t *testing.T) {
	host := &Codec{LocalNode: 1}

	// An unknown type fails Validate at decode and is dropped without
	// producing an event or an error to the caller.
	payload, err := Marshal(&Packet{Type: PacketType(200), From: 5, ID: 1})
	require.NoError(t, err)
	frame, err := EncodeFrame(payload)
	require.NoError(t, err)

	assert.Empty(t, host.Feed(frame))
}

func TestCodecFeedSplitAcrossChunks(t *testing.T) {
	sender := &Codec{LocalNode: 3}
	host := &Codec{LocalNode: 1}

	frame, _, err := sender.EncodeText("split delivery", "")
	require.NoError(t, err)

	mid := len(frame) / 2
	assert.Empty(t, host.Feed(frame[:mid]))
	events := host.Feed(frame[mid:])
	require.Len(t, events, 1)
	assert.Equal(t, "split delivery", events[0].(MessageReceived).Text)
}

func TestCodecCustomPacketIDs(t *testing.T) {
	next := uint32(100)
	c := &Codec{LocalNode: 1, PacketID: func() uint32 { next++; return next }}

	_, id1, err := c.EncodeText("a", "")
	require.NoError(t, err)
	_, id2, err := c.EncodeText("b", "")
	require.NoError(t, err)
	assert.Equal(t, uint32(101), id1)
	assert.Equal(t, uint32(102), id2)
}
