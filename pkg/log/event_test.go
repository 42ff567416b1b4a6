package log

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrameEvent(t *testing.T) {
	data := []byte{0x94, 0xC3, 0x01, 0x00, 0xAA, 0xAA}
	ev := NewFrameEvent("conn-1", DirectionOut, data)

	assert.Equal(t, "conn-1", ev.ConnectionID)
	assert.Equal(t, DirectionOut, ev.Direction)
	assert.Equal(t, LayerTransport, ev.Layer)
	assert.Equal(t, CategoryFrame, ev.Category)
	require.NotNil(t, ev.Frame)
	assert.Equal(t, len(data), ev.Frame.Size)
	assert.Equal(t, data, ev.Frame.Data)
	assert.False(t, ev.Frame.Truncated)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestNewFrameEventTruncation(t *testing.T) {
	data := bytes.Repeat([]byte{0x5A}, MaxFrameDataSize+100)
	ev := NewFrameEvent("conn-1", DirectionIn, data)

	require.NotNil(t, ev.Frame)
	assert.Equal(t, len(data), ev.Frame.Size, "size reports the original length")
	assert.Len(t, ev.Frame.Data, MaxFrameDataSize)
	assert.True(t, ev.Frame.Truncated)
}

func TestNewStateEvent(t *testing.T) {
	ev := NewStateEvent("conn-1", "CONNECTING", "CONNECTED", "handshake complete")

	assert.Equal(t, LayerConnection, ev.Layer)
	assert.Equal(t, CategoryState, ev.Category)
	require.NotNil(t, ev.StateChange)
	assert.Equal(t, "CONNECTING", ev.StateChange.From)
	assert.Equal(t, "CONNECTED", ev.StateChange.To)
	assert.Equal(t, "handshake complete", ev.StateChange.Reason)
}

func TestNewErrorEvent(t *testing.T) {
	ev := NewErrorEvent("conn-1", LayerWire, errors.New("bad checksum"))

	assert.Equal(t, LayerWire, ev.Layer)
	assert.Equal(t, CategoryError, ev.Category)
	require.NotNil(t, ev.Error)
	assert.Equal(t, "bad checksum", ev.Error.Message)
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "IN", DirectionIn.String())
	assert.Equal(t, "OUT", DirectionOut.String())
	assert.Equal(t, "UNKNOWN", Direction(9).String())

	assert.Equal(t, "TRANSPORT", LayerTransport.String())
	assert.Equal(t, "WIRE", LayerWire.String())
	assert.Equal(t, "CONNECTION", LayerConnection.String())

	assert.Equal(t, "FRAME", CategoryFrame.String())
	assert.Equal(t, "STATE", CategoryState.String())
	assert.Equal(t, "ERROR", CategoryError.String())
}
