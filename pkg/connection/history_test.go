package connection

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryOrdering(t *testing.T) {
	h := newHistory(10)
	for i := 1; i <= 3; i++ {
		h.Add(Message{PacketID: uint32(i), Text: fmt.Sprintf("msg %d", i)})
	}

	msgs := h.Last(0)
	require.Len(t, msgs, 3)
	assert.Equal(t, uint32(1), msgs[0].PacketID)
	assert.Equal(t, uint32(3), msgs[2].PacketID)

	// Limit keeps the most recent entries.
	msgs = h.Last(2)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint32(2), msgs[0].PacketID)
	assert.Equal(t, uint32(3), msgs[1].PacketID)
}

func TestHistoryWraparound(t *testing.T) {
	h := newHistory(4)
	for i := 1; i <= 6; i++ {
		h.Add(Message{PacketID: uint32(i)})
	}

	msgs := h.Last(0)
	require.Len(t, msgs, 4)
	assert.Equal(t, uint32(3), msgs[0].PacketID, "oldest survivor after overwrite")
	assert.Equal(t, uint32(6), msgs[3].PacketID)
}

func TestHistoryMarkAcked(t *testing.T) {
	h := newHistory(10)
	h.Add(Message{PacketID: 1, Outgoing: true})
	h.Add(Message{PacketID: 2, Outgoing: false})

	// Acks only apply to outgoing messages.
	h.MarkAcked(2)
	h.MarkAcked(1)

	msgs := h.Last(0)
	assert.True(t, msgs[0].Acked)
	assert.False(t, msgs[1].Acked)
}

func TestHistoryClear(t *testing.T) {
	h := newHistory(4)
	for i := 0; i < 6; i++ {
		h.Add(Message{PacketID: uint32(i)})
	}
	h.Clear()
	assert.Empty(t, h.Last(0))

	h.Add(Message{PacketID: 9})
	msgs := h.Last(0)
	require.Len(t, msgs, 1)
	assert.Equal(t, uint32(9), msgs[0].PacketID)
}

func TestHistoryDefaultCapacity(t *testing.T) {
	h := newHistory(0)
	for i := 0; i < DefaultHistorySize+10; i++ {
		h.Add(Message{PacketID: uint32(i)})
	}
	assert.Len(t, h.Last(0), DefaultHistorySize)
}
