package connection

import (
	"sync"
	"time"
)

// DefaultHistorySize is the default message history capacity.
const DefaultHistorySize = 256

// Message is one entry in a connection's message history.
type Message struct {
	// PacketID is the wire packet id.
	PacketID uint32

	// From and To are node ids ("!broadcast" for broadcasts).
	From string
	To   string

	// Text is the message body.
	Text string

	// Time is when the message was sent or received locally.
	Time time.Time

	// Outgoing reports whether the local host sent the message.
	Outgoing bool

	// Acked reports whether a delivery ack arrived (outgoing only).
	Acked bool
}

// history is a fixed-capacity ring buffer of messages.
type history struct {
	mu   sync.Mutex
	buf  []Message
	next int
	full bool
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &history{buf: make([]Message, capacity)}
}

// Add appends a message, overwriting the oldest entry when full.
func (h *history) Add(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = m
	h.next++
	if h.next == len(h.buf) {
		h.next = 0
		h.full = true
	}
}

// MarkAcked flags the outgoing message with the given packet id.
func (h *history) MarkAcked(packetID uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.buf {
		if h.buf[i].Outgoing && h.buf[i].PacketID == packetID {
			h.buf[i].Acked = true
			return
		}
	}
}

// Last returns up to limit most recent messages, oldest first.
// limit <= 0 returns everything retained.
func (h *history) Last(limit int) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	var ordered []Message
	if h.full {
		ordered = append(ordered, h.buf[h.next:]...)
		ordered = append(ordered, h.buf[:h.next]...)
	} else {
		ordered = append(ordered, h.buf[:h.next]...)
	}
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}

// Clear drops all retained messages.
func (h *history) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next = 0
	h.full = false
	for i := range h.buf {
		h.buf[i] = Message{}
	}
}

// Stats summarizes a connection's traffic.
type Stats struct {
	// MessagesSent counts outgoing text messages.
	MessagesSent uint64

	// MessagesReceived counts inbound text messages.
	MessagesReceived uint64

	// FramesDropped counts frames discarded as protocol noise.
	FramesDropped int

	// ConnectedAt is when the handshake completed.
	ConnectedAt time.Time

	// LastActivity is the time of the last send or decoded event.
	LastActivity time.Time
}
