package wire

// Event is a decoded protocol event produced by the Codec.
// Concrete types: NodeAnnouncement, NodeDeparture, MessageAck,
// StatusUpdate, MessageReceived, ConfigComplete.
type Event interface {
	isEvent()
}

// NodeAnnouncement reports a node's identity learned from the mesh.
type NodeAnnouncement struct {
	// ID is the node id in "!xxxxxxxx" form.
	ID string

	// Name is the node's long display name.
	Name string

	// ShortName is the abbreviated display name.
	ShortName string
}

// NodeDeparture reports that a node signaled it is leaving.
type NodeDeparture struct {
	// ID is the departing node's id.
	ID string
}

// MessageAck reports a delivery acknowledgement for a sent packet.
type MessageAck struct {
	// PacketID is the id of the acknowledged packet.
	PacketID uint32

	// From is the acknowledging node's id.
	From string
}

// StatusUpdate reports device status received from the mesh.
type StatusUpdate struct {
	// From is the reporting node's id.
	From string

	// BatteryLevel is the battery percentage (0-100), 0 if unknown.
	BatteryLevel uint8

	// UptimeSec is the node's uptime in seconds, 0 if unknown.
	UptimeSec uint32
}

// MessageReceived reports an inbound text message.
type MessageReceived struct {
	// PacketID is the originating packet id.
	PacketID uint32

	// From is the sender's node id.
	From string

	// To is the destination node id ("!broadcast" for broadcasts).
	To string

	// Text is the message body.
	Text string
}

// ConfigComplete terminates the node table dump started by a WantConfig
// request. Nonce matches the request.
type ConfigComplete struct {
	Nonce uint32
}

func (NodeAnnouncement) isEvent() {}
func (NodeDeparture) isEvent()    {}
func (MessageAck) isEvent()       {}
func (StatusUpdate) isEvent()     {}
func (MessageReceived) isEvent()  {}
func (ConfigComplete) isEvent()   {}
