package connection

// State represents the connection state.
type State uint8

const (
	// StateDisconnected - no session is active.
	StateDisconnected State = iota

	// StateConnecting - transport is open, handshake in progress.
	StateConnecting

	// StateConnected - handshake complete, read loop running.
	StateConnected

	// StateFailed - the connect attempt failed. Terminal for this
	// Connection; a new attempt requires a new Connection.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
