// Package connection owns the lifecycle of a single device session.
//
// A Connection opens over an established transport stream, runs the
// node-table handshake, then serves a read loop that feeds the wire codec
// and applies decoded events to the node registry. Outbound writes (sends,
// handshake, heartbeat) are serialized by a per-connection lock so frames
// are never interleaved on the wire.
//
// There is no automatic reconnect: a failed attempt is terminal and a fresh
// Connection must be created. The Backoff helper supports callers that
// implement their own reconnect policy.
package connection
