// Package log defines the protocol event logging interface.
//
// Core components accept an optional Logger and emit structured events for
// frames, state changes, and discarded protocol noise. Applications decide
// what to do with them: discard (NoopLogger), fan out (MultiLogger), or
// forward to log/slog (SlogAdapter). Events carry CBOR tags with integer
// keys so captures stay compact when serialized.
package log
