// Package wire implements the device frame protocol.
//
// Each frame is a start marker (0x94 0xC3), a little-endian uint16 payload
// length, the payload, and a single XOR checksum byte. The payload is a
// CBOR-encoded Packet using integer map keys for compactness.
//
// The stream decoder tolerates noise: bytes that do not form a valid frame
// are discarded and reported through the optional event logger, never as a
// fatal error. Radio links are expected to be noisy.
package wire
