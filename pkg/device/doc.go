// Package device defines descriptors for discoverable LoRa radio devices.
//
// A Descriptor is an immutable snapshot produced by a transport scan. It is
// never mutated in place; the next scan supersedes it. Descriptors crossing
// the export boundary are always deep copies (see pkg/bridge).
package device
