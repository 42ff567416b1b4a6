// Package transport abstracts the byte streams used to reach radio devices.
//
// A Backend enumerates devices of one transport class and dials a Conn to
// one of them. The connection layer depends only on Conn (open/read/write/
// close with bounded reads); platform specifics stay behind the backends:
// serial ports via go.bug.st/serial, network devices via mDNS + TCP, and
// BLE radios via tinygo.org/x/bluetooth.
package transport
