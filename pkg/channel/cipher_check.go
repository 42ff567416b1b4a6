package channel

import "github.com/lora-comms/loracomms-go/pkg/wire"

// Compile-time check: *Key satisfies the codec's cipher interface.
var _ wire.Cipher = (*Key)(nil)
