package wire

import (
	"math/rand"
	"sync/atomic"
)

// globalID seeds outgoing packet ids. Starting from a random value keeps
// ids from colliding across restarts, which matters for ack matching on
// the mesh.
var globalID = func() *atomic.Uint32 {
	var v atomic.Uint32
	v.Store(rand.Uint32())
	return &v
}()

// nextGlobalID returns the next process-wide packet id, skipping zero.
func nextGlobalID() uint32 {
	for {
		id := globalID.Add(1)
		if id != 0 {
			return id
		}
	}
}
