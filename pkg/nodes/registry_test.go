package nodes

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryUpsert(t *testing.T) {
	r := NewRegistry(0)
	now := time.Now()

	r.Upsert("!00000001", "Node One", "N1", now)
	require.Equal(t, 1, r.Len())

	n, ok := r.Get("!00000001")
	require.True(t, ok)
	assert.Equal(t, "Node One", n.Name)
	assert.Equal(t, "N1", n.ShortName)
	assert.True(t, n.Online)

	// The latest announcement wins.
	r.Upsert("!00000001", "Renamed", "RN", now.Add(time.Second))
	n, _ = r.Get("!00000001")
	assert.Equal(t, "Renamed", n.Name)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryHeard(t *testing.T) {
	r := NewRegistry(0)
	now := time.Now()

	// Hearing from an unannounced node does not create an entry.
	r.Heard("!000000aa", now)
	assert.Zero(t, r.Len())

	r.Upsert("!000000aa", "A", "", now)
	r.Depart("!000000aa")
	n, _ := r.Get("!000000aa")
	require.False(t, n.Online)

	// Hearing again brings it back online.
	r.Heard("!000000aa", now.Add(time.Minute))
	n, _ = r.Get("!000000aa")
	assert.True(t, n.Online)
	assert.Equal(t, now.Add(time.Minute), n.LastHeard)
}

func TestRegistryDepart(t *testing.T) {
	r := NewRegistry(0)
	r.Upsert("!00000001", "One", "", time.Now())

	r.Depart("!00000001")
	n, ok := r.Get("!00000001")
	require.True(t, ok, "departed nodes are retained")
	assert.False(t, n.Online)
	assert.Equal(t, "One", n.Name)

	// Departure of an unknown node is a no-op.
	r.Depart("!deadbeef")
	assert.Equal(t, 1, r.Len())
}

func TestRegistrySweep(t *testing.T) {
	r := NewRegistry(10 * time.Minute)
	base := time.Now()

	r.Upsert("!00000001", "Fresh", "", base.Add(-time.Minute))
	r.Upsert("!00000002", "Stale", "", base.Add(-time.Hour))

	swept := r.Sweep(base)
	assert.Equal(t, 1, swept)

	fresh, _ := r.Get("!00000001")
	stale, _ := r.Get("!00000002")
	assert.True(t, fresh.Online)
	assert.False(t, stale.Online)

	// Already-offline nodes are not swept again.
	assert.Zero(t, r.Sweep(base))
}

func TestRegistrySnapshotSortedAndIsolated(t *testing.T) {
	r := NewRegistry(0)
	now := time.Now()
	r.Upsert("!00000003", "C", "", now)
	r.Upsert("!00000001", "A", "", now)
	r.Upsert("!00000002", "B", "", now)

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "!00000001", snap[0].ID)
	assert.Equal(t, "!00000002", snap[1].ID)
	assert.Equal(t, "!00000003", snap[2].ID)

	// Mutating the snapshot does not touch the registry.
	snap[0].Name = "mutated"
	n, _ := r.Get("!00000001")
	assert.Equal(t, "A", n.Name)
}

func TestRegistryConvergence(t *testing.T) {
	// Any interleaving of the same announcements converges to the same
	// final table: last announcement per node wins.
	r1 := NewRegistry(0)
	r2 := NewRegistry(0)
	now := time.Now()

	r1.Upsert("!00000001", "Old", "", now)
	r1.Upsert("!00000002", "Two", "", now)
	r1.Upsert("!00000001", "New", "", now)

	r2.Upsert("!00000002", "Two", "", now)
	r2.Upsert("!00000001", "Old", "", now)
	r2.Upsert("!00000001", "New", "", now)

	assert.Equal(t, r1.Snapshot(), r2.Snapshot())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(0)
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("!%08x", i)
			for j := 0; j < 100; j++ {
				r.Upsert(id, "n", "", now)
				r.Heard(id, now)
				r.Snapshot()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, r.Len())
}
