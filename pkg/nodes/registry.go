// Package nodes maintains the per-connection table of mesh peers.
package nodes

import (
	"sort"
	"sync"
	"time"
)

// DefaultOfflineAfter is the silence interval after which a node is marked
// offline when the protocol has not signaled an explicit departure.
const DefaultOfflineAfter = 15 * time.Minute

// Descriptor describes a mesh peer as last announced.
type Descriptor struct {
	// ID is the node's mesh address in "!xxxxxxxx" form.
	ID string

	// Name is the long display name.
	Name string

	// ShortName is the abbreviated display name.
	ShortName string

	// Online is the last-known reachability.
	Online bool

	// LastHeard is when the node was last heard from.
	LastHeard time.Time
}

// Registry is a thread-safe table of mesh peers for one connection.
// The decoder's update path and snapshot readers share its lock.
type Registry struct {
	mu           sync.RWMutex
	nodes        map[string]Descriptor
	offlineAfter time.Duration
}

// NewRegistry creates a registry with the given silence interval.
// Zero selects DefaultOfflineAfter.
func NewRegistry(offlineAfter time.Duration) *Registry {
	if offlineAfter <= 0 {
		offlineAfter = DefaultOfflineAfter
	}
	return &Registry{
		nodes:        make(map[string]Descriptor),
		offlineAfter: offlineAfter,
	}
}

// Upsert applies a node announcement: fields are overwritten by the latest
// announcement and the node is marked online.
func (r *Registry) Upsert(id, name, shortName string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[id] = Descriptor{
		ID:        id,
		Name:      name,
		ShortName: shortName,
		Online:    true,
		LastHeard: now,
	}
}

// Heard refreshes a node's last-heard time without changing its identity.
// Unknown nodes are ignored: reachability alone does not announce a node.
func (r *Registry) Heard(id string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return
	}
	n.Online = true
	n.LastHeard = now
	r.nodes[id] = n
}

// Depart marks a node offline. The descriptor is retained so callers can
// still see the peer's last-known name.
func (r *Registry) Depart(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return
	}
	n.Online = false
	r.nodes[id] = n
}

// Sweep marks nodes offline that have been silent longer than the
// configured interval. Returns the number of nodes transitioned.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.offlineAfter)
	swept := 0
	for id, n := range r.nodes {
		if n.Online && n.LastHeard.Before(cutoff) {
			n.Online = false
			r.nodes[id] = n
			swept++
		}
	}
	return swept
}

// Snapshot returns a consistent copy of all entries, online or not,
// sorted by node id. The returned slice shares nothing with the registry.
func (r *Registry) Snapshot() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a node by id.
func (r *Registry) Get(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	return n, ok
}

// Len returns the number of known nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
