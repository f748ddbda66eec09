package namehash

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps hashes back to the strings that produced them, for
// human-readable diagnostics. It is entirely optional: nothing in the
// container, overlay, or streaming loader consults a Registry to decide
// correctness. Per the format's design notes, a Registry is a plain value
// protected by its own mutex rather than a package-global map, so callers
// that don't need debug names never pay for the synchronization and
// multiple independent registries (e.g. one per tool invocation) never
// collide.
type Registry struct {
	mu      sync.RWMutex
	names   map[uint64]string
	clashes []Collision
}

// Collision records two distinct strings that hashed to the same value.
type Collision struct {
	Hash     uint64
	Existing string
	Incoming string
}

// NewRegistry returns an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{names: make(map[uint64]string)}
}

// Register inserts (FNV1a(s), s). If a different string is already
// registered under the same hash, the collision is recorded but both
// registration attempts otherwise succeed silently — the registry never
// rejects data, it only annotates it.
func (r *Registry) Register(s string) uint64 {
	h := FNV1a(s)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.names[h]; ok && existing != s {
		r.clashes = append(r.clashes, Collision{Hash: h, Existing: existing, Incoming: s})
		return h
	}
	r.names[h] = s
	return h
}

// Lookup returns the canonical string registered for h, or a synthetic
// placeholder if nothing has been registered for it yet.
func (r *Registry) Lookup(h uint64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.names[h]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN_HASH_0x%016X", h)
}

// Collisions returns a copy of the collisions observed so far.
func (r *Registry) Collisions() []Collision {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Collision, len(r.clashes))
	copy(out, r.clashes)
	return out
}

// DebugDump enumerates all registered (hash, name) pairs sorted by hash,
// for stable diagnostic output.
func (r *Registry) DebugDump() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hashes := make([]uint64, 0, len(r.names))
	for h := range r.names {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	out := make([]string, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, fmt.Sprintf("0x%016X -> %q", h, r.names[h]))
	}
	return out
}
