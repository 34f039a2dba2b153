// Package metadata implements the inverted hash index and lazily-built
// sorted index over dot-path metadata keys, the Brainy Field Operator
// predicate set, and the O(1) soft-delete intersection. Postings are
// Roaring Bitmaps of dense uint32 ids; since Brainy's own ids are UUID
// strings, a small registry sits in front to translate between the two.
package metadata

import "sync"

// IDRegistry assigns a dense, monotonically increasing uint32 to every
// string id it has seen, so postings can be stored as Roaring Bitmaps
// instead of string sets.
type IDRegistry struct {
	mu      sync.RWMutex
	toDense map[string]uint32
	toSparse map[uint32]string
	next    uint32
}

// NewIDRegistry constructs an empty registry.
func NewIDRegistry() *IDRegistry {
	return &IDRegistry{
		toDense:  make(map[string]uint32),
		toSparse: make(map[uint32]string),
	}
}

// Dense returns id's dense uint32, assigning a new one if id hasn't been
// seen before.
func (r *IDRegistry) Dense(id string) uint32 {
	r.mu.RLock()
	d, ok := r.toDense[id]
	r.mu.RUnlock()
	if ok {
		return d
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.toDense[id]; ok {
		return d
	}
	d = r.next
	r.next++
	r.toDense[id] = d
	r.toSparse[d] = id
	return d
}

// Peek returns id's dense uint32 without assigning one if id hasn't
// been seen before.
func (r *IDRegistry) Peek(id string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.toDense[id]
	return d, ok
}

// Sparse reverses Dense. ok is false if d was never assigned.
func (r *IDRegistry) Sparse(d uint32) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.toSparse[d]
	return id, ok
}

// Forget drops id from the registry. Safe to call even if the dense id
// is still referenced by a stale bitmap snapshot elsewhere; those
// references simply become unresolvable via Sparse.
func (r *IDRegistry) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.toDense[id]; ok {
		delete(r.toDense, id)
		delete(r.toSparse, d)
	}
}
