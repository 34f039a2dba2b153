// Package embedding defines the injected embed(input) -> vector contract
// treated as an external collaborator: a minimal single-method
// interface with no bundled model-loading or inference clients.
package embedding

import (
	"context"
	"encoding/binary"
	"hash/fnv"
)

// Embedder maps input text (or a serialized object) to a fixed-dimension
// embedding vector. Implementations may batch internally; within a
// single run, Embed must be deterministic for identical input so test
// scenarios and cache warm-starts behave reproducibly.
type Embedder interface {
	Embed(ctx context.Context, input string) ([]float32, error)
	Dimensions() int
}

// Stub is a deterministic, hash-based Embedder with no external
// dependency, used by tests and as a default when no real embedding
// function is configured. It makes no attempt at anything semantically
// meaningful.
type Stub struct {
	dim int
}

// NewStub constructs a deterministic stub embedder producing vectors of
// the given dimension.
func NewStub(dim int) *Stub {
	return &Stub{dim: dim}
}

func (s *Stub) Dimensions() int { return s.dim }

// Embed hashes input with FNV-1a, then expands the hash into dim floats
// via a simple linear-congruential walk seeded from it. Same input
// always yields the same vector within and across runs.
func (s *Stub) Embed(ctx context.Context, input string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(input))
	seed := h.Sum64()

	out := make([]float32, s.dim)
	state := seed
	for i := range out {
		state = state*6364136223846793005 + 1442695040888963407
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], state)
		// Map to [-1, 1] via the top 32 bits.
		v := int32(binary.BigEndian.Uint32(buf[:4]))
		out[i] = float32(v) / float32(1<<31)
	}
	return out, nil
}
