// Package query implements the hybrid query engine: a selectivity-gated
// metadata candidate set, graph adjacency intersection, HNSW search with
// an in-beam filter predicate, fusion scoring, and offset/cursor
// pagination. The pipeline resolves candidates, searches, hydrates,
// sorts, then paginates.
package query

import (
	"github.com/brainyhq/brainy/pkg/metadata"
	"github.com/brainyhq/brainy/pkg/storage"
)

// Connected narrows a query to ids reachable via a single adjacency hop:
// `connected: {from, to, via}`.
type Connected struct {
	From string
	To   string
	Via  string
}

// Query is the unified hybrid query shape: a vector similarity target,
// a metadata predicate tree, and/or a graph adjacency
// constraint. Like may be a string (embedded via the configured
// Embedder), a []float32 (used directly), or any other value (JSON
// serialized then embedded) — nil means no vector-similarity component.
type Query struct {
	Like      any
	Where     *metadata.Filter
	Connected *Connected
}

// Options tunes one Find/Search/FindSimilar call's enumerated query
// options.
type Options struct {
	Limit          int
	Offset         int
	Cursor         string
	Threshold      float64
	NounTypes      []string
	ItemIDs        []string
	ExcludeDeleted bool
	WeightVector   float64
	WeightMetadata float64
}

// DefaultOptions returns limit=10, exclude_deleted=true, w_v=1, w_m=0.
func DefaultOptions() Options {
	return Options{
		Limit:          10,
		ExcludeDeleted: true,
		WeightVector:   1,
	}
}

// Result is one hydrated, fusion-scored hit.
type Result struct {
	ID       string
	Score    float64
	Distance float64
	Noun     *storage.Noun
}

// Page is one page of results plus pagination state.
type Page struct {
	Results []Result
	HasMore bool
	Cursor  string
}
