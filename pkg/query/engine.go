package query

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/brainyhq/brainy/pkg/embedding"
	"github.com/brainyhq/brainy/pkg/errs"
	"github.com/brainyhq/brainy/pkg/hnsw"
	"github.com/brainyhq/brainy/pkg/metadata"
	"github.com/brainyhq/brainy/pkg/storage"
)

// VectorIndex is the subset of pkg/hnsw.Index the engine needs.
type VectorIndex interface {
	Search(query []float32, k int, filter func(string) bool) ([]hnsw.Result, error)
}

// MetaIndex is the subset of pkg/metadata.Index the engine needs.
type MetaIndex interface {
	IdsForFilter(f metadata.Filter, includeDeleted bool) []string
	AllIDs(includeDeleted bool) []string
	IsDeleted(id string) bool
	FilterFields() []string
	FilterValues(field string) []metadata.FieldValue
}

// AdjacencyGraph is the subset of pkg/graph.Graph the engine needs.
type AdjacencyGraph interface {
	Connected(from, via string) []string
	ConnectedTo(to, via string) []string
}

// Config tunes the engine.
type Config struct {
	// SelectivityThreshold is the metadata-filter cardinality above
	// which a `where` clause is treated as non-selective and ignored as
	// a candidate-set restriction.
	SelectivityThreshold int
}

// DefaultConfig returns the engine's default tuning (threshold 10000).
func DefaultConfig() Config {
	return Config{SelectivityThreshold: 10000}
}

// Engine executes hybrid queries against the vector index, metadata
// index, graph adjacency, and storage.
type Engine struct {
	config   Config
	storage  storage.Adapter
	vectors  VectorIndex
	meta     MetaIndex
	graph    AdjacencyGraph
	embedder embedding.Embedder
}

// New constructs an Engine.
func New(cfg Config, adapter storage.Adapter, vectors VectorIndex, meta MetaIndex, graph AdjacencyGraph, embedder embedding.Embedder) *Engine {
	return &Engine{config: cfg, storage: adapter, vectors: vectors, meta: meta, graph: graph, embedder: embedder}
}

// Find executes q's hybrid vector/metadata/graph plan and returns one
// page of fusion-scored, paginated results.
func (e *Engine) Find(ctx context.Context, q Query, opts Options) (Page, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	wv, wm := opts.WeightVector, opts.WeightMetadata
	if wv == 0 && wm == 0 {
		wv = 1
	}

	sig := signatureFor(q, opts)

	start := opts.Offset
	if opts.Cursor != "" {
		cs, ok := decodeCursor(opts.Cursor)
		if !ok || cs.Signature != sig {
			return Page{HasMore: false}, nil
		}
		start = cs.Position
	}

	restricted, candidateSet := e.candidateSet(q, opts)
	if q.Connected != nil {
		reach := e.reachableSet(*q.Connected)
		candidateSet = intersect(candidateSet, reach, restricted)
		restricted = true
	}

	var scored []Result
	var err error
	if q.Like != nil {
		// Fetch one more than the page needs so hasMore can be determined
		// from whether that extra candidate actually exists, rather than
		// from the size of a beam that was never asked to look further.
		scored, err = e.likeSearch(ctx, q, opts, restricted, candidateSet, wv, wm, start+opts.Limit+1)
	} else {
		scored, err = e.scanResults(ctx, q, candidateSet, restricted, opts, wm)
	}
	if err != nil {
		return Page{}, err
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})

	if start > len(scored) {
		start = len(scored)
	}
	end := start + opts.Limit
	if end > len(scored) {
		end = len(scored)
	}
	hasMore := end < len(scored)
	page := scored[start:end]

	var cursor string
	if hasMore {
		cursor = encodeCursor(cursorState{
			LastID:    lastID(page),
			LastScore: lastScore(page),
			Position:  end,
			Signature: sig,
		})
	}

	return Page{Results: page, HasMore: hasMore, Cursor: cursor}, nil
}

// FindSimilar implements the find_similar(id, options) supplemented
// feature: fetch the noun's stored vector and run the same pipeline as
// `like`, excluding the source id itself from the result page.
func (e *Engine) FindSimilar(ctx context.Context, id string, opts Options) (Page, error) {
	n, err := e.storage.GetNoun(ctx, id)
	if err != nil {
		return Page{}, err
	}

	fetchOpts := opts
	if fetchOpts.Limit <= 0 {
		fetchOpts.Limit = 10
	}
	fetchOpts.Limit++

	page, err := e.Find(ctx, Query{Like: append([]float32(nil), n.Vector...)}, fetchOpts)
	if err != nil {
		return Page{}, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	out := make([]Result, 0, len(page.Results))
	for _, r := range page.Results {
		if r.ID == id {
			continue
		}
		out = append(out, r)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	page.Results = out
	return page, nil
}

// GetFilterFields passes through to the metadata index's
// get_filter_fields() discovery surface.
func (e *Engine) GetFilterFields() []string { return e.meta.FilterFields() }

// GetFilterValues passes through to the metadata index's
// get_filter_values(field) discovery surface.
func (e *Engine) GetFilterValues(field string) []metadata.FieldValue { return e.meta.FilterValues(field) }

// candidateSet applies the selectivity gate: compute S from the
// metadata filter, and use it as the candidate set only when it is
// selective enough; otherwise fall back to the unrestricted universe so
// a filter matching too many ids does not restrict the search.
func (e *Engine) candidateSet(q Query, opts Options) (restricted bool, ids map[string]struct{}) {
	if q.Where == nil {
		return false, nil
	}
	matches := e.meta.IdsForFilter(*q.Where, !opts.ExcludeDeleted)
	threshold := e.config.SelectivityThreshold
	if threshold <= 0 {
		threshold = 10000
	}
	if len(matches) > threshold {
		return false, nil
	}
	return true, toSet(matches)
}

func (e *Engine) reachableSet(c Connected) map[string]struct{} {
	var ids []string
	switch {
	case c.From != "":
		ids = e.graph.Connected(c.From, c.Via)
	case c.To != "":
		ids = e.graph.ConnectedTo(c.To, c.Via)
	}
	return toSet(ids)
}

func intersect(a map[string]struct{}, b map[string]struct{}, aRestricted bool) map[string]struct{} {
	if !aRestricted {
		return b
	}
	out := make(map[string]struct{}, len(a))
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func (e *Engine) likeSearch(ctx context.Context, q Query, opts Options, restricted bool, candidateSet map[string]struct{}, wv, wm float64, k int) ([]Result, error) {
	vec, err := e.resolveVector(ctx, q.Like)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = opts.Limit
	}

	filter := func(id string) bool {
		if restricted {
			if _, ok := candidateSet[id]; !ok {
				return false
			}
		}
		return e.passesScalarFilters(ctx, id, opts)
	}

	hits, err := e.vectors.Search(vec, k, filter)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		if h.Kind != hnsw.KindNoun {
			continue
		}
		n, err := e.storage.GetNoun(ctx, h.ID)
		if err != nil {
			continue
		}
		boost := 0.0
		if q.Where != nil {
			boost = metadataBoost(n.Metadata.Flatten(), *q.Where)
		}
		score := wv*(1-h.Distance) + wm*boost
		out = append(out, Result{ID: h.ID, Score: score, Distance: h.Distance, Noun: n})
	}
	return out, nil
}

// scanResults handles the no-`like`-target case: the candidate set is
// returned ordered by id and paginated, with the metadata-boost term
// still contributing to score in case a
// caller set w_m without a vector target.
func (e *Engine) scanResults(ctx context.Context, q Query, candidateSet map[string]struct{}, restricted bool, opts Options, wm float64) ([]Result, error) {
	var ids []string
	if restricted {
		ids = make([]string, 0, len(candidateSet))
		for id := range candidateSet {
			ids = append(ids, id)
		}
	} else {
		ids = e.meta.AllIDs(!opts.ExcludeDeleted)
	}
	sort.Strings(ids)

	out := make([]Result, 0, len(ids))
	for _, id := range ids {
		if !e.passesScalarFilters(ctx, id, opts) {
			continue
		}
		n, err := e.storage.GetNoun(ctx, id)
		if err != nil {
			continue
		}
		boost := 0.0
		if q.Where != nil {
			boost = metadataBoost(n.Metadata.Flatten(), *q.Where)
		}
		out = append(out, Result{ID: id, Score: wm * boost, Noun: n})
	}
	return out, nil
}

func (e *Engine) passesScalarFilters(ctx context.Context, id string, opts Options) bool {
	if opts.ExcludeDeleted && e.meta.IsDeleted(id) {
		return false
	}
	if len(opts.ItemIDs) > 0 && !containsStr(opts.ItemIDs, id) {
		return false
	}
	if len(opts.NounTypes) > 0 {
		n, err := e.storage.GetNoun(ctx, id)
		if err != nil || !containsStr(opts.NounTypes, n.NounType) {
			return false
		}
	}
	return true
}

func (e *Engine) resolveVector(ctx context.Context, like any) ([]float32, error) {
	switch v := like.(type) {
	case []float32:
		return v, nil
	case string:
		return e.embedder.Embed(ctx, v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, errs.Wrap("find", errs.Validation, "", err)
		}
		return e.embedder.Embed(ctx, string(data))
	}
}

func metadataBoost(flat map[string]any, f metadata.Filter) float64 {
	if metadata.Matches(flat, f) {
		return 1
	}
	return 0
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func lastID(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	return results[len(results)-1].ID
}

func lastScore(results []Result) float64 {
	if len(results) == 0 {
		return 0
	}
	return results[len(results)-1].Score
}
