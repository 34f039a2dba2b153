// Package hnsw implements a hierarchical navigable small-world graph
// index over fixed-dimension vectors: heap-based beam search, random
// layer assignment, bidirectional neighbor linking, a neighbor-diversity
// heuristic at insert time, in-beam filter predicates, and full
// per-layer excise/re-stitch on hard delete.
package hnsw

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/brainyhq/brainy/pkg/errs"
	"github.com/brainyhq/brainy/pkg/vector"
)

// EntityKind distinguishes noun vectors from verb vectors sharing one
// graph: both live in a single index, tagged per node.
type EntityKind string

const (
	KindNoun EntityKind = "noun"
	KindVerb EntityKind = "verb"
)

// Config tunes the index.
type Config struct {
	Dim            int
	Metric         string
	M              int
	MMax0          int
	EfConstruction int
	EfSearch       int
	// Seed makes layer assignment reproducible: same seed + same
	// insertion order + same parameters always builds the same graph.
	Seed int64
}

// DefaultConfig returns the index's default tuning for the given
// dimension.
func DefaultConfig(dim int) Config {
	return Config{
		Dim:            dim,
		Metric:         vector.MetricCosine,
		M:              16,
		MMax0:          32,
		EfConstruction: 200,
		EfSearch:       200,
		Seed:           1,
	}
}

type node struct {
	id        string
	kind      EntityKind
	vector    []float32
	level     int
	neighbors [][]string // neighbors[layer] = neighbor ids
	mu        sync.RWMutex
}

// Index is a hierarchical navigable small-world graph over Brainy noun
// and verb vectors.
type Index struct {
	config Config
	kernel vector.Kernel

	mu         sync.RWMutex
	nodes      map[string]*node
	entryPoint string
	maxLevel   int

	rngMu sync.Mutex
	rng   *rand.Rand

	levelMultiplier float64
}

// New constructs an empty Index.
func New(cfg Config) (*Index, error) {
	kernel, err := vector.ParseKernel(cfg.Metric)
	if err != nil {
		return nil, err
	}
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.MMax0 <= 0 {
		cfg.MMax0 = 2 * cfg.M
	}
	return &Index{
		config:          cfg,
		kernel:          kernel,
		nodes:           make(map[string]*node),
		maxLevel:        -1,
		rng:             rand.New(rand.NewSource(cfg.Seed)),
		levelMultiplier: 1 / math.Log(float64(cfg.M)),
	}, nil
}

// Len returns the number of live nodes in the graph.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}

func (idx *Index) randomLevel() int {
	idx.rngMu.Lock()
	defer idx.rngMu.Unlock()
	u := idx.rng.Float64()
	for u == 0 {
		u = idx.rng.Float64()
	}
	return int(math.Floor(-math.Log(u) * idx.levelMultiplier))
}

// Insert adds id/vec to the graph at a randomly assigned layer,
// connecting it to its nearest neighbors at each layer down to 0.
func (idx *Index) Insert(id string, kind EntityKind, vec []float32) error {
	if len(vec) != idx.config.Dim {
		return errs.New("insert", errs.DimensionMismatch, id, "vector length does not match configured dimension")
	}

	level := idx.randomLevel()

	idx.mu.Lock()
	if _, exists := idx.nodes[id]; exists {
		idx.mu.Unlock()
		return idx.update(id, kind, vec)
	}

	n := &node{
		id:        id,
		kind:      kind,
		vector:    append([]float32(nil), vec...),
		level:     level,
		neighbors: make([][]string, level+1),
	}
	idx.nodes[id] = n

	if idx.entryPoint == "" {
		idx.entryPoint = id
		idx.maxLevel = level
		idx.mu.Unlock()
		return nil
	}
	entry := idx.entryPoint
	maxLevel := idx.maxLevel
	idx.mu.Unlock()

	cur := entry
	for l := maxLevel; l > level; l-- {
		cur = idx.greedyClosest(cur, vec, l)
	}

	for l := min(level, maxLevel); l >= 0; l-- {
		candidates := idx.searchLayer(cur, vec, idx.config.EfConstruction, l, nil)
		selected := idx.selectNeighbors(id, vec, candidates, idx.mMaxForLayer(l))
		idx.linkBidirectional(n, l, selected)
		if len(selected) > 0 {
			cur = selected[0].id
		}
	}

	if level > maxLevel {
		idx.mu.Lock()
		if level > idx.maxLevel {
			idx.maxLevel = level
			idx.entryPoint = id
		}
		idx.mu.Unlock()
	}
	return nil
}

func (idx *Index) mMaxForLayer(layer int) int {
	if layer == 0 {
		return idx.config.MMax0
	}
	return idx.config.M
}

// update replaces an existing node's vector in place. Used when Insert
// is called again for an id already present.
func (idx *Index) update(id string, kind EntityKind, vec []float32) error {
	idx.mu.RLock()
	n, ok := idx.nodes[id]
	idx.mu.RUnlock()
	if !ok {
		return idx.Insert(id, kind, vec)
	}
	n.mu.Lock()
	n.vector = append([]float32(nil), vec...)
	n.kind = kind
	n.mu.Unlock()
	return nil
}

func (idx *Index) greedyClosest(from string, target []float32, layer int) string {
	idx.mu.RLock()
	cur, ok := idx.nodes[from]
	idx.mu.RUnlock()
	if !ok {
		return from
	}
	for {
		cur.mu.RLock()
		var neighbors []string
		if layer < len(cur.neighbors) {
			neighbors = append([]string(nil), cur.neighbors[layer]...)
		}
		curVec := cur.vector
		cur.mu.RUnlock()

		bestDist, _ := idx.kernel(curVec, target)
		bestID := cur.id
		improved := false
		for _, nb := range neighbors {
			idx.mu.RLock()
			nbNode, ok := idx.nodes[nb]
			idx.mu.RUnlock()
			if !ok {
				continue
			}
			nbNode.mu.RLock()
			nbVec := nbNode.vector
			nbNode.mu.RUnlock()
			d, err := idx.kernel(nbVec, target)
			if err != nil {
				continue
			}
			if d < bestDist {
				bestDist = d
				bestID = nb
				improved = true
			}
		}
		if !improved {
			return bestID
		}
		idx.mu.RLock()
		cur = idx.nodes[bestID]
		idx.mu.RUnlock()
	}
}

type candidate struct {
	id   string
	dist float64
}

// searchLayer runs a beam search of width ef starting from entry,
// returning up to ef nearest candidates at the given layer ordered by
// ascending distance. If filter is non-nil, only candidates passing it
// are placed in the result set, but rejected candidates still have their
// neighbors expanded so connectivity through filtered-out nodes is
// preserved.
func (idx *Index) searchLayer(entry string, target []float32, ef int, layer int, filter func(string) bool) []candidate {
	visited := map[string]bool{entry: true}

	idx.mu.RLock()
	entryNode, ok := idx.nodes[entry]
	idx.mu.RUnlock()
	if !ok {
		return nil
	}
	entryNode.mu.RLock()
	entryVec := entryNode.vector
	entryNode.mu.RUnlock()
	entryDist, _ := idx.kernel(entryVec, target)

	candidates := &minHeap{{id: entry, dist: entryDist}}
	heap.Init(candidates)

	results := &maxHeap{}
	if filter == nil || filter(entry) {
		heap.Push(results, candidate{id: entry, dist: entryDist})
	}

	for candidates.Len() > 0 {
		cur := heap.Pop(candidates).(candidate)
		if results.Len() >= ef {
			worst := (*results)[0]
			if cur.dist > worst.dist {
				break
			}
		}

		idx.mu.RLock()
		curNode, ok := idx.nodes[cur.id]
		idx.mu.RUnlock()
		if !ok {
			continue
		}
		curNode.mu.RLock()
		var neighbors []string
		if layer < len(curNode.neighbors) {
			neighbors = append([]string(nil), curNode.neighbors[layer]...)
		}
		curNode.mu.RUnlock()

		for _, nb := range neighbors {
			if visited[nb] {
				continue
			}
			visited[nb] = true

			idx.mu.RLock()
			nbNode, ok := idx.nodes[nb]
			idx.mu.RUnlock()
			if !ok {
				continue
			}
			nbNode.mu.RLock()
			nbVec := nbNode.vector
			nbNode.mu.RUnlock()
			d, err := idx.kernel(nbVec, target)
			if err != nil {
				continue
			}

			if results.Len() < ef {
				heap.Push(candidates, candidate{id: nb, dist: d})
				if filter == nil || filter(nb) {
					heap.Push(results, candidate{id: nb, dist: d})
					if results.Len() > ef {
						heap.Pop(results)
					}
				}
			} else {
				worst := (*results)[0]
				if d < worst.dist {
					heap.Push(candidates, candidate{id: nb, dist: d})
					if filter == nil || filter(nb) {
						heap.Push(results, candidate{id: nb, dist: d})
						if results.Len() > ef {
							heap.Pop(results)
						}
					}
				}
			}
		}
	}

	out := make([]candidate, len(*results))
	copy(out, *results)
	sort.Slice(out, func(i, j int) bool {
		if out[i].dist != out[j].dist {
			return out[i].dist < out[j].dist
		}
		return out[i].id < out[j].id
	})
	return out
}

// selectNeighbors implements the "keep if it adds reach" diversity
// heuristic: candidates are considered nearest-first, and a candidate is
// only added to the selection if it is not strictly closer to an
// already-selected neighbor than it is to the inserting node itself. If
// that leaves fewer than m selected, the nearest pruned candidates fill
// the remaining slots.
func (idx *Index) selectNeighbors(id string, vec []float32, candidates []candidate, m int) []candidate {
	sorted := make([]candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].dist != sorted[j].dist {
			return sorted[i].dist < sorted[j].dist
		}
		return sorted[i].id < sorted[j].id
	})

	var selected []candidate
	for _, c := range sorted {
		if c.id == id {
			continue
		}
		if len(selected) >= m {
			break
		}
		addsReach := true
		idx.mu.RLock()
		cNode, ok := idx.nodes[c.id]
		idx.mu.RUnlock()
		if ok {
			cNode.mu.RLock()
			cVec := cNode.vector
			cNode.mu.RUnlock()
			for _, s := range selected {
				idx.mu.RLock()
				sNode, ok := idx.nodes[s.id]
				idx.mu.RUnlock()
				if !ok {
					continue
				}
				sNode.mu.RLock()
				sVec := sNode.vector
				sNode.mu.RUnlock()
				distToSelected, err := idx.kernel(cVec, sVec)
				if err != nil {
					continue
				}
				if distToSelected < c.dist {
					addsReach = false
					break
				}
			}
		}
		if addsReach {
			selected = append(selected, c)
		}
	}
	// Fill remaining capacity with the nearest leftovers if the
	// diversity filter pruned too aggressively, to avoid under-connected
	// graphs on sparse data.
	if len(selected) < m {
		have := make(map[string]bool, len(selected))
		for _, s := range selected {
			have[s.id] = true
		}
		for _, c := range sorted {
			if len(selected) >= m {
				break
			}
			if c.id == id || have[c.id] {
				continue
			}
			selected = append(selected, c)
		}
	}
	return selected
}

func (idx *Index) linkBidirectional(n *node, layer int, selected []candidate) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n.mu.Lock()
	for _, c := range selected {
		n.neighbors[layer] = append(n.neighbors[layer], c.id)
	}
	n.mu.Unlock()

	mMax := idx.mMaxForLayer(layer)
	for _, c := range selected {
		nb, ok := idx.nodes[c.id]
		if !ok {
			continue
		}
		nb.mu.Lock()
		for len(nb.neighbors) <= layer {
			nb.neighbors = append(nb.neighbors, nil)
		}
		nb.neighbors[layer] = append(nb.neighbors[layer], n.id)
		if len(nb.neighbors[layer]) > mMax {
			nb.neighbors[layer] = idx.pruneNeighbors(nb.id, nb.vector, nb.neighbors[layer], mMax)
		}
		nb.mu.Unlock()
	}
}

// pruneNeighbors re-ranks a node's neighbor list by distance and keeps
// the closest mMax, used when linking pushes a list over capacity.
func (idx *Index) pruneNeighbors(id string, vec []float32, ids []string, mMax int) []string {
	cands := make([]candidate, 0, len(ids))
	for _, nid := range ids {
		nb, ok := idx.nodes[nid]
		if !ok {
			continue
		}
		nb.mu.RLock()
		nbVec := nb.vector
		nb.mu.RUnlock()
		d, err := idx.kernel(vec, nbVec)
		if err != nil {
			continue
		}
		cands = append(cands, candidate{id: nid, dist: d})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].id < cands[j].id
	})
	if len(cands) > mMax {
		cands = cands[:mMax]
	}
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.id
	}
	return out
}

// Result is one hit returned by Search.
type Result struct {
	ID       string
	Kind     EntityKind
	Distance float64
}

// Search returns up to k nearest neighbors of query, restricted to ids
// for which filter(id) is true (or all ids if filter is nil). filter is
// applied inside the beam: rejected nodes still expand their neighbors
// so connectivity through them is preserved.
func (idx *Index) Search(query []float32, k int, filter func(string) bool) ([]Result, error) {
	if len(query) != idx.config.Dim {
		return nil, errs.New("search", errs.DimensionMismatch, "", "query vector length does not match configured dimension")
	}

	idx.mu.RLock()
	entry := idx.entryPoint
	maxLevel := idx.maxLevel
	empty := len(idx.nodes) == 0
	idx.mu.RUnlock()
	if empty {
		return nil, nil
	}

	cur := entry
	for l := maxLevel; l > 0; l-- {
		cur = idx.greedyClosest(cur, query, l)
	}

	ef := k
	if idx.config.EfSearch > ef {
		ef = idx.config.EfSearch
	}
	cands := idx.searchLayer(cur, query, ef, 0, filter)

	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]Result, len(cands))
	for i, c := range cands {
		idx.mu.RLock()
		n := idx.nodes[c.id]
		idx.mu.RUnlock()
		var kind EntityKind
		if n != nil {
			kind = n.kind
		}
		out[i] = Result{ID: c.id, Kind: kind, Distance: c.dist}
	}
	return out, nil
}

// HardDelete excises id from the graph at every layer it participates
// in, re-stitching each lost edge (u, id) by connecting u to the best
// replacement neighbor drawn from id's former neighbor set at that
// layer. This is the cleanup coordinator's physical-removal step;
// normal soft-delete is handled entirely by the caller's filter
// predicate and never calls HardDelete.
func (idx *Index) HardDelete(id string) error {
	idx.mu.Lock()
	n, ok := idx.nodes[id]
	if !ok {
		idx.mu.Unlock()
		return errs.New("hard_delete", errs.NotFound, id, "node not found in hnsw index")
	}
	delete(idx.nodes, id)

	n.mu.RLock()
	neighborsByLayer := make([][]string, len(n.neighbors))
	for l, ns := range n.neighbors {
		neighborsByLayer[l] = append([]string(nil), ns...)
	}
	n.mu.RUnlock()

	for layer, former := range neighborsByLayer {
		for _, u := range former {
			un, ok := idx.nodes[u]
			if !ok {
				continue
			}
			un.mu.Lock()
			if layer < len(un.neighbors) {
				un.neighbors[layer] = removeID(un.neighbors[layer], id)
			}
			un.mu.Unlock()

			replacement := idx.bestReplacement(u, id, former, layer)
			if replacement == "" {
				continue
			}
			un.mu.Lock()
			for len(un.neighbors) <= layer {
				un.neighbors = append(un.neighbors, nil)
			}
			if !containsStr(un.neighbors[layer], replacement) {
				un.neighbors[layer] = append(un.neighbors[layer], replacement)
			}
			un.mu.Unlock()
		}
	}

	if idx.entryPoint == id {
		idx.entryPoint = ""
		idx.maxLevel = -1
		for otherID, other := range idx.nodes {
			other.mu.RLock()
			lvl := other.level
			other.mu.RUnlock()
			if lvl > idx.maxLevel {
				idx.maxLevel = lvl
				idx.entryPoint = otherID
			}
		}
	}
	idx.mu.Unlock()
	return nil
}

func (idx *Index) bestReplacement(u, removedID string, formerNeighbors []string, layer int) string {
	un, ok := idx.nodes[u]
	if !ok {
		return ""
	}
	un.mu.RLock()
	uVec := un.vector
	un.mu.RUnlock()

	var best string
	bestDist := math.Inf(1)
	for _, cand := range formerNeighbors {
		if cand == u || cand == removedID {
			continue
		}
		cn, ok := idx.nodes[cand]
		if !ok {
			continue
		}
		cn.mu.RLock()
		cVec := cn.vector
		cn.mu.RUnlock()
		d, err := idx.kernel(uVec, cVec)
		if err != nil {
			continue
		}
		if d < bestDist {
			bestDist = d
			best = cand
		}
	}
	return best
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func containsStr(ids []string, target string) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
