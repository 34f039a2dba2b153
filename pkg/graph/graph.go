// Package graph keeps the in-memory typed noun/verb adjacency maps
// backing the graph store component: source_id -> verb ids, target_id ->
// verb ids, verb_type -> verb ids. It does not persist anything itself
// (pkg/storage owns durable verb records); it is the fast-path index the
// query engine's `connected` clause and cascade-delete walk against.
package graph

import "sync"

// VerbRef is the minimal adjacency-relevant shape of a verb.
type VerbRef struct {
	ID       string
	Source   string
	Target   string
	VerbType string
}

// Graph is the live adjacency index. The facade's write paths mutate it
// under the same writer lock that guards the HNSW index; the cleanup
// coordinator mutates it without that lock. Graph's own mutex makes each
// method safe for concurrent use and does not coordinate with any other
// component.
type Graph struct {
	mu sync.RWMutex

	bySource map[string]map[string]struct{}
	byTarget map[string]map[string]struct{}
	byType   map[string]map[string]struct{}
	verbs    map[string]VerbRef
}

// New constructs an empty Graph.
func New() *Graph {
	return &Graph{
		bySource: make(map[string]map[string]struct{}),
		byTarget: make(map[string]map[string]struct{}),
		byType:   make(map[string]map[string]struct{}),
		verbs:    make(map[string]VerbRef),
	}
}

// AddVerb records a new edge in the adjacency maps. Calling it again for
// an existing verb id first removes the prior adjacency entries, so
// updates that change source/target/type don't leave stale links.
func (g *Graph) AddVerb(v VerbRef) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeLocked(v.ID)

	g.verbs[v.ID] = v
	addTo(g.bySource, v.Source, v.ID)
	addTo(g.byTarget, v.Target, v.ID)
	addTo(g.byType, v.VerbType, v.ID)
}

func addTo(m map[string]map[string]struct{}, key, id string) {
	if m[key] == nil {
		m[key] = make(map[string]struct{})
	}
	m[key][id] = struct{}{}
}

// RemoveVerb deletes v from all adjacency maps.
func (g *Graph) RemoveVerb(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeLocked(id)
}

func (g *Graph) removeLocked(id string) {
	v, ok := g.verbs[id]
	if !ok {
		return
	}
	delete(g.bySource[v.Source], id)
	delete(g.byTarget[v.Target], id)
	delete(g.byType[v.VerbType], id)
	delete(g.verbs, id)
}

func keysOf(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// VerbsBySource returns the ids of verbs whose source is id.
func (g *Graph) VerbsBySource(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return keysOf(g.bySource[id])
}

// VerbsByTarget returns the ids of verbs whose target is id.
func (g *Graph) VerbsByTarget(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return keysOf(g.byTarget[id])
}

// VerbsByType returns the ids of verbs of the given verb_type.
func (g *Graph) VerbsByType(verbType string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return keysOf(g.byType[verbType])
}

// VerbsForNoun returns the union of verbs incident to id as either
// source or target.
func (g *Graph) VerbsForNoun(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[string]struct{})
	for v := range g.bySource[id] {
		seen[v] = struct{}{}
	}
	for v := range g.byTarget[id] {
		seen[v] = struct{}{}
	}
	return keysOf(seen)
}

// Connected returns the set of noun ids reachable from `from` via verbs
// of type via (or any type, if via is empty), one hop, used by the query
// engine's `connected` clause.
func (g *Graph) Connected(from string, via string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[string]struct{})
	for vid := range g.bySource[from] {
		v := g.verbs[vid]
		if via != "" && v.VerbType != via {
			continue
		}
		seen[v.Target] = struct{}{}
	}
	return keysOf(seen)
}

// ConnectedTo returns the set of noun ids that reach `to` via verbs of
// type via (or any type, if via is empty) — the mirror of Connected for
// `connected: {to: ...}` queries.
func (g *Graph) ConnectedTo(to string, via string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[string]struct{})
	for vid := range g.byTarget[to] {
		v := g.verbs[vid]
		if via != "" && v.VerbType != via {
			continue
		}
		seen[v.Source] = struct{}{}
	}
	return keysOf(seen)
}

// CascadeDeleteNoun removes every verb incident to nounID (as source or
// target) from the adjacency maps and returns their ids, so the caller
// can also purge them from storage, the HNSW index, and the metadata
// index.
func (g *Graph) CascadeDeleteNoun(nounID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := make(map[string]struct{})
	for v := range g.bySource[nounID] {
		seen[v] = struct{}{}
	}
	for v := range g.byTarget[nounID] {
		seen[v] = struct{}{}
	}
	ids := keysOf(seen)
	for _, id := range ids {
		g.removeLocked(id)
	}
	return ids
}

// Len returns the number of verbs currently tracked.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.verbs)
}
