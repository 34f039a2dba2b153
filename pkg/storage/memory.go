package storage

import (
	"context"
	"sync"
	"time"

	"github.com/brainyhq/brainy/pkg/errs"
)

// MemoryAdapter is an in-memory Adapter implementation used by tests and
// ephemeral-mode databases: a single RWMutex guarding plain Go maps,
// with secondary adjacency maps kept in sync on every write.
type MemoryAdapter struct {
	mu sync.RWMutex

	nouns map[string]*Noun
	verbs map[string]*Verb

	nounMeta map[string]Metadata
	verbMeta map[string]Metadata

	verbsBySource map[string]map[string]struct{}
	verbsByTarget map[string]map[string]struct{}

	stats   Statistics
	changes []ChangeRecord
	seq     uint64
}

// NewMemoryAdapter constructs an empty MemoryAdapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		nouns:         make(map[string]*Noun),
		verbs:         make(map[string]*Verb),
		nounMeta:      make(map[string]Metadata),
		verbMeta:      make(map[string]Metadata),
		verbsBySource: make(map[string]map[string]struct{}),
		verbsByTarget: make(map[string]map[string]struct{}),
		stats:         NewStatistics(),
	}
}

func (m *MemoryAdapter) Init(ctx context.Context) error { return nil }

func (m *MemoryAdapter) GetNoun(ctx context.Context, id string) (*Noun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nouns[id]
	if !ok {
		return nil, errs.New("get_noun", errs.NotFound, id, "noun not found")
	}
	cp := *n
	return &cp, nil
}

func (m *MemoryAdapter) SaveNoun(ctx context.Context, n *Noun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.nouns[n.ID] = &cp
	m.nounMeta[n.ID] = n.Metadata
	return nil
}

func (m *MemoryAdapter) DeleteNoun(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nouns, id)
	delete(m.nounMeta, id)
	return nil
}

func (m *MemoryAdapter) GetVerb(ctx context.Context, id string) (*Verb, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.verbs[id]
	if !ok {
		return nil, errs.New("get_verb", errs.NotFound, id, "verb not found")
	}
	cp := *v
	return &cp, nil
}

func (m *MemoryAdapter) SaveVerb(ctx context.Context, v *Verb) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.verbs[v.ID] = &cp
	m.verbMeta[v.ID] = v.Metadata

	if m.verbsBySource[v.Source] == nil {
		m.verbsBySource[v.Source] = make(map[string]struct{})
	}
	m.verbsBySource[v.Source][v.ID] = struct{}{}

	if m.verbsByTarget[v.Target] == nil {
		m.verbsByTarget[v.Target] = make(map[string]struct{})
	}
	m.verbsByTarget[v.Target][v.ID] = struct{}{}
	return nil
}

func (m *MemoryAdapter) DeleteVerb(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.verbs[id]
	if ok {
		delete(m.verbsBySource[v.Source], id)
		delete(m.verbsByTarget[v.Target], id)
	}
	delete(m.verbs, id)
	delete(m.verbMeta, id)
	return nil
}

func (m *MemoryAdapter) GetNouns(ctx context.Context, p Pagination, f ListFilter) ([]*Noun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*Noun
	for _, n := range m.nouns {
		if !f.IncludeDeleted && n.Metadata.Brainy.Deleted {
			continue
		}
		if len(f.Types) > 0 && !containsStr(f.Types, n.NounType) {
			continue
		}
		if len(f.IDs) > 0 && !containsStr(f.IDs, n.ID) {
			continue
		}
		cp := *n
		matched = append(matched, &cp)
	}
	return paginateNouns(matched, p), nil
}

func (m *MemoryAdapter) GetVerbs(ctx context.Context, p Pagination, f ListFilter) ([]*Verb, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*Verb
	for _, v := range m.verbs {
		if !f.IncludeDeleted && v.Metadata.Brainy.Deleted {
			continue
		}
		if len(f.Types) > 0 && !containsStr(f.Types, v.VerbType) {
			continue
		}
		if len(f.IDs) > 0 && !containsStr(f.IDs, v.ID) {
			continue
		}
		cp := *v
		matched = append(matched, &cp)
	}
	return paginateVerbs(matched, p), nil
}

func (m *MemoryAdapter) GetVerbsBySource(ctx context.Context, id string) ([]*Verb, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Verb
	for vid := range m.verbsBySource[id] {
		if v, ok := m.verbs[vid]; ok {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) GetVerbsByTarget(ctx context.Context, id string) ([]*Verb, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Verb
	for vid := range m.verbsByTarget[id] {
		if v, ok := m.verbs[vid]; ok {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) GetMetadata(ctx context.Context, id string) (*Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	md, ok := m.nounMeta[id]
	if !ok {
		return nil, errs.New("get_metadata", errs.NotFound, id, "metadata not found")
	}
	return &md, nil
}

func (m *MemoryAdapter) SaveMetadata(ctx context.Context, id string, md Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nounMeta[id] = md
	if n, ok := m.nouns[id]; ok {
		n.Metadata = md
	}
	return nil
}

func (m *MemoryAdapter) GetVerbMetadata(ctx context.Context, id string) (*Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	md, ok := m.verbMeta[id]
	if !ok {
		return nil, errs.New("get_verb_metadata", errs.NotFound, id, "metadata not found")
	}
	return &md, nil
}

func (m *MemoryAdapter) SaveVerbMetadata(ctx context.Context, id string, md Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verbMeta[id] = md
	if v, ok := m.verbs[id]; ok {
		v.Metadata = md
	}
	return nil
}

func (m *MemoryAdapter) GetStatistics(ctx context.Context) (Statistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := m.stats
	cp.Counts = make(map[StatKind]int64, len(m.stats.Counts))
	for k, v := range m.stats.Counts {
		cp.Counts[k] = v
	}
	return cp, nil
}

func (m *MemoryAdapter) SaveStatistics(ctx context.Context, s Statistics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = s
	return nil
}

func (m *MemoryAdapter) IncrementStatistic(ctx context.Context, kind StatKind, by int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stats.Counts == nil {
		m.stats.Counts = make(map[StatKind]int64)
	}
	m.stats.Counts[kind] += by
	m.stats.UpdatedAt = time.Now().UnixNano()
	return nil
}

func (m *MemoryAdapter) GetChangesSince(ctx context.Context, seq uint64, limit int) ([]ChangeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ChangeRecord
	for _, c := range m.changes {
		if c.Seq <= seq {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryAdapter) AppendChange(ctx context.Context, rec ChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	rec.Seq = m.seq
	m.changes = append(m.changes, rec)
	return nil
}

func (m *MemoryAdapter) GetStorageStatus(ctx context.Context) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		Type:  "memory",
		Used:  int64(len(m.nouns) + len(m.verbs)),
		Quota: 0,
		Details: map[string]any{
			"nouns": len(m.nouns),
			"verbs": len(m.verbs),
		},
	}, nil
}

func (m *MemoryAdapter) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nouns = make(map[string]*Noun)
	m.verbs = make(map[string]*Verb)
	m.nounMeta = make(map[string]Metadata)
	m.verbMeta = make(map[string]Metadata)
	m.verbsBySource = make(map[string]map[string]struct{})
	m.verbsByTarget = make(map[string]map[string]struct{})
	m.changes = nil
	m.seq = 0
	m.stats = NewStatistics()
	return nil
}

func (m *MemoryAdapter) Close() error { return nil }

func containsStr(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func paginateNouns(items []*Noun, p Pagination) []*Noun {
	if p.Offset >= len(items) {
		return nil
	}
	end := len(items)
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
	}
	return items[p.Offset:end]
}

func paginateVerbs(items []*Verb, p Pagination) []*Verb {
	if p.Offset >= len(items) {
		return nil
	}
	end := len(items)
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
	}
	return items[p.Offset:end]
}

var _ Adapter = (*MemoryAdapter)(nil)
