package metadata

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	roaring "github.com/RoaringBitmap/roaring/v2"
)

const deletedField = "_brainy.deleted"

type sortedEntry struct {
	normalized string
	raw        any
	bitmap     *roaring.Bitmap
}

// Index is the inverted hash index plus a lazily-built sorted index over
// flattened dot-path metadata keys, backed by Roaring Bitmaps.
type Index struct {
	mu sync.RWMutex

	ids *IDRegistry

	hash        map[string]map[string]*roaring.Bitmap
	valueCounts map[string]map[string]int
	rawByNorm   map[string]map[string]any

	sorted map[string][]sortedEntry
	dirty  map[string]bool

	deleted *roaring.Bitmap

	// universe tracks every id currently indexed (RemoveFromIndex drops
	// it), for `not` complements.
	universe *roaring.Bitmap
}

// New constructs an empty metadata Index.
func New() *Index {
	return &Index{
		ids:         NewIDRegistry(),
		hash:        make(map[string]map[string]*roaring.Bitmap),
		valueCounts: make(map[string]map[string]int),
		rawByNorm:   make(map[string]map[string]any),
		sorted:      make(map[string][]sortedEntry),
		dirty:       make(map[string]bool),
		deleted:     roaring.New(),
		universe:    roaring.New(),
	}
}

// AddToIndex walks flat (a dot-path -> value map, e.g. from
// storage.Metadata.Flatten) and writes each leaf into the hash index,
// marking sorted-index fields dirty and tracking field/value counts for
// discovery (get_filter_fields/get_filter_values).
func (idx *Index) AddToIndex(id string, flat map[string]any) {
	dense := idx.ids.Dense(id)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.universe.Add(dense)

	for field, value := range flat {
		norm := Normalize(value)
		idx.addLeaf(field, norm, value, dense)

		if field == deletedField {
			if b, _ := value.(bool); b {
				idx.deleted.Add(dense)
			} else {
				idx.deleted.Remove(dense)
			}
		}
	}
}

func (idx *Index) addLeaf(field, norm string, value any, dense uint32) {
	if idx.hash[field] == nil {
		idx.hash[field] = make(map[string]*roaring.Bitmap)
		idx.valueCounts[field] = make(map[string]int)
		idx.rawByNorm[field] = make(map[string]any)
	}
	bm := idx.hash[field][norm]
	if bm == nil {
		bm = roaring.New()
		idx.hash[field][norm] = bm
	}
	if !bm.Contains(dense) {
		idx.valueCounts[field][norm]++
	}
	bm.Add(dense)
	idx.rawByNorm[field][norm] = value

	if IsOrdered(value) {
		idx.dirty[field] = true
	}
}

// RemoveFromIndex is the inverse of AddToIndex: it removes id from every
// posting list for the given flattened metadata snapshot. Callers pass
// the metadata the id was last indexed with.
func (idx *Index) RemoveFromIndex(id string, flat map[string]any) {
	dense := idx.ids.Dense(id)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for field, value := range flat {
		norm := Normalize(value)
		if byVal, ok := idx.hash[field]; ok {
			if bm, ok := byVal[norm]; ok && bm.Contains(dense) {
				bm.Remove(dense)
				idx.valueCounts[field][norm]--
				if idx.valueCounts[field][norm] <= 0 {
					delete(idx.valueCounts[field], norm)
					delete(byVal, norm)
					delete(idx.rawByNorm[field], norm)
				}
			}
		}
		if IsOrdered(value) {
			idx.dirty[field] = true
		}
	}
	idx.universe.Remove(dense)
	idx.deleted.Remove(dense)
	idx.ids.Forget(id)
}

func (idx *Index) buildSortedLocked(field string) []sortedEntry {
	if !idx.dirty[field] {
		if entries, ok := idx.sorted[field]; ok {
			return entries
		}
	}
	byVal := idx.hash[field]
	entries := make([]sortedEntry, 0, len(byVal))
	for norm, bm := range byVal {
		entries = append(entries, sortedEntry{normalized: norm, raw: idx.rawByNorm[field][norm], bitmap: bm})
	}
	sort.Slice(entries, func(i, j int) bool {
		fi, oki := AsFloat64(entries[i].raw)
		fj, okj := AsFloat64(entries[j].raw)
		if oki && okj {
			return fi < fj
		}
		return entries[i].normalized < entries[j].normalized
	})
	idx.sorted[field] = entries
	idx.dirty[field] = false
	return entries
}

// idsFromBitmap converts a bitmap of dense ids back to sparse string ids
// using the registry, dropping any entries that no longer resolve
// (should not happen in practice, but RemoveFromIndex is defensive).
func (idx *Index) idsFromBitmap(bm *roaring.Bitmap) []string {
	out := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		d := it.Next()
		if id, ok := idx.ids.Sparse(d); ok {
			out = append(out, id)
		}
	}
	return out
}

// IdsForFilter evaluates filter and returns a deduplicated, ascending-id
// ordered list of matches. Unless includeDeleted is true, the result
// always excludes ids with _brainy.deleted=true via a
// single bitmap AndNot, giving O(1) soft-delete filtering regardless of
// filter complexity.
func (idx *Index) IdsForFilter(filter Filter, includeDeleted bool) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	result := idx.eval(filter)
	if !includeDeleted {
		result = roaring.AndNot(result, idx.deleted)
	}
	ids := idx.idsFromBitmap(result)
	sort.Strings(ids)
	return ids
}

func (idx *Index) eval(f Filter) *roaring.Bitmap {
	if isLogical(f.Op) {
		return idx.evalLogical(f)
	}
	return idx.evalLeaf(f)
}

func (idx *Index) evalLogical(f Filter) *roaring.Bitmap {
	switch f.Op {
	case OpNot:
		if len(f.Sub) != 1 {
			return roaring.New()
		}
		inner := idx.eval(f.Sub[0])
		return roaring.AndNot(idx.universe, inner)
	case OpAllOf:
		if len(f.Sub) == 0 {
			return idx.universe.Clone()
		}
		sets := make([]*roaring.Bitmap, len(f.Sub))
		for i, sub := range f.Sub {
			sets[i] = idx.eval(sub)
		}
		sort.Slice(sets, func(i, j int) bool { return sets[i].GetCardinality() < sets[j].GetCardinality() })
		out := sets[0].Clone()
		for _, s := range sets[1:] {
			out.And(s)
		}
		return out
	case OpAnyOf:
		out := roaring.New()
		for _, sub := range f.Sub {
			out.Or(idx.eval(sub))
		}
		return out
	default:
		return roaring.New()
	}
}

func (idx *Index) evalLeaf(f Filter) *roaring.Bitmap {
	switch f.Op {
	case OpEquals:
		return idx.bitmapFor(f.Field, Normalize(f.Value))
	case OpNotEquals:
		return roaring.AndNot(idx.fieldUniverse(f.Field), idx.bitmapFor(f.Field, Normalize(f.Value)))
	case OpExists:
		return idx.fieldUniverse(f.Field)
	case OpMissing:
		return roaring.AndNot(idx.universe, idx.fieldUniverse(f.Field))
	case OpOneOf:
		out := roaring.New()
		for _, v := range f.Values {
			out.Or(idx.bitmapFor(f.Field, Normalize(v)))
		}
		return out
	case OpNoneOf:
		out := idx.fieldUniverse(f.Field).Clone()
		for _, v := range f.Values {
			out.AndNot(idx.bitmapFor(f.Field, Normalize(v)))
		}
		return out
	case OpGt, OpGte, OpLt, OpLte:
		return idx.rangeQuery(f.Field, f.Op, f.Value, nil)
	case OpBetween:
		return idx.rangeQuery(f.Field, OpBetween, f.Low, f.High)
	case OpContains, OpHasAll:
		return idx.arrayMembership(f)
	case OpExcludes:
		return roaring.AndNot(idx.fieldUniverse(f.Field), idx.arrayMembership(Filter{Field: f.Field, Op: OpContains, Value: f.Value}))
	case OpLength:
		return idx.lengthMatch(f)
	case OpMatches, OpStartsWith, OpEndsWith:
		return idx.scanMatch(f)
	default:
		return roaring.New()
	}
}

func (idx *Index) bitmapFor(field, norm string) *roaring.Bitmap {
	byVal, ok := idx.hash[field]
	if !ok {
		return roaring.New()
	}
	bm, ok := byVal[norm]
	if !ok {
		return roaring.New()
	}
	return bm.Clone()
}

func (idx *Index) fieldUniverse(field string) *roaring.Bitmap {
	byVal, ok := idx.hash[field]
	if !ok {
		return roaring.New()
	}
	out := roaring.New()
	for _, bm := range byVal {
		out.Or(bm)
	}
	return out
}

func (idx *Index) rangeQuery(field string, op Operator, v, high any) *roaring.Bitmap {
	entries := idx.buildSortedLocked(field)
	out := roaring.New()
	lowF, lowOK := AsFloat64(v)
	highF, highOK := AsFloat64(high)
	for _, e := range entries {
		ef, ok := AsFloat64(e.raw)
		if !ok {
			continue
		}
		var match bool
		switch op {
		case OpGt:
			match = lowOK && ef > lowF
		case OpGte:
			match = lowOK && ef >= lowF
		case OpLt:
			match = lowOK && ef < lowF
		case OpLte:
			match = lowOK && ef <= lowF
		case OpBetween:
			match = lowOK && highOK && ef >= lowF && ef <= highF
		}
		if match {
			out.Or(e.bitmap)
		}
	}
	return out
}

func (idx *Index) arrayMembership(f Filter) *roaring.Bitmap {
	byVal, ok := idx.hash[f.Field]
	if !ok {
		return roaring.New()
	}
	out := roaring.New()
	needles := f.Values
	if f.Value != nil {
		needles = append(needles, f.Value)
	}
	for norm, bm := range byVal {
		raw, ok := idx.rawByNorm[f.Field][norm]
		if !ok {
			continue
		}
		arr, ok := raw.([]any)
		if !ok {
			continue
		}
		if f.Op == OpHasAll {
			if containsAll(arr, needles) {
				out.Or(bm)
			}
		} else {
			if containsAny(arr, needles) {
				out.Or(bm)
			}
		}
	}
	return out
}

func containsAny(arr []any, needles []any) bool {
	for _, n := range needles {
		for _, a := range arr {
			if Normalize(a) == Normalize(n) {
				return true
			}
		}
	}
	return false
}

func containsAll(arr []any, needles []any) bool {
	for _, n := range needles {
		found := false
		for _, a := range arr {
			if Normalize(a) == Normalize(n) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (idx *Index) lengthMatch(f Filter) *roaring.Bitmap {
	byVal, ok := idx.hash[f.Field]
	if !ok {
		return roaring.New()
	}
	wantLen, _ := AsFloat64(f.Value)
	out := roaring.New()
	for norm, bm := range byVal {
		raw := idx.rawByNorm[f.Field][norm]
		var l int
		switch t := raw.(type) {
		case string:
			l = len(t)
		case []any:
			l = len(t)
		default:
			continue
		}
		if float64(l) == wantLen {
			out.Or(bm)
		}
	}
	return out
}

func (idx *Index) scanMatch(f Filter) *roaring.Bitmap {
	byVal, ok := idx.hash[f.Field]
	if !ok {
		return roaring.New()
	}
	out := roaring.New()
	var re *regexp.Regexp
	if f.Op == OpMatches {
		pattern, _ := f.Value.(string)
		re, _ = regexp.Compile(pattern)
	}
	needle, _ := f.Value.(string)
	needle = strings.ToLower(needle)
	for norm, bm := range byVal {
		raw, _ := idx.rawByNorm[f.Field][norm].(string)
		s := strings.ToLower(raw)
		var match bool
		switch f.Op {
		case OpMatches:
			match = re != nil && re.MatchString(raw)
		case OpStartsWith:
			match = strings.HasPrefix(s, needle)
		case OpEndsWith:
			match = strings.HasSuffix(s, needle)
		}
		if match {
			out.Or(bm)
		}
	}
	return out
}

// FilterFields returns every indexed dot-path, for get_filter_fields().
func (idx *Index) FilterFields() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.hash))
	for field := range idx.hash {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

// FieldValue is one distinct normalized value for a field, with its
// posting-set cardinality, for get_filter_values().
type FieldValue struct {
	Value string
	Count int
}

// FilterValues returns the distinct normalized values and counts indexed
// for field, for get_filter_values(field).
func (idx *Index) FilterValues(field string) []FieldValue {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	counts, ok := idx.valueCounts[field]
	if !ok {
		return nil
	}
	out := make([]FieldValue, 0, len(counts))
	for v, c := range counts {
		out = append(out, FieldValue{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// Len returns the number of distinct ids currently indexed (including
// soft-deleted ones; ids passed to RemoveFromIndex are not counted).
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return int(idx.universe.GetCardinality())
}

// AllIDs returns every indexed id, optionally including soft-deleted
// ones, in ascending order. Used by the query engine's unrestricted
// (no metadata filter, or non-selective filter) candidate set.
func (idx *Index) AllIDs(includeDeleted bool) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	result := idx.universe
	if !includeDeleted {
		result = roaring.AndNot(idx.universe, idx.deleted)
	}
	ids := idx.idsFromBitmap(result)
	sort.Strings(ids)
	return ids
}

// IsDeleted reports whether id is currently marked _brainy.deleted. An
// id never seen by AddToIndex is reported as not deleted.
func (idx *Index) IsDeleted(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	dense, ok := idx.ids.Peek(id)
	if !ok {
		return false
	}
	return idx.deleted.Contains(dense)
}
