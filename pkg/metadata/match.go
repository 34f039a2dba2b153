package metadata

import (
	"regexp"
	"strings"
)

// Matches reports whether flat (a flattened metadata map, e.g. from
// storage.Metadata.Flatten) satisfies f, evaluated directly against the
// raw values rather than through the posting-list index. The query
// engine's fusion scoring uses this for its per-result metadata_boost
// term, where a single predicate check is cheaper than a bitmap lookup.
func Matches(flat map[string]any, f Filter) bool {
	if isLogical(f.Op) {
		return matchLogical(flat, f)
	}
	return matchLeaf(flat, f)
}

func matchLogical(flat map[string]any, f Filter) bool {
	switch f.Op {
	case OpNot:
		if len(f.Sub) != 1 {
			return false
		}
		return !Matches(flat, f.Sub[0])
	case OpAllOf:
		for _, sub := range f.Sub {
			if !Matches(flat, sub) {
				return false
			}
		}
		return true
	case OpAnyOf:
		for _, sub := range f.Sub {
			if Matches(flat, sub) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func matchLeaf(flat map[string]any, f Filter) bool {
	v, exists := flat[f.Field]
	switch f.Op {
	case OpExists:
		return exists
	case OpMissing:
		return !exists
	}
	if !exists {
		return false
	}

	switch f.Op {
	case OpEquals:
		return Normalize(v) == Normalize(f.Value)
	case OpNotEquals:
		return Normalize(v) != Normalize(f.Value)
	case OpGt, OpGte, OpLt, OpLte:
		fv, ok := AsFloat64(v)
		want, okWant := AsFloat64(f.Value)
		if !ok || !okWant {
			return false
		}
		switch f.Op {
		case OpGt:
			return fv > want
		case OpGte:
			return fv >= want
		case OpLt:
			return fv < want
		default:
			return fv <= want
		}
	case OpBetween:
		fv, ok := AsFloat64(v)
		low, okLow := AsFloat64(f.Low)
		high, okHigh := AsFloat64(f.High)
		return ok && okLow && okHigh && fv >= low && fv <= high
	case OpOneOf:
		for _, candidate := range f.Values {
			if Normalize(v) == Normalize(candidate) {
				return true
			}
		}
		return false
	case OpNoneOf:
		for _, candidate := range f.Values {
			if Normalize(v) == Normalize(candidate) {
				return false
			}
		}
		return true
	case OpContains:
		arr, ok := v.([]any)
		return ok && containsAny(arr, []any{f.Value})
	case OpHasAll:
		arr, ok := v.([]any)
		return ok && containsAll(arr, f.Values)
	case OpExcludes:
		arr, ok := v.([]any)
		return ok && !containsAny(arr, []any{f.Value})
	case OpLength:
		want, _ := AsFloat64(f.Value)
		switch t := v.(type) {
		case string:
			return float64(len(t)) == want
		case []any:
			return float64(len(t)) == want
		default:
			return false
		}
	case OpMatches:
		s, ok := v.(string)
		if !ok {
			return false
		}
		pattern, _ := f.Value.(string)
		re, err := regexp.Compile(pattern)
		return err == nil && re.MatchString(s)
	case OpStartsWith:
		s, ok := v.(string)
		if !ok {
			return false
		}
		needle, _ := f.Value.(string)
		return strings.HasPrefix(strings.ToLower(s), strings.ToLower(needle))
	case OpEndsWith:
		s, ok := v.(string)
		if !ok {
			return false
		}
		needle, _ := f.Value.(string)
		return strings.HasSuffix(strings.ToLower(s), strings.ToLower(needle))
	default:
		return false
	}
}
