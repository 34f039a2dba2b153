package metadata

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// maxSafeValueLen bounds how long a normalized value may be before it is
// hashed down to a fixed-width, filesystem-safe key. Persisted index
// pages are named from these keys, so long free-text values must never
// reach the filesystem directly.
const maxSafeValueLen = 120

// Normalize maps an arbitrary metadata value to the canonical form used
// as a hash-index key: strings are lowercased, booleans and numbers are
// preserved as-is, and anything rendering longer than maxSafeValueLen is
// hashed with blake2b into a short hex digest.
func Normalize(v any) string {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.ToLower(t)
	case bool:
		if t {
			s = "true"
		} else {
			s = "false"
		}
	case nil:
		s = "\x00nil"
	default:
		s = fmt.Sprintf("%v", t)
	}
	if len(s) <= maxSafeValueLen {
		return s
	}
	return hashValue(s)
}

func hashValue(s string) string {
	sum := blake2b.Sum256([]byte(s))
	return "h:" + hex.EncodeToString(sum[:16])
}

// IsOrdered reports whether v is a type the sorted index can order
// (numbers and timestamps); strings and booleans are hash-indexed only.
func IsOrdered(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// AsFloat64 coerces an ordered value to float64 for sorted-index
// comparisons. ok is false for non-numeric input.
func AsFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}
