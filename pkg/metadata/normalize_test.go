package metadata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLowercasesStrings(t *testing.T) {
	assert.Equal(t, "machine learning", Normalize("Machine Learning"))
}

func TestNormalizePreservesBoolAndNumber(t *testing.T) {
	assert.Equal(t, "true", Normalize(true))
	assert.Equal(t, "false", Normalize(false))
	assert.Equal(t, "42", Normalize(42))
}

func TestNormalizeHashesLongValues(t *testing.T) {
	long := strings.Repeat("x", maxSafeValueLen+1)
	norm := Normalize(long)
	assert.True(t, strings.HasPrefix(norm, "h:"))
	assert.Less(t, len(norm), maxSafeValueLen)
}

func TestIsOrderedAndAsFloat64(t *testing.T) {
	assert.True(t, IsOrdered(42))
	assert.True(t, IsOrdered(3.14))
	assert.False(t, IsOrdered("x"))

	f, ok := AsFloat64(42)
	assert.True(t, ok)
	assert.Equal(t, 42.0, f)
}
