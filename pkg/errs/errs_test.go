package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageIncludesOpAndID(t *testing.T) {
	err := New("add_noun", Validation, "noun-1", "bad vector")
	assert.Contains(t, err.Error(), "add_noun")
	assert.Contains(t, err.Error(), "noun-1")
	assert.Contains(t, err.Error(), "validation")
}

func TestIs(t *testing.T) {
	err := New("get_noun", NotFound, "x", "missing")
	assert.True(t, Is(err, NotFound))
	assert.False(t, Is(err, Timeout))
	assert.False(t, Is(errors.New("plain"), NotFound))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(New("op", Timeout, "", "slow")))
	assert.True(t, Retryable(New("op", Network, "", "down")))
	assert.False(t, Retryable(New("op", RetryExhausted, "", "gave up")))
	assert.False(t, Retryable(New("op", Validation, "", "bad")))
}

func TestWrapPreservesChain(t *testing.T) {
	inner := errors.New("disk full")
	err := Wrap("save_noun", Storage, "id1", inner)
	assert.ErrorIs(t, err, inner)
}
