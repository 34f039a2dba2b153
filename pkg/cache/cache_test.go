package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	c := New(DefaultConfig())
	c.Put(&Entry{Key: "k1", Type: TypeHNSW, Payload: "v1", SizeBytes: 10, RebuildCost: 1})

	e, ok := c.Get("k1", TypeHNSW)
	require.True(t, ok)
	assert.Equal(t, "v1", e.Payload)
	assert.Equal(t, int64(1), e.AccessCount)
}

func TestCoalescingCallsLoaderOnce(t *testing.T) {
	c := New(DefaultConfig())
	var calls int32
	loader := func(ctx context.Context) (any, int64, float64, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return "value", 1, 1, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrLoad(context.Background(), "missing", TypeOther, loader)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls)
}

func TestEvictsLowestValueScore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSizeBytes = 100
	c := New(cfg)

	c.Put(&Entry{Key: "cold", Type: TypeOther, SizeBytes: 60, RebuildCost: 100, AccessCount: 1})
	c.Put(&Entry{Key: "hot", Type: TypeOther, SizeBytes: 60, RebuildCost: 1, AccessCount: 50})

	_, coldOK := c.Get("cold", TypeOther)
	_, hotOK := c.Get("hot", TypeOther)
	assert.False(t, coldOK)
	assert.True(t, hotOK)
}

func TestFairnessMonitorEvictsDominantStarvedType(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FairnessByteShare = 0.5
	cfg.FairnessAccShare = 0.5
	cfg.FairnessEvictFrac = 1.0
	c := New(cfg)

	c.Put(&Entry{Key: "big1", Type: TypeHNSW, SizeBytes: 1000, AccessCount: 1})
	c.Put(&Entry{Key: "small1", Type: TypeEmbedding, SizeBytes: 10, AccessCount: 100})

	c.runFairnessCheck()

	_, ok := c.Get("big1", TypeHNSW)
	assert.False(t, ok)
	_, ok = c.Get("small1", TypeEmbedding)
	assert.True(t, ok)
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := New(DefaultConfig())
	c.Put(&Entry{Key: "k1", Type: TypeMetadata, SizeBytes: 5, AccessCount: 3})

	data, err := c.SaveSnapshot()
	require.NoError(t, err)

	c2 := New(DefaultConfig())
	c2.Put(&Entry{Key: "k1", Type: TypeMetadata, SizeBytes: 5, AccessCount: 0})
	require.NoError(t, c2.LoadSnapshot(data))

	e, ok := c2.Get("k1", TypeMetadata)
	require.True(t, ok)
	assert.GreaterOrEqual(t, e.AccessCount, int64(3))
}

func TestRemoveAndClear(t *testing.T) {
	c := New(DefaultConfig())
	c.Put(&Entry{Key: "k1", Type: TypeOther, SizeBytes: 5})
	c.Remove("k1", TypeOther)
	_, ok := c.Get("k1", TypeOther)
	assert.False(t, ok)

	c.Put(&Entry{Key: "k2", Type: TypeOther, SizeBytes: 5})
	c.Clear()
	_, ok = c.Get("k2", TypeOther)
	assert.False(t, ok)
}
