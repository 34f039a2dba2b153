package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainyhq/brainy/pkg/errs"
)

func TestMemoryAdapterNounRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()

	n := &Noun{ID: "n1", Vector: []float32{1, 2, 3}, NounType: "Concept"}
	require.NoError(t, m.SaveNoun(ctx, n))

	got, err := m.GetNoun(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, n.Vector, got.Vector)

	require.NoError(t, m.DeleteNoun(ctx, "n1"))
	_, err = m.GetNoun(ctx, "n1")
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestMemoryAdapterVerbAdjacency(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()

	v := &Verb{ID: "v1", Source: "a", Target: "b", VerbType: "RelatedTo"}
	require.NoError(t, m.SaveVerb(ctx, v))

	bySrc, err := m.GetVerbsBySource(ctx, "a")
	require.NoError(t, err)
	require.Len(t, bySrc, 1)
	assert.Equal(t, "v1", bySrc[0].ID)

	byTgt, err := m.GetVerbsByTarget(ctx, "b")
	require.NoError(t, err)
	require.Len(t, byTgt, 1)

	require.NoError(t, m.DeleteVerb(ctx, "v1"))
	bySrc, _ = m.GetVerbsBySource(ctx, "a")
	assert.Len(t, bySrc, 0)
}

func TestMemoryAdapterStatistics(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()

	require.NoError(t, m.IncrementStatistic(ctx, StatNounCount, 1))
	require.NoError(t, m.IncrementStatistic(ctx, StatNounCount, 2))

	stats, err := m.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Counts[StatNounCount])
}

func TestMemoryAdapterChangeLog(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()

	require.NoError(t, m.AppendChange(ctx, ChangeRecord{EntityType: "noun", EntityID: "n1", Op: ChangeAdd}))
	require.NoError(t, m.AppendChange(ctx, ChangeRecord{EntityType: "noun", EntityID: "n2", Op: ChangeAdd}))

	changes, err := m.GetChangesSince(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "n1", changes[0].EntityID)

	changes, err = m.GetChangesSince(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "n2", changes[0].EntityID)
}

func TestMetadataFlatten(t *testing.T) {
	md := Metadata{
		Brainy: BrainyMeta{Deleted: true, Version: 2},
		Other:  map[string]any{"topic": "ml", "nested": map[string]any{"year": 2021}},
	}
	flat := md.Flatten()
	assert.Equal(t, true, flat["_brainy.deleted"])
	assert.Equal(t, "ml", flat["topic"])
	assert.Equal(t, 2021, flat["nested.year"])
}

func TestMemoryAdapterClear(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()
	require.NoError(t, m.SaveNoun(ctx, &Noun{ID: "n1", NounType: "Concept"}))
	require.NoError(t, m.Clear(ctx))
	_, err := m.GetNoun(ctx, "n1")
	assert.True(t, errs.Is(err, errs.NotFound))
}
