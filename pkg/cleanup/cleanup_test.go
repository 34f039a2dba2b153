package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainyhq/brainy/pkg/graph"
	"github.com/brainyhq/brainy/pkg/hnsw"
	"github.com/brainyhq/brainy/pkg/metadata"
	"github.com/brainyhq/brainy/pkg/storage"
)

func TestRunHardDeletesOldSoftDeletedNouns(t *testing.T) {
	ctx := context.Background()
	adapter := storage.NewMemoryAdapter()
	vectors, err := hnsw.New(hnsw.DefaultConfig(2))
	require.NoError(t, err)
	meta := metadata.New()
	adj := graph.New()

	n := &storage.Noun{
		ID:       "n1",
		Vector:   []float32{1, 2},
		NounType: "Concept",
		Metadata: storage.Metadata{Brainy: storage.BrainyMeta{Deleted: true, Updated: time.Now().Add(-2 * time.Hour).UnixNano()}},
	}
	require.NoError(t, adapter.SaveNoun(ctx, n))
	require.NoError(t, vectors.Insert("n1", hnsw.KindNoun, n.Vector))
	meta.AddToIndex("n1", n.Metadata.Flatten())

	coord := New(Config{Interval: time.Hour, BatchSize: 100, MaxAge: time.Hour}, adapter, vectors, meta, adj)
	stats := coord.Run(ctx)

	assert.Equal(t, 1, stats.ItemsProcessed)
	assert.Equal(t, 1, stats.ItemsDeleted)
	assert.Equal(t, 0, stats.Errors)

	_, err = adapter.GetNoun(ctx, "n1")
	assert.Error(t, err)

	results, err := vectors.Search(n.Vector, 5, nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "n1", r.ID)
	}
}

func TestRunSkipsRecentlyDeletedItems(t *testing.T) {
	ctx := context.Background()
	adapter := storage.NewMemoryAdapter()
	vectors, _ := hnsw.New(hnsw.DefaultConfig(2))
	meta := metadata.New()
	adj := graph.New()

	n := &storage.Noun{
		ID:       "n1",
		Vector:   []float32{1, 2},
		NounType: "Concept",
		Metadata: storage.Metadata{Brainy: storage.BrainyMeta{Deleted: true, Updated: time.Now().UnixNano()}},
	}
	require.NoError(t, adapter.SaveNoun(ctx, n))

	coord := New(Config{Interval: time.Hour, BatchSize: 100, MaxAge: time.Hour}, adapter, vectors, meta, adj)
	stats := coord.Run(ctx)

	assert.Equal(t, 0, stats.ItemsProcessed)
	_, err := adapter.GetNoun(ctx, "n1")
	assert.NoError(t, err)
}

func TestRunCascadesIncidentVerbs(t *testing.T) {
	ctx := context.Background()
	adapter := storage.NewMemoryAdapter()
	vectors, _ := hnsw.New(hnsw.DefaultConfig(2))
	meta := metadata.New()
	adj := graph.New()

	oldTime := time.Now().Add(-2 * time.Hour).UnixNano()
	n := &storage.Noun{ID: "n1", Vector: []float32{1, 0}, NounType: "Concept",
		Metadata: storage.Metadata{Brainy: storage.BrainyMeta{Deleted: true, Updated: oldTime}}}
	require.NoError(t, adapter.SaveNoun(ctx, n))
	require.NoError(t, vectors.Insert("n1", hnsw.KindNoun, n.Vector))

	v := &storage.Verb{ID: "v1", Source: "n1", Target: "n2", VerbType: "RelatedTo"}
	require.NoError(t, adapter.SaveVerb(ctx, v))
	adj.AddVerb(graph.VerbRef{ID: "v1", Source: "n1", Target: "n2", VerbType: "RelatedTo"})

	coord := New(Config{Interval: time.Hour, BatchSize: 100, MaxAge: time.Hour}, adapter, vectors, meta, adj)
	coord.Run(ctx)

	_, err := adapter.GetVerb(ctx, "v1")
	assert.Error(t, err)
	assert.Empty(t, adj.VerbsForNoun("n1"))
}
