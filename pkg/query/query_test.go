package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainyhq/brainy/pkg/embedding"
	"github.com/brainyhq/brainy/pkg/graph"
	"github.com/brainyhq/brainy/pkg/hnsw"
	"github.com/brainyhq/brainy/pkg/metadata"
	"github.com/brainyhq/brainy/pkg/storage"
)

func setup(t *testing.T, dim int) (*Engine, *storage.MemoryAdapter, *hnsw.Index, *metadata.Index, *graph.Graph) {
	t.Helper()
	adapter := storage.NewMemoryAdapter()
	vectors, err := hnsw.New(hnsw.DefaultConfig(dim))
	require.NoError(t, err)
	meta := metadata.New()
	adj := graph.New()
	embedder := embedding.NewStub(dim)
	engine := New(DefaultConfig(), adapter, vectors, meta, adj, embedder)
	return engine, adapter, vectors, meta, adj
}

func addNoun(t *testing.T, adapter *storage.MemoryAdapter, vectors *hnsw.Index, meta *metadata.Index, id string, vec []float32, nounType string, extra map[string]any) {
	t.Helper()
	ctx := context.Background()
	m := storage.Metadata{Other: extra}
	n := &storage.Noun{ID: id, Vector: vec, NounType: nounType, Metadata: m}
	require.NoError(t, adapter.SaveNoun(ctx, n))
	require.NoError(t, vectors.Insert(id, hnsw.KindNoun, vec))
	meta.AddToIndex(id, m.Flatten())
}

func TestFindByVectorSimilarity(t *testing.T) {
	engine, adapter, vectors, meta, _ := setup(t, 2)
	addNoun(t, adapter, vectors, meta, "n1", []float32{1, 0}, "Concept", nil)
	addNoun(t, adapter, vectors, meta, "n2", []float32{0, 1}, "Concept", nil)

	page, err := engine.Find(context.Background(), Query{Like: []float32{1, 0}}, DefaultOptions())
	require.NoError(t, err)
	require.NotEmpty(t, page.Results)
	assert.Equal(t, "n1", page.Results[0].ID)
}

func TestFindWithMetadataFilter(t *testing.T) {
	engine, adapter, vectors, meta, _ := setup(t, 2)
	addNoun(t, adapter, vectors, meta, "n1", []float32{1, 0}, "Concept", map[string]any{"color": "red"})
	addNoun(t, adapter, vectors, meta, "n2", []float32{0, 1}, "Concept", map[string]any{"color": "blue"})

	q := Query{
		Like:  []float32{1, 0},
		Where: &metadata.Filter{Field: "color", Op: metadata.OpEquals, Value: "red"},
	}
	page, err := engine.Find(context.Background(), q, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "n1", page.Results[0].ID)
}

func TestFindExcludesSoftDeletedByDefault(t *testing.T) {
	engine, adapter, vectors, meta, _ := setup(t, 2)
	ctx := context.Background()
	deletedMeta := storage.Metadata{Brainy: storage.BrainyMeta{Deleted: true}}
	n := &storage.Noun{ID: "n1", Vector: []float32{1, 0}, NounType: "Concept", Metadata: deletedMeta}
	require.NoError(t, adapter.SaveNoun(ctx, n))
	require.NoError(t, vectors.Insert("n1", hnsw.KindNoun, n.Vector))
	meta.AddToIndex("n1", deletedMeta.Flatten())

	addNoun(t, adapter, vectors, meta, "n2", []float32{0, 1}, "Concept", nil)

	page, err := engine.Find(ctx, Query{Like: []float32{1, 0}}, DefaultOptions())
	require.NoError(t, err)
	for _, r := range page.Results {
		assert.NotEqual(t, "n1", r.ID)
	}
}

func TestFindConnected(t *testing.T) {
	engine, adapter, vectors, meta, adj := setup(t, 2)
	addNoun(t, adapter, vectors, meta, "a", []float32{1, 0}, "Concept", nil)
	addNoun(t, adapter, vectors, meta, "b", []float32{0.9, 0.1}, "Concept", nil)
	addNoun(t, adapter, vectors, meta, "c", []float32{0, 1}, "Concept", nil)
	adj.AddVerb(graph.VerbRef{ID: "v1", Source: "a", Target: "b", VerbType: "RelatedTo"})

	q := Query{Connected: &Connected{From: "a", Via: "RelatedTo"}}
	page, err := engine.Find(context.Background(), q, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "b", page.Results[0].ID)
}

func TestCursorPagination(t *testing.T) {
	engine, adapter, vectors, meta, _ := setup(t, 2)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		id := string(rune('a' + i))
		addNoun(t, adapter, vectors, meta, id, []float32{1, float32(i) / 100}, "Concept", nil)
	}

	opts := DefaultOptions()
	opts.Limit = 10
	q := Query{Like: []float32{1, 0}}

	page1, err := engine.Find(ctx, q, opts)
	require.NoError(t, err)
	assert.Len(t, page1.Results, 10)
	assert.True(t, page1.HasMore)

	opts.Cursor = page1.Cursor
	page2, err := engine.Find(ctx, q, opts)
	require.NoError(t, err)
	assert.Len(t, page2.Results, 10)
	assert.True(t, page2.HasMore)

	opts.Cursor = page2.Cursor
	page3, err := engine.Find(ctx, q, opts)
	require.NoError(t, err)
	assert.Len(t, page3.Results, 5)
	assert.False(t, page3.HasMore)
}

func TestCursorFromDifferentQueryIsInvalidated(t *testing.T) {
	engine, adapter, vectors, meta, _ := setup(t, 2)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		addNoun(t, adapter, vectors, meta, id, []float32{1, float32(i) / 10}, "Concept", nil)
	}

	opts := DefaultOptions()
	opts.Limit = 2
	page, err := engine.Find(ctx, Query{Like: []float32{1, 0}}, opts)
	require.NoError(t, err)
	require.NotEmpty(t, page.Cursor)

	opts2 := DefaultOptions()
	opts2.Limit = 2
	opts2.Cursor = page.Cursor
	result, err := engine.Find(ctx, Query{Like: []float32{0, 1}}, opts2)
	require.NoError(t, err)
	assert.False(t, result.HasMore)
	assert.Empty(t, result.Results)
}

func TestFindSimilarExcludesSelf(t *testing.T) {
	engine, adapter, vectors, meta, _ := setup(t, 2)
	addNoun(t, adapter, vectors, meta, "n1", []float32{1, 0}, "Concept", nil)
	addNoun(t, adapter, vectors, meta, "n2", []float32{0.9, 0.1}, "Concept", nil)

	page, err := engine.FindSimilar(context.Background(), "n1", DefaultOptions())
	require.NoError(t, err)
	for _, r := range page.Results {
		assert.NotEqual(t, "n1", r.ID)
	}
	assert.NotEmpty(t, page.Results)
}

func TestGetFilterFieldsAndValues(t *testing.T) {
	engine, adapter, vectors, meta, _ := setup(t, 2)
	addNoun(t, adapter, vectors, meta, "n1", []float32{1, 0}, "Concept", map[string]any{"color": "red"})

	fields := engine.GetFilterFields()
	assert.Contains(t, fields, "color")

	values := engine.GetFilterValues("color")
	require.Len(t, values, 1)
	assert.Equal(t, "red", values[0].Value)
}
