package brainy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainyhq/brainy/pkg/errs"
	"github.com/brainyhq/brainy/pkg/query"
)

func openTestDB(t *testing.T, dim int, mutate func(*Config)) *DB {
	t.Helper()
	cfg := DefaultConfig(dim)
	cfg.Ephemeral = true
	if mutate != nil {
		mutate(&cfg)
	}
	db, err := Open(context.Background(), cfg, nil, Hooks{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.ShutDown(context.Background()) })
	return db
}

func vec(dim int, first float32) []float32 {
	v := make([]float32, dim)
	v[0] = first
	return v
}

func TestAddAndGetNoun(t *testing.T) {
	db := openTestDB(t, 4, nil)
	ctx := context.Background()

	n, err := db.AddNoun(ctx, "Person", vec(4, 1), map[string]any{"name": "ada"})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)

	got, err := db.GetNoun(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Person", got.NounType)
	assert.Equal(t, "ada", got.Metadata.Other["name"])
}

func TestAddNounRejectsUnknownType(t *testing.T) {
	db := openTestDB(t, 4, nil)
	_, err := db.AddNoun(context.Background(), "NotAType", vec(4, 1), nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Validation))
}

func TestAddNounRejectsDimensionMismatch(t *testing.T) {
	db := openTestDB(t, 4, nil)
	_, err := db.AddNoun(context.Background(), "Person", []float32{1, 2}, nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.DimensionMismatch))
}

func TestDeleteNounIsIdempotentAndHidesFromGet(t *testing.T) {
	db := openTestDB(t, 4, nil)
	ctx := context.Background()
	n, err := db.AddNoun(ctx, "Person", vec(4, 1), nil)
	require.NoError(t, err)

	deleted, err := db.DeleteNoun(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = db.GetNoun(ctx, n.ID)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.NotFound))

	deletedAgain, err := db.DeleteNoun(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, deletedAgain)
}

func TestRestoreNounNoOpWhenNotDeleted(t *testing.T) {
	db := openTestDB(t, 4, nil)
	ctx := context.Background()
	n, err := db.AddNoun(ctx, "Person", vec(4, 1), nil)
	require.NoError(t, err)

	restored, err := db.RestoreNoun(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, restored)
}

func TestRestoreNounBringsBackGet(t *testing.T) {
	db := openTestDB(t, 4, nil)
	ctx := context.Background()
	n, err := db.AddNoun(ctx, "Person", vec(4, 1), nil)
	require.NoError(t, err)

	_, err = db.DeleteNoun(ctx, n.ID)
	require.NoError(t, err)

	restored, err := db.RestoreNoun(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, restored)

	got, err := db.GetNoun(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
}

func TestUpdateNounMergesMetadataAndReplacesVector(t *testing.T) {
	db := openTestDB(t, 4, nil)
	ctx := context.Background()
	n, err := db.AddNoun(ctx, "Person", vec(4, 1), map[string]any{"a": 1})
	require.NoError(t, err)

	updated, err := db.UpdateNoun(ctx, n.ID, vec(4, 2), map[string]any{"b": 2})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Metadata.Other["a"])
	assert.Equal(t, 2, updated.Metadata.Other["b"])
	assert.Equal(t, float32(2), updated.Vector[0])
	assert.Equal(t, 2, updated.Metadata.Brainy.Version)
}

func TestUpdateNounMetadataDoesNotTouchVector(t *testing.T) {
	db := openTestDB(t, 4, nil)
	ctx := context.Background()
	n, err := db.AddNoun(ctx, "Person", vec(4, 5), nil)
	require.NoError(t, err)

	updated, err := db.UpdateNounMetadata(ctx, n.ID, map[string]any{"tag": "x"})
	require.NoError(t, err)
	assert.Equal(t, float32(5), updated.Vector[0])
	assert.Equal(t, "x", updated.Metadata.Other["tag"])
}

func TestAddVerbRequiresExistingNounsByDefault(t *testing.T) {
	db := openTestDB(t, 4, nil)
	ctx := context.Background()
	_, err := db.AddVerb(ctx, "missing-a", "missing-b", "RelatedTo", AddVerbOptions{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestAddVerbCreatesPlaceholdersInWriteOnlyMode(t *testing.T) {
	db := openTestDB(t, 4, func(c *Config) { c.WriteOnly = true; c.AllowDirectReads = true })
	ctx := context.Background()

	v, err := db.AddVerb(ctx, "a", "b", "RelatedTo", AddVerbOptions{})
	require.NoError(t, err)
	assert.Equal(t, "a", v.Source)
	assert.Equal(t, "b", v.Target)

	source, err := db.GetNoun(ctx, "a")
	require.NoError(t, err)
	assert.True(t, source.Metadata.Brainy.IsPlaceholder)
	assert.Equal(t, "Thing", source.NounType)
}

func TestAddVerbRejectsUnknownType(t *testing.T) {
	db := openTestDB(t, 4, nil)
	ctx := context.Background()
	_, err := db.AddNoun(ctx, "Person", vec(4, 1), nil)
	require.NoError(t, err)
	_, err = db.AddVerb(ctx, "a", "b", "NotAType", AddVerbOptions{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Validation))
}

func TestAddVerbWiresGraphAdjacency(t *testing.T) {
	db := openTestDB(t, 4, nil)
	ctx := context.Background()
	a, err := db.AddNoun(ctx, "Person", vec(4, 1), nil)
	require.NoError(t, err)
	b, err := db.AddNoun(ctx, "Person", vec(4, 2), nil)
	require.NoError(t, err)

	v, err := db.AddVerb(ctx, a.ID, b.ID, "Follows", AddVerbOptions{})
	require.NoError(t, err)

	bySource, err := db.GetVerbsBySource(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, v.ID, bySource[0].ID)

	byTarget, err := db.GetVerbsByTarget(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, byTarget, 1)
	assert.Equal(t, v.ID, byTarget[0].ID)
}

func TestDeleteVerbHidesFromHydration(t *testing.T) {
	db := openTestDB(t, 4, nil)
	ctx := context.Background()
	a, err := db.AddNoun(ctx, "Person", vec(4, 1), nil)
	require.NoError(t, err)
	b, err := db.AddNoun(ctx, "Person", vec(4, 2), nil)
	require.NoError(t, err)
	v, err := db.AddVerb(ctx, a.ID, b.ID, "Follows", AddVerbOptions{})
	require.NoError(t, err)

	deleted, err := db.DeleteVerb(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	bySource, err := db.GetVerbsBySource(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, bySource)
}

func TestReadOnlyRejectsMutation(t *testing.T) {
	db := openTestDB(t, 4, func(c *Config) { c.ReadOnly = true })
	_, err := db.AddNoun(context.Background(), "Person", vec(4, 1), nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ReadOnly))
}

func TestWriteOnlyRejectsSearch(t *testing.T) {
	db := openTestDB(t, 4, func(c *Config) { c.WriteOnly = true })
	_, err := db.Find(context.Background(), query.Query{Like: []float32{1, 0, 0, 0}}, QueryOptions{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.WriteOnly))
}

func TestFrozenRejectsMutation(t *testing.T) {
	db := openTestDB(t, 4, func(c *Config) { c.Frozen = true })
	_, err := db.AddNoun(context.Background(), "Person", vec(4, 1), nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Frozen))
}

func TestSetReadOnlyAndSetWriteOnlyAreMutuallyExclusive(t *testing.T) {
	db := openTestDB(t, 4, nil)
	require.NoError(t, db.SetReadOnly(true))
	err := db.SetWriteOnly(true)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Validation))
}

func TestFindReturnsNearestNoun(t *testing.T) {
	db := openTestDB(t, 4, nil)
	ctx := context.Background()
	_, err := db.AddNoun(ctx, "Person", []float32{1, 0, 0, 0}, nil)
	require.NoError(t, err)
	_, err = db.AddNoun(ctx, "Person", []float32{0, 1, 0, 0}, nil)
	require.NoError(t, err)

	page, err := db.Search(ctx, []float32{1, 0, 0, 0}, QueryOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, page.Results)
	assert.Equal(t, []float32{1, 0, 0, 0}, page.Results[0].Noun.Vector)
}

func TestFindSimilarExcludesSelf(t *testing.T) {
	db := openTestDB(t, 4, nil)
	ctx := context.Background()
	a, err := db.AddNoun(ctx, "Person", []float32{1, 0, 0, 0}, nil)
	require.NoError(t, err)
	b, err := db.AddNoun(ctx, "Person", []float32{1, 0, 0, 0.01}, nil)
	require.NoError(t, err)

	page, err := db.FindSimilar(ctx, a.ID, QueryOptions{})
	require.NoError(t, err)
	for _, r := range page.Results {
		assert.NotEqual(t, a.ID, r.ID)
	}
	require.NotEmpty(t, page.Results)
	assert.Equal(t, b.ID, page.Results[0].ID)
}

func TestFindHidesTrimmedFields(t *testing.T) {
	db := openTestDB(t, 4, nil)
	ctx := context.Background()
	_, err := db.AddNoun(ctx, "Person", []float32{1, 0, 0, 0}, map[string]any{"name": "ada"})
	require.NoError(t, err)

	noVectors := false
	page, err := db.Search(ctx, []float32{1, 0, 0, 0}, QueryOptions{IncludeVectors: &noVectors})
	require.NoError(t, err)
	require.NotEmpty(t, page.Results)
	assert.Nil(t, page.Results[0].Noun.Vector)
}

func TestResetStatisticsZeroesCounters(t *testing.T) {
	db := openTestDB(t, 4, nil)
	ctx := context.Background()
	_, err := db.AddNoun(ctx, "Person", vec(4, 1), nil)
	require.NoError(t, err)

	stats, err := db.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Counts["noun_count"])

	require.NoError(t, db.ResetStatistics(ctx))
	stats, err = db.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Counts["noun_count"])
}

func TestReopenReconcilesFromStorage(t *testing.T) {
	cfg := DefaultConfig(4)
	cfg.DataDir = t.TempDir()

	db, err := Open(context.Background(), cfg, nil, Hooks{})
	require.NoError(t, err)
	n, err := db.AddNoun(context.Background(), "Person", vec(4, 1), map[string]any{"name": "ada"})
	require.NoError(t, err)
	require.NoError(t, db.ShutDown(context.Background()))

	reopened, err := Open(context.Background(), cfg, nil, Hooks{})
	require.NoError(t, err)
	defer reopened.ShutDown(context.Background())

	got, err := reopened.GetNoun(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada", got.Metadata.Other["name"])

	page, err := reopened.Search(context.Background(), vec(4, 1), QueryOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, page.Results)
	assert.Equal(t, n.ID, page.Results[0].ID)
}
