package brainy

import (
	"context"
	"time"

	"github.com/brainyhq/brainy/pkg/cache"
	"github.com/brainyhq/brainy/pkg/errs"
	"github.com/brainyhq/brainy/pkg/hnsw"
	"github.com/brainyhq/brainy/pkg/storage"
	"github.com/brainyhq/brainy/pkg/wal"
)

// AddNoun validates nounType and vector against the configured dimension,
// runs the BeforeAddNoun hook, then applies the write path in order: WAL
// append, index mutation under the writer lock, storage write, statistics
// bump, change-log append.
func (db *DB) AddNoun(ctx context.Context, nounType string, vector []float32, meta map[string]any) (*storage.Noun, error) {
	if err := db.checkWritable("add_noun"); err != nil {
		return nil, err
	}
	if !isNounType(nounType) {
		return nil, errs.New("add_noun", errs.Validation, "", "unknown noun_type "+nounType)
	}
	if len(vector) != db.config.Dim {
		return nil, errs.New("add_noun", errs.DimensionMismatch, "", "vector length does not match configured dimension")
	}

	now := time.Now().UnixNano()
	n := &storage.Noun{
		ID:       newID(),
		Vector:   append([]float32(nil), vector...),
		NounType: nounType,
		Metadata: storage.Metadata{
			Brainy: storage.BrainyMeta{Indexed: true, Version: 1, Created: now, Updated: now},
			Other:  meta,
		},
	}
	if err := db.persistNewNoun(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// persistNewNoun is shared by AddNoun and the write-only placeholder-noun
// path in AddVerb.
func (db *DB) persistNewNoun(ctx context.Context, n *storage.Noun) error {
	if db.hooks.BeforeAddNoun != nil {
		if err := db.hooks.BeforeAddNoun.OnBeforeAddNoun(ctx, n); err != nil {
			return errs.Wrap("add_noun", errs.Validation, n.ID, err)
		}
	}
	if _, err := db.wal.Append(wal.OpAddNoun, wal.EntityNoun, n.ID, n); err != nil {
		return errs.Wrap("add_noun", errs.Storage, n.ID, err)
	}

	db.mu.Lock()
	if err := db.vectors.Insert(n.ID, hnsw.KindNoun, n.Vector); err != nil {
		db.mu.Unlock()
		return errs.Wrap("add_noun", errs.DimensionMismatch, n.ID, err)
	}
	db.metaIdx.AddToIndex(n.ID, n.Metadata.Flatten())
	db.mu.Unlock()

	if err := db.withStorage(ctx, func(ctx context.Context) error { return db.adapter.SaveNoun(ctx, n) }); err != nil {
		return errs.Wrap("add_noun", errs.Storage, n.ID, err)
	}
	db.bumpStat(ctx, storage.StatNounCount, 1)
	db.appendChange(ctx, storage.ChangeAdd, "noun", n.ID)
	return nil
}

// GetNoun returns the noun, or NotFound if it is absent or soft-deleted.
// Rejected in write-only mode unless the database was opened with
// allow_direct_reads.
func (db *DB) GetNoun(ctx context.Context, id string) (*storage.Noun, error) {
	if err := db.checkDirectRead("get_noun"); err != nil {
		return nil, err
	}
	n, err := db.adapter.GetNoun(ctx, id)
	if err != nil {
		return nil, errs.Wrap("get_noun", errs.NotFound, id, err)
	}
	if n.Metadata.Brainy.Deleted {
		return nil, errs.New("get_noun", errs.NotFound, id, "noun is deleted")
	}
	return n, nil
}

// UpdateNoun merges meta into the noun's existing metadata and, when
// vector is non-nil, replaces its embedding. Both the old and new
// flattened metadata are applied to the metadata index so stale postings
// never linger.
func (db *DB) UpdateNoun(ctx context.Context, id string, vector []float32, meta map[string]any) (*storage.Noun, error) {
	if err := db.checkWritable("update_noun"); err != nil {
		return nil, err
	}
	if vector != nil && len(vector) != db.config.Dim {
		return nil, errs.New("update_noun", errs.DimensionMismatch, id, "vector length does not match configured dimension")
	}
	existing, err := db.adapter.GetNoun(ctx, id)
	if err != nil {
		return nil, errs.Wrap("update_noun", errs.NotFound, id, err)
	}
	prevFlat := existing.Metadata.Flatten()

	existing.Metadata.Other = mergeMeta(existing.Metadata.Other, meta)
	existing.Metadata.Brainy.Updated = time.Now().UnixNano()
	existing.Metadata.Brainy.Version++
	if vector != nil {
		existing.Vector = append([]float32(nil), vector...)
	}

	if _, err := db.wal.Append(wal.OpUpdateNoun, wal.EntityNoun, id, existing); err != nil {
		return nil, errs.Wrap("update_noun", errs.Storage, id, err)
	}

	db.mu.Lock()
	if vector != nil {
		if err := db.vectors.Insert(id, hnsw.KindNoun, existing.Vector); err != nil {
			db.mu.Unlock()
			return nil, errs.Wrap("update_noun", errs.DimensionMismatch, id, err)
		}
	}
	db.metaIdx.RemoveFromIndex(id, prevFlat)
	db.metaIdx.AddToIndex(id, existing.Metadata.Flatten())
	db.mu.Unlock()

	if err := db.withStorage(ctx, func(ctx context.Context) error { return db.adapter.SaveNoun(ctx, existing) }); err != nil {
		return nil, errs.Wrap("update_noun", errs.Storage, id, err)
	}
	db.appendChange(ctx, storage.ChangeUpdate, "noun", id)
	return existing, nil
}

// UpdateNounMetadata is the metadata-only convenience form of UpdateNoun.
func (db *DB) UpdateNounMetadata(ctx context.Context, id string, meta map[string]any) (*storage.Noun, error) {
	return db.UpdateNoun(ctx, id, nil, meta)
}

// DeleteNoun soft-deletes the noun, returning false (with no error) if it
// was already deleted, so repeated calls are idempotent.
func (db *DB) DeleteNoun(ctx context.Context, id string) (bool, error) {
	if err := db.checkWritable("delete_noun"); err != nil {
		return false, err
	}
	existing, err := db.adapter.GetNoun(ctx, id)
	if err != nil {
		return false, errs.Wrap("delete_noun", errs.NotFound, id, err)
	}
	if existing.Metadata.Brainy.Deleted {
		return false, nil
	}
	prevFlat := existing.Metadata.Flatten()
	existing.Metadata.Brainy.Deleted = true
	existing.Metadata.Brainy.Updated = time.Now().UnixNano()

	if _, err := db.wal.Append(wal.OpDeleteNoun, wal.EntityNoun, id, existing); err != nil {
		return false, errs.Wrap("delete_noun", errs.Storage, id, err)
	}
	db.mu.Lock()
	db.metaIdx.RemoveFromIndex(id, prevFlat)
	db.metaIdx.AddToIndex(id, existing.Metadata.Flatten())
	db.mu.Unlock()

	if err := db.withStorage(ctx, func(ctx context.Context) error { return db.adapter.SaveNoun(ctx, existing) }); err != nil {
		return false, errs.Wrap("delete_noun", errs.Storage, id, err)
	}
	db.cache.Remove("noun:"+id, cache.TypeOther)
	db.appendChange(ctx, storage.ChangeDelete, "noun", id)
	return true, nil
}

// RestoreNoun clears a noun's soft-delete flag, returning false (with no
// error) if it was not deleted.
func (db *DB) RestoreNoun(ctx context.Context, id string) (bool, error) {
	if err := db.checkWritable("restore_noun"); err != nil {
		return false, err
	}
	existing, err := db.adapter.GetNoun(ctx, id)
	if err != nil {
		return false, errs.Wrap("restore_noun", errs.NotFound, id, err)
	}
	if !existing.Metadata.Brainy.Deleted {
		return false, nil
	}
	prevFlat := existing.Metadata.Flatten()
	existing.Metadata.Brainy.Deleted = false
	existing.Metadata.Brainy.Updated = time.Now().UnixNano()

	if _, err := db.wal.Append(wal.OpUpdateNoun, wal.EntityNoun, id, existing); err != nil {
		return false, errs.Wrap("restore_noun", errs.Storage, id, err)
	}
	db.mu.Lock()
	db.metaIdx.RemoveFromIndex(id, prevFlat)
	db.metaIdx.AddToIndex(id, existing.Metadata.Flatten())
	db.mu.Unlock()

	if err := db.withStorage(ctx, func(ctx context.Context) error { return db.adapter.SaveNoun(ctx, existing) }); err != nil {
		return false, errs.Wrap("restore_noun", errs.Storage, id, err)
	}
	db.appendChange(ctx, storage.ChangeUpdate, "noun", id)
	return true, nil
}
