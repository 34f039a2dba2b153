package brainy

import (
	"context"
	"fmt"
	"time"

	"github.com/brainyhq/brainy/pkg/errs"
	"github.com/brainyhq/brainy/pkg/graph"
	"github.com/brainyhq/brainy/pkg/hnsw"
	"github.com/brainyhq/brainy/pkg/storage"
	"github.com/brainyhq/brainy/pkg/wal"
)

// AddVerbOptions carries add_verb's optional fields. Weight defaults to
// 0.5 and Confidence to 1.0; Vector, when nil, is synthesized by
// embedding a description of the relationship.
type AddVerbOptions struct {
	Metadata   map[string]any
	Weight     *float64
	Confidence *float64
	Vector     []float32
}

// AddVerb resolves source and target (auto-creating placeholder nouns in
// write-only mode, or failing NotFound otherwise), validates verbType and
// the vector dimension, runs the BeforeAddVerb hook, then applies the
// same write path as AddNoun plus graph adjacency insertion.
func (db *DB) AddVerb(ctx context.Context, source, target, verbType string, opts AddVerbOptions) (*storage.Verb, error) {
	if err := db.checkWritable("add_verb"); err != nil {
		return nil, err
	}
	if !isVerbType(verbType) {
		return nil, errs.New("add_verb", errs.Validation, "", "unknown verb_type "+verbType)
	}
	if _, err := db.resolveOrCreatePlaceholder(ctx, source, "add_verb"); err != nil {
		return nil, err
	}
	if _, err := db.resolveOrCreatePlaceholder(ctx, target, "add_verb"); err != nil {
		return nil, err
	}

	vec := opts.Vector
	if vec == nil {
		text := fmt.Sprintf("%s relationship with %s", verbType, serializeMeta(opts.Metadata))
		embedded, err := db.embedder.Embed(ctx, text)
		if err != nil {
			return nil, errs.Wrap("add_verb", errs.Storage, "", err)
		}
		vec = embedded
	}
	if len(vec) != db.config.Dim {
		return nil, errs.New("add_verb", errs.DimensionMismatch, "", "vector length does not match configured dimension")
	}

	weight := 0.5
	if opts.Weight != nil {
		weight = *opts.Weight
	}
	confidence := 1.0
	if opts.Confidence != nil {
		confidence = *opts.Confidence
	}

	now := time.Now().UnixNano()
	v := &storage.Verb{
		ID:         newID(),
		Source:     source,
		Target:     target,
		VerbType:   verbType,
		Weight:     weight,
		Confidence: confidence,
		Vector:     vec,
		Metadata: storage.Metadata{
			Brainy: storage.BrainyMeta{Indexed: true, Version: 1, Created: now, Updated: now},
			Other:  opts.Metadata,
		},
	}

	if db.hooks.BeforeAddVerb != nil {
		if err := db.hooks.BeforeAddVerb.OnBeforeAddVerb(ctx, v); err != nil {
			return nil, errs.Wrap("add_verb", errs.Validation, v.ID, err)
		}
	}
	if _, err := db.wal.Append(wal.OpAddVerb, wal.EntityVerb, v.ID, v); err != nil {
		return nil, errs.Wrap("add_verb", errs.Storage, v.ID, err)
	}

	db.mu.Lock()
	if err := db.vectors.Insert(v.ID, hnsw.KindVerb, v.Vector); err != nil {
		db.mu.Unlock()
		return nil, errs.Wrap("add_verb", errs.DimensionMismatch, v.ID, err)
	}
	db.metaIdx.AddToIndex(v.ID, v.Metadata.Flatten())
	db.graph.AddVerb(graph.VerbRef{ID: v.ID, Source: source, Target: target, VerbType: verbType})
	db.mu.Unlock()

	if err := db.withStorage(ctx, func(ctx context.Context) error { return db.adapter.SaveVerb(ctx, v) }); err != nil {
		return nil, errs.Wrap("add_verb", errs.Storage, v.ID, err)
	}
	db.bumpStat(ctx, storage.StatVerbCount, 1)
	db.appendChange(ctx, storage.ChangeAdd, "verb", v.ID)
	return v, nil
}

// resolveOrCreatePlaceholder resolves source/target: in write-only mode a
// missing noun is auto-created as a placeholder ("Thing", zero vector,
// is_placeholder=true); otherwise a missing noun fails the whole add_verb
// with NotFound.
func (db *DB) resolveOrCreatePlaceholder(ctx context.Context, id, op string) (*storage.Noun, error) {
	n, err := db.adapter.GetNoun(ctx, id)
	if err == nil {
		return n, nil
	}
	if !errs.Is(err, errs.NotFound) {
		return nil, errs.Wrap(op, errs.Storage, id, err)
	}
	if !db.writeOnly.Load() {
		return nil, errs.New(op, errs.NotFound, id, "noun not found")
	}

	now := time.Now().UnixNano()
	ph := &storage.Noun{
		ID:       id,
		Vector:   make([]float32, db.config.Dim),
		NounType: "Thing",
		Metadata: storage.Metadata{
			Brainy: storage.BrainyMeta{Indexed: true, Version: 1, Created: now, Updated: now, IsPlaceholder: true},
		},
	}
	if err := db.persistNewNoun(ctx, ph); err != nil {
		return nil, err
	}
	return ph, nil
}

// GetVerb returns the verb, or NotFound if it is absent or soft-deleted.
func (db *DB) GetVerb(ctx context.Context, id string) (*storage.Verb, error) {
	if err := db.checkDirectRead("get_verb"); err != nil {
		return nil, err
	}
	v, err := db.adapter.GetVerb(ctx, id)
	if err != nil {
		return nil, errs.Wrap("get_verb", errs.NotFound, id, err)
	}
	if v.Metadata.Brainy.Deleted {
		return nil, errs.New("get_verb", errs.NotFound, id, "verb is deleted")
	}
	return v, nil
}

// GetVerbsBySource returns the non-deleted verbs whose source is id.
func (db *DB) GetVerbsBySource(ctx context.Context, id string) ([]*storage.Verb, error) {
	return db.hydrateVerbs(ctx, db.graph.VerbsBySource(id))
}

// GetVerbsByTarget returns the non-deleted verbs whose target is id.
func (db *DB) GetVerbsByTarget(ctx context.Context, id string) ([]*storage.Verb, error) {
	return db.hydrateVerbs(ctx, db.graph.VerbsByTarget(id))
}

// GetVerbsByType returns the non-deleted verbs of the given verb_type.
func (db *DB) GetVerbsByType(ctx context.Context, verbType string) ([]*storage.Verb, error) {
	return db.hydrateVerbs(ctx, db.graph.VerbsByType(verbType))
}

// GetVerbsForNoun returns every non-deleted verb incident to id, in
// either direction.
func (db *DB) GetVerbsForNoun(ctx context.Context, id string) ([]*storage.Verb, error) {
	return db.hydrateVerbs(ctx, db.graph.VerbsForNoun(id))
}

// RelationshipsForNoun returns the adjacency-graph verb ids incident to
// id without hydrating them, the mechanism behind the find options'
// include_relationships flag.
func (db *DB) RelationshipsForNoun(id string) []string {
	return db.graph.VerbsForNoun(id)
}

func (db *DB) hydrateVerbs(ctx context.Context, ids []string) ([]*storage.Verb, error) {
	out := make([]*storage.Verb, 0, len(ids))
	for _, id := range ids {
		v, err := db.adapter.GetVerb(ctx, id)
		if err != nil || v.Metadata.Brainy.Deleted {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// DeleteVerb soft-deletes the verb, returning false (with no error) if it
// was already deleted.
func (db *DB) DeleteVerb(ctx context.Context, id string) (bool, error) {
	if err := db.checkWritable("delete_verb"); err != nil {
		return false, err
	}
	existing, err := db.adapter.GetVerb(ctx, id)
	if err != nil {
		return false, errs.Wrap("delete_verb", errs.NotFound, id, err)
	}
	if existing.Metadata.Brainy.Deleted {
		return false, nil
	}
	prevFlat := existing.Metadata.Flatten()
	existing.Metadata.Brainy.Deleted = true
	existing.Metadata.Brainy.Updated = time.Now().UnixNano()

	if _, err := db.wal.Append(wal.OpDeleteVerb, wal.EntityVerb, id, existing); err != nil {
		return false, errs.Wrap("delete_verb", errs.Storage, id, err)
	}
	db.mu.Lock()
	db.metaIdx.RemoveFromIndex(id, prevFlat)
	db.metaIdx.AddToIndex(id, existing.Metadata.Flatten())
	db.mu.Unlock()

	if err := db.withStorage(ctx, func(ctx context.Context) error { return db.adapter.SaveVerb(ctx, existing) }); err != nil {
		return false, errs.Wrap("delete_verb", errs.Storage, id, err)
	}
	db.appendChange(ctx, storage.ChangeDelete, "verb", id)
	return true, nil
}

// RestoreVerb clears a verb's soft-delete flag, returning false (with no
// error) if it was not deleted.
func (db *DB) RestoreVerb(ctx context.Context, id string) (bool, error) {
	if err := db.checkWritable("restore_verb"); err != nil {
		return false, err
	}
	existing, err := db.adapter.GetVerb(ctx, id)
	if err != nil {
		return false, errs.Wrap("restore_verb", errs.NotFound, id, err)
	}
	if !existing.Metadata.Brainy.Deleted {
		return false, nil
	}
	prevFlat := existing.Metadata.Flatten()
	existing.Metadata.Brainy.Deleted = false
	existing.Metadata.Brainy.Updated = time.Now().UnixNano()

	if _, err := db.wal.Append(wal.OpUpdateVerb, wal.EntityVerb, id, existing); err != nil {
		return false, errs.Wrap("restore_verb", errs.Storage, id, err)
	}
	db.mu.Lock()
	db.metaIdx.RemoveFromIndex(id, prevFlat)
	db.metaIdx.AddToIndex(id, existing.Metadata.Flatten())
	db.mu.Unlock()

	if err := db.withStorage(ctx, func(ctx context.Context) error { return db.adapter.SaveVerb(ctx, existing) }); err != nil {
		return false, errs.Wrap("restore_verb", errs.Storage, id, err)
	}
	db.appendChange(ctx, storage.ChangeUpdate, "verb", id)
	return true, nil
}
