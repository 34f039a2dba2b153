// Package brainy assembles the vector index, metadata index, graph
// adjacency, WAL, cache, and cleanup coordinator into a single facade:
// one writer lock serializing the facade's index mutations, one bounded storage worker
// pool, and a closed set of public operations. A single struct embeds
// its collaborators, opened once, closed once, with every public method
// a thin, validated wrapper around them.
package brainy

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brainyhq/brainy/pkg/cache"
	"github.com/brainyhq/brainy/pkg/cleanup"
	"github.com/brainyhq/brainy/pkg/embedding"
	"github.com/brainyhq/brainy/pkg/errs"
	"github.com/brainyhq/brainy/pkg/graph"
	"github.com/brainyhq/brainy/pkg/hnsw"
	"github.com/brainyhq/brainy/pkg/metadata"
	"github.com/brainyhq/brainy/pkg/query"
	"github.com/brainyhq/brainy/pkg/storage"
	"github.com/brainyhq/brainy/pkg/wal"
)

// DB is the open handle returned by Open. All exported methods are
// goroutine-safe.
type DB struct {
	config   Config
	embedder embedding.Embedder
	hooks    Hooks
	logger   *log.Logger

	adapter storage.Adapter
	wal     *wal.WAL
	vectors *hnsw.Index
	metaIdx *metadata.Index
	graph   *graph.Graph
	cache   *cache.Cache
	query   *query.Engine
	cleanup *cleanup.Coordinator

	// mu is the single writer lock: it serializes the facade's own
	// mutations of vectors/metaIdx/graph. Reads (Find/FindSimilar) and the
	// cleanup coordinator do not take it; they rely on each index's
	// internal locking, so a search can run alongside a mutation or a
	// cleanup excise.
	mu sync.RWMutex

	readOnly  atomic.Bool
	writeOnly atomic.Bool
	frozen    atomic.Bool
	closed    atomic.Bool

	storageSem chan struct{}

	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// Open builds every collaborator, reconciles storage against the WAL,
// loads persisted nouns/verbs into the in-memory indexes, and starts the
// background cleanup coordinator and cache fairness monitor (unless the
// database opens frozen). embedder may be nil, in which case the stub
// hash-based embedder is used; hooks may be the zero value.
func Open(ctx context.Context, cfg Config, embedder embedding.Embedder, hooks Hooks) (*DB, error) {
	if cfg.ReadOnly && cfg.WriteOnly {
		return nil, errs.New("open", errs.Validation, "", "read_only and write_only are mutually exclusive")
	}
	if cfg.Dim <= 0 {
		return nil, errs.New("open", errs.Validation, "", "dimension must be positive")
	}
	if embedder == nil {
		embedder = embedding.NewStub(cfg.Dim)
	}

	adapter, err := openAdapter(ctx, cfg, hooks)
	if err != nil {
		return nil, err
	}

	walCfg := cfg.WAL
	if walCfg.Dir == "" {
		walCfg = wal.DefaultConfig(filepath.Join(cfg.DataDir, "wal"))
	}
	if cfg.Ephemeral {
		walCfg.Disabled = true
	}
	w, err := wal.Open(walCfg)
	if err != nil {
		_ = adapter.Close()
		return nil, errs.Wrap("open", errs.Storage, "", err)
	}

	hnswCfg := cfg.HNSW
	if hnswCfg.Dim == 0 {
		hnswCfg = hnsw.DefaultConfig(cfg.Dim)
		if cfg.Metric != "" {
			hnswCfg.Metric = cfg.Metric
		}
	}
	vectors, err := hnsw.New(hnswCfg)
	if err != nil {
		_ = w.Close()
		_ = adapter.Close()
		return nil, errs.Wrap("open", errs.Validation, "", err)
	}

	cacheCfg := cfg.Cache
	if cacheCfg.MaxSizeBytes == 0 {
		cacheCfg = cache.DefaultConfig()
	}

	workerPoolSize := cfg.WorkerPoolSize
	if workerPoolSize <= 0 {
		workerPoolSize = 8
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())

	db := &DB{
		config:     cfg,
		hooks:      hooks,
		logger:     log.New(os.Stderr, "[brainy] ", log.LstdFlags),
		adapter:    adapter,
		wal:        w,
		vectors:    vectors,
		metaIdx:    metadata.New(),
		graph:      graph.New(),
		cache:      cache.New(cacheCfg),
		storageSem: make(chan struct{}, workerPoolSize),
		bgCtx:      bgCtx,
		bgCancel:   bgCancel,
	}
	db.embedder = &cachingEmbedder{embedder: embedder, cache: db.cache}
	db.readOnly.Store(cfg.ReadOnly)
	db.writeOnly.Store(cfg.WriteOnly)
	db.frozen.Store(cfg.Frozen)

	if err := db.recoverWAL(ctx); err != nil {
		_ = w.Close()
		_ = adapter.Close()
		return nil, errs.Wrap("open", errs.Storage, "", err)
	}
	if err := db.loadAll(ctx); err != nil {
		_ = w.Close()
		_ = adapter.Close()
		return nil, errs.Wrap("open", errs.Storage, "", err)
	}

	queryCfg := cfg.Query
	if queryCfg.SelectivityThreshold == 0 {
		queryCfg = query.DefaultConfig()
	}
	db.query = query.New(queryCfg, adapter, vectors, db.metaIdx, db.graph, db.embedder)

	cleanupCfg := cfg.Cleanup
	if cleanupCfg.Interval == 0 {
		cleanupCfg = cleanup.DefaultConfig()
	}
	db.cleanup = cleanup.New(cleanupCfg, adapter, vectors, db.metaIdx, db.graph)

	if !cfg.Frozen {
		db.cache.StartFairnessMonitor(bgCtx)
		if !cfg.ReadOnly {
			db.cleanup.Start(bgCtx)
		}
	}

	return db, nil
}

func openAdapter(ctx context.Context, cfg Config, hooks Hooks) (storage.Adapter, error) {
	var adapter storage.Adapter
	switch {
	case hooks.StorageProvider != nil:
		adapter = hooks.StorageProvider.StorageProvider()
	case cfg.Ephemeral:
		adapter = storage.NewMemoryAdapter()
	default:
		b, err := storage.NewBadgerAdapter(storage.BadgerConfig{
			Dir:   filepath.Join(cfg.DataDir, "data"),
			Quota: cfg.StorageQuota,
		})
		if err != nil {
			return nil, errs.Wrap("open", errs.Storage, "", err)
		}
		adapter = b
	}
	if err := adapter.Init(ctx); err != nil {
		return nil, errs.Wrap("open", errs.Storage, "", err)
	}
	return adapter, nil
}

// loadAll populates the in-memory vector, metadata, and graph indexes
// from durable storage as a cold-start rebuild. A noun or verb whose
// stored vector no longer matches the configured dimension is logged and
// left out of every index rather than aborting startup.
func (db *DB) loadAll(ctx context.Context) error {
	nouns, err := db.adapter.GetNouns(ctx, storage.Pagination{}, storage.ListFilter{IncludeDeleted: true})
	if err != nil {
		return fmt.Errorf("brainy: load nouns: %w", err)
	}
	for _, n := range nouns {
		if len(n.Vector) != db.config.Dim {
			db.logger.Printf("load: dropping noun %s, vector dim %d != configured %d", n.ID, len(n.Vector), db.config.Dim)
			continue
		}
		if err := db.vectors.Insert(n.ID, hnsw.KindNoun, n.Vector); err != nil {
			db.logger.Printf("load: noun %s into hnsw: %v", n.ID, err)
			continue
		}
		db.metaIdx.AddToIndex(n.ID, n.Metadata.Flatten())
	}

	verbs, err := db.adapter.GetVerbs(ctx, storage.Pagination{}, storage.ListFilter{IncludeDeleted: true})
	if err != nil {
		return fmt.Errorf("brainy: load verbs: %w", err)
	}
	for _, v := range verbs {
		if len(v.Vector) != db.config.Dim {
			db.logger.Printf("load: dropping verb %s, vector dim %d != configured %d", v.ID, len(v.Vector), db.config.Dim)
			continue
		}
		if err := db.vectors.Insert(v.ID, hnsw.KindVerb, v.Vector); err != nil {
			db.logger.Printf("load: verb %s into hnsw: %v", v.ID, err)
			continue
		}
		db.metaIdx.AddToIndex(v.ID, v.Metadata.Flatten())
		db.graph.AddVerb(graph.VerbRef{ID: v.ID, Source: v.Source, Target: v.Target, VerbType: v.VerbType})
	}
	return nil
}

// recoverWAL replays logged mutations whose entity state in storage does
// not match the log, then checkpoints the log up to the highest sequence
// seen so a clean run never replays twice.
func (db *DB) recoverWAL(ctx context.Context) error {
	entries, err := db.wal.ReadAll()
	if err != nil {
		return fmt.Errorf("brainy: read wal: %w", err)
	}
	var maxSeq uint64
	for _, e := range entries {
		if e.Sequence > maxSeq {
			maxSeq = e.Sequence
		}
		switch e.EntityType {
		case wal.EntityNoun:
			db.recoverNounEntry(ctx, e)
		case wal.EntityVerb:
			db.recoverVerbEntry(ctx, e)
		}
	}
	if maxSeq > 0 {
		if err := db.wal.Checkpoint(maxSeq); err != nil {
			db.logger.Printf("wal recovery: checkpoint: %v", err)
		}
	}
	return nil
}

func (db *DB) recoverNounEntry(ctx context.Context, e wal.Entry) {
	var logged storage.Noun
	if err := json.Unmarshal(e.Payload, &logged); err != nil {
		db.logger.Printf("wal recovery: decode noun entry %d: %v", e.Sequence, err)
		return
	}
	existing, _ := db.adapter.GetNoun(ctx, logged.ID)
	switch e.Op {
	case wal.OpAddNoun, wal.OpUpdateNoun:
		if existing == nil || existing.Metadata.Brainy.Version < logged.Metadata.Brainy.Version {
			if err := db.adapter.SaveNoun(ctx, &logged); err != nil {
				db.logger.Printf("wal recovery: save noun %s: %v", logged.ID, err)
			}
		}
	case wal.OpDeleteNoun:
		if existing != nil && !existing.Metadata.Brainy.Deleted {
			existing.Metadata.Brainy.Deleted = true
			existing.Metadata.Brainy.Updated = logged.Metadata.Brainy.Updated
			if err := db.adapter.SaveNoun(ctx, existing); err != nil {
				db.logger.Printf("wal recovery: delete noun %s: %v", logged.ID, err)
			}
		}
	}
}

func (db *DB) recoverVerbEntry(ctx context.Context, e wal.Entry) {
	var logged storage.Verb
	if err := json.Unmarshal(e.Payload, &logged); err != nil {
		db.logger.Printf("wal recovery: decode verb entry %d: %v", e.Sequence, err)
		return
	}
	existing, _ := db.adapter.GetVerb(ctx, logged.ID)
	switch e.Op {
	case wal.OpAddVerb, wal.OpUpdateVerb:
		if existing == nil || existing.Metadata.Brainy.Version < logged.Metadata.Brainy.Version {
			if err := db.adapter.SaveVerb(ctx, &logged); err != nil {
				db.logger.Printf("wal recovery: save verb %s: %v", logged.ID, err)
			}
		}
	case wal.OpDeleteVerb:
		if existing != nil && !existing.Metadata.Brainy.Deleted {
			existing.Metadata.Brainy.Deleted = true
			existing.Metadata.Brainy.Updated = logged.Metadata.Brainy.Updated
			if err := db.adapter.SaveVerb(ctx, existing); err != nil {
				db.logger.Printf("wal recovery: delete verb %s: %v", logged.ID, err)
			}
		}
	}
}

// withStorage runs fn on the bounded storage worker pool: it blocks for a
// free slot (or ctx cancellation), then runs fn under errgroup.WithContext
// and returns fn's error.
func (db *DB) withStorage(ctx context.Context, fn func(context.Context) error) error {
	select {
	case db.storageSem <- struct{}{}:
	case <-ctx.Done():
		return errs.Wrap("storage", errs.Cancelled, "", ctx.Err())
	}
	defer func() { <-db.storageSem }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return fn(gctx) })
	return g.Wait()
}

func (db *DB) checkWritable(op string) error {
	if db.frozen.Load() {
		return errs.New(op, errs.Frozen, "", "database is frozen")
	}
	if db.readOnly.Load() {
		return errs.New(op, errs.ReadOnly, "", "database is read-only")
	}
	return nil
}

func (db *DB) checkSearchable(op string) error {
	if db.writeOnly.Load() {
		return errs.New(op, errs.WriteOnly, "", "database is write-only")
	}
	return nil
}

func (db *DB) checkDirectRead(op string) error {
	if db.writeOnly.Load() && !db.config.AllowDirectReads {
		return errs.New(op, errs.WriteOnly, "", "direct reads are disabled in write-only mode")
	}
	return nil
}

// SetReadOnly toggles read-only mode. It is rejected while write-only
// mode is active, since the two are mutually exclusive.
func (db *DB) SetReadOnly(v bool) error {
	if v && db.writeOnly.Load() {
		return errs.New("set_read_only", errs.Validation, "", "read_only and write_only are mutually exclusive")
	}
	db.readOnly.Store(v)
	if v {
		db.cleanup.Stop()
	} else if !db.frozen.Load() {
		db.cleanup.Start(db.bgCtx)
	}
	return nil
}

// SetWriteOnly toggles write-only mode. It is rejected while read-only
// mode is active.
func (db *DB) SetWriteOnly(v bool) error {
	if v && db.readOnly.Load() {
		return errs.New("set_write_only", errs.Validation, "", "read_only and write_only are mutually exclusive")
	}
	db.writeOnly.Store(v)
	return nil
}

// SetFrozen toggles frozen mode, starting or stopping every background
// optimization (cleanup, cache fairness monitor) to match.
func (db *DB) SetFrozen(v bool) {
	db.frozen.Store(v)
	if v {
		db.cleanup.Stop()
		db.cache.StopFairnessMonitor()
		return
	}
	db.cache.StartFairnessMonitor(db.bgCtx)
	if !db.readOnly.Load() {
		db.cleanup.Start(db.bgCtx)
	}
}

// ShutDown stops every background worker and closes the WAL and storage
// adapter. It is safe to call more than once.
func (db *DB) ShutDown(ctx context.Context) error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	db.cleanup.Stop()
	db.cache.StopFairnessMonitor()
	db.bgCancel()
	if err := db.wal.Close(); err != nil {
		db.logger.Printf("shutdown: close wal: %v", err)
	}
	return db.adapter.Close()
}

// GetStatistics returns the durable per-service counters.
func (db *DB) GetStatistics(ctx context.Context) (storage.Statistics, error) {
	stats, err := db.adapter.GetStatistics(ctx)
	if err != nil {
		return storage.Statistics{}, errs.Wrap("get_statistics", errs.Storage, "", err)
	}
	return stats, nil
}

// ResetStatistics zeroes every counter and records the reset in the
// change log as a synthetic "_stats" entity update.
func (db *DB) ResetStatistics(ctx context.Context) error {
	if err := db.checkWritable("reset_statistics"); err != nil {
		return err
	}
	if err := db.adapter.SaveStatistics(ctx, storage.NewStatistics()); err != nil {
		return errs.Wrap("reset_statistics", errs.Storage, "", err)
	}
	db.appendChange(ctx, storage.ChangeUpdate, "_stats", "_stats")
	return nil
}

// GetStorageStatus reports the underlying adapter's capacity usage.
func (db *DB) GetStorageStatus(ctx context.Context) (storage.Status, error) {
	return db.adapter.GetStorageStatus(ctx)
}

// GetChangesSince passes through to the adapter's change-log cursor.
func (db *DB) GetChangesSince(ctx context.Context, seq uint64, limit int) ([]storage.ChangeRecord, error) {
	return db.adapter.GetChangesSince(ctx, seq, limit)
}

// RunCleanup runs one synchronous cleanup pass, for callers (e.g. the
// CLI's cleanup-run subcommand) that want cleanup outside the periodic
// background schedule.
func (db *DB) RunCleanup(ctx context.Context) cleanup.Stats {
	return db.cleanup.Run(ctx)
}

func (db *DB) bumpStat(ctx context.Context, kind storage.StatKind, by int64) {
	if err := db.withStorage(ctx, func(ctx context.Context) error {
		return db.adapter.IncrementStatistic(ctx, kind, by)
	}); err != nil {
		db.logger.Printf("bump stat %s: %v", kind, err)
	}
}

func (db *DB) appendChange(ctx context.Context, op storage.ChangeOp, entityType, id string) {
	rec := storage.ChangeRecord{EntityType: entityType, EntityID: id, Op: op, Timestamp: time.Now().UnixNano()}
	if err := db.withStorage(ctx, func(ctx context.Context) error {
		return db.adapter.AppendChange(ctx, rec)
	}); err != nil {
		db.logger.Printf("append change %s %s: %v", entityType, id, err)
	}
}

func newID() string { return uuid.NewString() }

func mergeMeta(existing, patch map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(patch))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func serializeMeta(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}
