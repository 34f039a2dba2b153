// Package cleanup implements the periodic hard-delete sweep over
// soft-deleted nouns and verbs across storage, the HNSW index, the
// metadata index, and graph adjacency. The background worker uses a
// ticker plus a cancellable context and WaitGroup, and purges each item
// in a storage-first, bounded-batch order.
package cleanup

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/brainyhq/brainy/pkg/storage"
)

// VectorIndex is the subset of pkg/hnsw.Index the coordinator needs.
type VectorIndex interface {
	HardDelete(id string) error
}

// MetaIndex is the subset of pkg/metadata.Index the coordinator needs.
type MetaIndex interface {
	RemoveFromIndex(id string, flat map[string]any)
}

// AdjacencyGraph is the subset of pkg/graph.Graph the coordinator needs.
type AdjacencyGraph interface {
	CascadeDeleteNoun(nounID string) []string
	RemoveVerb(id string)
}

// Config tunes the coordinator.
type Config struct {
	Interval  time.Duration
	BatchSize int
	MaxAge    time.Duration
}

// DefaultConfig returns the coordinator's default tuning: every 15
// minutes, batches of 100, items older than 1 hour.
func DefaultConfig() Config {
	return Config{
		Interval:  15 * time.Minute,
		BatchSize: 100,
		MaxAge:    1 * time.Hour,
	}
}

// Stats reports one run's outcome.
type Stats struct {
	ItemsProcessed int
	ItemsDeleted   int
	Errors         int
	LastRun        time.Time
	NextRun        time.Time
}

// Coordinator runs the periodic sweep.
type Coordinator struct {
	config  Config
	storage storage.Adapter
	vectors VectorIndex
	meta    MetaIndex
	adj     AdjacencyGraph
	logger  *log.Logger

	mu    sync.Mutex
	stats Stats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Coordinator.
func New(cfg Config, adapter storage.Adapter, vectors VectorIndex, meta MetaIndex, adj AdjacencyGraph) *Coordinator {
	return &Coordinator{
		config:  cfg,
		storage: adapter,
		vectors: vectors,
		meta:    meta,
		adj:     adj,
		logger:  log.New(os.Stderr, "[brainy:cleanup] ", log.LstdFlags),
	}
}

// Start launches the periodic sweep as a cancellable background worker.
// Callers in read_only or frozen mode should not call Start at all.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Run(ctx)
			}
		}
	}()
}

// Stop cancels the background worker and waits for it to exit.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// Run executes one sweep synchronously. Exported so tests and the
// operator CLI can trigger a sweep on demand without waiting for the
// ticker.
func (c *Coordinator) Run(ctx context.Context) Stats {
	now := time.Now()
	cutoff := now.Add(-c.config.MaxAge).UnixNano()

	run := Stats{LastRun: now, NextRun: now.Add(c.config.Interval)}

	nouns, err := c.storage.GetNouns(ctx, storage.Pagination{Limit: 0}, storage.ListFilter{IncludeDeleted: true})
	if err != nil {
		c.logger.Printf("list nouns for cleanup: %v", err)
	}
	for _, n := range nouns {
		if run.ItemsProcessed >= c.config.BatchSize {
			break
		}
		if !n.Metadata.Brainy.Deleted || n.Metadata.Brainy.Updated >= cutoff {
			continue
		}
		run.ItemsProcessed++
		if c.hardDeleteNoun(ctx, n) {
			run.ItemsDeleted++
		} else {
			run.Errors++
		}
	}

	verbs, err := c.storage.GetVerbs(ctx, storage.Pagination{Limit: 0}, storage.ListFilter{IncludeDeleted: true})
	if err != nil {
		c.logger.Printf("list verbs for cleanup: %v", err)
	}
	for _, v := range verbs {
		if run.ItemsProcessed >= c.config.BatchSize {
			break
		}
		if !v.Metadata.Brainy.Deleted || v.Metadata.Brainy.Updated >= cutoff {
			continue
		}
		run.ItemsProcessed++
		if c.hardDeleteVerb(ctx, v) {
			run.ItemsDeleted++
		} else {
			run.Errors++
		}
	}

	c.mu.Lock()
	c.stats = run
	c.mu.Unlock()
	return run
}

// hardDeleteNoun performs a storage-first ordering:
// (a) delete from storage, (b) excise from HNSW with re-stitching,
// (c) remove from metadata index, (d) remove from graph adjacency and
// cascade-delete incident verbs. On error at any step it logs and skips
// the item rather than rolling forward to the next step.
func (c *Coordinator) hardDeleteNoun(ctx context.Context, n *storage.Noun) bool {
	if err := c.storage.DeleteNoun(ctx, n.ID); err != nil {
		c.logger.Printf("delete noun %s from storage: %v", n.ID, err)
		return false
	}
	if err := c.vectors.HardDelete(n.ID); err != nil {
		c.logger.Printf("excise noun %s from hnsw: %v", n.ID, err)
		return false
	}
	c.meta.RemoveFromIndex(n.ID, n.Metadata.Flatten())

	for _, verbID := range c.adj.CascadeDeleteNoun(n.ID) {
		if err := c.storage.DeleteVerb(ctx, verbID); err != nil {
			c.logger.Printf("cascade delete verb %s for noun %s: %v", verbID, n.ID, err)
		}
		_ = c.vectors.HardDelete(verbID)
	}
	return true
}

func (c *Coordinator) hardDeleteVerb(ctx context.Context, v *storage.Verb) bool {
	if err := c.storage.DeleteVerb(ctx, v.ID); err != nil {
		c.logger.Printf("delete verb %s from storage: %v", v.ID, err)
		return false
	}
	if err := c.vectors.HardDelete(v.ID); err != nil {
		c.logger.Printf("excise verb %s from hnsw: %v", v.ID, err)
		return false
	}
	c.meta.RemoveFromIndex(v.ID, v.Metadata.Flatten())
	c.adj.RemoveVerb(v.ID)
	return true
}

// Stats returns the most recent run's report.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
