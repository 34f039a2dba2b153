// Package cache implements Brainy's Unified Cache: a single bounded
// store shared by the HNSW index, the metadata index, embedding output,
// and arbitrary other entries, with cost-aware eviction, request
// coalescing, and a periodic fairness monitor. It is never a
// package-level singleton — it is constructed and owned by the database
// facade.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// Type tags the kind of content an Entry holds.
type Type string

const (
	TypeHNSW      Type = "hnsw"
	TypeMetadata  Type = "metadata"
	TypeEmbedding Type = "embedding"
	TypeOther     Type = "other"
)

var allTypes = []Type{TypeHNSW, TypeMetadata, TypeEmbedding, TypeOther}

// Entry is one cached value plus the bookkeeping the eviction and
// fairness logic needs.
type Entry struct {
	Key         string
	Type        Type
	Payload     any
	SizeBytes   int64
	RebuildCost float64
	LastAccess  time.Time
	AccessCount int64
}

// valueScore is the eviction priority: access_count / max(rebuild_cost,
// 1). Lower means evict first.
func (e *Entry) valueScore() float64 {
	cost := e.RebuildCost
	if cost < 1 {
		cost = 1
	}
	return float64(e.AccessCount) / cost
}

// Config tunes the cache.
type Config struct {
	MaxSizeBytes      int64
	FairnessInterval  time.Duration
	FairnessByteShare float64 // dominant-type threshold, default 0.9
	FairnessAccShare  float64 // starved-access threshold, default 0.1
	FairnessEvictFrac float64 // fraction of dominant type evicted, default 0.2
}

// DefaultConfig returns the cache's default tuning.
func DefaultConfig() Config {
	return Config{
		MaxSizeBytes:      256 * 1024 * 1024,
		FairnessInterval:  60 * time.Second,
		FairnessByteShare: 0.9,
		FairnessAccShare:  0.1,
		FairnessEvictFrac: 0.2,
	}
}

// Loader populates a missing cache entry. It returns the payload, the
// entry's size in bytes, and its rebuild-cost weight.
type Loader func(ctx context.Context) (payload any, sizeBytes int64, rebuildCost float64, err error)

// Cache is the unified, multi-type, cost-aware cache.
type Cache struct {
	mu          sync.Mutex
	shards      map[Type]*lru.Cache[string, *Entry]
	currentSize int64
	config      Config

	group singleflight.Group

	stopFairness chan struct{}
	fairnessDone chan struct{}
}

// New constructs a Cache per cfg. Each type tag gets its own unbounded
// golang-lru/v2 shard (for O(1) lookup); total byte budget and eviction
// order are enforced by Cache itself across shards, not by the
// per-shard LRU recency the library provides natively.
func New(cfg Config) *Cache {
	c := &Cache{shards: make(map[Type]*lru.Cache[string, *Entry]), config: cfg}
	for _, t := range allTypes {
		shard, _ := lru.New[string, *Entry](1 << 20)
		c.shards[t] = shard
	}
	return c
}

// StartFairnessMonitor launches the periodic fairness check as a
// cancellable background worker (ticker + context + stop/done channels).
func (c *Cache) StartFairnessMonitor(ctx context.Context) {
	c.stopFairness = make(chan struct{})
	c.fairnessDone = make(chan struct{})
	go func() {
		defer close(c.fairnessDone)
		ticker := time.NewTicker(c.config.FairnessInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopFairness:
				return
			case <-ticker.C:
				c.runFairnessCheck()
			}
		}
	}()
}

// StopFairnessMonitor stops the background worker started by
// StartFairnessMonitor, if any.
func (c *Cache) StopFairnessMonitor() {
	if c.stopFairness == nil {
		return
	}
	close(c.stopFairness)
	<-c.fairnessDone
}

// Get returns the cached entry for key if present, recording an access.
func (c *Cache) Get(key string, typ Type) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key, typ)
}

func (c *Cache) getLocked(key string, typ Type) (*Entry, bool) {
	shard := c.shards[typ]
	e, ok := shard.Get(key)
	if !ok {
		return nil, false
	}
	e.AccessCount++
	e.LastAccess = time.Now()
	return e, true
}

// GetOrLoad returns the cached entry for key, or calls loader exactly
// once across all concurrent callers for the same key (request
// coalescing) and caches the result.
func (c *Cache) GetOrLoad(ctx context.Context, key string, typ Type, loader Loader) (*Entry, error) {
	c.mu.Lock()
	if e, ok := c.getLocked(key, typ); ok {
		c.mu.Unlock()
		return e, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(string(typ)+"|"+key, func() (any, error) {
		payload, size, cost, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		e := &Entry{
			Key:         key,
			Type:        typ,
			Payload:     payload,
			SizeBytes:   size,
			RebuildCost: cost,
			LastAccess:  time.Now(),
			AccessCount: 1,
		}
		c.put(e)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Put inserts or replaces an entry directly, evicting as needed to stay
// within the configured byte budget.
func (c *Cache) Put(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(e)
}

func (c *Cache) put(e *Entry) {
	shard := c.shards[e.Type]
	if old, ok := shard.Peek(e.Key); ok {
		c.currentSize -= old.SizeBytes
	}
	c.evictForSpaceLocked(e.SizeBytes)
	shard.Add(e.Key, e)
	c.currentSize += e.SizeBytes
}

// evictForSpaceLocked evicts minimum value-score entries across all
// shards until there is room for incoming bytes, or nothing left to
// evict.
func (c *Cache) evictForSpaceLocked(incoming int64) {
	for c.currentSize+incoming > c.config.MaxSizeBytes {
		victim, victimType, ok := c.lowestValueLocked()
		if !ok {
			return
		}
		c.shards[victimType].Remove(victim.Key)
		c.currentSize -= victim.SizeBytes
	}
}

func (c *Cache) lowestValueLocked() (*Entry, Type, bool) {
	var worst *Entry
	var worstType Type
	for _, t := range allTypes {
		for _, key := range c.shards[t].Keys() {
			e, ok := c.shards[t].Peek(key)
			if !ok {
				continue
			}
			if worst == nil || e.valueScore() < worst.valueScore() {
				worst = e
				worstType = t
			}
		}
	}
	return worst, worstType, worst != nil
}

// Remove deletes key from the typ shard, if present.
func (c *Cache) Remove(key string, typ Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.shards[typ].Peek(key); ok {
		c.currentSize -= e.SizeBytes
		c.shards[typ].Remove(key)
	}
}

// Clear empties every shard.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range allTypes {
		c.shards[t].Purge()
	}
	c.currentSize = 0
}

// Stats reports per-type byte and access totals, used by the fairness
// monitor and exposed for operator tooling.
type Stats struct {
	BytesByType  map[Type]int64
	AccessByType map[Type]int64
	TotalBytes   int64
}

func (c *Cache) statsLocked() Stats {
	s := Stats{BytesByType: make(map[Type]int64), AccessByType: make(map[Type]int64)}
	for _, t := range allTypes {
		for _, key := range c.shards[t].Keys() {
			e, ok := c.shards[t].Peek(key)
			if !ok {
				continue
			}
			s.BytesByType[t] += e.SizeBytes
			s.AccessByType[t] += e.AccessCount
			s.TotalBytes += e.SizeBytes
		}
	}
	return s
}

// Stats returns a snapshot of per-type byte and access totals.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked()
}

// runFairnessCheck is the fairness monitor: if any
// type holds >= FairnessByteShare of bytes while receiving <
// FairnessAccShare of accesses, the bottom FairnessEvictFrac of that
// type's entries by value-score are force-evicted.
func (c *Cache) runFairnessCheck() {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.statsLocked()
	if stats.TotalBytes == 0 {
		return
	}
	var totalAccess int64
	for _, a := range stats.AccessByType {
		totalAccess += a
	}
	if totalAccess == 0 {
		return
	}

	for _, t := range allTypes {
		byteShare := float64(stats.BytesByType[t]) / float64(stats.TotalBytes)
		accShare := float64(stats.AccessByType[t]) / float64(totalAccess)
		if byteShare >= c.config.FairnessByteShare && accShare < c.config.FairnessAccShare {
			c.forceEvictBottomLocked(t, c.config.FairnessEvictFrac)
		}
	}
}

func (c *Cache) forceEvictBottomLocked(t Type, frac float64) {
	shard := c.shards[t]
	keys := shard.Keys()
	entries := make([]*Entry, 0, len(keys))
	for _, k := range keys {
		if e, ok := shard.Peek(k); ok {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].valueScore() < entries[j].valueScore() })

	n := int(float64(len(entries)) * frac)
	for i := 0; i < n; i++ {
		c.currentSize -= entries[i].SizeBytes
		shard.Remove(entries[i].Key)
	}
}

// warmStartEntry is the serializable shape of an access-pattern
// snapshot, used for the persistence hook.
type warmStartEntry struct {
	Key         string `yaml:"key"`
	Type        Type   `yaml:"type"`
	AccessCount int64  `yaml:"access_count"`
}

// SaveSnapshot serializes every entry's key, type, and access count to
// YAML so a future process can pre-bias access_count before its first
// queries (warm-start).
func (c *Cache) SaveSnapshot() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var entries []warmStartEntry
	for _, t := range allTypes {
		for _, key := range c.shards[t].Keys() {
			if e, ok := c.shards[t].Peek(key); ok {
				entries = append(entries, warmStartEntry{Key: e.Key, Type: e.Type, AccessCount: e.AccessCount})
			}
		}
	}
	return yaml.Marshal(entries)
}

// LoadSnapshot replays a snapshot produced by SaveSnapshot, pre-biasing
// access_count for any key that has since been loaded with Put/GetOrLoad.
// Keys not present when LoadSnapshot runs are ignored, and a later load
// of such a key is not biased.
func (c *Cache) LoadSnapshot(data []byte) error {
	var entries []warmStartEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, snap := range entries {
		shard, ok := c.shards[snap.Type]
		if !ok {
			continue
		}
		if e, ok := shard.Peek(snap.Key); ok {
			e.AccessCount += snap.AccessCount
		}
	}
	return nil
}
