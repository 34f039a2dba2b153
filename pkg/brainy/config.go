package brainy

import (
	"github.com/brainyhq/brainy/pkg/cache"
	"github.com/brainyhq/brainy/pkg/cleanup"
	"github.com/brainyhq/brainy/pkg/hnsw"
	"github.com/brainyhq/brainy/pkg/query"
	"github.com/brainyhq/brainy/pkg/vector"
	"github.com/brainyhq/brainy/pkg/wal"
)

// Config configures Open. Zero-valued sub-configs (HNSW, Cache, Cleanup,
// WAL, Query) fall back to each component's own Default*Config.
type Config struct {
	// Dim is the fixed embedding dimension every noun/verb vector must
	// match; mismatches are rejected on insert. On load, a stored vector
	// of another length is logged and left out of every index; its record
	// stays in storage.
	Dim int
	// Metric selects the HNSW distance kernel (cosine/euclidean/
	// manhattan/dot) only when HNSW is zero-valued; empty then falls back
	// to hnsw.DefaultConfig's cosine. When HNSW is set, as DefaultConfig
	// does, HNSW.Metric decides and Metric is not read.
	Metric string

	// DataDir roots the Badger database and WAL segment when Ephemeral
	// is false.
	DataDir string
	// Ephemeral selects the in-memory storage adapter and disables the
	// WAL.
	Ephemeral bool

	ReadOnly         bool
	WriteOnly        bool
	Frozen           bool
	AllowDirectReads bool

	StorageQuota int64
	// WorkerPoolSize bounds how many storage calls may be in flight at
	// once, issued off the caller's goroutine.
	WorkerPoolSize int

	HNSW    hnsw.Config
	Cache   cache.Config
	Cleanup cleanup.Config
	WAL     wal.Config
	Query   query.Config
}

// DefaultConfig returns a Config for dimension dim with every sub-config
// at its own default and a non-ephemeral, read-write, unfrozen mode.
func DefaultConfig(dim int) Config {
	return Config{
		Dim:            dim,
		Metric:         vector.MetricCosine,
		DataDir:        "./brainy-data",
		WorkerPoolSize: 8,
		HNSW:           hnsw.DefaultConfig(dim),
		Cache:          cache.DefaultConfig(),
		Cleanup:        cleanup.DefaultConfig(),
		WAL:            wal.DefaultConfig(""), // empty Dir: Open places the WAL under DataDir
		Query:          query.DefaultConfig(),
	}
}
