package storage

import "context"

// Adapter is the one contract the core depends on for durable
// persistence. Every method may block on I/O and should be called from
// worker-pool goroutines rather than directly on the writer-lock path.
type Adapter interface {
	Init(ctx context.Context) error

	GetNoun(ctx context.Context, id string) (*Noun, error)
	SaveNoun(ctx context.Context, n *Noun) error
	DeleteNoun(ctx context.Context, id string) error

	GetVerb(ctx context.Context, id string) (*Verb, error)
	SaveVerb(ctx context.Context, v *Verb) error
	DeleteVerb(ctx context.Context, id string) error

	GetNouns(ctx context.Context, p Pagination, f ListFilter) ([]*Noun, error)
	GetVerbs(ctx context.Context, p Pagination, f ListFilter) ([]*Verb, error)

	GetVerbsBySource(ctx context.Context, id string) ([]*Verb, error)
	GetVerbsByTarget(ctx context.Context, id string) ([]*Verb, error)

	GetMetadata(ctx context.Context, id string) (*Metadata, error)
	SaveMetadata(ctx context.Context, id string, m Metadata) error

	GetVerbMetadata(ctx context.Context, id string) (*Metadata, error)
	SaveVerbMetadata(ctx context.Context, id string, m Metadata) error

	GetStatistics(ctx context.Context) (Statistics, error)
	SaveStatistics(ctx context.Context, s Statistics) error
	IncrementStatistic(ctx context.Context, kind StatKind, by int64) error

	// GetChangesSince returns up to limit change-log records appended
	// after seq, in ascending seq order. Adapters that do not maintain a
	// change log may return (nil, nil).
	GetChangesSince(ctx context.Context, seq uint64, limit int) ([]ChangeRecord, error)
	AppendChange(ctx context.Context, rec ChangeRecord) error

	GetStorageStatus(ctx context.Context) (Status, error)

	// Clear removes all persisted data. Used by tests and "frozen"
	// reset tooling, never by normal operation.
	Clear(ctx context.Context) error

	Close() error
}
