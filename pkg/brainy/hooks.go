package brainy

import (
	"context"

	"github.com/brainyhq/brainy/pkg/query"
	"github.com/brainyhq/brainy/pkg/storage"
)

// BeforeAddNounHook runs before a noun is durably persisted, letting a
// caller validate or enrich it. Returning an error aborts add_noun
// before any WAL entry is written.
type BeforeAddNounHook interface {
	OnBeforeAddNoun(ctx context.Context, n *storage.Noun) error
}

// BeforeAddVerbHook is BeforeAddNounHook's verb counterpart.
type BeforeAddVerbHook interface {
	OnBeforeAddVerb(ctx context.Context, v *storage.Verb) error
}

// AfterSearchHook post-processes a result page before it is returned to
// the caller, e.g. for auditing or result re-ranking.
type AfterSearchHook interface {
	OnAfterSearch(ctx context.Context, p query.Page) query.Page
}

// StorageProviderHook lets a caller supply its own storage.Adapter
// instead of the facade's default memory/Badger selection.
type StorageProviderHook interface {
	StorageProvider() storage.Adapter
}

// Hooks is the trait registry: each variant is optional, wired once at
// Open and never mutated afterward. Global mutable state is deliberately
// absent — every hook a DB consults is reachable only through this
// struct, fixed at construction.
type Hooks struct {
	BeforeAddNoun   BeforeAddNounHook
	BeforeAddVerb   BeforeAddVerbHook
	AfterSearch     AfterSearchHook
	StorageProvider StorageProviderHook
}
