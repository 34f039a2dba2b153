package brainy

import (
	"context"
	"time"

	"github.com/brainyhq/brainy/pkg/errs"
	"github.com/brainyhq/brainy/pkg/metadata"
	"github.com/brainyhq/brainy/pkg/query"
	"github.com/brainyhq/brainy/pkg/storage"
)

// QueryOptions is the facade-level mirror of the engine's enumerated
// query options. Pointer fields distinguish "caller left this unset" from
// "caller explicitly chose the zero value", so facade defaults (e.g.
// exclude_deleted=true) only apply when the caller did not override them.
type QueryOptions struct {
	Limit     int
	Offset    int
	Cursor    string
	Threshold float64
	// TimeoutMS bounds the whole Find/Search/FindSimilar call; exceeding
	// it surfaces as a Timeout error rather than a bare context error.
	TimeoutMS int

	NounTypes []string
	ItemIDs   []string

	ExcludeDeleted *bool
	WeightVector   *float64
	WeightMetadata *float64

	// IncludeVectors/IncludeMetadata trim the returned nouns' heaviest
	// fields for lean export-style calls; both default to true.
	IncludeVectors  *bool
	IncludeMetadata *bool
	// IncludeRelationships is not inlined into Page (which stays a plain
	// vector+metadata result shape); callers who set it are expected to
	// follow up with RelationshipsForNoun per result id.
	IncludeRelationships bool
}

func (o QueryOptions) toEngine() query.Options {
	eo := query.DefaultOptions()
	if o.Limit > 0 {
		eo.Limit = o.Limit
	}
	eo.Offset = o.Offset
	eo.Cursor = o.Cursor
	eo.Threshold = o.Threshold
	eo.NounTypes = o.NounTypes
	eo.ItemIDs = o.ItemIDs
	if o.ExcludeDeleted != nil {
		eo.ExcludeDeleted = *o.ExcludeDeleted
	}
	if o.WeightVector != nil {
		eo.WeightVector = *o.WeightVector
	}
	if o.WeightMetadata != nil {
		eo.WeightMetadata = *o.WeightMetadata
	}
	return eo
}

func (o QueryOptions) includeVectors() bool  { return o.IncludeVectors == nil || *o.IncludeVectors }
func (o QueryOptions) includeMetadata() bool { return o.IncludeMetadata == nil || *o.IncludeMetadata }

// withTimeout wraps ctx per opts.TimeoutMS, if set.
func withTimeout(ctx context.Context, ms int) (context.Context, context.CancelFunc) {
	if ms <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
}

func asTimeout(op string, ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errs.New(op, errs.Timeout, "", "operation exceeded its configured timeout")
	}
	return err
}

// Search is the `like`-only convenience form of Find: like may be a
// string (embedded via the configured embedder), a []float32 (used
// directly), or any other JSON-serializable value.
func (db *DB) Search(ctx context.Context, like any, opts QueryOptions) (query.Page, error) {
	return db.Find(ctx, query.Query{Like: like}, opts)
}

// Find executes a hybrid vector/metadata/graph query and returns one
// fusion-scored, paginated page. Rejected in write-only mode.
func (db *DB) Find(ctx context.Context, q query.Query, opts QueryOptions) (query.Page, error) {
	if err := db.checkSearchable("find"); err != nil {
		return query.Page{}, err
	}
	ctx, cancel := withTimeout(ctx, opts.TimeoutMS)
	defer cancel()

	page, err := db.query.Find(ctx, q, opts.toEngine())
	if err != nil {
		return query.Page{}, asTimeout("find", ctx, err)
	}
	page = db.hydrate(page, opts)
	if db.hooks.AfterSearch != nil {
		page = db.hooks.AfterSearch.OnAfterSearch(ctx, page)
	}
	return page, nil
}

// FindSimilar implements the supplemented find_similar(id, options)
// feature: fetch id's stored vector and run the same pipeline as a
// `like` query, excluding id itself from the result page.
func (db *DB) FindSimilar(ctx context.Context, id string, opts QueryOptions) (query.Page, error) {
	if err := db.checkSearchable("find_similar"); err != nil {
		return query.Page{}, err
	}
	ctx, cancel := withTimeout(ctx, opts.TimeoutMS)
	defer cancel()

	page, err := db.query.FindSimilar(ctx, id, opts.toEngine())
	if err != nil {
		return query.Page{}, asTimeout("find_similar", ctx, err)
	}
	page = db.hydrate(page, opts)
	if db.hooks.AfterSearch != nil {
		page = db.hooks.AfterSearch.OnAfterSearch(ctx, page)
	}
	return page, nil
}

func (db *DB) hydrate(page query.Page, opts QueryOptions) query.Page {
	if opts.includeVectors() && opts.includeMetadata() {
		return page
	}
	out := make([]query.Result, len(page.Results))
	for i, r := range page.Results {
		if r.Noun == nil {
			out[i] = r
			continue
		}
		cp := *r.Noun
		if !opts.includeVectors() {
			cp.Vector = nil
		}
		if !opts.includeMetadata() {
			cp.Metadata = storage.Metadata{}
		}
		r.Noun = &cp
		out[i] = r
	}
	page.Results = out
	return page
}

// GetFilterFields returns the distinct metadata field names the filter
// engine has observed.
func (db *DB) GetFilterFields() []string { return db.query.GetFilterFields() }

// GetFilterValues returns the distinct normalized values (with counts)
// observed for field.
func (db *DB) GetFilterValues(field string) []metadata.FieldValue { return db.query.GetFilterValues(field) }
