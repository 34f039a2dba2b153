package query

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"

	"github.com/brainyhq/brainy/pkg/metadata"
)

// cursorState is the opaque pagination cursor: last_id, last_score,
// position, plus a signature tying it to the exact query+options that
// produced it. A cursor from a different query is observably invalidated
// (has_more=false). The signature covers only the query and options, so
// data changes between pages do not invalidate a cursor; it resumes at
// its stored position in the freshly computed result list.
type cursorState struct {
	LastID    string  `json:"last_id"`
	LastScore float64 `json:"last_score"`
	Position  int     `json:"position"`
	Signature string  `json:"signature"`
}

func encodeCursor(c cursorState) string {
	b, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(b)
}

func decodeCursor(s string) (cursorState, bool) {
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return cursorState{}, false
	}
	var c cursorState
	if err := json.Unmarshal(raw, &c); err != nil {
		return cursorState{}, false
	}
	return c, true
}

type signatureInput struct {
	Like           any
	Where          *metadata.Filter
	Connected      *Connected
	Limit          int
	Threshold      float64
	NounTypes      []string
	ItemIDs        []string
	ExcludeDeleted bool
	WeightVector   float64
	WeightMetadata float64
}

// signatureFor fingerprints the parts of a query+options that determine
// its result set, so a cursor minted against one query signature is
// rejected if replayed against a different one.
func signatureFor(q Query, opts Options) string {
	b, _ := json.Marshal(signatureInput{
		Like:           q.Like,
		Where:          q.Where,
		Connected:      q.Connected,
		Limit:          opts.Limit,
		Threshold:      opts.Threshold,
		NounTypes:      opts.NounTypes,
		ItemIDs:        opts.ItemIDs,
		ExcludeDeleted: opts.ExcludeDeleted,
		WeightVector:   opts.WeightVector,
		WeightMetadata: opts.WeightMetadata,
	})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
