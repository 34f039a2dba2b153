// Package storage defines the Adapter contract the core depends on for
// durable persistence of nouns, verbs, metadata, and statistics, plus
// two concrete adapters: an in-memory adapter for tests and ephemeral
// mode, and a Badger-backed adapter for durable deployments.
package storage

import "time"

// Reserved metadata namespace keys. Every persisted record carries a
// "_brainy" namespace; "_augmentations" and "_audit" are optional.
const (
	NamespaceBrainy        = "_brainy"
	NamespaceAugmentations = "_augmentations"
	NamespaceAudit         = "_audit"
)

// Metadata is a tagged record: reserved namespaces are addressed by
// field, and everything else lives in Other. Indexing flattens the
// entire structure (including reserved namespaces) into dot-path keys,
// which is how "_brainy.deleted" gets O(1) filtering for free.
type Metadata struct {
	Brainy        BrainyMeta     `json:"_brainy"`
	Augmentations map[string]any `json:"_augmentations,omitempty"`
	Audit         map[string]any `json:"_audit,omitempty"`
	Other         map[string]any `json:"other,omitempty"`
}

// BrainyMeta is the internal namespace every noun and verb carries.
type BrainyMeta struct {
	Deleted       bool  `json:"deleted"`
	Indexed       bool  `json:"indexed"`
	Version       int   `json:"version"`
	Created       int64 `json:"created"`
	Updated       int64 `json:"updated"`
	IsPlaceholder bool  `json:"isPlaceholder,omitempty"`
}

// Flatten walks the metadata tree and returns a dot-path -> value map,
// including the reserved namespaces, for the metadata index to consume.
func (m Metadata) Flatten() map[string]any {
	out := make(map[string]any)
	out["_brainy.deleted"] = m.Brainy.Deleted
	out["_brainy.indexed"] = m.Brainy.Indexed
	out["_brainy.version"] = m.Brainy.Version
	out["_brainy.created"] = m.Brainy.Created
	out["_brainy.updated"] = m.Brainy.Updated
	out["_brainy.isPlaceholder"] = m.Brainy.IsPlaceholder
	flattenInto(out, "_augmentations", m.Augmentations)
	flattenInto(out, "_audit", m.Audit)
	flattenInto(out, "", m.Other)
	return out
}

func flattenInto(out map[string]any, prefix string, tree map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch child := v.(type) {
		case map[string]any:
			flattenInto(out, key, child)
		default:
			out[key] = v
		}
	}
}

// Noun is a primary entity: a stable id, an embedding vector, a closed
// noun_type, and metadata.
type Noun struct {
	ID       string    `json:"id"`
	Vector   []float32 `json:"vector"`
	NounType string    `json:"noun_type"`
	Metadata Metadata  `json:"metadata"`
}

// Verb is a typed, directed edge between two nouns.
type Verb struct {
	ID         string   `json:"id"`
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	VerbType   string   `json:"verb_type"`
	Weight     float64  `json:"weight"`
	Confidence float64  `json:"confidence"`
	Vector     []float32 `json:"vector"`
	Metadata   Metadata `json:"metadata"`
}

// Pagination bounds a getNouns/getVerbs listing.
type Pagination struct {
	Offset int
	Limit  int
}

// ListFilter narrows a getNouns/getVerbs listing to a noun_type/verb_type
// or explicit id set; zero value means "no narrowing".
type ListFilter struct {
	Types          []string
	IDs            []string
	IncludeDeleted bool
}

// ChangeOp identifies the kind of mutation a ChangeRecord describes.
type ChangeOp string

const (
	ChangeAdd    ChangeOp = "add"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// ChangeRecord is one entry in the append-only change log, consumable by
// external observers via getChangesSince.
type ChangeRecord struct {
	Seq        uint64   `json:"seq"`
	EntityType string   `json:"entity_type"`
	EntityID   string   `json:"entity_id"`
	Op         ChangeOp `json:"op"`
	Timestamp  int64    `json:"timestamp"`
	Payload    []byte   `json:"payload,omitempty"`
}

// StatKind names one of the per-service counters tracked by Statistics.
type StatKind string

const (
	StatNounCount    StatKind = "noun_count"
	StatVerbCount    StatKind = "verb_count"
	StatMetadataSize StatKind = "metadata_entry_count"
	StatIndexSize    StatKind = "index_size"
)

// Statistics holds the per-service counters and timing metadata. Counts
// are monotonic across the adapter's lifetime except on an explicit
// reset.
type Statistics struct {
	Counts    map[StatKind]int64 `json:"counts"`
	UpdatedAt int64              `json:"updated_at"`
}

// NewStatistics returns a zeroed Statistics value.
func NewStatistics() Statistics {
	return Statistics{Counts: make(map[StatKind]int64), UpdatedAt: time.Now().UnixNano()}
}

// Status reports adapter-level health: Badger DB size vs configured
// quota.
type Status struct {
	Type    string         `json:"type"`
	Used    int64          `json:"used"`
	Quota   int64          `json:"quota"`
	Details map[string]any `json:"details,omitempty"`
}
