package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/brainyhq/brainy/pkg/errs"
)

// BadgerConfig configures the durable adapter.
type BadgerConfig struct {
	Dir      string
	InMemory bool
	Quota    int64
}

// BadgerAdapter is the durable Adapter implementation: one key prefix
// per record kind, JSON-encoded values, update/view transactions for
// writes/reads respectively.
type BadgerAdapter struct {
	db    *badger.DB
	quota int64
	seq   *badger.Sequence
}

const (
	prefixNoun     = "noun:"
	prefixVerb     = "verb:"
	prefixNounMeta = "nounmeta:"
	prefixVerbMeta = "verbmeta:"
	prefixStat     = "stat:"
	prefixChange   = "change:"
	prefixSrcAdj   = "srcadj:"
	prefixTgtAdj   = "tgtadj:"
)

// NewBadgerAdapter opens (or creates) a Badger database at cfg.Dir.
func NewBadgerAdapter(cfg BadgerConfig) (*BadgerAdapter, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte("change-seq"), 1000)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: get sequence: %w", err)
	}
	return &BadgerAdapter{db: db, quota: cfg.Quota, seq: seq}, nil
}

func (b *BadgerAdapter) Init(ctx context.Context) error { return nil }

func (b *BadgerAdapter) GetNoun(ctx context.Context, id string) (*Noun, error) {
	var n Noun
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixNoun + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &n)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, errs.New("get_noun", errs.NotFound, id, "noun not found")
	}
	if err != nil {
		return nil, errs.Wrap("get_noun", errs.Storage, id, err)
	}
	return &n, nil
}

func (b *BadgerAdapter) SaveNoun(ctx context.Context, n *Noun) error {
	data, err := json.Marshal(n)
	if err != nil {
		return errs.Wrap("save_noun", errs.Validation, n.ID, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixNoun+n.ID), data)
	})
	if err != nil {
		return errs.Wrap("save_noun", errs.Storage, n.ID, err)
	}
	return nil
}

func (b *BadgerAdapter) DeleteNoun(ctx context.Context, id string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixNoun + id))
	})
	if err != nil {
		return errs.Wrap("delete_noun", errs.Storage, id, err)
	}
	return nil
}

func (b *BadgerAdapter) GetVerb(ctx context.Context, id string) (*Verb, error) {
	var v Verb
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixVerb + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, errs.New("get_verb", errs.NotFound, id, "verb not found")
	}
	if err != nil {
		return nil, errs.Wrap("get_verb", errs.Storage, id, err)
	}
	return &v, nil
}

func (b *BadgerAdapter) SaveVerb(ctx context.Context, v *Verb) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errs.Wrap("save_verb", errs.Validation, v.ID, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(prefixVerb+v.ID), data); err != nil {
			return err
		}
		if err := txn.Set([]byte(prefixSrcAdj+v.Source+":"+v.ID), []byte{1}); err != nil {
			return err
		}
		return txn.Set([]byte(prefixTgtAdj+v.Target+":"+v.ID), []byte{1})
	})
	if err != nil {
		return errs.Wrap("save_verb", errs.Storage, v.ID, err)
	}
	return nil
}

func (b *BadgerAdapter) DeleteVerb(ctx context.Context, id string) error {
	existing, err := b.GetVerb(ctx, id)
	if err != nil && !errs.Is(err, errs.NotFound) {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if existing != nil {
			_ = txn.Delete([]byte(prefixSrcAdj + existing.Source + ":" + id))
			_ = txn.Delete([]byte(prefixTgtAdj + existing.Target + ":" + id))
		}
		return txn.Delete([]byte(prefixVerb + id))
	})
	if err != nil {
		return errs.Wrap("delete_verb", errs.Storage, id, err)
	}
	return nil
}

func (b *BadgerAdapter) scanPrefix(prefix string, keepID func(id string) bool, decode func(id string, val []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			id := string(item.Key())[len(prefix):]
			if keepID != nil && !keepID(id) {
				continue
			}
			if err := item.Value(func(val []byte) error {
				return decode(id, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerAdapter) GetNouns(ctx context.Context, p Pagination, f ListFilter) ([]*Noun, error) {
	var all []*Noun
	err := b.scanPrefix(prefixNoun, nil, func(id string, val []byte) error {
		var n Noun
		if err := json.Unmarshal(val, &n); err != nil {
			return err
		}
		if !f.IncludeDeleted && n.Metadata.Brainy.Deleted {
			return nil
		}
		if len(f.Types) > 0 && !containsStr(f.Types, n.NounType) {
			return nil
		}
		if len(f.IDs) > 0 && !containsStr(f.IDs, n.ID) {
			return nil
		}
		all = append(all, &n)
		return nil
	})
	if err != nil {
		return nil, errs.Wrap("get_nouns", errs.Storage, "", err)
	}
	return paginateNouns(all, p), nil
}

func (b *BadgerAdapter) GetVerbs(ctx context.Context, p Pagination, f ListFilter) ([]*Verb, error) {
	var all []*Verb
	err := b.scanPrefix(prefixVerb, nil, func(id string, val []byte) error {
		var v Verb
		if err := json.Unmarshal(val, &v); err != nil {
			return err
		}
		if !f.IncludeDeleted && v.Metadata.Brainy.Deleted {
			return nil
		}
		if len(f.Types) > 0 && !containsStr(f.Types, v.VerbType) {
			return nil
		}
		if len(f.IDs) > 0 && !containsStr(f.IDs, v.ID) {
			return nil
		}
		all = append(all, &v)
		return nil
	})
	if err != nil {
		return nil, errs.Wrap("get_verbs", errs.Storage, "", err)
	}
	return paginateVerbs(all, p), nil
}

func (b *BadgerAdapter) adjacencyVerbIDs(prefix, id string) ([]string, error) {
	var ids []string
	p := prefix + id + ":"
	err := b.scanPrefix(p, nil, func(vid string, _ []byte) error {
		ids = append(ids, vid)
		return nil
	})
	return ids, err
}

func (b *BadgerAdapter) GetVerbsBySource(ctx context.Context, id string) ([]*Verb, error) {
	ids, err := b.adjacencyVerbIDs(prefixSrcAdj, id)
	if err != nil {
		return nil, errs.Wrap("get_verbs_by_source", errs.Storage, id, err)
	}
	return b.hydrateVerbs(ctx, ids)
}

func (b *BadgerAdapter) GetVerbsByTarget(ctx context.Context, id string) ([]*Verb, error) {
	ids, err := b.adjacencyVerbIDs(prefixTgtAdj, id)
	if err != nil {
		return nil, errs.Wrap("get_verbs_by_target", errs.Storage, id, err)
	}
	return b.hydrateVerbs(ctx, ids)
}

func (b *BadgerAdapter) hydrateVerbs(ctx context.Context, ids []string) ([]*Verb, error) {
	var out []*Verb
	for _, id := range ids {
		v, err := b.GetVerb(ctx, id)
		if errs.Is(err, errs.NotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (b *BadgerAdapter) GetMetadata(ctx context.Context, id string) (*Metadata, error) {
	n, err := b.GetNoun(ctx, id)
	if err != nil {
		return nil, err
	}
	return &n.Metadata, nil
}

func (b *BadgerAdapter) SaveMetadata(ctx context.Context, id string, md Metadata) error {
	n, err := b.GetNoun(ctx, id)
	if err != nil {
		return err
	}
	n.Metadata = md
	return b.SaveNoun(ctx, n)
}

func (b *BadgerAdapter) GetVerbMetadata(ctx context.Context, id string) (*Metadata, error) {
	v, err := b.GetVerb(ctx, id)
	if err != nil {
		return nil, err
	}
	return &v.Metadata, nil
}

func (b *BadgerAdapter) SaveVerbMetadata(ctx context.Context, id string, md Metadata) error {
	v, err := b.GetVerb(ctx, id)
	if err != nil {
		return err
	}
	v.Metadata = md
	return b.SaveVerb(ctx, v)
}

func (b *BadgerAdapter) GetStatistics(ctx context.Context) (Statistics, error) {
	stats := NewStatistics()
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixStat)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(prefixStat)); it.ValidForPrefix([]byte(prefixStat)); it.Next() {
			item := it.Item()
			kind := StatKind(string(item.Key())[len(prefixStat):])
			err := item.Value(func(val []byte) error {
				stats.Counts[kind] = int64(binary.BigEndian.Uint64(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Statistics{}, errs.Wrap("get_statistics", errs.Storage, "", err)
	}
	return stats, nil
}

func (b *BadgerAdapter) SaveStatistics(ctx context.Context, s Statistics) error {
	return b.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixStat)
		it := txn.NewIterator(opts)
		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for kind, v := range s.Counts {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(v))
			if err := txn.Set([]byte(prefixStat+string(kind)), buf); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerAdapter) IncrementStatistic(ctx context.Context, kind StatKind, by int64) error {
	return b.db.Update(func(txn *badger.Txn) error {
		var current int64
		item, err := txn.Get([]byte(prefixStat + string(kind)))
		if err == nil {
			_ = item.Value(func(val []byte) error {
				current = int64(binary.BigEndian.Uint64(val))
				return nil
			})
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(current+by))
		return txn.Set([]byte(prefixStat+string(kind)), buf)
	})
}

func (b *BadgerAdapter) GetChangesSince(ctx context.Context, seq uint64, limit int) ([]ChangeRecord, error) {
	var out []ChangeRecord
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixChange)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(prefixChange)); it.ValidForPrefix([]byte(prefixChange)); it.Next() {
			item := it.Item()
			var rec ChangeRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if rec.Seq <= seq {
				continue
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap("get_changes_since", errs.Storage, "", err)
	}
	return out, nil
}

func (b *BadgerAdapter) AppendChange(ctx context.Context, rec ChangeRecord) error {
	next, err := b.seq.Next()
	if err != nil {
		return errs.Wrap("append_change", errs.Storage, rec.EntityID, err)
	}
	rec.Seq = next
	data, err := json.Marshal(rec)
	if err != nil {
		return errs.Wrap("append_change", errs.Validation, rec.EntityID, err)
	}
	key := fmt.Sprintf("%s%020d", prefixChange, next)
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return errs.Wrap("append_change", errs.Storage, rec.EntityID, err)
	}
	return nil
}

func (b *BadgerAdapter) GetStorageStatus(ctx context.Context) (Status, error) {
	lsm, vlog := b.db.Size()
	return Status{
		Type:  "badger",
		Used:  lsm + vlog,
		Quota: b.quota,
		Details: map[string]any{
			"lsm_bytes":  lsm,
			"vlog_bytes": vlog,
		},
	}, nil
}

func (b *BadgerAdapter) Clear(ctx context.Context) error {
	if err := b.db.DropAll(); err != nil {
		return errs.Wrap("clear", errs.Storage, "", err)
	}
	return nil
}

func (b *BadgerAdapter) Close() error {
	if b.seq != nil {
		_ = b.seq.Release()
	}
	return b.db.Close()
}

var _ Adapter = (*BadgerAdapter)(nil)
