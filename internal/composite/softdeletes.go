package composite

import (
	"context"

	"github.com/Aman-CERP/shardex/internal/engine"
	"github.com/Aman-CERP/shardex/internal/errors"
)

// SoftDeletesReader hides documents that carry a soft-delete field. It wraps
// every leaf of a Reader and drops leaves left with no live documents, so it
// may hold fewer leaves than there are shards.
//
// Wrapped leaves are cached by the wrapped leaf's cache key. Reopening reuses
// the same view for every shard whose underlying reader did not change.
type SoftDeletesReader struct {
	in       *Reader
	field    string
	views    map[engine.CacheKey]*SoftDeletesLeaf
	leaves   []*SoftDeletesLeaf
	criteria []string
	key      engine.CacheKey
}

// NewSoftDeletesReader wraps in. The returned reader owns in.
func NewSoftDeletesReader(in *Reader, field string) (*SoftDeletesReader, error) {
	if in == nil {
		return nil, errors.ValidationError("nil reader", nil)
	}
	if field == "" {
		return nil, errors.ValidationError("soft deletes field is required", nil)
	}
	return wrapSoftDeletes(in, field, nil)
}

func wrapSoftDeletes(in *Reader, field string, previous map[engine.CacheKey]*SoftDeletesLeaf) (*SoftDeletesReader, error) {
	r := &SoftDeletesReader{
		in:    in,
		field: field,
		views: make(map[engine.CacheKey]*SoftDeletesLeaf, len(in.subs)),
	}

	for i, sub := range in.subs {
		leaf, ok := previous[sub.CacheKey()]
		if !ok {
			var err error
			if leaf, err = newSoftDeletesLeaf(sub, field); err != nil {
				return nil, errors.ShardError(in.criteria[i], "wrap soft deletes", err)
			}
		}
		r.views[sub.CacheKey()] = leaf
		if leaf.NumDocs() == 0 {
			continue
		}
		r.leaves = append(r.leaves, leaf)
		r.criteria = append(r.criteria, in.criteria[i])
	}

	if _, ok := in.CacheKey(); ok {
		r.key = engine.NewCacheKey()
	}
	return r, nil
}

// OpenIfChanged reopens the wrapped reader and rewraps it, or returns nil
// when nothing changed.
func (r *SoftDeletesReader) OpenIfChanged(ctx context.Context) (*SoftDeletesReader, error) {
	nin, err := r.in.OpenIfChanged(ctx)
	if err != nil || nin == nil {
		return nil, err
	}
	return r.rewrap(nin)
}

// OpenIfChangedAt reopens the wrapped reader at per-shard commit points.
func (r *SoftDeletesReader) OpenIfChangedAt(ctx context.Context, commits []engine.CommitPoint) (*SoftDeletesReader, error) {
	nin, err := r.in.OpenIfChangedAt(ctx, commits)
	if err != nil || nin == nil {
		return nil, err
	}
	return r.rewrap(nin)
}

func (r *SoftDeletesReader) rewrap(nin *Reader) (*SoftDeletesReader, error) {
	out, err := wrapSoftDeletes(nin, r.field, r.views)
	if err != nil {
		_ = nin.Close()
		return nil, err
	}
	return out, nil
}

// Unwrap returns the wrapped reader.
func (r *SoftDeletesReader) Unwrap() *Reader {
	return r.in
}

// Leaves returns the wrapped leaves that still hold live documents.
func (r *SoftDeletesReader) Leaves() []*SoftDeletesLeaf {
	return append([]*SoftDeletesLeaf(nil), r.leaves...)
}

// Criteria returns the criteria keys aligned with Leaves.
func (r *SoftDeletesReader) Criteria() []string {
	return append([]string(nil), r.criteria...)
}

func (r *SoftDeletesReader) NumDocs() int {
	total := 0
	for _, l := range r.leaves {
		total += l.NumDocs()
	}
	return total
}

func (r *SoftDeletesReader) MaxDoc() int {
	total := 0
	for _, l := range r.leaves {
		total += l.MaxDoc()
	}
	return total
}

// CacheKey is set only when the wrapped reader has one.
func (r *SoftDeletesReader) CacheKey() (engine.CacheKey, bool) {
	return r.key, r.key != 0
}

// Document returns a live document and the index of its leaf, or nil and -1.
func (r *SoftDeletesReader) Document(id string) (*engine.Document, int, error) {
	for i, l := range r.leaves {
		doc, err := l.Document(id)
		if err != nil {
			return nil, -1, errors.ShardError(r.criteria[i], "load document", err)
		}
		if doc != nil {
			return doc, i, nil
		}
	}
	return nil, -1, nil
}

// Close closes the wrapped reader.
func (r *SoftDeletesReader) Close() error {
	return r.in.Close()
}

// SoftDeletesLeaf is a shard reader view hiding soft-deleted documents. It
// has its own cache key; reference counting goes to the wrapped reader.
type SoftDeletesLeaf struct {
	inner   engine.ShardReader
	field   string
	key     engine.CacheKey
	numDocs int
}

var _ engine.ShardReader = (*SoftDeletesLeaf)(nil)

func newSoftDeletesLeaf(inner engine.ShardReader, field string) (*SoftDeletesLeaf, error) {
	marked, err := inner.CountField(field)
	if err != nil {
		return nil, err
	}
	return &SoftDeletesLeaf{
		inner:   inner,
		field:   field,
		key:     engine.NewCacheKey(),
		numDocs: max(inner.NumDocs()-marked, 0),
	}, nil
}

func (l *SoftDeletesLeaf) NumDocs() int              { return l.numDocs }
func (l *SoftDeletesLeaf) MaxDoc() int               { return l.inner.MaxDoc() }
func (l *SoftDeletesLeaf) Meta() engine.SegmentMeta  { return l.inner.Meta() }
func (l *SoftDeletesLeaf) CacheKey() engine.CacheKey { return l.key }

// Unwrap returns the wrapped shard reader.
func (l *SoftDeletesLeaf) Unwrap() engine.ShardReader { return l.inner }

// Document returns nil for soft-deleted documents.
func (l *SoftDeletesLeaf) Document(id string) (*engine.Document, error) {
	doc, err := l.inner.Document(id)
	if err != nil || doc == nil {
		return nil, err
	}
	if doc.Get(l.field) != nil {
		return nil, nil
	}
	return doc, nil
}

func (l *SoftDeletesLeaf) CountField(field string) (int, error) {
	return l.inner.CountField(field)
}

func (l *SoftDeletesLeaf) IncRef() error { return l.inner.IncRef() }
func (l *SoftDeletesLeaf) DecRef() error { return l.inner.DecRef() }
func (l *SoftDeletesLeaf) Close() error  { return l.inner.Close() }
