package composite

import (
	"context"
	"sort"
	"sync"

	"github.com/Aman-CERP/shardex/internal/engine"
	"github.com/Aman-CERP/shardex/internal/errors"
)

// Reader is an immutable point-in-time view over one reader per shard, in
// registry order. Reopening produces a new Reader or nil; a Reader is never
// changed in place.
type Reader struct {
	writer          *Writer
	criteria        []string
	subs            []engine.ShardReader
	metas           []engine.SegmentMeta
	starts          []int
	closeSubReaders bool
	applyAllDeletes bool
	writeAllDeletes bool

	closeOnce sync.Once
	closeErr  error
}

func newReader(w *Writer, subs []engine.ShardReader, closeSubReaders, applyAllDeletes, writeAllDeletes bool) *Reader {
	r := &Reader{
		writer:          w,
		criteria:        w.reg.Criteria(),
		subs:            subs,
		metas:           make([]engine.SegmentMeta, len(subs)),
		starts:          make([]int, len(subs)+1),
		closeSubReaders: closeSubReaders,
		applyAllDeletes: applyAllDeletes,
		writeAllDeletes: writeAllDeletes,
	}
	for i, sub := range subs {
		r.metas[i] = sub.Meta()
		r.starts[i+1] = r.starts[i] + sub.MaxDoc()
	}
	return r
}

// NewReader composes a reader from caller-supplied leaves, one per shard of
// w in registry order. When closeSubReaders is false the reader takes its own
// reference on each leaf and releases only that reference on Close.
func NewReader(w *Writer, leaves []engine.ShardReader, closeSubReaders bool) (*Reader, error) {
	if len(leaves) != w.reg.Len() {
		return nil, errors.ValidationError("one reader per shard is required", nil)
	}
	if !closeSubReaders {
		for i, leaf := range leaves {
			if err := leaf.IncRef(); err != nil {
				releaseAll(leaves[:i])
				return nil, errors.ShardError(w.reg.Shards()[i].Criteria, "acquire reader", err)
			}
		}
	}
	return newReader(w, append([]engine.ShardReader(nil), leaves...), closeSubReaders, false, false), nil
}

// OpenIfChanged returns a reader reflecting every change made through the
// writer, or nil when nothing changed. Shards whose data did not change keep
// their previous reader instance. The new reader is only returned once every
// shard succeeded; on failure this reader stays valid.
func (r *Reader) OpenIfChanged(ctx context.Context) (*Reader, error) {
	w := r.writer
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.ensureOpen(); err != nil {
		return nil, err
	}

	shards := w.reg.Shards()
	current := true
	for i, s := range shards {
		if !s.Writer.IsCurrent(r.metas[i]) {
			current = false
			break
		}
	}
	if current {
		return nil, nil
	}

	fresh := make([]engine.ShardReader, len(shards))
	errs := w.each(ctx, func(ctx context.Context, i int, s *Shard) error {
		var err error
		fresh[i], err = s.Writer.OpenReader(ctx, r.applyAllDeletes)
		return err
	})
	if err := w.firstError("reopen reader", errs); err != nil {
		releaseAll(fresh)
		return nil, err
	}

	return r.publish(fresh, func(i int, nr engine.ShardReader) bool {
		return nr.Meta().Version == r.metas[i].Version
	})
}

// OpenIfChangedAt returns a reader at the given commit points, one per
// shard in registry order, or nil when every shard already reflects its
// commit point.
func (r *Reader) OpenIfChangedAt(ctx context.Context, commits []engine.CommitPoint) (*Reader, error) {
	if len(commits) != len(r.subs) {
		return nil, errors.ValidationError("one commit point per shard is required", nil)
	}

	w := r.writer
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.ensureOpen(); err != nil {
		return nil, err
	}

	fresh := make([]engine.ShardReader, len(r.subs))
	errs := w.each(ctx, func(ctx context.Context, i int, s *Shard) error {
		var err error
		fresh[i], err = s.Writer.OpenReaderAt(ctx, r.subs[i], commits[i])
		return err
	})
	if err := w.firstError("reopen reader at commit", errs); err != nil {
		releaseAll(fresh)
		return nil, err
	}

	return r.publish(fresh, func(_ int, nr engine.ShardReader) bool {
		return nr == nil
	})
}

// publish swaps every unchanged fresh reader for the previous one and
// builds the new Reader, or returns nil when no shard changed.
func (r *Reader) publish(fresh []engine.ShardReader, unchanged func(i int, nr engine.ShardReader) bool) (*Reader, error) {
	changed := false
	for i, nr := range fresh {
		if !unchanged(i, nr) {
			changed = true
			continue
		}
		if nr != nil {
			_ = nr.DecRef()
		}
		if err := r.subs[i].IncRef(); err != nil {
			fresh[i] = nil
			releaseAll(fresh)
			return nil, errors.ShardError(r.criteria[i], "reuse reader", err)
		}
		fresh[i] = r.subs[i]
	}

	if !changed {
		releaseAll(fresh)
		return nil, nil
	}
	return newReader(r.writer, fresh, true, r.applyAllDeletes, r.writeAllDeletes), nil
}

// NumDocs sums live documents over all shards.
func (r *Reader) NumDocs() int {
	total := 0
	for _, sub := range r.subs {
		total += sub.NumDocs()
	}
	return total
}

// MaxDoc is the size of the global document ordinal space.
func (r *Reader) MaxDoc() int {
	return r.starts[len(r.starts)-1]
}

// Leaves returns the shard readers in registry order.
func (r *Reader) Leaves() []engine.ShardReader {
	return append([]engine.ShardReader(nil), r.subs...)
}

// Criteria returns the criteria keys aligned with Leaves.
func (r *Reader) Criteria() []string {
	return append([]string(nil), r.criteria...)
}

// Metas returns the segment metadata captured with each leaf.
func (r *Reader) Metas() []engine.SegmentMeta {
	return append([]engine.SegmentMeta(nil), r.metas...)
}

// Leaf returns the reader of one shard.
func (r *Reader) Leaf(criteria string) (engine.ShardReader, bool) {
	for i, c := range r.criteria {
		if c == criteria {
			return r.subs[i], true
		}
	}
	return nil, false
}

// DocBase returns the first global ordinal of leaf i.
func (r *Reader) DocBase(i int) int {
	return r.starts[i]
}

// ReaderIndex returns the leaf that holds global ordinal ord.
func (r *Reader) ReaderIndex(ord int) int {
	return sort.Search(len(r.subs), func(i int) bool {
		return r.starts[i+1] > ord
	})
}

// Document looks id up in every shard in registry order and returns the
// document with the index of the shard holding it, or nil and -1.
func (r *Reader) Document(id string) (*engine.Document, int, error) {
	for i, sub := range r.subs {
		doc, err := sub.Document(id)
		if err != nil {
			return nil, -1, errors.ShardError(r.criteria[i], "load document", err)
		}
		if doc != nil {
			return doc, i, nil
		}
	}
	return nil, -1, nil
}

// CacheKey returns the key of the only leaf. Readers over several shards
// have no key.
func (r *Reader) CacheKey() (engine.CacheKey, bool) {
	if len(r.subs) != 1 {
		return 0, false
	}
	return r.subs[0].CacheKey(), true
}

// Close releases every leaf: closing owned leaves, otherwise dropping the
// reference taken by NewReader. The first failure is returned.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		for i, sub := range r.subs {
			var err error
			if r.closeSubReaders {
				err = sub.Close()
			} else {
				err = sub.DecRef()
			}
			if err != nil && r.closeErr == nil {
				r.closeErr = errors.ShardError(r.criteria[i], "close reader", err)
			}
		}
	})
	return r.closeErr
}
