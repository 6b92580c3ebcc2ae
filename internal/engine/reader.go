package engine

import (
	"context"
	"sync"
	"sync/atomic"

	index "github.com/blevesearch/bleve_index_api"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/shardex/internal/errors"
)

// bleveReader is a ShardReader over a bleve index snapshot.
type bleveReader struct {
	ir   index.IndexReader
	meta SegmentMeta
	key  CacheKey
	docs *lru.Cache[string, *Document]

	refs        atomic.Int64
	releaseOnce sync.Once
	release     func()
	closeErr    error
}

func newBleveReader(ir index.IndexReader, meta SegmentMeta, cacheSize int, release func()) (*bleveReader, error) {
	r := &bleveReader{
		ir:      ir,
		meta:    meta,
		key:     NewCacheKey(),
		release: release,
	}
	if cacheSize > 0 {
		docs, err := lru.New[string, *Document](cacheSize)
		if err != nil {
			return nil, errors.ConfigError("invalid document cache size", err)
		}
		r.docs = docs
	}
	r.refs.Store(1)
	return r, nil
}

func (r *bleveReader) NumDocs() int       { return int(r.meta.DocCount) }
func (r *bleveReader) MaxDoc() int        { return int(r.meta.DocCount) }
func (r *bleveReader) Meta() SegmentMeta  { return r.meta }
func (r *bleveReader) CacheKey() CacheKey { return r.key }

// Document returns the stored document. Returned documents are shared with
// the reader's cache and must not be modified.
func (r *bleveReader) Document(id string) (*Document, error) {
	if r.refs.Load() <= 0 {
		return nil, errors.ClosedError("shard reader")
	}
	if r.docs != nil {
		if doc, ok := r.docs.Get(id); ok {
			return doc, nil
		}
	}

	bdoc, err := r.ir.Document(id)
	if err != nil {
		return nil, errors.InternalError("load document", err).WithDetail("id", id)
	}
	if bdoc == nil {
		return nil, nil
	}
	src := sourceOf(bdoc)
	if src == nil {
		return nil, errors.New(errors.ErrCodeFileCorrupt, "document has no stored source", nil).WithDetail("id", id)
	}
	sd, err := decodeSource(src)
	if err != nil {
		return nil, err
	}

	doc := &Document{ID: sd.ID, Fields: sd.Fields}
	if r.docs != nil {
		r.docs.Add(id, doc)
	}
	return doc, nil
}

// CountField counts live documents that hold any term in field.
func (r *bleveReader) CountField(field string) (int, error) {
	if r.refs.Load() <= 0 {
		return 0, errors.ClosedError("shard reader")
	}
	return countField(r.ir, field)
}

func countField(ir index.IndexReader, field string) (int, error) {
	dict, err := ir.FieldDict(field)
	if err != nil {
		return 0, errors.InternalError("read field dictionary", err).WithDetail("field", field)
	}
	defer dict.Close()

	total := 0
	for {
		entry, err := dict.Next()
		if err != nil {
			return 0, errors.InternalError("read field dictionary", err).WithDetail("field", field)
		}
		if entry == nil {
			return total, nil
		}
		// Dictionary counts include deleted documents; postings do not.
		tfr, err := ir.TermFieldReader(context.Background(), []byte(entry.Term), field, false, false, false)
		if err != nil {
			return 0, errors.InternalError("read postings", err).WithDetail("field", field)
		}
		total += int(tfr.Count())
		_ = tfr.Close()
	}
}

func (r *bleveReader) IncRef() error {
	for {
		n := r.refs.Load()
		if n <= 0 {
			return errors.ClosedError("shard reader")
		}
		if r.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// DecRef releases one reference; the last one closes the snapshot.
func (r *bleveReader) DecRef() error {
	n := r.refs.Add(-1)
	if n < 0 {
		r.refs.Store(0)
		return errors.ClosedError("shard reader")
	}
	if n == 0 {
		r.releaseOnce.Do(func() {
			if err := r.ir.Close(); err != nil {
				r.closeErr = errors.IOError("close index snapshot", err)
			}
			if r.docs != nil {
				r.docs.Purge()
			}
			if r.release != nil {
				r.release()
			}
		})
		return r.closeErr
	}
	return nil
}

func (r *bleveReader) Close() error {
	return r.DecRef()
}
