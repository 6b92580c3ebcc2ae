package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/index/scorch"
	"github.com/blevesearch/bleve/v2/index/scorch/mergeplan"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"

	"github.com/Aman-CERP/shardex/internal/errors"
	"github.com/Aman-CERP/shardex/internal/storage"
)

// indexDirName is the bleve index folder inside a shard directory.
const indexDirName = "index"

// termOpBytes is the RAM charged for a buffered delete.
const termOpBytes = 64

type opKind int

const (
	opAdd opKind = iota
	opSoftUpdate
	opDeleteTerm
	opDeleteQuery
)

type pendingDoc struct {
	id     string
	fields map[string]any
	src    []byte
}

type op struct {
	kind    opKind
	seq     int64
	docs    []pendingDoc
	terms   []Term
	query   query.Query
	markers []Field
}

// bleveWriter is a ShardWriter over one bleve index.
//
// Buffered ops are applied to bleve in order on flush. Before a document is
// first touched after a commit, its stored source is recorded in undo so that
// Rollback can restore the committed state.
type bleveWriter struct {
	mu     sync.Mutex
	cfg    WriterConfig
	dir    storage.Directory
	lock   storage.Lock
	idx    bleve.Index
	logger *slog.Logger
	// keywords holds the fields mapped as keywords.
	keywords map[string]bool

	ops []op

	seq              int64
	version          int64
	committedVersion int64
	generation       int64
	commits          []CommitPoint
	liveData         map[string]string
	liveDirty        bool
	undo             map[string][]byte

	pinMu  sync.Mutex
	pinned map[int64]int

	pendingDocs  atomic.Int64
	pendingBytes atomic.Int64
	flushing     atomic.Int64
	flushes      atomic.Int64
	open         atomic.Bool
	tragic       atomic.Pointer[errors.IndexError]
}

// OpenBleve opens a bleve-backed shard writer. Directories with a filesystem
// root keep the index under <root>/index; others get an in-memory index.
func OpenBleve(ctx context.Context, dir storage.Directory, cfg WriterConfig) (ShardWriter, error) {
	logger := cfg.logger().With(slog.String("criteria", cfg.Criteria))

	lock, err := obtainWriteLock(ctx, dir, cfg)
	if err != nil {
		return nil, err
	}

	w := &bleveWriter{
		cfg:      cfg,
		dir:      dir,
		lock:     lock,
		logger:   logger,
		keywords: map[string]bool{},
		liveData: map[string]string{},
		undo:     map[string][]byte{},
		pinned:   map[int64]int{},
	}
	for _, f := range keywordFields(cfg) {
		w.keywords[f] = true
	}
	if err := w.init(); err != nil {
		_ = lock.Release()
		return nil, err
	}
	w.open.Store(true)

	logger.Debug("shard writer opened",
		slog.Int64("generation", w.generation),
		slog.Int64("version", w.version))
	return w, nil
}

func obtainWriteLock(ctx context.Context, dir storage.Directory, cfg WriterConfig) (storage.Lock, error) {
	retry := errors.DefaultRetryConfig()
	if cfg.LockRetryDelay > 0 {
		retry.InitialDelay = cfg.LockRetryDelay
		retry.MaxDelay = 8 * cfg.LockRetryDelay
	}
	retry.MaxRetries = max(0, cfg.LockRetries)
	retry.Jitter = true
	retry.OnRetry = func(attempt int, wait time.Duration, err error) {
		cfg.logger().Debug("write lock busy, retrying",
			slog.String("criteria", cfg.Criteria),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
	}
	return errors.Retry(ctx, retry, func() (storage.Lock, error) {
		return dir.ObtainLock(WriteLockName)
	})
}

func (w *bleveWriter) init() error {
	commits, stale, err := loadCommits(w.dir)
	if err != nil {
		return err
	}
	for _, name := range stale {
		if err := w.dir.Delete(name); err != nil {
			w.logger.Warn("failed to delete interrupted commit file",
				slog.String("name", name),
				slog.String("error", err.Error()))
		}
	}

	w.commits = commits
	if n := len(commits); n > 0 {
		last := commits[n-1]
		w.generation = last.Generation
		w.version = last.Version
		w.committedVersion = last.Version
		w.seq = last.Seq
		w.liveData = cloneData(last.UserData)
	}

	idx, err := openIndex(w.dir, w.cfg)
	if err != nil {
		return err
	}
	w.idx = idx
	return nil
}

func openIndex(dir storage.Directory, cfg WriterConfig) (bleve.Index, error) {
	indexMapping, err := newIndexMapping(cfg)
	if err != nil {
		return nil, err
	}

	rooted, ok := dir.(storage.Rooted)
	if !ok {
		idx, err := bleve.NewMemOnly(indexMapping)
		if err != nil {
			return nil, errors.InternalError("create in-memory index", err)
		}
		return idx, nil
	}

	path := filepath.Join(rooted.Root(), indexDirName)
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, indexMapping)
	}
	if err != nil {
		return nil, errors.New(errors.ErrCodeCorruptIndex, "open shard index", err).WithDetail("path", path)
	}
	return idx, nil
}

func (w *bleveWriter) ensureOpen() error {
	if w.open.Load() {
		return nil
	}
	if t := w.tragic.Load(); t != nil {
		return t
	}
	return errors.ClosedError("shard writer " + w.cfg.Criteria)
}

func prepareDocs(docs []Document) ([]pendingDoc, int64, error) {
	if len(docs) == 0 {
		return nil, 0, errors.ValidationError("no documents given", nil)
	}
	pending := make([]pendingDoc, 0, len(docs))
	var size int64
	for _, d := range docs {
		if err := validateFields(d.Fields); err != nil {
			return nil, 0, err
		}
		id := d.ID
		if id == "" {
			id = uuid.NewString()
		}
		fields := maps.Clone(d.Fields)
		_, src, err := encodeDoc(id, fields)
		if err != nil {
			return nil, 0, err
		}
		pending = append(pending, pendingDoc{id: id, fields: fields, src: src})
		size += int64(len(src))
	}
	return pending, size, nil
}

// AddDocuments buffers docs. Documents without an ID get a generated one.
func (w *bleveWriter) AddDocuments(ctx context.Context, docs []Document) (int64, error) {
	pending, size, err := prepareDocs(docs)
	if err != nil {
		return -1, err
	}
	return w.buffer(ctx, op{kind: opAdd, docs: pending}, size)
}

// SoftUpdateDocuments buffers a soft update. When a matched document has the
// same ID as one of docs, the old version is kept under a tombstone ID
// "<id>@<seq>" so both survive.
func (w *bleveWriter) SoftUpdateDocuments(ctx context.Context, term Term, docs []Document, markers ...Field) (int64, error) {
	if term.Field == "" {
		return -1, errors.ValidationError("soft update needs a term field", nil)
	}
	if len(markers) == 0 {
		return -1, errors.ValidationError("soft update needs at least one marker field", nil)
	}
	for _, m := range markers {
		if m.Name == "" || m.Name == KeyField || m.Name == SourceField {
			return -1, errors.ValidationError("invalid marker field: "+m.Name, nil)
		}
	}
	pending, size, err := prepareDocs(docs)
	if err != nil {
		return -1, err
	}
	return w.buffer(ctx, op{kind: opSoftUpdate, docs: pending, terms: []Term{term}, markers: markers}, size)
}

// DeleteByTerm buffers a delete of every document matching any term.
func (w *bleveWriter) DeleteByTerm(ctx context.Context, terms ...Term) (int64, error) {
	if len(terms) == 0 {
		return -1, errors.ValidationError("no terms given", nil)
	}
	for _, t := range terms {
		if t.Field == "" {
			return -1, errors.ValidationError("term has no field", nil)
		}
	}
	return w.buffer(ctx, op{kind: opDeleteTerm, terms: append([]Term(nil), terms...)}, int64(termOpBytes*len(terms)))
}

// DeleteByQuery buffers a delete of every document matching q.
func (w *bleveWriter) DeleteByQuery(ctx context.Context, q query.Query) (int64, error) {
	if q == nil {
		return -1, errors.ValidationError("nil query", nil)
	}
	return w.buffer(ctx, op{kind: opDeleteQuery, query: q}, termOpBytes)
}

func (w *bleveWriter) buffer(ctx context.Context, o op, size int64) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpen(); err != nil {
		return -1, err
	}
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	w.seq++
	o.seq = w.seq
	w.ops = append(w.ops, o)
	w.pendingDocs.Add(int64(len(o.docs)))
	w.pendingBytes.Add(size)

	if w.overThreshold() {
		if err := w.flushLocked(ctx); err != nil {
			return -1, err
		}
	}
	return o.seq, nil
}

func (w *bleveWriter) overThreshold() bool {
	if n := w.cfg.MaxBufferedDocs; n > 0 && w.pendingDocs.Load() >= int64(n) {
		return true
	}
	if mb := w.cfg.RAMBufferMB; mb > 0 && float64(w.pendingBytes.Load()) >= mb*1024*1024 {
		return true
	}
	return false
}

// Flush applies buffered ops to the index.
func (w *bleveWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpen(); err != nil {
		return err
	}
	return w.flushLocked(ctx)
}

// flushLocked applies the buffer. A flush that has started is not
// cancelled; any failure while applying is tragic and closes the writer.
func (w *bleveWriter) flushLocked(ctx context.Context) error {
	if len(w.ops) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	w.flushing.Store(w.pendingBytes.Load())
	defer w.flushing.Store(0)

	batch := w.idx.NewBatch()
	for _, o := range w.ops {
		if err := w.apply(ctx, batch, o); err != nil {
			return w.fail(err)
		}
	}
	if batch.Size() > 0 {
		if err := w.idx.Batch(batch); err != nil {
			return w.fail(err)
		}
	}

	applied := len(w.ops)
	w.ops = nil
	w.pendingDocs.Store(0)
	w.pendingBytes.Store(0)
	w.version++
	w.flushes.Add(1)

	w.logger.Debug("flushed shard buffer",
		slog.Int("ops", applied),
		slog.Int64("version", w.version),
		slog.Duration("took", time.Since(start)))
	return nil
}

func (w *bleveWriter) apply(ctx context.Context, batch *bleve.Batch, o op) error {
	switch o.kind {
	case opAdd:
		for _, d := range o.docs {
			if err := w.put(batch, d.id, d.fields, d.src); err != nil {
				return err
			}
		}

	case opDeleteTerm, opDeleteQuery:
		q := o.query
		if o.kind == opDeleteTerm {
			q = termsQuery(o.terms)
		}
		ids, err := w.match(ctx, batch, q)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := w.recordUndo(id); err != nil {
				return err
			}
			batch.Delete(id)
		}

	case opSoftUpdate:
		ids, err := w.match(ctx, batch, termsQuery(o.terms))
		if err != nil {
			return err
		}
		replaced := make(map[string]bool, len(o.docs))
		for _, d := range o.docs {
			replaced[d.id] = true
		}
		for _, id := range ids {
			if err := w.mark(batch, id, replaced[id], o); err != nil {
				return err
			}
		}
		for _, d := range o.docs {
			if err := w.put(batch, d.id, d.fields, d.src); err != nil {
				return err
			}
		}
	}
	return nil
}

// mark sets the soft-delete markers on a live document. With move set the
// marked version is re-keyed to a tombstone ID.
func (w *bleveWriter) mark(batch *bleve.Batch, id string, move bool, o op) error {
	src, err := w.load(id)
	if err != nil || src == nil {
		return err
	}
	sd, err := decodeSource(src)
	if err != nil {
		return err
	}
	fields := maps.Clone(sd.Fields)
	if fields == nil {
		fields = make(map[string]any, len(o.markers))
	}
	for _, m := range o.markers {
		fields[m.Name] = m.Value
	}

	target := id
	if move {
		target = fmt.Sprintf("%s@%d", id, o.seq)
	}
	return w.put(batch, target, fields, nil)
}

func (w *bleveWriter) put(batch *bleve.Batch, id string, fields map[string]any, src []byte) error {
	if err := w.recordUndo(id); err != nil {
		return err
	}
	if src == nil {
		var err error
		if _, src, err = encodeDoc(id, fields); err != nil {
			return err
		}
	}
	return batch.Index(id, bodyFor(id, fields, src, w.keywords))
}

// match applies the batch so far and returns the IDs of documents matching q.
func (w *bleveWriter) match(ctx context.Context, batch *bleve.Batch, q query.Query) ([]string, error) {
	if batch.Size() > 0 {
		if err := w.idx.Batch(batch); err != nil {
			return nil, err
		}
		batch.Reset()
	}

	count, err := w.idx.DocCount()
	if err != nil || count == 0 {
		return nil, err
	}

	req := bleve.NewSearchRequestOptions(q, int(count), 0, false)
	res, err := w.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func termsQuery(terms []Term) query.Query {
	queries := make([]query.Query, 0, len(terms))
	for _, t := range terms {
		tq := bleve.NewTermQuery(t.Value)
		tq.SetField(t.Field)
		queries = append(queries, tq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// load returns the stored source of id, or nil when absent.
func (w *bleveWriter) load(id string) ([]byte, error) {
	doc, err := w.idx.Document(id)
	if err != nil || doc == nil {
		return nil, err
	}
	return sourceOf(doc), nil
}

func (w *bleveWriter) recordUndo(id string) error {
	if _, ok := w.undo[id]; ok {
		return nil
	}
	src, err := w.load(id)
	if err != nil {
		return err
	}
	w.undo[id] = src
	return nil
}

func (w *bleveWriter) fail(cause error) error {
	tragic := errors.New(errors.ErrCodeTragic, "applying buffered writes failed", cause).
		WithDetail("criteria", w.cfg.Criteria)
	w.tragic.Store(tragic)
	w.logger.Error("shard writer hit a tragic failure, closing",
		slog.String("error", cause.Error()))
	_ = w.closeResources()
	return tragic
}

func (w *bleveWriter) hasUncommittedLocked() bool {
	return len(w.ops) > 0 || w.version != w.committedVersion || w.liveDirty
}

// Commit flushes and writes a commit point. It returns the sequence number of
// the last write included, or -1 when nothing changed since the last commit.
func (w *bleveWriter) Commit(ctx context.Context) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpen(); err != nil {
		return -1, err
	}
	if err := w.flushLocked(ctx); err != nil {
		return -1, err
	}
	if !w.hasUncommittedLocked() {
		return -1, nil
	}
	return w.commitLocked()
}

func (w *bleveWriter) commitLocked() (int64, error) {
	count, err := w.idx.DocCount()
	if err != nil {
		return -1, errors.InternalError("count documents", err)
	}

	gen := w.generation + 1
	cp := CommitPoint{
		Generation: gen,
		Version:    w.version,
		Seq:        w.seq,
		DocCount:   count,
		UserData:   cloneData(w.liveData),
		Timestamp:  time.Now().UTC(),
		FileName:   commitFileName(gen),
	}
	if err := writeCommit(w.dir, cp); err != nil {
		return -1, err
	}

	w.generation = gen
	w.committedVersion = w.version
	w.liveDirty = false
	w.undo = map[string][]byte{}
	w.commits = append(w.commits, cp)
	w.pruneLocked()

	w.logger.Info("shard committed",
		slog.Int64("generation", gen),
		slog.Int64("version", cp.Version),
		slog.Uint64("docs", count))
	return w.seq, nil
}

// pruneLocked deletes commit files beyond KeepCommits that no open reader
// was opened from.
func (w *bleveWriter) pruneLocked() {
	keep := max(1, w.cfg.KeepCommits)
	cut := len(w.commits) - keep
	if cut <= 0 {
		return
	}

	kept := w.commits[:0:0]
	for i, cp := range w.commits {
		if i >= cut || w.isPinned(cp.Generation) {
			kept = append(kept, cp)
			continue
		}
		if err := w.dir.Delete(cp.FileName); err != nil {
			w.logger.Warn("failed to delete old commit",
				slog.String("name", cp.FileName),
				slog.String("error", err.Error()))
			kept = append(kept, cp)
		}
	}
	w.commits = kept
}

// DeleteUnusedFiles deletes old commits that were pinned by readers when
// they were superseded.
func (w *bleveWriter) DeleteUnusedFiles() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpen(); err != nil {
		return err
	}
	w.pruneLocked()
	return nil
}

// ForceMerge flushes the buffer and merges the persisted segments down to
// about maxSegments per tier, dropping deleted documents on the way. It
// blocks until bleve's merger is done. In-memory indexes have no segments,
// so it only flushes there.
func (w *bleveWriter) ForceMerge(ctx context.Context, maxSegments int) error {
	if maxSegments < 1 {
		return errors.ValidationError(fmt.Sprintf("max segments must be at least 1, got %d", maxSegments), nil)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpen(); err != nil {
		return err
	}
	if err := w.flushLocked(ctx); err != nil {
		return err
	}

	adv, err := w.idx.Advanced()
	if err != nil {
		return errors.InternalError("open index internals", err)
	}
	sc, ok := adv.(*scorch.Scorch)
	if !ok {
		return nil
	}

	opts := mergeplan.SingleSegmentMergePlanOptions
	opts.MaxSegmentsPerTier = maxSegments
	start := time.Now()
	if err := sc.ForceMerge(ctx, &opts); err != nil {
		return errors.InternalError("force merge", err).WithDetail("criteria", w.cfg.Criteria)
	}
	w.logger.Debug("shard force merged",
		slog.Int("max_segments", maxSegments),
		slog.Duration("took", time.Since(start)))
	return nil
}

// Rollback discards buffered ops, restores the index to its last commit and
// closes the writer. The write lock is released even when restoring fails.
func (w *bleveWriter) Rollback() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.open.Load() {
		return nil
	}
	err := w.rollbackLocked()
	if cerr := w.closeResources(); cerr != nil && err == nil {
		err = cerr
	}
	w.logger.Info("shard rolled back", slog.Int64("generation", w.generation))
	return err
}

func (w *bleveWriter) rollbackLocked() error {
	w.ops = nil
	w.pendingDocs.Store(0)
	w.pendingBytes.Store(0)

	var err error
	if len(w.undo) > 0 {
		batch := w.idx.NewBatch()
		for id, src := range w.undo {
			if src == nil {
				batch.Delete(id)
				continue
			}
			sd, derr := decodeSource(src)
			if derr != nil {
				err = derr
				break
			}
			if ierr := batch.Index(id, bodyFor(id, sd.Fields, src, w.keywords)); ierr != nil {
				err = ierr
				break
			}
		}
		if err == nil {
			err = w.idx.Batch(batch)
		}
		if err != nil {
			err = errors.New(errors.ErrCodeCorruptIndex, "restore last commit", err).
				WithDetail("criteria", w.cfg.Criteria)
		}
	}

	w.undo = map[string][]byte{}
	w.version = w.committedVersion
	w.liveDirty = false
	w.liveData = map[string]string{}
	if n := len(w.commits); n > 0 {
		w.liveData = cloneData(w.commits[n-1].UserData)
	}
	return err
}

// Close commits pending changes when CommitOnClose is set, discards them
// otherwise, and releases the index and write lock.
func (w *bleveWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.open.Load() {
		return nil
	}

	var err error
	if w.cfg.CommitOnClose {
		err = w.flushLocked(context.Background())
		if err == nil && w.hasUncommittedLocked() {
			_, err = w.commitLocked()
		}
	} else {
		err = w.rollbackLocked()
	}

	if cerr := w.closeResources(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (w *bleveWriter) closeResources() error {
	if !w.open.Swap(false) {
		return nil
	}
	var first error
	if err := w.idx.Close(); err != nil {
		first = errors.IOError("close shard index", err).WithDetail("criteria", w.cfg.Criteria)
	}
	if err := w.lock.Release(); err != nil && first == nil {
		first = err
	}
	return first
}

// OpenReader flushes and returns a reader over the current index. Deletes are
// always resolved at flush, so applyAllDeletes has no further effect.
func (w *bleveWriter) OpenReader(ctx context.Context, applyAllDeletes bool) (ShardReader, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpen(); err != nil {
		return nil, err
	}
	if err := w.flushLocked(ctx); err != nil {
		return nil, err
	}
	return w.newReaderLocked()
}

// OpenReaderAt opens a reader at commit. A bleve index only holds its latest
// state, so this succeeds only while nothing was written since that commit.
func (w *bleveWriter) OpenReaderAt(ctx context.Context, old ShardReader, commit CommitPoint) (ShardReader, error) {
	if old != nil {
		meta := old.Meta()
		if meta.Generation == commit.Generation && meta.Version == commit.Version {
			return nil, nil
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpen(); err != nil {
		return nil, err
	}
	if commit.Generation != w.generation || commit.Version != w.committedVersion ||
		w.version != w.committedVersion || len(w.ops) > 0 {
		return nil, errors.New(errors.ErrCodeCommitUnavailable,
			fmt.Sprintf("commit %d is no longer the live state of the shard", commit.Generation), nil).
			WithDetail("criteria", w.cfg.Criteria)
	}
	return w.newReaderLocked()
}

func (w *bleveWriter) newReaderLocked() (ShardReader, error) {
	adv, err := w.idx.Advanced()
	if err != nil {
		return nil, errors.InternalError("access index", err)
	}
	ir, err := adv.Reader()
	if err != nil {
		return nil, errors.InternalError("open index snapshot", err)
	}
	count, err := ir.DocCount()
	if err != nil {
		_ = ir.Close()
		return nil, errors.InternalError("count documents", err)
	}

	meta := SegmentMeta{Generation: w.generation, Version: w.version, DocCount: count}
	w.pin(meta.Generation)
	r, err := newBleveReader(ir, meta, w.cfg.DocCacheSize, func() { w.unpin(meta.Generation) })
	if err != nil {
		w.unpin(meta.Generation)
		_ = ir.Close()
		return nil, err
	}
	return r, nil
}

func (w *bleveWriter) pin(gen int64) {
	w.pinMu.Lock()
	defer w.pinMu.Unlock()
	w.pinned[gen]++
}

func (w *bleveWriter) unpin(gen int64) {
	w.pinMu.Lock()
	defer w.pinMu.Unlock()
	if w.pinned[gen]--; w.pinned[gen] <= 0 {
		delete(w.pinned, gen)
	}
}

func (w *bleveWriter) isPinned(gen int64) bool {
	w.pinMu.Lock()
	defer w.pinMu.Unlock()
	return w.pinned[gen] > 0
}

// IsCurrent reports whether a reader opened at meta sees every write made so far.
func (w *bleveWriter) IsCurrent(meta SegmentMeta) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open.Load() && meta.Version == w.version && len(w.ops) == 0
}

func (w *bleveWriter) Meta() SegmentMeta {
	w.mu.Lock()
	defer w.mu.Unlock()

	meta := SegmentMeta{Generation: w.generation, Version: w.version}
	if w.open.Load() {
		meta.DocCount, _ = w.idx.DocCount()
	}
	return meta
}

func (w *bleveWriter) ListCommits() ([]CommitPoint, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpen(); err != nil {
		return nil, err
	}
	out := make([]CommitPoint, len(w.commits))
	for i, cp := range w.commits {
		cp.UserData = cloneData(cp.UserData)
		out[i] = cp
	}
	return out, nil
}

func (w *bleveWriter) LiveCommitData() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneData(w.liveData)
}

// SetLiveCommitData replaces the user data recorded by the next commit. It
// counts as an uncommitted change.
func (w *bleveWriter) SetLiveCommitData(data map[string]string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.liveData = cloneData(data)
	w.liveDirty = true
}

func (w *bleveWriter) RAMBytesUsed() int64    { return w.pendingBytes.Load() }
func (w *bleveWriter) FlushingBytes() int64   { return w.flushing.Load() }
func (w *bleveWriter) PendingDocCount() int64 { return w.pendingDocs.Load() }
func (w *bleveWriter) FlushCount() int64      { return w.flushes.Load() }
func (w *bleveWriter) IsOpen() bool           { return w.open.Load() }

func (w *bleveWriter) TragicError() error {
	if t := w.tragic.Load(); t != nil {
		return t
	}
	return nil
}

func (w *bleveWriter) HasUncommittedChanges() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open.Load() && w.hasUncommittedLocked()
}

// DocStats counts indexed plus buffered documents. Soft-deleted documents
// count toward MaxDoc only.
func (w *bleveWriter) DocStats() DocStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.open.Load() {
		return DocStats{}
	}
	pending := w.pendingDocs.Load()
	count, err := w.idx.DocCount()
	if err != nil {
		return DocStats{MaxDoc: pending, NumDocs: pending}
	}
	stats := DocStats{MaxDoc: int64(count) + pending, NumDocs: int64(count) + pending}

	if field := w.cfg.SoftDeletesField; field != "" {
		if soft, err := w.countSoftDeleted(field); err == nil {
			stats.NumDocs -= int64(soft)
		}
	}
	return stats
}

func (w *bleveWriter) countSoftDeleted(field string) (int, error) {
	adv, err := w.idx.Advanced()
	if err != nil {
		return 0, err
	}
	ir, err := adv.Reader()
	if err != nil {
		return 0, err
	}
	defer ir.Close()
	return countField(ir, field)
}

// HasPendingMerges reports whether bleve has planned merge tasks that have
// not completed. In-memory indexes never merge.
func (w *bleveWriter) HasPendingMerges() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.open.Load() {
		return false
	}
	stats := w.idx.StatsMap()
	if nested, ok := stats["index"].(map[string]interface{}); ok {
		stats = nested
	}
	planned, done := statUint(stats["TotFileMergePlanTasks"]), statUint(stats["TotFileMergePlanTasksDone"])
	return planned > done
}

func statUint(v any) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case int:
		return uint64(max(n, 0))
	case int64:
		return uint64(max(n, 0))
	case float64:
		return uint64(max(n, 0))
	default:
		return 0
	}
}

func cloneData(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
