package composite

import (
	"context"
	"log/slog"
	"sync"

	"github.com/blevesearch/bleve/v2/search/query"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/shardex/internal/engine"
	"github.com/Aman-CERP/shardex/internal/errors"
)

type writerState int

const (
	stateOpen writerState = iota
	stateRolledBack
	stateClosed
)

// Options configures a Writer.
type Options struct {
	// Route picks the shard for a batch from its first document.
	Route RouteFunc

	// Parallel runs fan-out operations concurrently, at most MaxConcurrency
	// at a time (0 means no limit).
	Parallel       bool
	MaxConcurrency int

	Logger *slog.Logger
}

// Writer writes to every shard of a Registry as one index.
//
// Routed writes go to one shard and fail immediately. Fan-out operations are
// attempted on every shard and report the first failure in registry order.
type Writer struct {
	mu       sync.RWMutex
	reg      *Registry
	route    RouteFunc
	parallel bool
	limit    int
	logger   *slog.Logger
	state    writerState
}

// NewWriter returns a writer over reg. The writer owns reg from now on.
func NewWriter(reg *Registry, opts Options) (*Writer, error) {
	if reg == nil {
		return nil, errors.ValidationError("nil registry", nil)
	}
	if opts.Route == nil {
		return nil, errors.ValidationError("a route function is required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		reg:      reg,
		route:    opts.Route,
		parallel: opts.Parallel,
		limit:    opts.MaxConcurrency,
		logger:   logger,
	}, nil
}

// Registry returns the shards behind the writer.
func (w *Writer) Registry() *Registry {
	return w.reg
}

func (w *Writer) ensureOpen() error {
	switch w.state {
	case stateRolledBack:
		return errors.ClosedError("composite writer (rolled back)")
	case stateClosed:
		return errors.ClosedError("composite writer")
	}
	return nil
}

// each calls fn for every shard and returns the errors aligned with the
// registry. Every shard is attempted.
func (w *Writer) each(ctx context.Context, fn func(ctx context.Context, i int, s *Shard) error) []error {
	shards := w.reg.Shards()
	errs := make([]error, len(shards))

	if !w.parallel || len(shards) < 2 {
		for i, s := range shards {
			errs[i] = fn(ctx, i, s)
		}
		return errs
	}

	var g errgroup.Group
	if w.limit > 0 {
		g.SetLimit(w.limit)
	}
	for i, s := range shards {
		g.Go(func() error {
			errs[i] = fn(ctx, i, s)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// firstError wraps the first failure in registry order.
func (w *Writer) firstError(op string, errs []error) error {
	shards := w.reg.Shards()
	for i, err := range errs {
		if err != nil {
			return errors.ShardError(shards[i].Criteria, op, err)
		}
	}
	return nil
}

func (w *Writer) routeBatch(docs []engine.Document) (*Shard, error) {
	if len(docs) == 0 {
		return nil, errors.ValidationError("no documents given", nil)
	}
	key := w.route(&docs[0])
	shard, ok := w.reg.Shard(key)
	if !ok {
		return nil, errors.RoutingError(key)
	}
	return shard, nil
}

// AddDocument adds one document to its shard.
func (w *Writer) AddDocument(ctx context.Context, doc engine.Document) (int64, error) {
	return w.AddDocuments(ctx, []engine.Document{doc})
}

// AddDocuments adds docs to the shard that owns docs[0]. All documents of the
// batch go to that shard. The returned sequence number is the shard's own.
func (w *Writer) AddDocuments(ctx context.Context, docs []engine.Document) (int64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.ensureOpen(); err != nil {
		return -1, err
	}
	shard, err := w.routeBatch(docs)
	if err != nil {
		return -1, err
	}
	seq, err := shard.Writer.AddDocuments(ctx, docs)
	if err != nil {
		return -1, errors.ShardError(shard.Criteria, "add documents", err)
	}
	return seq, nil
}

// SoftUpdateDocument soft-updates one document in its shard.
func (w *Writer) SoftUpdateDocument(ctx context.Context, term engine.Term, doc engine.Document, markers ...engine.Field) (int64, error) {
	return w.SoftUpdateDocuments(ctx, term, []engine.Document{doc}, markers...)
}

// SoftUpdateDocuments marks documents matching term in the shard that owns
// docs[0], and adds docs there.
func (w *Writer) SoftUpdateDocuments(ctx context.Context, term engine.Term, docs []engine.Document, markers ...engine.Field) (int64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.ensureOpen(); err != nil {
		return -1, err
	}
	shard, err := w.routeBatch(docs)
	if err != nil {
		return -1, err
	}
	seq, err := shard.Writer.SoftUpdateDocuments(ctx, term, docs, markers...)
	if err != nil {
		return -1, errors.ShardError(shard.Criteria, "soft update documents", err)
	}
	return seq, nil
}

// DeleteByTerm deletes matching documents on every shard. The result is the
// largest per-shard sequence number, an upper bound and not a count.
func (w *Writer) DeleteByTerm(ctx context.Context, terms ...engine.Term) (int64, error) {
	return w.deleteAll(ctx, "delete by term", func(ctx context.Context, s *Shard) (int64, error) {
		return s.Writer.DeleteByTerm(ctx, terms...)
	})
}

// DeleteByQuery deletes documents matching q on every shard.
func (w *Writer) DeleteByQuery(ctx context.Context, q query.Query) (int64, error) {
	return w.deleteAll(ctx, "delete by query", func(ctx context.Context, s *Shard) (int64, error) {
		return s.Writer.DeleteByQuery(ctx, q)
	})
}

func (w *Writer) deleteAll(ctx context.Context, op string, fn func(context.Context, *Shard) (int64, error)) (int64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.ensureOpen(); err != nil {
		return -1, err
	}
	seqs := make([]int64, w.reg.Len())
	errs := w.each(ctx, func(ctx context.Context, i int, s *Shard) error {
		var err error
		seqs[i], err = fn(ctx, s)
		return err
	})
	if err := w.firstError(op, errs); err != nil {
		return -1, err
	}

	maxSeq := int64(-1)
	for _, seq := range seqs {
		maxSeq = max(maxSeq, seq)
	}
	return maxSeq, nil
}

// Commit commits every shard and returns how many shards had changes to
// commit, or -1 when none had.
//
// Commits are not atomic across shards. Sequentially, the first failure
// stops the fan-out and shards already committed stay committed; the error
// is a partial commit error when at least one shard committed. In parallel
// mode every shard is attempted.
func (w *Writer) Commit(ctx context.Context) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.ensureOpen(); err != nil {
		return -1, err
	}

	shards := w.reg.Shards()
	committed := make([]bool, len(shards))
	var errs []error

	if w.parallel {
		errs = w.each(ctx, func(ctx context.Context, i int, s *Shard) error {
			seq, err := s.Writer.Commit(ctx)
			committed[i] = err == nil && seq >= 0
			return err
		})
	} else {
		errs = make([]error, len(shards))
		for i, s := range shards {
			seq, err := s.Writer.Commit(ctx)
			if err != nil {
				errs[i] = err
				break
			}
			committed[i] = seq >= 0
		}
	}

	var names []string
	for i, ok := range committed {
		if ok {
			names = append(names, shards[i].Criteria)
		}
	}

	for i, err := range errs {
		if err == nil {
			continue
		}
		w.logger.Warn("composite commit failed",
			slog.String("criteria", shards[i].Criteria),
			slog.Int("committed", len(names)),
			slog.String("error", err.Error()))
		if len(names) > 0 {
			return -1, errors.PartialCommitError(names, shards[i].Criteria, errors.ShardError(shards[i].Criteria, "commit", err))
		}
		return -1, errors.ShardError(shards[i].Criteria, "commit", err)
	}

	if len(names) == 0 {
		return -1, nil
	}
	w.logger.Debug("composite commit finished", slog.Int("committed", len(names)))
	return len(names), nil
}

// Flush flushes every shard.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.ensureOpen(); err != nil {
		return err
	}
	return w.firstError("flush", w.each(ctx, func(ctx context.Context, _ int, s *Shard) error {
		return s.Writer.Flush(ctx)
	}))
}

// DeleteUnusedFiles asks every shard to delete files no longer referenced.
func (w *Writer) DeleteUnusedFiles(ctx context.Context) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.ensureOpen(); err != nil {
		return err
	}
	return w.firstError("delete unused files", w.each(ctx, func(_ context.Context, _ int, s *Shard) error {
		return s.Writer.DeleteUnusedFiles()
	}))
}

// ForceMerge merges every shard down to about maxSegments segments. Every
// shard is attempted; the first failure in registry order is reported.
func (w *Writer) ForceMerge(ctx context.Context, maxSegments int) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.ensureOpen(); err != nil {
		return err
	}
	return w.firstError("force merge", w.each(ctx, func(ctx context.Context, _ int, s *Shard) error {
		return s.Writer.ForceMerge(ctx, maxSegments)
	}))
}

// Rollback discards uncommitted changes on every shard and closes the shard
// writers. Afterwards only Close is valid.
func (w *Writer) Rollback(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpen(); err != nil {
		return err
	}
	errs := w.each(ctx, func(_ context.Context, _ int, s *Shard) error {
		return s.Writer.Rollback()
	})
	w.state = stateRolledBack
	w.logger.Info("composite writer rolled back", slog.Int("shards", w.reg.Len()))
	return w.firstError("rollback", errs)
}

// Close closes every shard writer, then every directory. All shards are
// attempted; failures are reported as one aggregate error wrapping the
// first. Closing twice is a no-op.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == stateClosed {
		return nil
	}
	w.state = stateClosed

	shards := w.reg.Shards()
	errs := w.each(ctx, func(_ context.Context, _ int, s *Shard) error {
		return s.Writer.Close()
	})

	var failed []string
	var first error
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed = append(failed, shards[i].Criteria)
		if first == nil {
			first = errors.ShardError(shards[i].Criteria, "close", err)
		}
	}
	if err := w.reg.Router().Close(); err != nil {
		owner := errors.Criteria(err)
		if owner == "" {
			owner = "shared"
		}
		failed = append(failed, owner)
		if first == nil {
			first = err
		}
	}

	if first != nil {
		w.logger.Warn("composite writer closed with errors", slog.Any("failed", failed))
		return errors.AggregateCloseError(failed, first)
	}
	w.logger.Debug("composite writer closed", slog.Int("shards", len(shards)))
	return nil
}

// IsOpen reports whether any shard writer is open.
func (w *Writer) IsOpen() bool {
	for _, s := range w.reg.Shards() {
		if s.Writer.IsOpen() {
			return true
		}
	}
	return false
}

func (w *Writer) sum(fn func(engine.ShardWriter) int64) int64 {
	var total int64
	for _, s := range w.reg.Shards() {
		total += fn(s.Writer)
	}
	return total
}

func (w *Writer) anyShard(fn func(engine.ShardWriter) bool) bool {
	for _, s := range w.reg.Shards() {
		if fn(s.Writer) {
			return true
		}
	}
	return false
}

// RAMBytesUsed sums buffered bytes over all shards.
func (w *Writer) RAMBytesUsed() int64 {
	return w.sum(engine.ShardWriter.RAMBytesUsed)
}

func (w *Writer) FlushingBytes() int64 {
	return w.sum(engine.ShardWriter.FlushingBytes)
}

func (w *Writer) PendingDocCount() int64 {
	return w.sum(engine.ShardWriter.PendingDocCount)
}

func (w *Writer) FlushCount() int64 {
	return w.sum(engine.ShardWriter.FlushCount)
}

func (w *Writer) HasUncommittedChanges() bool {
	return w.anyShard(engine.ShardWriter.HasUncommittedChanges)
}

func (w *Writer) HasPendingMerges() bool {
	return w.anyShard(engine.ShardWriter.HasPendingMerges)
}

// DocStats sums document counts over all shards.
func (w *Writer) DocStats() engine.DocStats {
	var total engine.DocStats
	for _, s := range w.reg.Shards() {
		st := s.Writer.DocStats()
		total.MaxDoc += st.MaxDoc
		total.NumDocs += st.NumDocs
	}
	return total
}

// TragicError returns the tragic failure of the first shard in registry
// order that has one. Other shards may have failed too.
func (w *Writer) TragicError() error {
	for _, s := range w.reg.Shards() {
		if err := s.Writer.TragicError(); err != nil {
			return errors.ShardError(s.Criteria, "write", err)
		}
	}
	return nil
}

// LiveCommitData merges every shard's live commit data. On a key collision
// the shard latest in registry order wins.
func (w *Writer) LiveCommitData() map[string]string {
	merged := map[string]string{}
	for _, s := range w.reg.Shards() {
		for k, v := range s.Writer.LiveCommitData() {
			merged[k] = v
		}
	}
	return merged
}

// SetLiveCommitData sets data on every shard; it is recorded by the next commit.
func (w *Writer) SetLiveCommitData(data map[string]string) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, s := range w.reg.Shards() {
		s.Writer.SetLiveCommitData(data)
	}
}

// LatestCommits returns the newest commit point of every shard, aligned with
// the registry. A shard that never committed yields a zero CommitPoint.
func (w *Writer) LatestCommits() ([]engine.CommitPoint, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.ensureOpen(); err != nil {
		return nil, err
	}
	out := make([]engine.CommitPoint, w.reg.Len())
	for i, s := range w.reg.Shards() {
		commits, err := s.Writer.ListCommits()
		if err != nil {
			return nil, errors.ShardError(s.Criteria, "list commits", err)
		}
		if n := len(commits); n > 0 {
			out[i] = commits[n-1]
		}
	}
	return out, nil
}

// Reader opens a near-real-time reader over every shard.
func (w *Writer) Reader(ctx context.Context, applyAllDeletes, writeAllDeletes bool) (*Reader, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.ensureOpen(); err != nil {
		return nil, err
	}
	subs := make([]engine.ShardReader, w.reg.Len())
	errs := w.each(ctx, func(ctx context.Context, i int, s *Shard) error {
		var err error
		subs[i], err = s.Writer.OpenReader(ctx, applyAllDeletes)
		return err
	})
	if err := w.firstError("open reader", errs); err != nil {
		releaseAll(subs)
		return nil, err
	}
	return newReader(w, subs, true, applyAllDeletes, writeAllDeletes), nil
}

// ReaderAt opens a reader at the given commit points, one per shard.
func (w *Writer) ReaderAt(ctx context.Context, commits []engine.CommitPoint) (*Reader, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.ensureOpen(); err != nil {
		return nil, err
	}
	if len(commits) != w.reg.Len() {
		return nil, errors.ValidationError("one commit point per shard is required", nil)
	}
	subs := make([]engine.ShardReader, w.reg.Len())
	errs := w.each(ctx, func(ctx context.Context, i int, s *Shard) error {
		var err error
		subs[i], err = s.Writer.OpenReaderAt(ctx, nil, commits[i])
		return err
	})
	if err := w.firstError("open reader at commit", errs); err != nil {
		releaseAll(subs)
		return nil, err
	}
	return newReader(w, subs, true, false, false), nil
}

func releaseAll(readers []engine.ShardReader) {
	for _, r := range readers {
		if r != nil {
			_ = r.DecRef()
		}
	}
}
