package shardindex

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/shardex/internal/composite"
	"github.com/Aman-CERP/shardex/internal/config"
	"github.com/Aman-CERP/shardex/internal/engine"
	"github.com/Aman-CERP/shardex/internal/errors"
	"github.com/Aman-CERP/shardex/internal/storage"
)

// Index is an open multi-shard index.
type Index struct {
	cfg    *config.Config
	writer *composite.Writer
	logger *slog.Logger
}

// ShardStats describes one shard.
type ShardStats struct {
	Criteria   string `json:"criteria"`
	NumDocs    int    `json:"num_docs"`
	MaxDoc     int    `json:"max_doc"`
	Generation int64  `json:"generation"`
	Version    int64  `json:"version"`
}

// Stats describes the whole index.
type Stats struct {
	Shards           []ShardStats      `json:"shards"`
	NumDocs          int               `json:"num_docs"`
	MaxDoc           int               `json:"max_doc"`
	LiveDocs         int               `json:"live_docs"`
	RAMBytesUsed     int64             `json:"ram_bytes_used"`
	PendingDocs      int64             `json:"pending_docs"`
	FlushCount       int64             `json:"flush_count"`
	Uncommitted      bool              `json:"uncommitted"`
	PendingMerges    bool              `json:"pending_merges"`
	LiveCommitData   map[string]string `json:"live_commit_data,omitempty"`
	SoftDeletesField string            `json:"soft_deletes_field,omitempty"`
}

// Open opens every configured shard and returns the index. Shard directories
// are cfg.Root/<criteria>; an empty root keeps everything in memory.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Index, error) {
	if cfg == nil {
		return nil, errors.ConfigError("nil configuration", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigError("invalid configuration", err)
	}
	if len(cfg.Shards) == 0 {
		return nil, errors.ConfigError("no shards configured", nil).
			WithSuggestion("Add a shards: list to " + config.FileName)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.route == nil {
		o.route = composite.FieldRouter(cfg.Routing.Field, cfg.Routing.Default)
	}

	shared, specs, err := directories(cfg)
	if err != nil {
		return nil, err
	}
	for i := range specs {
		specs[i].Config = cfg.ShardWriterConfig(cfg.Shards[i])
		specs[i].Config.Logger = o.logger
	}

	reg, err := composite.NewRegistry(ctx, shared, cfg.Separator(), specs, o.opener)
	if err != nil {
		closeDirs(shared, specs)
		return nil, err
	}

	w, err := composite.NewWriter(reg, composite.Options{
		Route:          o.route,
		Parallel:       cfg.Fanout.Parallel,
		MaxConcurrency: cfg.Fanout.MaxConcurrency,
		Logger:         o.logger,
	})
	if err != nil {
		for _, s := range reg.Shards() {
			_ = s.Writer.Rollback()
		}
		_ = reg.Router().Close()
		return nil, err
	}

	o.logger.Info("index opened",
		slog.String("root", cfg.Root),
		slog.Int("shards", reg.Len()),
		slog.Bool("parallel", cfg.Fanout.Parallel))

	return &Index{cfg: cfg, writer: w, logger: o.logger}, nil
}

func directories(cfg *config.Config) (storage.Directory, []composite.ShardSpec, error) {
	specs := make([]composite.ShardSpec, len(cfg.Shards))

	if cfg.Root == "" {
		for i, s := range cfg.Shards {
			specs[i] = composite.ShardSpec{Criteria: s.Criteria, Dir: storage.NewMemory()}
		}
		return storage.NewMemory(), specs, nil
	}

	shared, err := storage.NewLocal(cfg.Root)
	if err != nil {
		return nil, nil, err
	}
	for i, s := range cfg.Shards {
		dir, err := storage.NewLocal(filepath.Join(cfg.Root, s.Criteria))
		if err != nil {
			closeDirs(shared, specs[:i])
			return nil, nil, errors.ShardError(s.Criteria, "open directory", err)
		}
		specs[i] = composite.ShardSpec{Criteria: s.Criteria, Dir: dir}
	}
	return shared, specs, nil
}

func closeDirs(shared storage.Directory, specs []composite.ShardSpec) {
	for _, s := range specs {
		if s.Dir != nil {
			_ = s.Dir.Close()
		}
	}
	_ = shared.Close()
}

// Writer returns the composite writer.
func (x *Index) Writer() *composite.Writer {
	return x.writer
}

// Config returns the configuration the index was opened with.
func (x *Index) Config() *config.Config {
	return x.cfg
}

// Add routes each document to its shard on its own.
// Returns the highest sequence number assigned.
func (x *Index) Add(ctx context.Context, docs ...engine.Document) (int64, error) {
	if len(docs) == 0 {
		return 0, errors.ValidationError("no documents to add", nil)
	}
	var maxSeq int64
	for _, doc := range docs {
		seq, err := x.writer.AddDocument(ctx, doc)
		if err != nil {
			return maxSeq, err
		}
		maxSeq = max(maxSeq, seq)
	}
	return maxSeq, nil
}

// Replace soft-updates the document with doc's ID, marking the old version
// with the configured soft deletes field.
func (x *Index) Replace(ctx context.Context, doc engine.Document) (int64, error) {
	field := x.cfg.Writer.SoftDeletesField
	if field == "" {
		return 0, errors.ConfigError("soft updates need writer.soft_deletes_field", nil)
	}
	term := engine.Term{Field: engine.KeyField, Value: doc.ID}
	return x.writer.SoftUpdateDocument(ctx, term, doc, engine.Field{Name: field, Value: "true"})
}

// Delete removes documents whose field equals value from every shard.
func (x *Index) Delete(ctx context.Context, field, value string) (int64, error) {
	return x.writer.DeleteByTerm(ctx, engine.Term{Field: field, Value: value})
}

// DeleteQuery removes documents matching a bleve query string from every shard.
func (x *Index) DeleteQuery(ctx context.Context, q string) (int64, error) {
	if q == "" {
		return 0, errors.ValidationError("empty query", nil)
	}
	return x.writer.DeleteByQuery(ctx, query.NewQueryStringQuery(q))
}

// Commit commits every shard. See composite.Writer.Commit.
func (x *Index) Commit(ctx context.Context) (int, error) {
	return x.writer.Commit(ctx)
}

// Reader opens a reader over every shard with all deletes applied.
func (x *Index) Reader(ctx context.Context) (*composite.Reader, error) {
	return x.writer.Reader(ctx, true, false)
}

// LiveReader opens a reader that hides soft-deleted documents.
func (x *Index) LiveReader(ctx context.Context) (*composite.SoftDeletesReader, error) {
	field := x.cfg.Writer.SoftDeletesField
	if field == "" {
		return nil, errors.ConfigError("live readers need writer.soft_deletes_field", nil)
	}
	r, err := x.Reader(ctx)
	if err != nil {
		return nil, err
	}
	sr, err := composite.NewSoftDeletesReader(r, field)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return sr, nil
}

// Files lists the index as one namespace.
func (x *Index) Files() ([]string, error) {
	return x.writer.Registry().Router().List()
}

// Stats opens a reader and reports per-shard and total counts.
func (x *Index) Stats(ctx context.Context) (*Stats, error) {
	r, err := x.Reader(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	st := &Stats{
		NumDocs:          r.NumDocs(),
		MaxDoc:           r.MaxDoc(),
		LiveDocs:         r.NumDocs(),
		RAMBytesUsed:     x.writer.RAMBytesUsed(),
		PendingDocs:      x.writer.PendingDocCount(),
		FlushCount:       x.writer.FlushCount(),
		Uncommitted:      x.writer.HasUncommittedChanges(),
		PendingMerges:    x.writer.HasPendingMerges(),
		LiveCommitData:   x.writer.LiveCommitData(),
		SoftDeletesField: x.cfg.Writer.SoftDeletesField,
	}
	for i, leaf := range r.Leaves() {
		meta := leaf.Meta()
		st.Shards = append(st.Shards, ShardStats{
			Criteria:   r.Criteria()[i],
			NumDocs:    leaf.NumDocs(),
			MaxDoc:     leaf.MaxDoc(),
			Generation: meta.Generation,
			Version:    meta.Version,
		})
	}

	if st.SoftDeletesField != "" {
		sr, err := composite.NewSoftDeletesReader(r, st.SoftDeletesField)
		if err != nil {
			return nil, err
		}
		st.LiveDocs = sr.NumDocs()
	}
	return st, nil
}

// Close commits (per shard configuration) and closes every shard.
func (x *Index) Close(ctx context.Context) error {
	err := x.writer.Close(ctx)
	if err != nil {
		x.logger.LogAttrs(ctx, slog.LevelError, "failed to close index", errors.LogAttrs(err)...)
		return err
	}
	x.logger.Info("index closed")
	return nil
}

// Rollback discards uncommitted changes on every shard and closes the index.
// The index is closed even when rolling back fails; the first error wins.
func (x *Index) Rollback(ctx context.Context) error {
	err := x.writer.Rollback(ctx)
	if cerr := x.writer.Close(ctx); err == nil {
		err = cerr
	}
	if err != nil {
		x.logger.LogAttrs(ctx, slog.LevelError, "failed to roll back index", errors.LogAttrs(err)...)
	}
	return err
}

// ForceMerge merges every shard down to about maxSegments segments.
func (x *Index) ForceMerge(ctx context.Context, maxSegments int) error {
	start := time.Now()
	if err := x.writer.ForceMerge(ctx, maxSegments); err != nil {
		return err
	}
	x.logger.Info("index merged",
		slog.Int("max_segments", maxSegments),
		slog.Duration("took", time.Since(start)))
	return nil
}
