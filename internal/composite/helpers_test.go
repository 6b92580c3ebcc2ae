package composite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/shardex/internal/engine"
	"github.com/Aman-CERP/shardex/internal/storage"
)

const softField = "deleted"

// faultyWriter injects failures into selected ShardWriter calls.
type faultyWriter struct {
	engine.ShardWriter
	mu        sync.Mutex
	commitErr error
	closeErr  error
	flushErr  error
	closed    bool

	rollbackErr error
	unusedErr   error
	mergeErr    error
	merged      bool

	// readerErr fails OpenReader once readerFails is set.
	readerErr   error
	readerFails bool
	readers     []engine.ShardReader
}

func (f *faultyWriter) Rollback() error {
	err := f.ShardWriter.Rollback()
	if f.rollbackErr != nil {
		return f.rollbackErr
	}
	return err
}

func (f *faultyWriter) DeleteUnusedFiles() error {
	if f.unusedErr != nil {
		return f.unusedErr
	}
	return f.ShardWriter.DeleteUnusedFiles()
}

func (f *faultyWriter) ForceMerge(ctx context.Context, maxSegments int) error {
	f.mu.Lock()
	f.merged = true
	f.mu.Unlock()
	if f.mergeErr != nil {
		return f.mergeErr
	}
	return f.ShardWriter.ForceMerge(ctx, maxSegments)
}

func (f *faultyWriter) OpenReader(ctx context.Context, applyAllDeletes bool) (engine.ShardReader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readerFails {
		return nil, f.readerErr
	}
	r, err := f.ShardWriter.OpenReader(ctx, applyAllDeletes)
	if err == nil {
		f.readers = append(f.readers, r)
	}
	return r, err
}

func (f *faultyWriter) Commit(ctx context.Context) (int64, error) {
	if f.commitErr != nil {
		return -1, f.commitErr
	}
	return f.ShardWriter.Commit(ctx)
}

func (f *faultyWriter) Flush(ctx context.Context) error {
	if f.flushErr != nil {
		return f.flushErr
	}
	return f.ShardWriter.Flush(ctx)
}

func (f *faultyWriter) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	err := f.ShardWriter.Close()
	if f.closeErr != nil {
		return f.closeErr
	}
	return err
}

func faultyOpener(faults map[string]*faultyWriter) engine.Opener {
	return func(ctx context.Context, dir storage.Directory, cfg engine.WriterConfig) (engine.ShardWriter, error) {
		w, err := engine.OpenBleve(ctx, dir, cfg)
		if err != nil {
			return nil, err
		}
		if f, ok := faults[cfg.Criteria]; ok {
			f.ShardWriter = w
			return f, nil
		}
		return w, nil
	}
}

func shardConfig() engine.WriterConfig {
	cfg := engine.DefaultWriterConfig()
	cfg.RoutingField = "status"
	cfg.SoftDeletesField = softField
	cfg.LockRetries = 0
	cfg.LockRetryDelay = time.Millisecond
	return cfg
}

type fixture struct {
	writer *Writer
	shared *storage.Memory
	dirs   map[string]*storage.Memory
}

func newFixture(t *testing.T, opts Options, open engine.Opener, criteria ...string) *fixture {
	t.Helper()
	f := &fixture{shared: storage.NewMemory(), dirs: map[string]*storage.Memory{}}
	specs := make([]ShardSpec, 0, len(criteria))
	for _, c := range criteria {
		dir := storage.NewMemory()
		f.dirs[c] = dir
		specs = append(specs, ShardSpec{Criteria: c, Dir: dir, Config: shardConfig()})
	}

	reg, err := NewRegistry(context.Background(), f.shared, "$", specs, open)
	require.NoError(t, err)
	if opts.Route == nil {
		opts.Route = FieldRouter("status", "0")
	}
	w, err := NewWriter(reg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close(context.Background()) })
	f.writer = w
	return f
}

func (f *fixture) shard(t *testing.T, criteria string) engine.ShardWriter {
	t.Helper()
	s, ok := f.writer.Registry().Shard(criteria)
	require.True(t, ok)
	return s.Writer
}

func statusDoc(id, status string) engine.Document {
	return engine.Document{ID: id, Fields: map[string]any{"status": status, "title": "doc " + id}}
}
