package shardindex

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/shardex/internal/config"
	"github.com/Aman-CERP/shardex/internal/engine"
	"github.com/Aman-CERP/shardex/internal/errors"
	"github.com/Aman-CERP/shardex/internal/storage"
)

func testConfig(root string) *config.Config {
	cfg := config.NewConfig()
	cfg.Root = root
	cfg.Shards = []config.ShardConfig{{Criteria: "0"}, {Criteria: "1"}}
	cfg.Writer.SoftDeletesField = "deleted"
	cfg.Writer.LockRetries = 1
	cfg.Writer.LockRetryDelay = "1ms"
	return cfg
}

func doc(id, status string) engine.Document {
	return engine.Document{ID: id, Fields: map[string]any{"status": status, "title": "doc " + id}}
}

func openTest(t *testing.T, cfg *config.Config, opts ...Option) *Index {
	t.Helper()
	idx, err := Open(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close(context.Background()) })
	return idx
}

func TestOpen_InMemory_RoutesAndCommits(t *testing.T) {
	// Given: an in-memory index with shards "0" and "1"
	ctx := context.Background()
	idx := openTest(t, testConfig(""))

	// When: adding documents for both shards and one without a status
	_, err := idx.Add(ctx, doc("a", "0"), doc("b", "1"), doc("c", "1"),
		engine.Document{ID: "d", Fields: map[string]any{"title": "no status"}})
	require.NoError(t, err)
	committed, err := idx.Commit(ctx)

	// Then: both shards committed and documents landed by status
	require.NoError(t, err)
	assert.Equal(t, 2, committed)

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.NumDocs)
	require.Len(t, st.Shards, 2)
	assert.Equal(t, "0", st.Shards[0].Criteria)
	assert.Equal(t, 2, st.Shards[0].NumDocs)
	assert.Equal(t, 2, st.Shards[1].NumDocs)
	assert.Equal(t, int64(1), st.Shards[0].Generation)
	assert.False(t, st.Uncommitted)
}

func TestOpen_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("nil config", func(t *testing.T) {
		_, err := Open(ctx, nil)
		assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
	})

	t.Run("no shards", func(t *testing.T) {
		cfg := testConfig("")
		cfg.Shards = nil

		_, err := Open(ctx, cfg)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "no shards configured")
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig("")
		cfg.Naming.Scheme = "colon"

		_, err := Open(ctx, cfg)

		assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
	})
}

func TestOpen_OnDisk_PersistsAcrossReopen(t *testing.T) {
	// Given: an on-disk index with committed documents in both shards
	ctx := context.Background()
	root := t.TempDir()
	cfg := testConfig(root)

	idx, err := Open(ctx, cfg)
	require.NoError(t, err)
	_, err = idx.Add(ctx, doc("a", "0"), doc("b", "1"))
	require.NoError(t, err)
	_, err = idx.Commit(ctx)
	require.NoError(t, err)

	// Then: the namespace shows each shard's commit file under its prefix
	files, err := idx.Files()
	require.NoError(t, err)
	assert.Contains(t, files, "0$commit-1.json")
	assert.Contains(t, files, "1$commit-1.json")
	require.NoError(t, idx.Close(ctx))

	// When: reopening the same root
	reopened := openTest(t, testConfig(root))

	// Then: the documents are still there
	r, err := reopened.Reader(ctx)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 2, r.NumDocs())
	got, shard, err := r.Document("b")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, shard)
}

func TestOpen_SecondOpenerBlockedByLock(t *testing.T) {
	// Given: an index already open on a root
	ctx := context.Background()
	root := t.TempDir()
	openTest(t, testConfig(root))

	// When: opening the same root again
	_, err := Open(ctx, testConfig(root))

	// Then: the first shard's write lock is held
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrLockHeld))
	assert.Equal(t, "0", errors.Criteria(err))
}

func TestOpen_UnderscoreScheme(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir())
	cfg.Naming.Scheme = storage.SchemeUnderscore
	idx := openTest(t, cfg)

	_, err := idx.Add(ctx, doc("a", "1"))
	require.NoError(t, err)
	_, err = idx.Commit(ctx)
	require.NoError(t, err)

	files, err := idx.Files()
	require.NoError(t, err)
	assert.Contains(t, files, "1_commit-1.json")
}

func TestReplace_HidesOldVersionInLiveReader(t *testing.T) {
	// Given: an indexed document
	ctx := context.Background()
	idx := openTest(t, testConfig(""))
	_, err := idx.Add(ctx, doc("a", "0"))
	require.NoError(t, err)

	// When: replacing it
	_, err = idx.Replace(ctx, engine.Document{ID: "a", Fields: map[string]any{"status": "0", "title": "v2"}})
	require.NoError(t, err)

	// Then: the plain reader sees both versions, the live reader only the new one
	r, err := idx.Reader(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, r.NumDocs())
	require.NoError(t, r.Close())

	live, err := idx.LiveReader(ctx)
	require.NoError(t, err)
	defer live.Close()
	assert.Equal(t, 1, live.NumDocs())
	got, _, err := live.Document("a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v2", got.Get("title"))

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.NumDocs)
	assert.Equal(t, 1, st.LiveDocs)
}

func TestReplace_WithoutSoftField(t *testing.T) {
	cfg := testConfig("")
	cfg.Writer.SoftDeletesField = ""
	idx := openTest(t, cfg)

	_, err := idx.Replace(context.Background(), doc("a", "0"))
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))

	_, err = idx.LiveReader(context.Background())
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}

func TestDelete_FansOut(t *testing.T) {
	// Given: documents with the same owner in both shards
	ctx := context.Background()
	cfg := testConfig("")
	cfg.Writer.KeywordFields = []string{"owner"}
	idx := openTest(t, cfg)
	for _, d := range []engine.Document{
		{ID: "a", Fields: map[string]any{"status": "0", "owner": "ops"}},
		{ID: "b", Fields: map[string]any{"status": "1", "owner": "ops"}},
		{ID: "c", Fields: map[string]any{"status": "1", "owner": "dev"}},
	} {
		_, err := idx.Add(ctx, d)
		require.NoError(t, err)
	}

	// When: deleting by term
	_, err := idx.Delete(ctx, "owner", "ops")
	require.NoError(t, err)

	// Then: only the dev document remains
	r, err := idx.Reader(ctx)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 1, r.NumDocs())
}

func TestDeleteQuery(t *testing.T) {
	ctx := context.Background()
	idx := openTest(t, testConfig(""))
	_, err := idx.Add(ctx, doc("a", "0"), doc("b", "1"), doc("c", "1"))
	require.NoError(t, err)

	_, err = idx.DeleteQuery(ctx, "status:1")
	require.NoError(t, err)

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.NumDocs)

	_, err = idx.DeleteQuery(ctx, "")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestAdd_Empty(t *testing.T) {
	idx := openTest(t, testConfig(""))

	_, err := idx.Add(context.Background())

	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestWithRouter_Overrides(t *testing.T) {
	// Given: a router that sends everything to shard "1"
	ctx := context.Background()
	idx := openTest(t, testConfig(""), WithRouter(func(*engine.Document) string { return "1" }))

	// When: adding a document whose status says "0"
	_, err := idx.Add(ctx, doc("a", "0"))
	require.NoError(t, err)

	// Then: it lands in shard "1"
	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Shards[0].NumDocs)
	assert.Equal(t, 1, st.Shards[1].NumDocs)
}

func TestWithOpener_FailureClosesEverything(t *testing.T) {
	// Given: an opener that fails for shard "1"
	var opened []engine.ShardWriter
	boom := stderrors.New("boom")
	opener := func(ctx context.Context, dir storage.Directory, cfg engine.WriterConfig) (engine.ShardWriter, error) {
		if cfg.Criteria == "1" {
			return nil, boom
		}
		w, err := engine.OpenBleve(ctx, dir, cfg)
		if err == nil {
			opened = append(opened, w)
		}
		return w, err
	}

	// When: opening
	_, err := Open(context.Background(), testConfig(t.TempDir()), WithOpener(opener))

	// Then: the error names the shard and the first writer was released
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "1", errors.Criteria(err))
	require.Len(t, opened, 1)
	assert.False(t, opened[0].IsOpen())
}

func TestRollback_DiscardsAndCloses(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	idx, err := Open(ctx, testConfig(root))
	require.NoError(t, err)
	_, err = idx.Add(ctx, doc("a", "0"))
	require.NoError(t, err)

	require.NoError(t, idx.Rollback(ctx))
	assert.False(t, idx.Writer().IsOpen())

	// The lock is free again and nothing was kept
	reopened := openTest(t, testConfig(root))
	st, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.NumDocs)
}

// rollbackFailure fails Rollback after rolling the shard back.
type rollbackFailure struct {
	engine.ShardWriter
	err error
}

func (f rollbackFailure) Rollback() error {
	_ = f.ShardWriter.Rollback()
	return f.err
}

func TestRollback_FailureStillClosesDirectories(t *testing.T) {
	// Given: an in-memory index whose shard "1" fails to roll back
	ctx := context.Background()
	boom := stderrors.New("rollback failed")
	opener := func(ctx context.Context, dir storage.Directory, cfg engine.WriterConfig) (engine.ShardWriter, error) {
		w, err := engine.OpenBleve(ctx, dir, cfg)
		if err != nil || cfg.Criteria != "1" {
			return w, err
		}
		return rollbackFailure{ShardWriter: w, err: boom}, nil
	}
	idx := openTest(t, testConfig(""), WithOpener(opener))

	// When: rolling back
	err := idx.Rollback(ctx)

	// Then: the failure surfaces and the namespace is closed anyway
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "1", errors.Criteria(err))
	_, err = idx.Files()
	assert.Error(t, err)
}

func TestForceMerge_OnDisk(t *testing.T) {
	ctx := context.Background()
	idx := openTest(t, testConfig(t.TempDir()))
	for _, d := range []engine.Document{doc("a", "0"), doc("b", "1"), doc("c", "1")} {
		_, err := idx.Add(ctx, d)
		require.NoError(t, err)
		require.NoError(t, idx.Writer().Flush(ctx))
	}

	require.NoError(t, idx.ForceMerge(ctx, 1))

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.NumDocs)
	assert.Error(t, idx.ForceMerge(ctx, 0))
}

func TestLiveCommitData_InStats(t *testing.T) {
	ctx := context.Background()
	idx := openTest(t, testConfig(""))

	idx.Writer().SetLiveCommitData(map[string]string{"source": "import-" + time.Now().Format("2006")})

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Contains(t, st.LiveCommitData, "source")
}
