package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Defaults
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "", cfg.Root)
	assert.Equal(t, "dollar", cfg.Naming.Scheme)
	assert.Equal(t, "status", cfg.Routing.Field)
	assert.Equal(t, "0", cfg.Routing.Default)
	assert.Empty(t, cfg.Shards)

	assert.Equal(t, "standard", cfg.Writer.Analyzer)
	assert.Equal(t, 1000, cfg.Writer.MaxBufferedDocs)
	assert.Equal(t, 16.0, cfg.Writer.RAMBufferMB)
	assert.Equal(t, 1, cfg.Writer.KeepCommits)
	require.NotNil(t, cfg.Writer.CommitOnClose)
	assert.True(t, *cfg.Writer.CommitOnClose)
	assert.Equal(t, 1024, cfg.Writer.DocCacheSize)
	assert.Equal(t, "50ms", cfg.Writer.LockRetryDelay)

	assert.False(t, cfg.Fanout.Parallel)
	assert.Equal(t, 4, cfg.Fanout.MaxConcurrency)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 10, cfg.Logging.MaxSizeMB)
	assert.Equal(t, 5, cfg.Logging.MaxFiles)
}

func TestNewConfig_IsValid(t *testing.T) {
	assert.NoError(t, NewConfig().Validate())
}

// =============================================================================
// Loading
// =============================================================================

func TestLoad_NoFile_UsesDefaults(t *testing.T) {
	// Given: an empty directory
	dir := t.TempDir()

	// When: loading config
	cfg, err := Load(dir)

	// Then: defaults are returned
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Routing, cfg.Routing)
}

func TestLoad_YAMLFile_MergesOverDefaults(t *testing.T) {
	// Given: a project config overriding a few values
	dir := t.TempDir()
	content := `
root: data
naming:
  scheme: underscore
shards:
  - criteria: "0"
  - criteria: "1"
    writer:
      analyzer: keyword
      commit_on_close: false
writer:
  soft_deletes_field: deleted
  keyword_fields: [owner]
fanout:
  parallel: true
  max_concurrency: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644))

	// When: loading config
	cfg, err := Load(dir)

	// Then: file values win, untouched defaults survive
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Root)
	assert.Equal(t, "underscore", cfg.Naming.Scheme)
	assert.Equal(t, "_", cfg.Separator())
	require.Len(t, cfg.Shards, 2)
	assert.Equal(t, "1", cfg.Shards[1].Criteria)
	assert.Equal(t, "deleted", cfg.Writer.SoftDeletesField)
	assert.Equal(t, []string{"owner"}, cfg.Writer.KeywordFields)
	assert.Equal(t, 1000, cfg.Writer.MaxBufferedDocs)
	assert.True(t, cfg.Fanout.Parallel)
	assert.Equal(t, 2, cfg.Fanout.MaxConcurrency)
	assert.Equal(t, "status", cfg.Routing.Field)
}

func TestLoad_YMLFallback(t *testing.T) {
	// Given: only a .yml file
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".shardex.yml"), []byte("logging:\n  level: debug\n"), 0644))

	// When: loading config
	cfg, err := Load(dir)

	// Then: the .yml file is read
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidYAML_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("shards: [unclosed"), 0644))

	_, err := Load(dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_InvalidValues_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("naming:\n  scheme: colon\n"), 0644))

	_, err := Load(dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "naming.scheme")
}

func TestLoadFile_MissingFile_ReturnsError(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadFile_AbsoluteRootKept(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(t.TempDir(), "shards")
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("root: "+root+"\n"), 0644))

	cfg, err := LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, root, cfg.Root)
}

// =============================================================================
// Environment overrides
// =============================================================================

func TestLoad_EnvOverrides(t *testing.T) {
	// Given: a file and environment variables that disagree
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("logging:\n  level: warn\n"), 0644))
	root := t.TempDir()
	t.Setenv("SHARDEX_ROOT", root)
	t.Setenv("SHARDEX_LOG_LEVEL", "error")
	t.Setenv("SHARDEX_PARALLEL", "1")
	t.Setenv("SHARDEX_MAX_CONCURRENCY", "8")
	t.Setenv("SHARDEX_NAMING", "underscore")
	t.Setenv("SHARDEX_LOG_NO_SYNC", "true")

	// When: loading config
	cfg, err := Load(dir)

	// Then: environment wins
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.True(t, cfg.Fanout.Parallel)
	assert.Equal(t, 8, cfg.Fanout.MaxConcurrency)
	assert.Equal(t, "underscore", cfg.Naming.Scheme)
	assert.True(t, cfg.Logging.NoSync)
}

func TestLoad_EnvOverride_BadConcurrencyIgnored(t *testing.T) {
	t.Setenv("SHARDEX_MAX_CONCURRENCY", "many")

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Fanout.MaxConcurrency)
}

func TestLoad_EnvOverride_ParallelFalse(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("fanout:\n  parallel: true\n"), 0644))
	t.Setenv("SHARDEX_PARALLEL", "false")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.False(t, cfg.Fanout.Parallel)
}

// =============================================================================
// Validation
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"unknown scheme", func(c *Config) { c.Naming.Scheme = "colon" }, "naming.scheme"},
		{"empty routing field", func(c *Config) { c.Routing.Field = "" }, "routing.field"},
		{"empty criteria", func(c *Config) { c.Shards = []ShardConfig{{Criteria: ""}} }, "shards[0]"},
		{"criteria with separator", func(c *Config) { c.Shards = []ShardConfig{{Criteria: "a$b"}} }, "shards[0]"},
		{"duplicate criteria", func(c *Config) {
			c.Shards = []ShardConfig{{Criteria: "0"}, {Criteria: "0"}}
		}, "duplicate criteria"},
		{"default names no shard", func(c *Config) {
			c.Shards = []ShardConfig{{Criteria: "gold"}}
		}, "routing.default"},
		{"unknown analyzer", func(c *Config) { c.Writer.Analyzer = "klingon" }, "writer.analyzer"},
		{"negative buffer", func(c *Config) { c.Writer.MaxBufferedDocs = -1 }, "max_buffered_docs"},
		{"bad retry delay", func(c *Config) { c.Writer.LockRetryDelay = "soon" }, "lock_retry_delay"},
		{"shard override analyzer", func(c *Config) {
			c.Shards = []ShardConfig{{Criteria: "0", Writer: WriterConfig{Analyzer: "nope"}}}
		}, "shards[0].writer.analyzer"},
		{"negative concurrency", func(c *Config) { c.Fanout.MaxConcurrency = -2 }, "max_concurrency"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ShardsIncludingDefault(t *testing.T) {
	cfg := NewConfig()
	cfg.Shards = []ShardConfig{{Criteria: "0"}, {Criteria: "1"}}

	assert.NoError(t, cfg.Validate())
}

// =============================================================================
// Engine settings
// =============================================================================

func TestShardWriterConfig_AppliesOverrides(t *testing.T) {
	// Given: writer defaults plus one shard with overrides
	off := false
	cfg := NewConfig()
	cfg.Writer.SoftDeletesField = "deleted"
	cfg.Writer.LockRetryDelay = "10ms"
	cfg.Shards = []ShardConfig{
		{Criteria: "0"},
		{Criteria: "1", Writer: WriterConfig{Analyzer: "keyword", CommitOnClose: &off, KeepCommits: 3}},
	}

	// When: resolving both shards
	plain := cfg.ShardWriterConfig(cfg.Shards[0])
	tuned := cfg.ShardWriterConfig(cfg.Shards[1])

	// Then: defaults flow through and overrides win only where set
	assert.Equal(t, "0", plain.Criteria)
	assert.Equal(t, "status", plain.RoutingField)
	assert.Equal(t, "standard", plain.Analyzer)
	assert.True(t, plain.CommitOnClose)
	assert.Equal(t, "deleted", plain.SoftDeletesField)
	assert.Equal(t, 10*time.Millisecond, plain.LockRetryDelay)

	assert.Equal(t, "1", tuned.Criteria)
	assert.Equal(t, "keyword", tuned.Analyzer)
	assert.False(t, tuned.CommitOnClose)
	assert.Equal(t, 3, tuned.KeepCommits)
	assert.Equal(t, "deleted", tuned.SoftDeletesField)

	// And: the shared default pointer was not mutated
	assert.True(t, *cfg.Writer.CommitOnClose)
}

func TestSeparator_DefaultsToDollar(t *testing.T) {
	cfg := NewConfig()
	cfg.Naming.Scheme = ""

	assert.Equal(t, "$", cfg.Separator())
}

// =============================================================================
// Discovery and persistence
// =============================================================================

func TestFindConfigDir_WalksUp(t *testing.T) {
	// Given: a config file at the top of a nested tree
	top := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(top, FileName), []byte("version: 1\n"), 0644))
	nested := filepath.Join(top, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	// When: searching from the deepest directory
	dir, err := FindConfigDir(nested)

	// Then: the top directory is found
	require.NoError(t, err)
	assert.Equal(t, top, dir)
}

func TestFindConfigDir_NoConfig_ReturnsStart(t *testing.T) {
	start := t.TempDir()

	dir, err := FindConfigDir(start)

	require.NoError(t, err)
	assert.Equal(t, start, dir)
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	// Given: a customized config written to disk
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Shards = []ShardConfig{{Criteria: "0"}, {Criteria: "1"}}
	cfg.Fanout.Parallel = true
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, FileName)))

	// When: loading it back
	loaded, err := Load(dir)

	// Then: the shard list and fan-out mode survive
	require.NoError(t, err)
	assert.Equal(t, cfg.Shards, loaded.Shards)
	assert.True(t, loaded.Fanout.Parallel)
}
