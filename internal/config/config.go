package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/shardex/internal/engine"
	"github.com/Aman-CERP/shardex/internal/storage"
)

// FileName is the project configuration file looked up by Load.
const FileName = ".shardex.yaml"

// Config represents the complete shardex configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Root    string        `yaml:"root" json:"root"`
	Naming  NamingConfig  `yaml:"naming" json:"naming"`
	Routing RoutingConfig `yaml:"routing" json:"routing"`
	Shards  []ShardConfig `yaml:"shards" json:"shards"`
	Writer  WriterConfig  `yaml:"writer" json:"writer"`
	Fanout  FanoutConfig  `yaml:"fanout" json:"fanout"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// NamingConfig selects how shard-owned file names are spelled.
type NamingConfig struct {
	// Scheme is "dollar" (criteria$name) or "underscore" (criteria_name).
	Scheme string `yaml:"scheme" json:"scheme"`
}

// RoutingConfig configures the default field router.
type RoutingConfig struct {
	Field   string `yaml:"field" json:"field"`
	Default string `yaml:"default" json:"default"`
}

// ShardConfig declares one shard. Zero-valued overrides fall back to the
// writer defaults.
type ShardConfig struct {
	Criteria string       `yaml:"criteria" json:"criteria"`
	Writer   WriterConfig `yaml:"writer,omitempty" json:"writer,omitempty"`
}

// WriterConfig holds per-shard writer settings.
type WriterConfig struct {
	Analyzer         string   `yaml:"analyzer,omitempty" json:"analyzer,omitempty"`
	MaxBufferedDocs  int      `yaml:"max_buffered_docs,omitempty" json:"max_buffered_docs,omitempty"`
	RAMBufferMB      float64  `yaml:"ram_buffer_mb,omitempty" json:"ram_buffer_mb,omitempty"`
	KeepCommits      int      `yaml:"keep_commits,omitempty" json:"keep_commits,omitempty"`
	CommitOnClose    *bool    `yaml:"commit_on_close,omitempty" json:"commit_on_close,omitempty"`
	SoftDeletesField string   `yaml:"soft_deletes_field,omitempty" json:"soft_deletes_field,omitempty"`
	KeywordFields    []string `yaml:"keyword_fields,omitempty" json:"keyword_fields,omitempty"`
	DocCacheSize     int      `yaml:"doc_cache_size,omitempty" json:"doc_cache_size,omitempty"`
	LockRetries      int      `yaml:"lock_retries,omitempty" json:"lock_retries,omitempty"`
	LockRetryDelay   string   `yaml:"lock_retry_delay,omitempty" json:"lock_retry_delay,omitempty"`
}

// FanoutConfig controls how whole-index operations visit shards.
type FanoutConfig struct {
	Parallel       bool `yaml:"parallel" json:"parallel"`
	MaxConcurrency int  `yaml:"max_concurrency" json:"max_concurrency"`
}

// LoggingConfig configures the rotating log file.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
	// NoSync skips the fsync after each log line.
	NoSync bool `yaml:"no_sync" json:"no_sync"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	commitOnClose := true
	return &Config{
		Version: 1,
		Root:    "",
		Naming: NamingConfig{
			Scheme: storage.SchemeDollar,
		},
		Routing: RoutingConfig{
			Field:   "status",
			Default: "0",
		},
		Shards: nil,
		Writer: WriterConfig{
			Analyzer:         "standard",
			MaxBufferedDocs:  1000,
			RAMBufferMB:      16,
			KeepCommits:      1,
			CommitOnClose:    &commitOnClose,
			SoftDeletesField: "",
			DocCacheSize:     1024,
			LockRetries:      3,
			LockRetryDelay:   "50ms",
		},
		Fanout: FanoutConfig{
			Parallel:       false,
			MaxConcurrency: 4,
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      "",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. Project config (.shardex.yaml or .shardex.yml in dir)
//  3. Environment variables (SHARDEX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	return cfg.finish()
}

// LoadFile loads configuration from an explicit path. A missing file is an error.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}

	return cfg.finish()
}

func (c *Config) finish() (*Config, error) {
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return c, nil
}

// FindConfigDir walks up from startDir to the first directory holding a
// .shardex.yaml or .shardex.yml file. When none is found it returns the
// absolute startDir.
func FindConfigDir(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if fileExists(filepath.Join(currentDir, FileName)) ||
			fileExists(filepath.Join(currentDir, ".shardex.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// loadFromFile attempts to load configuration from .shardex.yaml or .shardex.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, FileName)
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".shardex.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)

	// A relative root is resolved against the file that declared it.
	if parsed.Root != "" && !filepath.IsAbs(parsed.Root) {
		c.Root = filepath.Join(filepath.Dir(path), parsed.Root)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Root != "" {
		c.Root = other.Root
	}

	if other.Naming.Scheme != "" {
		c.Naming.Scheme = other.Naming.Scheme
	}

	if other.Routing.Field != "" {
		c.Routing.Field = other.Routing.Field
	}
	if other.Routing.Default != "" {
		c.Routing.Default = other.Routing.Default
	}

	// Shards replace rather than append: order is significant.
	if len(other.Shards) > 0 {
		c.Shards = other.Shards
	}

	c.Writer = c.Writer.overlay(other.Writer)

	// Parallel is boolean, so it is only taken when the section was set.
	if other.Fanout.Parallel || other.Fanout.MaxConcurrency != 0 {
		c.Fanout.Parallel = other.Fanout.Parallel
	}
	if other.Fanout.MaxConcurrency != 0 {
		c.Fanout.MaxConcurrency = other.Fanout.MaxConcurrency
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
	if other.Logging.NoSync {
		c.Logging.NoSync = true
	}
}

// overlay returns w with every non-zero field of o applied on top.
func (w WriterConfig) overlay(o WriterConfig) WriterConfig {
	if o.Analyzer != "" {
		w.Analyzer = o.Analyzer
	}
	if o.MaxBufferedDocs != 0 {
		w.MaxBufferedDocs = o.MaxBufferedDocs
	}
	if o.RAMBufferMB != 0 {
		w.RAMBufferMB = o.RAMBufferMB
	}
	if o.KeepCommits != 0 {
		w.KeepCommits = o.KeepCommits
	}
	if o.CommitOnClose != nil {
		v := *o.CommitOnClose
		w.CommitOnClose = &v
	}
	if o.SoftDeletesField != "" {
		w.SoftDeletesField = o.SoftDeletesField
	}
	if len(o.KeywordFields) > 0 {
		w.KeywordFields = o.KeywordFields
	}
	if o.DocCacheSize != 0 {
		w.DocCacheSize = o.DocCacheSize
	}
	if o.LockRetries != 0 {
		w.LockRetries = o.LockRetries
	}
	if o.LockRetryDelay != "" {
		w.LockRetryDelay = o.LockRetryDelay
	}
	return w
}

// applyEnvOverrides applies SHARDEX_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SHARDEX_ROOT"); v != "" {
		c.Root = v
	}
	if v := os.Getenv("SHARDEX_NAMING"); v != "" {
		c.Naming.Scheme = v
	}
	if v := os.Getenv("SHARDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SHARDEX_LOG_NO_SYNC"); v != "" {
		c.Logging.NoSync = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("SHARDEX_PARALLEL"); v != "" {
		c.Fanout.Parallel = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("SHARDEX_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Fanout.MaxConcurrency = n
		}
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	sep, err := storage.SeparatorFor(c.Naming.Scheme)
	if err != nil {
		return fmt.Errorf("naming.scheme must be 'dollar' or 'underscore', got %s", c.Naming.Scheme)
	}

	if c.Routing.Field == "" {
		return fmt.Errorf("routing.field must not be empty")
	}

	seen := make(map[string]bool, len(c.Shards))
	for i, s := range c.Shards {
		if err := storage.ValidateCriteria(s.Criteria, sep); err != nil {
			return fmt.Errorf("shards[%d]: %w", i, err)
		}
		if seen[s.Criteria] {
			return fmt.Errorf("shards[%d]: duplicate criteria %q", i, s.Criteria)
		}
		seen[s.Criteria] = true
		if err := s.Writer.validate(fmt.Sprintf("shards[%d].writer", i)); err != nil {
			return err
		}
	}
	if len(c.Shards) > 0 && !seen[c.Routing.Default] {
		return fmt.Errorf("routing.default %q does not name a shard", c.Routing.Default)
	}

	if err := c.Writer.validate("writer"); err != nil {
		return err
	}

	if c.Fanout.MaxConcurrency < 0 {
		return fmt.Errorf("fanout.max_concurrency must be non-negative, got %d", c.Fanout.MaxConcurrency)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxFiles < 0 {
		return fmt.Errorf("logging.max_size_mb and logging.max_files must be non-negative")
	}

	return nil
}

func (w WriterConfig) validate(prefix string) error {
	if w.Analyzer != "" {
		known := false
		for _, a := range engine.Analyzers {
			if a == w.Analyzer {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("%s.analyzer must be one of %s, got %s", prefix, strings.Join(engine.Analyzers, ", "), w.Analyzer)
		}
	}
	if w.MaxBufferedDocs < 0 {
		return fmt.Errorf("%s.max_buffered_docs must be non-negative, got %d", prefix, w.MaxBufferedDocs)
	}
	if w.RAMBufferMB < 0 {
		return fmt.Errorf("%s.ram_buffer_mb must be non-negative, got %f", prefix, w.RAMBufferMB)
	}
	if w.KeepCommits < 0 {
		return fmt.Errorf("%s.keep_commits must be non-negative, got %d", prefix, w.KeepCommits)
	}
	if w.LockRetryDelay != "" {
		if _, err := time.ParseDuration(w.LockRetryDelay); err != nil {
			return fmt.Errorf("%s.lock_retry_delay: %w", prefix, err)
		}
	}
	return nil
}

// ShardWriterConfig resolves the engine settings for one shard: writer
// defaults, then that shard's overrides.
func (c *Config) ShardWriterConfig(s ShardConfig) engine.WriterConfig {
	w := c.Writer.overlay(s.Writer)

	out := engine.DefaultWriterConfig()
	out.Criteria = s.Criteria
	out.RoutingField = c.Routing.Field
	if w.Analyzer != "" {
		out.Analyzer = w.Analyzer
	}
	if w.MaxBufferedDocs != 0 {
		out.MaxBufferedDocs = w.MaxBufferedDocs
	}
	if w.RAMBufferMB != 0 {
		out.RAMBufferMB = w.RAMBufferMB
	}
	if w.KeepCommits != 0 {
		out.KeepCommits = w.KeepCommits
	}
	if w.CommitOnClose != nil {
		out.CommitOnClose = *w.CommitOnClose
	}
	out.SoftDeletesField = w.SoftDeletesField
	out.KeywordFields = w.KeywordFields
	if w.DocCacheSize != 0 {
		out.DocCacheSize = w.DocCacheSize
	}
	if w.LockRetries != 0 {
		out.LockRetries = w.LockRetries
	}
	if d, err := time.ParseDuration(w.LockRetryDelay); err == nil && d > 0 {
		out.LockRetryDelay = d
	}
	return out
}

// Separator returns the file name separator for the configured scheme.
func (c *Config) Separator() string {
	sep, err := storage.SeparatorFor(c.Naming.Scheme)
	if err != nil {
		return "$"
	}
	return sep
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
