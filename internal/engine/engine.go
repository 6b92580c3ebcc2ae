// Package engine defines the single-shard index engine consumed by the
// composite layer, and ships its bleve-backed implementation.
//
// A ShardWriter owns one shard's storage directory and write lock. Writes are
// buffered and become visible to readers after a flush; Commit makes them
// durable and records a commit point. A ShardReader is a reference-counted
// point-in-time view.
package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/shardex/internal/storage"
)

// Reserved index fields.
const (
	// KeyField holds the document ID. A Term on KeyField addresses one document.
	KeyField = "_key"

	// SourceField holds the stored JSON form of the document.
	SourceField = "_source"
)

// WriteLockName is the lock a writer holds in its directory while open.
const WriteLockName = "write.lock"

// Document is the unit of indexing.
type Document struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Get returns the value of a field, or nil.
func (d *Document) Get(field string) any {
	if d == nil || d.Fields == nil {
		return nil
	}
	return d.Fields[field]
}

// Term selects documents whose field holds exactly value.
type Term struct {
	Field string
	Value string
}

// Field is a soft-delete marker set on documents replaced by a soft update.
type Field struct {
	Name  string
	Value any
}

// SegmentMeta describes the state a reader was opened at.
type SegmentMeta struct {
	Generation int64  `json:"generation"`
	Version    int64  `json:"version"`
	DocCount   uint64 `json:"doc_count"`
}

// CommitPoint is a durable commit of one shard.
type CommitPoint struct {
	Generation int64             `json:"generation"`
	Version    int64             `json:"version"`
	Seq        int64             `json:"seq"`
	DocCount   uint64            `json:"doc_count"`
	UserData   map[string]string `json:"user_data,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	FileName   string            `json:"-"`
}

// DocStats counts documents in a shard, including buffered ones.
type DocStats struct {
	MaxDoc  int64 `json:"max_doc"`
	NumDocs int64 `json:"num_docs"`
}

// CacheKey identifies one reader instance. Two readers share a key only if
// they are the same view of the same data. The zero key means "no key".
type CacheKey uint64

var cacheKeySeq atomic.Uint64

// NewCacheKey returns a process-unique cache key.
func NewCacheKey() CacheKey {
	return CacheKey(cacheKeySeq.Add(1))
}

// ShardWriter writes one shard.
type ShardWriter interface {
	// AddDocuments buffers docs and returns the sequence number of the call.
	AddDocuments(ctx context.Context, docs []Document) (int64, error)

	// SoftUpdateDocuments marks live documents matching term with markers and
	// adds docs. Marked documents stay in the index but are hidden by a soft
	// delete reader.
	SoftUpdateDocuments(ctx context.Context, term Term, docs []Document, markers ...Field) (int64, error)

	DeleteByTerm(ctx context.Context, terms ...Term) (int64, error)
	DeleteByQuery(ctx context.Context, q query.Query) (int64, error)

	// Commit flushes and persists a commit point. It returns -1 when there
	// was nothing to commit.
	Commit(ctx context.Context) (int64, error)
	Flush(ctx context.Context) error

	// Rollback discards everything since the last commit and closes.
	Rollback() error
	Close() error
	DeleteUnusedFiles() error

	// ForceMerge merges segments down to about maxSegments, reclaiming
	// space held by deleted documents.
	ForceMerge(ctx context.Context, maxSegments int) error

	OpenReader(ctx context.Context, applyAllDeletes bool) (ShardReader, error)

	// OpenReaderAt opens a reader at a commit point. It returns nil when old
	// already reflects the commit.
	OpenReaderAt(ctx context.Context, old ShardReader, commit CommitPoint) (ShardReader, error)

	// IsCurrent reports whether a reader opened at meta would see every
	// change made through this writer.
	IsCurrent(meta SegmentMeta) bool

	Meta() SegmentMeta
	ListCommits() ([]CommitPoint, error)
	LiveCommitData() map[string]string
	SetLiveCommitData(data map[string]string)

	RAMBytesUsed() int64
	FlushingBytes() int64
	PendingDocCount() int64
	FlushCount() int64
	DocStats() DocStats
	HasUncommittedChanges() bool
	HasPendingMerges() bool
	IsOpen() bool
	TragicError() error
}

// ShardReader is a reference-counted point-in-time view of one shard.
type ShardReader interface {
	NumDocs() int
	MaxDoc() int
	Meta() SegmentMeta
	CacheKey() CacheKey

	// Document returns the document with id, or nil when absent.
	Document(id string) (*Document, error)

	// CountField counts documents that hold any value for field.
	CountField(field string) (int, error)

	IncRef() error
	DecRef() error
	Close() error
}

// Opener opens a shard writer over a directory.
type Opener func(ctx context.Context, dir storage.Directory, cfg WriterConfig) (ShardWriter, error)

// WriterConfig configures one shard writer.
type WriterConfig struct {
	Criteria         string
	Analyzer         string
	RoutingField     string
	SoftDeletesField string
	KeywordFields    []string
	MaxBufferedDocs  int
	RAMBufferMB      float64
	KeepCommits      int
	CommitOnClose    bool
	DocCacheSize     int
	LockRetries      int
	LockRetryDelay   time.Duration
	Logger           *slog.Logger
}

// DefaultWriterConfig returns the writer defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		Analyzer:        "standard",
		MaxBufferedDocs: 1000,
		RAMBufferMB:     16,
		KeepCommits:     1,
		CommitOnClose:   true,
		DocCacheSize:    1024,
		LockRetries:     3,
		LockRetryDelay:  50 * time.Millisecond,
	}
}

func (c WriterConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
