// Package composite presents a fixed set of index shards, one per criteria
// key, as a single logical index.
//
// A Registry owns the shards. A Writer routes document writes to one shard
// and fans lifecycle operations out to all of them. A Reader is a
// point-in-time view over one reader per shard, and a SoftDeletesReader
// decorates it to hide soft-deleted documents.
package composite

import (
	"context"

	"github.com/Aman-CERP/shardex/internal/engine"
	"github.com/Aman-CERP/shardex/internal/errors"
	"github.com/Aman-CERP/shardex/internal/storage"
)

// ShardSpec configures one shard.
type ShardSpec struct {
	Criteria string
	Dir      storage.Directory
	Config   engine.WriterConfig
}

// Shard is one registered shard.
type Shard struct {
	Criteria string
	Dir      storage.Directory
	Writer   engine.ShardWriter
}

// Registry maps criteria keys to shards. The set of shards and their order
// are fixed at construction.
type Registry struct {
	shards []*Shard
	index  map[string]int
	router *storage.Router
}

// NewRegistry mounts every shard directory under a router over shared and
// opens one writer per shard, in order. If any writer fails to open, the
// writers already opened and all directories are closed.
func NewRegistry(ctx context.Context, shared storage.Directory, sep string, specs []ShardSpec, open engine.Opener) (*Registry, error) {
	if len(specs) == 0 {
		return nil, errors.ValidationError("at least one shard is required", nil)
	}
	if open == nil {
		open = engine.OpenBleve
	}

	mounts := make([]storage.Mount, len(specs))
	for i, s := range specs {
		mounts[i] = storage.Mount{Criteria: s.Criteria, Dir: s.Dir}
	}
	router, err := storage.NewRouter(shared, sep, mounts)
	if err != nil {
		return nil, err
	}

	reg := &Registry{
		shards: make([]*Shard, 0, len(specs)),
		index:  make(map[string]int, len(specs)),
		router: router,
	}
	for _, s := range specs {
		cfg := s.Config
		cfg.Criteria = s.Criteria
		w, err := open(ctx, s.Dir, cfg)
		if err != nil {
			reg.abort()
			return nil, errors.ShardError(s.Criteria, "open writer", err)
		}
		reg.index[s.Criteria] = len(reg.shards)
		reg.shards = append(reg.shards, &Shard{Criteria: s.Criteria, Dir: s.Dir, Writer: w})
	}
	return reg, nil
}

func (r *Registry) abort() {
	for _, s := range r.shards {
		_ = s.Writer.Rollback()
	}
	_ = r.router.Close()
}

// Shards returns the shards in registry order.
func (r *Registry) Shards() []*Shard {
	return r.shards
}

// Shard returns the shard registered under criteria.
func (r *Registry) Shard(criteria string) (*Shard, bool) {
	i, ok := r.index[criteria]
	if !ok {
		return nil, false
	}
	return r.shards[i], true
}

// Criteria returns the criteria keys in registry order.
func (r *Registry) Criteria() []string {
	keys := make([]string, len(r.shards))
	for i, s := range r.shards {
		keys[i] = s.Criteria
	}
	return keys
}

func (r *Registry) Len() int {
	return len(r.shards)
}

// Router returns the virtual namespace over all shard directories.
func (r *Registry) Router() *storage.Router {
	return r.router
}
