// Package shardindex opens a multi-shard index from configuration.
//
// A shardex index is a set of single-shard bleve indexes, one per criteria
// key, that behave as one: writes are routed to a shard by a document field,
// whole-index operations fan out to every shard, and readers stitch the
// shards together in a fixed order.
//
// # Layout
//
// With a root directory configured, each shard lives in its own folder:
//
//	root/
//	├── 0/            ← shard "0" (bleve index, commit files, write.lock)
//	├── 1/            ← shard "1"
//	└── ...           ← shared files
//
// Files() lists the same tree as one flat namespace in which shard files
// are spelled criteria$name (or criteria_name with the underscore scheme).
// Without a root the index is held in memory.
//
// # Usage
//
//	cfg, _ := config.Load(".")
//	idx, err := shardindex.Open(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer idx.Close(ctx)
//
//	_, err = idx.Add(ctx, docs...)
//	_, err = idx.Commit(ctx)
package shardindex
