// Package storage provides the file namespaces that shard engines write to.
//
// A Directory is a flat namespace of slash-separated file names. Local is
// backed by the filesystem, Memory by an in-process map. Router presents one
// virtual namespace over a shared directory plus one directory per shard,
// addressing shard files as <criteria><sep><name>.
package storage

import (
	"io"
	"path"
	"strings"

	"github.com/Aman-CERP/shardex/internal/errors"
)

// Directory is the storage capability consumed by a shard engine.
type Directory interface {
	// List returns every file name in the directory, sorted.
	List() ([]string, error)

	// Length returns the size in bytes of the named file.
	Length(name string) (int64, error)

	// Delete removes the named file.
	Delete(name string) error

	// Open opens the named file for reading.
	Open(name string) (io.ReadCloser, error)

	// Create creates or truncates the named file for writing.
	Create(name string) (Output, error)

	// Rename atomically replaces to with from.
	Rename(from, to string) error

	// ObtainLock acquires an exclusive lock named name. A lock held by
	// someone else fails with a retryable ERR_207_LOCK_HELD.
	ObtainLock(name string) (Lock, error)

	// Close releases the directory.
	Close() error
}

// Output is a file opened for writing.
type Output interface {
	io.WriteCloser
	Sync() error
}

// Lock is an exclusive lock obtained from a Directory.
type Lock interface {
	Release() error
}

// Rooted is implemented by directories that live on the local filesystem.
// Engines that need a real path (bleve's on-disk index) use Root; others fall
// back to an in-memory index.
type Rooted interface {
	Root() string
}

// validName rejects names that would escape the directory.
func validName(name string) error {
	if name == "" {
		return errors.ValidationError("empty file name", nil)
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return errors.ValidationError("invalid file name: "+name, nil).WithDetail("name", name)
	}
	if clean := path.Clean(name); clean != name || clean == ".." || strings.HasPrefix(clean, "../") {
		return errors.ValidationError("invalid file name: "+name, nil).WithDetail("name", name)
	}
	return nil
}
