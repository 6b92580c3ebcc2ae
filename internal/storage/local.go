package storage

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/shardex/internal/errors"
)

// Local is a Directory rooted at a filesystem path.
type Local struct {
	root   string
	closed atomic.Bool
}

// NewLocal opens (creating if needed) a directory at root.
func NewLocal(root string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.IOError("resolve directory path", err).WithDetail("path", root)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, errors.New(errors.ErrCodeFilePermission, "create directory", err).WithDetail("path", abs)
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute filesystem path of the directory.
func (d *Local) Root() string {
	return d.root
}

func (d *Local) path(name string) (string, error) {
	if d.closed.Load() {
		return "", errors.ClosedError("directory " + d.root)
	}
	if err := validName(name); err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(name)), nil
}

// List walks the directory tree and returns regular files as slash-separated
// names relative to the root.
func (d *Local) List() ([]string, error) {
	if d.closed.Load() {
		return nil, errors.ClosedError("directory " + d.root)
	}

	var names []string
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.IOError("list directory", err).WithDetail("path", d.root)
	}

	sort.Strings(names)
	return names, nil
}

// Length returns the size of the named file.
func (d *Local) Length(name string) (int64, error) {
	p, err := d.path(name)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return 0, ioError("stat file", name, err)
	}
	return info.Size(), nil
}

// Delete removes the named file.
func (d *Local) Delete(name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return ioError("delete file", name, err)
	}
	return nil
}

// Open opens the named file for reading.
func (d *Local) Open(name string) (io.ReadCloser, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, ioError("open file", name, err)
	}
	return f, nil
}

// Create creates the named file, and any missing parent directories.
func (d *Local) Create(name string) (Output, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return nil, ioError("create parent directory", name, err)
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, ioError("create file", name, err)
	}
	return f, nil
}

// Rename moves from to to, replacing to if it exists.
func (d *Local) Rename(from, to string) error {
	src, err := d.path(from)
	if err != nil {
		return err
	}
	dst, err := d.path(to)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return ioError("create parent directory", to, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return ioError("rename file", from, err).WithDetail("to", to)
	}
	return nil
}

// ObtainLock takes a cross-process file lock without blocking.
func (d *Local) ObtainLock(name string) (Lock, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return nil, ioError("create lock directory", name, err)
	}

	fl := flock.New(p)
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, ioError("acquire lock", name, err)
	}
	if !acquired {
		return nil, errors.New(errors.ErrCodeLockHeld, "lock held by another writer: "+name, nil).
			WithDetail("path", p).
			WithSuggestion("Close the other writer using this index")
	}
	return &fileLock{flock: fl}, nil
}

// Close marks the directory closed. Files are not touched.
func (d *Local) Close() error {
	d.closed.Store(true)
	return nil
}

type fileLock struct {
	flock *flock.Flock
}

func (l *fileLock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return errors.IOError("release lock", err).WithDetail("path", l.flock.Path())
	}
	return nil
}

func ioError(op, name string, err error) *errors.IndexError {
	code := errors.ErrCodeFileNotFound
	if os.IsPermission(err) {
		code = errors.ErrCodeFilePermission
	}
	return errors.New(code, op+": "+name, err).WithDetail("name", name)
}
