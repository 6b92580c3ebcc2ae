package storage

import (
	"bytes"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/Aman-CERP/shardex/internal/errors"
)

// Memory is an in-process Directory. It has no filesystem root, so engines
// opened over it keep their index in RAM.
type Memory struct {
	mu     sync.Mutex
	files  map[string][]byte
	locks  map[string]bool
	closed bool
}

// NewMemory returns an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{
		files: make(map[string][]byte),
		locks: make(map[string]bool),
	}
}

func (d *Memory) check(name string) error {
	if d.closed {
		return errors.ClosedError("memory directory")
	}
	return validName(name)
}

// List returns all file names, sorted.
func (d *Memory) List() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.ClosedError("memory directory")
	}

	names := make([]string, 0, len(d.files))
	for name := range d.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Length returns the size of the named file.
func (d *Memory) Length(name string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(name); err != nil {
		return 0, err
	}
	data, ok := d.files[name]
	if !ok {
		return 0, ioError("stat file", name, os.ErrNotExist)
	}
	return int64(len(data)), nil
}

// Delete removes the named file.
func (d *Memory) Delete(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(name); err != nil {
		return err
	}
	if _, ok := d.files[name]; !ok {
		return ioError("delete file", name, os.ErrNotExist)
	}
	delete(d.files, name)
	return nil
}

// Open returns a reader over a copy of the named file.
func (d *Memory) Open(name string) (io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(name); err != nil {
		return nil, err
	}
	data, ok := d.files[name]
	if !ok {
		return nil, ioError("open file", name, os.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

// Create creates the named file. Its content becomes visible on Sync or Close.
func (d *Memory) Create(name string) (Output, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(name); err != nil {
		return nil, err
	}
	d.files[name] = nil
	return &memOutput{dir: d, name: name}, nil
}

// Rename moves from to to, replacing to if it exists.
func (d *Memory) Rename(from, to string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(from); err != nil {
		return err
	}
	if err := validName(to); err != nil {
		return err
	}
	data, ok := d.files[from]
	if !ok {
		return ioError("rename file", from, os.ErrNotExist)
	}
	delete(d.files, from)
	d.files[to] = data
	return nil
}

// ObtainLock takes an in-process lock.
func (d *Memory) ObtainLock(name string) (Lock, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(name); err != nil {
		return nil, err
	}
	if d.locks[name] {
		return nil, errors.New(errors.ErrCodeLockHeld, "lock held by another writer: "+name, nil).
			WithDetail("name", name)
	}
	d.locks[name] = true
	return &memLock{dir: d, name: name}, nil
}

// Close marks the directory closed.
func (d *Memory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

type memOutput struct {
	dir    *Memory
	name   string
	buf    bytes.Buffer
	closed bool
}

func (o *memOutput) Write(p []byte) (int, error) {
	if o.closed {
		return 0, errors.ClosedError("output " + o.name)
	}
	return o.buf.Write(p)
}

func (o *memOutput) Sync() error {
	o.dir.mu.Lock()
	defer o.dir.mu.Unlock()
	o.dir.files[o.name] = bytes.Clone(o.buf.Bytes())
	return nil
}

func (o *memOutput) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	return o.Sync()
}

type memLock struct {
	dir  *Memory
	name string
}

func (l *memLock) Release() error {
	l.dir.mu.Lock()
	defer l.dir.mu.Unlock()
	delete(l.dir.locks, l.name)
	return nil
}
