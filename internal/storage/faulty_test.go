package storage

import (
	"io"
	"sync"
)

// faultyDir wraps a Directory and injects failures into selected operations.
type faultyDir struct {
	Directory
	mu       sync.Mutex
	failOn   map[string]error
	closed   bool
	closeErr error
}

func newFaultyDir(dir Directory) *faultyDir {
	return &faultyDir{Directory: dir, failOn: make(map[string]error)}
}

func (f *faultyDir) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[op] = err
}

func (f *faultyDir) injected(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failOn[op]
}

func (f *faultyDir) List() ([]string, error) {
	if err := f.injected("list"); err != nil {
		return nil, err
	}
	return f.Directory.List()
}

func (f *faultyDir) Open(name string) (io.ReadCloser, error) {
	if err := f.injected("open"); err != nil {
		return nil, err
	}
	return f.Directory.Open(name)
}

func (f *faultyDir) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	if err := f.injected("close"); err != nil {
		return err
	}
	return f.Directory.Close()
}

func (f *faultyDir) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
