package storage

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dsnet/golib/memfile"
)

// PageFile is one relation's backing file. The pool only ever reads and
// writes whole pages at page-aligned offsets.
type PageFile interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
	Close() error
	Size() (int64, error)
}

// Backend creates and opens page files by path. DiskBackend is the real
// thing; MemBackend keeps everything in memory for tests.
type Backend interface {
	// Create makes a new empty file and fails with os.ErrExist when the
	// path is already taken.
	Create(path string) (PageFile, error)
	Open(path string) (PageFile, error)
	Remove(path string) error
}

// ---- disk ----

type DiskBackend struct{}

func (DiskBackend) Create(path string) (PageFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	return diskFile{f}, nil
}

func (DiskBackend) Open(path string) (PageFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return diskFile{f}, nil
}

func (DiskBackend) Remove(path string) error { return os.Remove(path) }

type diskFile struct {
	*os.File
}

func (d diskFile) Size() (int64, error) {
	info, err := d.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ---- memory ----

// MemBackend is a path-keyed set of in-memory files. It backs the storage
// tests so they exercise the same pool code without touching the disk.
type MemBackend struct {
	mu    sync.Mutex
	files map[string]*memFile
}

func NewMemBackend() *MemBackend {
	return &MemBackend{files: make(map[string]*memFile)}
}

func (b *MemBackend) Create(path string) (PageFile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.files[path]; ok {
		return nil, fmt.Errorf("create %s: %w", path, os.ErrExist)
	}
	f := &memFile{File: memfile.New(nil)}
	b.files[path] = f
	return f, nil
}

func (b *MemBackend) Open(path string) (PageFile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}
	return f, nil
}

func (b *MemBackend) Remove(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.files[path]; !ok {
		return fmt.Errorf("remove %s: %w", path, os.ErrNotExist)
	}
	delete(b.files, path)
	return nil
}

type memFile struct {
	*memfile.File
}

func (f *memFile) Sync() error  { return nil }
func (f *memFile) Close() error { return nil }
func (f *memFile) Size() (int64, error) {
	return int64(len(f.Bytes())), nil
}
