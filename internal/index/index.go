// Package index binds one table column to a disk B+-tree. The Index does
// not own column metadata; it borrows the slice of field facts it needs,
// so the tree never reaches back into the table.
package index

import (
	"fmt"

	"github.com/tamnm/minirel/internal/btree"
	"github.com/tamnm/minirel/internal/heap"
	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/storage"
	"github.com/tamnm/minirel/internal/types"
)

// Field is the non-owning view of the indexed column: where its payload
// and null-flag byte live inside a record.
type Field struct {
	Name    string
	Type    types.Type
	Offset  int // payload offset in the record
	Len     int // payload width
	NullOff int // offset of the column's null byte, -1 for system fields
}

// Index is one open index file.
type Index struct {
	pool  *storage.BufferPool
	file  storage.FileID
	path  string
	tree  *btree.Tree
	field Field
}

// Create makes the index file and formats an empty tree in it.
func Create(pool *storage.BufferPool, path string, field Field) (*Index, error) {
	if err := pool.CreateFile(path); err != nil {
		return nil, err
	}
	file, err := pool.OpenFile(path)
	if err != nil {
		return nil, err
	}
	tree, err := btree.Create(pool, file, field.Type, field.Len)
	if err != nil {
		pool.CloseFile(file)
		return nil, err
	}
	return &Index{pool: pool, file: file, path: path, tree: tree, field: field}, nil
}

// Open loads an existing index file.
func Open(pool *storage.BufferPool, path string, field Field) (*Index, error) {
	file, err := pool.OpenFile(path)
	if err != nil {
		return nil, err
	}
	tree, err := btree.Open(pool, file)
	if err != nil {
		pool.CloseFile(file)
		return nil, err
	}
	return &Index{pool: pool, file: file, path: path, tree: tree, field: field}, nil
}

func (ix *Index) FieldName() string { return ix.field.Name }
func (ix *Index) Path() string      { return ix.path }

// key extracts the column payload plus null flag from a record.
func (ix *Index) key(record []byte) []byte {
	k := make([]byte, ix.field.Len+1)
	copy(k, record[ix.field.Offset:ix.field.Offset+ix.field.Len])
	if ix.field.NullOff >= 0 && record[ix.field.NullOff] != 0 {
		k[ix.field.Len] = 1
	}
	return k
}

// valueKey builds a scan bound from a literal.
func (ix *Index) valueKey(v types.Value) []byte {
	k := make([]byte, ix.field.Len+1)
	if v.Null {
		k[ix.field.Len] = 1
		return k
	}
	v.EncodeInto(k[:ix.field.Len])
	return k
}

// InsertEntry indexes one record.
func (ix *Index) InsertEntry(record []byte, rid heap.RID) error {
	if err := ix.tree.Insert(ix.key(record), rid); err != nil {
		return fmt.Errorf("index %s: %w", ix.field.Name, err)
	}
	return nil
}

// DeleteEntry removes one record's entry.
func (ix *Index) DeleteEntry(record []byte, rid heap.RID) error {
	if err := ix.tree.Delete(ix.key(record), rid); err != nil {
		return fmt.Errorf("index %s: %w", ix.field.Name, err)
	}
	return nil
}

// Scan serves a comparison against a literal. The literal must already be
// of the column's type; a NULL literal is allowed and matches nothing.
func (ix *Index) Scan(op types.CompOp, v types.Value) (*btree.Scanner, error) {
	if !op.Ordered() {
		return nil, fmt.Errorf("operator %q has no index form: %w", op, status.InvalidArgument)
	}
	return ix.tree.Scan(op, ix.valueKey(v))
}

// ScanAll traverses every entry, NULL keys included.
func (ix *Index) ScanAll() (*btree.Scanner, error) { return ix.tree.ScanAll() }

// Sync flushes the index file.
func (ix *Index) Sync() error { return ix.tree.Sync() }

// Close releases the underlying file.
func (ix *Index) Close() error { return ix.pool.CloseFile(ix.file) }
