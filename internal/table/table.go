package table

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tamnm/minirel/internal/heap"
	"github.com/tamnm/minirel/internal/index"
	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/storage"
)

const (
	MetaSuffix = ".table"
	dataSuffix = ".data"
	idxSuffix  = ".index"
)

func MetaPath(baseDir, name string) string {
	return filepath.Join(baseDir, name+MetaSuffix)
}

func dataPath(baseDir, name string) string {
	return filepath.Join(baseDir, name+dataSuffix)
}

func indexPath(baseDir, table, idxName string) string {
	return filepath.Join(baseDir, table+"-"+idxName+idxSuffix)
}

// Table coordinates one relation: metadata, heap records, and indexes.
// Everything the executor does to rows goes through here.
type Table struct {
	meta    *TableMeta
	baseDir string
	pool    *storage.BufferPool
	dataID  storage.FileID
	records *heap.RecordFile
	indexes []*index.Index
}

// Create lays out a new table on disk. The metadata file is created
// exclusively so two concurrent creates cannot both win.
func Create(pool *storage.BufferPool, baseDir, name string, columns []ColumnSpec) (*Table, error) {
	meta, err := NewTableMeta(name, columns)
	if err != nil {
		return nil, err
	}

	metaFile, err := os.OpenFile(MetaPath(baseDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("table %s: %w", name, status.SchemaTableExist)
		}
		return nil, fmt.Errorf("create table %s: %w", name, status.IOErr)
	}
	if err := meta.Serialize(metaFile); err != nil {
		metaFile.Close()
		return nil, fmt.Errorf("%v: %w", err, status.IOErr)
	}
	if err := metaFile.Close(); err != nil {
		return nil, fmt.Errorf("close meta of %s: %w", name, status.IOErr)
	}

	if err := pool.CreateFile(dataPath(baseDir, name)); err != nil {
		os.Remove(MetaPath(baseDir, name))
		return nil, fmt.Errorf("create data file of %s: %w", name, status.IOErr)
	}
	t := &Table{meta: meta, baseDir: baseDir, pool: pool}
	if err := t.initRecords(); err != nil {
		os.Remove(MetaPath(baseDir, name))
		pool.RemoveFile(dataPath(baseDir, name))
		return nil, err
	}
	slog.Info("table created", "table", name, "columns", len(columns))
	return t, nil
}

// Open loads a table from its metadata file and opens the heap and every
// index listed there.
func Open(pool *storage.BufferPool, baseDir, metaFileName string) (*Table, error) {
	f, err := os.Open(filepath.Join(baseDir, metaFileName))
	if err != nil {
		return nil, fmt.Errorf("open table meta %s: %w", metaFileName, status.IOErr)
	}
	defer f.Close()

	meta := &TableMeta{}
	if err := meta.Deserialize(f); err != nil {
		return nil, fmt.Errorf("%v: %w", err, status.GenericError)
	}

	t := &Table{meta: meta, baseDir: baseDir, pool: pool}
	if err := t.initRecords(); err != nil {
		return nil, err
	}
	for _, im := range meta.Indexes {
		field := meta.FieldByName(im.Field)
		if field == nil {
			slog.Error("index references a column that does not exist",
				"panic", true, "table", meta.Name, "index", im.Name, "field", im.Field)
			return nil, fmt.Errorf("index %s on unknown column %s: %w", im.Name, im.Field, status.GenericError)
		}
		ix, err := index.Open(pool, indexPath(baseDir, meta.Name, im.Name), t.fieldView(im.Field))
		if err != nil {
			return nil, fmt.Errorf("open index %s of %s: %w", im.Name, meta.Name, err)
		}
		t.indexes = append(t.indexes, ix)
	}
	return t, nil
}

func (t *Table) initRecords() error {
	id, err := t.pool.OpenFile(dataPath(t.baseDir, t.meta.Name))
	if err != nil {
		return fmt.Errorf("open data file of %s: %w", t.meta.Name, status.IOErr)
	}
	t.dataID = id
	t.records, err = heap.Open(t.pool, id, t.meta.RecordBytes())
	return err
}

func (t *Table) Name() string     { return t.meta.Name }
func (t *Table) Meta() *TableMeta { return t.meta }

// fieldView builds the non-owning column view an index borrows.
func (t *Table) fieldView(name string) index.Field {
	idx := t.meta.UserFieldIndex(name)
	field := t.meta.UserField(idx)
	return index.Field{
		Name:    field.Name,
		Type:    field.Type,
		Offset:  field.Offset,
		Len:     field.Len,
		NullOff: t.meta.NullByteOffset(idx),
	}
}

// Close releases every file handle. The table is unusable afterwards.
func (t *Table) Close() error {
	var firstErr error
	for _, ix := range t.indexes {
		if err := ix.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := t.pool.CloseFile(t.dataID); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Destroy closes the table and deletes all of its files. The metadata
// file lives outside the page pool; everything else goes through it.
func (t *Table) Destroy() error {
	pageFiles := []string{dataPath(t.baseDir, t.meta.Name)}
	for _, im := range t.meta.Indexes {
		pageFiles = append(pageFiles, indexPath(t.baseDir, t.meta.Name, im.Name))
	}
	if err := t.Close(); err != nil {
		return err
	}
	if err := os.Remove(MetaPath(t.baseDir, t.meta.Name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove table meta: %w", status.IOErr)
	}
	for _, path := range pageFiles {
		if err := t.pool.RemoveFile(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, status.IOErr)
		}
	}
	return nil
}

// Sync flushes the heap and every index.
func (t *Table) Sync() error {
	if err := t.pool.FlushFile(t.dataID); err != nil {
		return fmt.Errorf("sync %s: %w", t.meta.Name, status.IOErr)
	}
	for _, ix := range t.indexes {
		if err := ix.Sync(); err != nil {
			return fmt.Errorf("sync index of %s: %w", t.meta.Name, status.IOErr)
		}
	}
	return nil
}
