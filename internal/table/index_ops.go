package table

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tamnm/minirel/internal/heap"
	"github.com/tamnm/minirel/internal/index"
	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/txn"
)

// CreateIndex builds a B+-tree over one column from the current heap
// contents, then swaps the metadata file atomically so a crash leaves
// either the old or the new metadata, never a torn one. The build scans
// physical records regardless of the caller's transaction: inserts index
// eagerly, so pending rows need their entries too.
func (t *Table) CreateIndex(_ *txn.Trx, indexName, attrName string) error {
	if strings.TrimSpace(indexName) == "" || strings.TrimSpace(attrName) == "" {
		return fmt.Errorf("index and column names are required: %w", status.InvalidArgument)
	}
	if t.meta.Index(indexName) != nil || t.meta.IndexByField(attrName) != nil {
		return fmt.Errorf("index %q or column %q already indexed: %w", indexName, attrName, status.SchemaIndexExist)
	}
	if t.meta.UserFieldIndex(attrName) < 0 {
		return fmt.Errorf("no column %q in %s: %w", attrName, t.meta.Name, status.SchemaFieldMissing)
	}

	path := indexPath(t.baseDir, t.meta.Name, indexName)
	ix, err := index.Create(t.pool, path, t.fieldView(attrName))
	if err != nil {
		return fmt.Errorf("create index file %s: %w", path, status.IOErr)
	}

	err = t.Scan(nil, nil, -1, func(rid heap.RID, record []byte) error {
		return ix.InsertEntry(record, rid)
	})
	if err != nil {
		ix.Close()
		t.pool.RemoveFile(path)
		return fmt.Errorf("build index %s: %w", indexName, err)
	}

	newMeta := *t.meta
	newMeta.Indexes = append(append([]IndexMeta(nil), t.meta.Indexes...), IndexMeta{Name: indexName, Field: attrName})
	if err := t.swapMeta(&newMeta); err != nil {
		ix.Close()
		t.pool.RemoveFile(path)
		return err
	}
	t.indexes = append(t.indexes, ix)
	slog.Info("index created", "table", t.meta.Name, "index", indexName, "column", attrName)
	return nil
}

// DropIndex removes the index and its file, rewriting metadata the same
// atomic way.
func (t *Table) DropIndex(indexName string) error {
	im := t.meta.Index(indexName)
	if im == nil {
		return fmt.Errorf("no index %q on %s: %w", indexName, t.meta.Name, status.SchemaFieldMissing)
	}

	newMeta := *t.meta
	newMeta.Indexes = nil
	for _, existing := range t.meta.Indexes {
		if existing.Name != indexName {
			newMeta.Indexes = append(newMeta.Indexes, existing)
		}
	}
	if err := t.swapMeta(&newMeta); err != nil {
		return err
	}

	for i, ix := range t.indexes {
		if ix.FieldName() == im.Field {
			if err := ix.Close(); err != nil {
				return err
			}
			t.indexes = append(t.indexes[:i], t.indexes[i+1:]...)
			break
		}
	}
	if err := t.pool.RemoveFile(indexPath(t.baseDir, t.meta.Name, indexName)); err != nil {
		return fmt.Errorf("remove index file: %w", status.IOErr)
	}
	slog.Info("index dropped", "table", t.meta.Name, "index", indexName)
	return nil
}

// swapMeta writes the new metadata beside the old file and renames it
// into place, then adopts it in memory.
func (t *Table) swapMeta(newMeta *TableMeta) error {
	metaFile := MetaPath(t.baseDir, t.meta.Name)
	tmpFile := metaFile + ".tmp"

	f, err := os.OpenFile(tmpFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", tmpFile, status.IOErr)
	}
	if err := newMeta.Serialize(f); err != nil {
		f.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("%v: %w", err, status.IOErr)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("close %s: %w", tmpFile, status.IOErr)
	}
	if err := os.Rename(tmpFile, metaFile); err != nil {
		return fmt.Errorf("swap table meta: %w", status.IOErr)
	}
	*t.meta = *newMeta
	return nil
}
