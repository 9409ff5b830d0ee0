// Package minirel is a single-node relational engine: typed tables over
// slotted heap files, disk B+-tree indexes, and MVCC-style transactions,
// all behind a small SQL dialect.
package minirel

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tamnm/minirel/internal"
	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/storage"
	"github.com/tamnm/minirel/internal/table"
	"github.com/tamnm/minirel/internal/txn"
)

// Database is one engine instance over one directory. It owns the buffer
// pool, the open tables, and the transaction id sequence.
type Database struct {
	mu     sync.Mutex
	dir    string
	pool   *storage.BufferPool
	tables map[string]*table.Table
	txns   *txn.Manager
}

// Open loads the database in cfg's directory, creating it if needed.
func Open(cfg *internal.Config) (*Database, error) {
	return OpenWith(cfg, storage.DiskBackend{})
}

// OpenWith lets callers substitute the page-file backend used for data and
// index files; the metadata files always live on disk.
func OpenWith(cfg *internal.Config, backend storage.Backend) (*Database, error) {
	dir := cfg.Storage.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database dir %s: %w", dir, status.IOErr)
	}

	db := &Database{
		dir:    dir,
		pool:   storage.NewBufferPool(backend, cfg.Storage.PoolFrames),
		tables: make(map[string]*table.Table),
		txns:   txn.NewManager(),
	}

	metaFiles, err := filepath.Glob(filepath.Join(dir, "*"+table.MetaSuffix))
	if err != nil {
		return nil, fmt.Errorf("list tables in %s: %w", dir, status.IOErr)
	}
	for _, path := range metaFiles {
		tbl, err := table.Open(db.pool, dir, filepath.Base(path))
		if err != nil {
			return nil, fmt.Errorf("load table from %s: %w", path, err)
		}
		db.tables[tbl.Name()] = tbl
	}
	slog.Info("database opened", "dir", dir, "tables", len(db.tables))
	return db, nil
}

// Close flushes and releases every table.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var firstErr error
	for _, tbl := range db.tables {
		if err := tbl.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := tbl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	db.tables = make(map[string]*table.Table)
	return firstErr
}

// Table looks up an open table by name.
func (db *Database) Table(name string) (*table.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	tbl, ok := db.tables[name]
	if !ok {
		return nil, fmt.Errorf("no table %q: %w", name, status.SchemaTableNameIllegal)
	}
	return tbl, nil
}

// CreateTable makes a new table in this database's directory.
func (db *Database) CreateTable(name string, columns []table.ColumnSpec) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("blank table name: %w", status.InvalidArgument)
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.tables[name]; ok {
		return fmt.Errorf("table %q: %w", name, status.SchemaTableExist)
	}
	tbl, err := table.Create(db.pool, db.dir, name, columns)
	if err != nil {
		return err
	}
	db.tables[name] = tbl
	return nil
}

// DropTable removes the table and all of its files.
func (db *Database) DropTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tbl, ok := db.tables[name]
	if !ok {
		return fmt.Errorf("no table %q: %w", name, status.SchemaTableNameIllegal)
	}
	if err := tbl.Destroy(); err != nil {
		return err
	}
	delete(db.tables, name)
	slog.Info("table dropped", "table", name)
	return nil
}

// TableNames lists open tables in a stable order.
func (db *Database) TableNames() []string {
	db.mu.Lock()
	defer db.mu.Unlock()

	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Begin starts a transaction.
func (db *Database) Begin() *txn.Trx { return db.txns.Begin() }

// Sync flushes every table's heap and indexes.
func (db *Database) Sync() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, tbl := range db.tables {
		if err := tbl.Sync(); err != nil {
			return err
		}
	}
	return nil
}
