package minirel_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	minirel "github.com/tamnm/minirel"
	"github.com/tamnm/minirel/internal"
	"github.com/tamnm/minirel/internal/sql/executor"
	"github.com/tamnm/minirel/internal/status"
)

func testConfig(dir string) *internal.Config {
	cfg := internal.DefaultConfig()
	cfg.Storage.Dir = dir
	return cfg
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := minirel.Open(testConfig(dir))
	require.NoError(t, err)
	e := executor.New(db)

	_, err = e.ExecSQL(`CREATE TABLE t (a int, b char(8) nullable);`)
	require.NoError(t, err)
	_, err = e.ExecSQL(`INSERT INTO t VALUES (1, 'one'), (2, 'two'), (3, NULL);`)
	require.NoError(t, err)
	_, err = e.ExecSQL(`CREATE INDEX ix ON t (a);`)
	require.NoError(t, err)
	_, err = e.ExecSQL(`SYNC;`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// A fresh instance over the same directory sees everything,
	// including the index.
	db2, err := minirel.Open(testConfig(dir))
	require.NoError(t, err)
	defer db2.Close()
	e2 := executor.New(db2)

	res, err := e2.ExecSQL(`SELECT b FROM t WHERE a = 2;`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, "two", res.Rows[0][0].Str)

	tbl, err := db2.Table("t")
	require.NoError(t, err)
	require.Len(t, tbl.Meta().Indexes, 1)
}

func TestOpenUnknownTable(t *testing.T) {
	db, err := minirel.Open(testConfig(t.TempDir()))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Table("ghost")
	require.ErrorIs(t, err, status.SchemaTableNameIllegal)
	require.ErrorIs(t, db.DropTable("ghost"), status.SchemaTableNameIllegal)
}

func TestCreateTableTwice(t *testing.T) {
	db, err := minirel.Open(testConfig(t.TempDir()))
	require.NoError(t, err)
	defer db.Close()
	e := executor.New(db)

	_, err = e.ExecSQL(`CREATE TABLE t (a int);`)
	require.NoError(t, err)
	_, err = e.ExecSQL(`CREATE TABLE t (a int);`)
	require.ErrorIs(t, err, status.SchemaTableExist)
}

func TestTableNamesSorted(t *testing.T) {
	db, err := minirel.Open(testConfig(t.TempDir()))
	require.NoError(t, err)
	defer db.Close()
	e := executor.New(db)

	for _, name := range []string{"zz", "aa", "mm"} {
		_, err := e.ExecSQL(`CREATE TABLE ` + name + ` (a int);`)
		require.NoError(t, err)
	}
	require.Equal(t, []string{"aa", "mm", "zz"}, db.TableNames())
}
