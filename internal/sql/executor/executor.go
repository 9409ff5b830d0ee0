package executor

import (
	"fmt"
	"log/slog"

	"github.com/tamnm/minirel/internal/sql/parser"
	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/table"
	"github.com/tamnm/minirel/internal/txn"
	"github.com/tamnm/minirel/internal/types"
)

// Database is the seam between the executor and the engine instance, so
// unit tests can stand in a fake.
type Database interface {
	Table(name string) (*table.Table, error)
	CreateTable(name string, columns []table.ColumnSpec) error
	DropTable(name string) error
	TableNames() []string
	Begin() *txn.Trx
	Sync() error
}

// Executor maps AST statements onto table operations. It also owns the
// session's transaction state: statements between BEGIN and COMMIT share
// one transaction, everything else autocommits.
type Executor struct {
	db  Database
	cur *txn.Trx // non-nil inside an explicit transaction
}

func New(db Database) *Executor {
	return &Executor{db: db}
}

// ExecSQL parses and executes one statement.
func (e *Executor) ExecSQL(sql string) (*Result, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	return e.Execute(stmt)
}

// Execute runs one parsed statement.
func (e *Executor) Execute(stmt parser.Statement) (*Result, error) {
	switch s := stmt.(type) {
	case *parser.CreateTableStmt:
		return e.execCreateTable(s)
	case *parser.DropTableStmt:
		return e.execDropTable(s)
	case *parser.ShowTablesStmt:
		return e.execShowTables()
	case *parser.DescStmt:
		return e.execDesc(s)
	case *parser.CreateIndexStmt:
		return e.execCreateIndex(s)
	case *parser.DropIndexStmt:
		return e.execDropIndex(s)
	case *parser.InsertStmt:
		return e.execInsert(s)
	case *parser.SelectStmt:
		return e.execSelect(s)
	case *parser.UpdateStmt:
		return e.execUpdate(s)
	case *parser.DeleteStmt:
		return e.execDelete(s)
	case *parser.LoadDataStmt:
		return e.execLoadData(s)
	case *parser.BeginStmt:
		return e.execBegin()
	case *parser.CommitStmt:
		return e.execCommit()
	case *parser.RollbackStmt:
		return e.execRollback()
	case *parser.SyncStmt:
		return &Result{}, e.db.Sync()
	case *parser.HelpStmt:
		return &Result{Message: helpText}, nil
	case *parser.ExitStmt:
		return &Result{Exit: true}, nil
	}
	return nil, fmt.Errorf("statement %T not handled: %w", stmt, status.GenericError)
}

// statementTrx hands out the transaction a statement runs in. auto means
// it was opened just for this statement and must be settled here.
func (e *Executor) statementTrx() (tx *txn.Trx, auto bool) {
	if e.cur != nil {
		return e.cur, false
	}
	return e.db.Begin(), true
}

// settle finishes a statement's transaction bracket: autocommit on
// success, unwind this statement's effects on failure.
func (e *Executor) settle(tx *txn.Trx, auto bool, mark int, err error) error {
	if err != nil {
		if undoErr := tx.RollbackTo(mark); undoErr != nil {
			slog.Error("statement unwind failed", "panic", true, "err", undoErr)
		}
		return err
	}
	if auto {
		return tx.Commit()
	}
	return nil
}

// ---- session control ----

func (e *Executor) execBegin() (*Result, error) {
	if e.cur != nil {
		return nil, fmt.Errorf("transaction already open: %w", status.GenericError)
	}
	e.cur = e.db.Begin()
	return &Result{}, nil
}

func (e *Executor) execCommit() (*Result, error) {
	if e.cur == nil {
		return nil, fmt.Errorf("no open transaction: %w", status.GenericError)
	}
	err := e.cur.Commit()
	e.cur = nil
	return &Result{}, err
}

func (e *Executor) execRollback() (*Result, error) {
	if e.cur == nil {
		return nil, fmt.Errorf("no open transaction: %w", status.GenericError)
	}
	err := e.cur.Rollback()
	e.cur = nil
	return &Result{}, err
}

// ---- DDL ----

func (e *Executor) execCreateTable(s *parser.CreateTableStmt) (*Result, error) {
	columns := make([]table.ColumnSpec, 0, len(s.Columns))
	for _, col := range s.Columns {
		columns = append(columns, table.ColumnSpec{
			Name: col.Name, Type: col.Type, Len: col.Len, Nullable: col.Nullable,
		})
	}
	if err := e.db.CreateTable(s.Table, columns); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

func (e *Executor) execDropTable(s *parser.DropTableStmt) (*Result, error) {
	return &Result{}, e.db.DropTable(s.Table)
}

func (e *Executor) execShowTables() (*Result, error) {
	res := &Result{Columns: []string{"table"}}
	for _, name := range e.db.TableNames() {
		res.Rows = append(res.Rows, []types.Value{types.NewChars(name)})
	}
	return res, nil
}

func (e *Executor) execDesc(s *parser.DescStmt) (*Result, error) {
	tbl, err := e.db.Table(s.Table)
	if err != nil {
		return nil, err
	}
	m := tbl.Meta()
	res := &Result{Columns: []string{"field", "type", "length", "nullable"}}
	for i := 0; i < m.UserFieldNum(); i++ {
		field := m.UserField(i)
		nullable := "no"
		if field.Nullable {
			nullable = "yes"
		}
		res.Rows = append(res.Rows, []types.Value{
			types.NewChars(field.Name),
			types.NewChars(field.Type.String()),
			types.NewInt(int32(field.Len)),
			types.NewChars(nullable),
		})
	}
	return res, nil
}

func (e *Executor) execCreateIndex(s *parser.CreateIndexStmt) (*Result, error) {
	tbl, err := e.db.Table(s.Table)
	if err != nil {
		return nil, err
	}
	if err := tbl.CreateIndex(e.cur, s.Index, s.Column); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

func (e *Executor) execDropIndex(s *parser.DropIndexStmt) (*Result, error) {
	if s.Table != "" {
		tbl, err := e.db.Table(s.Table)
		if err != nil {
			return nil, err
		}
		return &Result{}, tbl.DropIndex(s.Index)
	}
	// Unqualified DROP INDEX: find the owner.
	for _, name := range e.db.TableNames() {
		tbl, err := e.db.Table(name)
		if err != nil {
			continue
		}
		if tbl.Meta().Index(s.Index) != nil {
			return &Result{}, tbl.DropIndex(s.Index)
		}
	}
	return nil, fmt.Errorf("no index %q anywhere: %w", s.Index, status.SchemaFieldMissing)
}

// ---- DML ----

func (e *Executor) execInsert(s *parser.InsertStmt) (*Result, error) {
	tbl, err := e.db.Table(s.Table)
	if err != nil {
		return nil, err
	}
	tx, auto := e.statementTrx()
	mark := tx.Mark()

	inserted := 0
	var insertErr error
	for _, row := range s.Rows {
		if _, insertErr = tbl.InsertRecord(tx, row); insertErr != nil {
			break
		}
		inserted++
	}
	if err := e.settle(tx, auto, mark, insertErr); err != nil {
		return nil, err
	}
	return &Result{Affected: inserted}, nil
}

func (e *Executor) execUpdate(s *parser.UpdateStmt) (*Result, error) {
	tbl, err := e.db.Table(s.Table)
	if err != nil {
		return nil, err
	}
	conds, err := convertConditions(s.Conds)
	if err != nil {
		return nil, err
	}
	tx, auto := e.statementTrx()
	mark := tx.Mark()

	n, updateErr := tbl.UpdateRecords(tx, s.Column, s.Value, conds)
	if err := e.settle(tx, auto, mark, updateErr); err != nil {
		return nil, err
	}
	return &Result{Affected: n}, nil
}

func (e *Executor) execDelete(s *parser.DeleteStmt) (*Result, error) {
	tbl, err := e.db.Table(s.Table)
	if err != nil {
		return nil, err
	}
	conds, err := convertConditions(s.Conds)
	if err != nil {
		return nil, err
	}
	tx, auto := e.statementTrx()
	mark := tx.Mark()

	n, deleteErr := tbl.DeleteRecords(tx, conds)
	if err := e.settle(tx, auto, mark, deleteErr); err != nil {
		return nil, err
	}
	return &Result{Affected: n}, nil
}

// convertConditions lowers parser conditions into the table layer's form.
func convertConditions(conds []parser.Condition) ([]table.Condition, error) {
	out := make([]table.Condition, 0, len(conds))
	for _, cond := range conds {
		tc := table.Condition{
			Left:  convertOperand(cond.Left),
			Op:    cond.Op,
			Right: convertOperand(cond.Right),
		}
		for _, member := range cond.List {
			tc.List = append(tc.List, convertOperand(member))
		}
		out = append(out, tc)
	}
	return out, nil
}

func convertOperand(op parser.Operand) table.Operand {
	return table.Operand{
		IsAttr: op.IsAttr,
		Table:  op.Ref.Table,
		Attr:   op.Ref.Column,
		Value:  op.Value,
	}
}

const helpText = `statements:
  CREATE TABLE t (col type [nullable], ...)   DROP TABLE t
  CREATE INDEX ix ON t (col)                  DROP INDEX ix [ON t]
  INSERT INTO t VALUES (...), (...)           LOAD DATA INFILE 'file' INTO TABLE t
  SELECT cols FROM t [WHERE ...] [GROUP BY ...] [ORDER BY ...]
  UPDATE t SET col = value [WHERE ...]        DELETE FROM t [WHERE ...]
  SHOW TABLES    DESC t    SYNC
  BEGIN    COMMIT    ROLLBACK    HELP    EXIT
types: int, float, char(n), date, text
operators: =, <>, !=, <, <=, >, >=, IS [NOT] NULL, IN (...)`
