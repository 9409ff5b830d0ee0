package parser

import "github.com/tamnm/minirel/internal/types"

// Statement is the root interface of every parsed SQL statement.
type Statement interface {
	stmtNode()
}

// ---- DDL ----

type ColumnDef struct {
	Name     string
	Type     types.Type
	Len      int // CHARS capacity
	Nullable bool
}

type CreateTableStmt struct {
	Table   string
	Columns []ColumnDef
}

type DropTableStmt struct {
	Table string
}

type ShowTablesStmt struct{}

type DescStmt struct {
	Table string
}

type CreateIndexStmt struct {
	Index  string
	Table  string
	Column string
}

type DropIndexStmt struct {
	Index string
	Table string // optional: DROP INDEX ix ON t
}

// ---- DML ----

type InsertStmt struct {
	Table string
	Rows  [][]types.Value
}

// ColumnRef is a possibly table-qualified column name.
type ColumnRef struct {
	Table  string
	Column string
}

// AggFunc tags an aggregated select item.
type AggFunc int

const (
	AggNone AggFunc = iota
	AggCount
	AggMax
	AggMin
	AggAvg
)

var aggNames = map[AggFunc]string{
	AggCount: "count", AggMax: "max", AggMin: "min", AggAvg: "avg",
}

func (a AggFunc) String() string { return aggNames[a] }

// SelectField is one item of the projection list: a star, a column, or an
// aggregate over one of those.
type SelectField struct {
	Star bool // * or t.*
	Ref  ColumnRef
	Agg  AggFunc
}

// Operand is one side of a predicate.
type Operand struct {
	IsAttr bool
	Ref    ColumnRef
	Value  types.Value
}

// Condition is one WHERE conjunct. For CompIn the right side is List.
type Condition struct {
	Left  Operand
	Op    types.CompOp
	Right Operand
	List  []Operand
}

type OrderItem struct {
	Ref  ColumnRef
	Desc bool
}

type SelectStmt struct {
	Fields  []SelectField
	Tables  []string
	Conds   []Condition
	GroupBy []ColumnRef
	OrderBy []OrderItem
}

type UpdateStmt struct {
	Table  string
	Column string
	Value  types.Value
	Conds  []Condition
}

type DeleteStmt struct {
	Table string
	Conds []Condition
}

type LoadDataStmt struct {
	Path  string
	Table string
}

// ---- session control ----

type BeginStmt struct{}
type CommitStmt struct{}
type RollbackStmt struct{}
type SyncStmt struct{}
type HelpStmt struct{}
type ExitStmt struct{}

func (*CreateTableStmt) stmtNode() {}
func (*DropTableStmt) stmtNode()   {}
func (*ShowTablesStmt) stmtNode()  {}
func (*DescStmt) stmtNode()        {}
func (*CreateIndexStmt) stmtNode() {}
func (*DropIndexStmt) stmtNode()   {}
func (*InsertStmt) stmtNode()      {}
func (*SelectStmt) stmtNode()      {}
func (*UpdateStmt) stmtNode()      {}
func (*DeleteStmt) stmtNode()      {}
func (*LoadDataStmt) stmtNode()    {}
func (*BeginStmt) stmtNode()       {}
func (*CommitStmt) stmtNode()      {}
func (*RollbackStmt) stmtNode()    {}
func (*SyncStmt) stmtNode()        {}
func (*HelpStmt) stmtNode()        {}
func (*ExitStmt) stmtNode()        {}
