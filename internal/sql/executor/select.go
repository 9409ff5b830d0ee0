package executor

import (
	"fmt"

	"github.com/tamnm/minirel/internal/heap"
	"github.com/tamnm/minirel/internal/sql/parser"
	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/table"
	"github.com/tamnm/minirel/internal/txn"
	"github.com/tamnm/minirel/internal/types"
)

// tupleCol describes one column of the joined tuple space.
type tupleCol struct {
	table string
	name  string
}

// tupleSet is a materialized relation: the scan output before projection.
type tupleSet struct {
	cols []tupleCol
	rows [][]types.Value
}

func (ts *tupleSet) find(ref parser.ColumnRef) (int, error) {
	found := -1
	for i, col := range ts.cols {
		if col.name != ref.Column {
			continue
		}
		if ref.Table != "" && col.table != ref.Table {
			continue
		}
		if found >= 0 {
			return 0, fmt.Errorf("column %q is ambiguous: %w", ref.Column, status.SchemaFieldMissing)
		}
		found = i
	}
	if found < 0 {
		return 0, fmt.Errorf("no column %q: %w", ref.Column, status.SchemaFieldMissing)
	}
	return found, nil
}

func (e *Executor) execSelect(s *parser.SelectStmt) (*Result, error) {
	tables := make([]*table.Table, 0, len(s.Tables))
	byName := make(map[string]*table.Table)
	for _, name := range s.Tables {
		tbl, err := e.db.Table(name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, tbl)
		byName[name] = tbl
	}

	pushdown, crossConds, err := splitConditions(s.Conds, tables, byName)
	if err != nil {
		return nil, err
	}

	tx, auto := e.statementTrx()
	mark := tx.Mark()

	// Scan every table, then join. A single-table query is just the
	// degenerate one-way join.
	sets := make([]*tupleSet, 0, len(tables))
	for _, tbl := range tables {
		ts, scanErr := materialize(tbl, tx, pushdown[tbl.Name()])
		if scanErr != nil {
			_ = e.settle(tx, auto, mark, scanErr)
			return nil, scanErr
		}
		sets = append(sets, ts)
	}
	if err := e.settle(tx, auto, mark, nil); err != nil {
		return nil, err
	}

	joined, err := joinSets(sets, crossConds)
	if err != nil {
		return nil, err
	}
	return project(s, joined, len(tables) > 1)
}

// splitConditions assigns each conjunct to one table's scan when it only
// touches that table, and keeps the rest for the join.
func splitConditions(conds []parser.Condition, tables []*table.Table, byName map[string]*table.Table) (map[string][]table.Condition, []parser.Condition, error) {
	pushdown := make(map[string][]table.Condition)
	var cross []parser.Condition

	for _, cond := range conds {
		owners := map[string]bool{}
		operands := append([]parser.Operand{cond.Left, cond.Right}, cond.List...)
		for _, op := range operands {
			if !op.IsAttr {
				continue
			}
			owner, err := resolveOwner(op.Ref, tables, byName)
			if err != nil {
				return nil, nil, err
			}
			owners[owner] = true
		}
		switch len(owners) {
		case 0, 1:
			name := singleKey(owners, tables)
			tc := table.Condition{
				Left:  convertOperand(cond.Left),
				Op:    cond.Op,
				Right: convertOperand(cond.Right),
			}
			for _, member := range cond.List {
				tc.List = append(tc.List, convertOperand(member))
			}
			pushdown[name] = append(pushdown[name], tc)
		default:
			cross = append(cross, cond)
		}
	}
	return pushdown, cross, nil
}

// resolveOwner maps a column reference to the table it belongs to.
func resolveOwner(ref parser.ColumnRef, tables []*table.Table, byName map[string]*table.Table) (string, error) {
	if ref.Table != "" {
		if _, ok := byName[ref.Table]; !ok {
			return "", fmt.Errorf("condition references table %q: %w", ref.Table, status.SchemaTableNameIllegal)
		}
		return ref.Table, nil
	}
	owner := ""
	for _, tbl := range tables {
		if tbl.Meta().UserFieldIndex(ref.Column) >= 0 {
			if owner != "" {
				return "", fmt.Errorf("column %q is ambiguous: %w", ref.Column, status.SchemaFieldMissing)
			}
			owner = tbl.Name()
		}
	}
	if owner == "" {
		return "", fmt.Errorf("no column %q: %w", ref.Column, status.SchemaFieldMissing)
	}
	return owner, nil
}

func singleKey(owners map[string]bool, tables []*table.Table) string {
	for name := range owners {
		return name
	}
	// A literal-only condition: evaluate it on the first table's scan.
	return tables[0].Name()
}

// materialize runs one table's scan into memory, all user columns.
func materialize(tbl *table.Table, tx *txn.Trx, conds []table.Condition) (*tupleSet, error) {
	m := tbl.Meta()
	filter, err := m.BuildFilter(conds)
	if err != nil {
		return nil, err
	}

	ts := &tupleSet{}
	for i := 0; i < m.UserFieldNum(); i++ {
		ts.cols = append(ts.cols, tupleCol{table: m.Name, name: m.UserField(i).Name})
	}

	err = tbl.Scan(tx, filter, -1, func(_ heap.RID, record []byte) error {
		row := make([]types.Value, m.UserFieldNum())
		for i := range row {
			row[i] = tbl.DecodeRecord(record, i)
		}
		ts.rows = append(ts.rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ts, nil
}

// joinSets folds the per-table sets into one cartesian product, applying
// the cross-table conditions as each tuple is assembled.
func joinSets(sets []*tupleSet, crossConds []parser.Condition) (*tupleSet, error) {
	out := sets[0]
	for _, next := range sets[1:] {
		joined := &tupleSet{cols: append(append([]tupleCol(nil), out.cols...), next.cols...)}
		for _, left := range out.rows {
			for _, right := range next.rows {
				row := make([]types.Value, 0, len(left)+len(right))
				row = append(row, left...)
				row = append(row, right...)
				joined.rows = append(joined.rows, row)
			}
		}
		out = joined
	}

	if len(crossConds) == 0 {
		return out, nil
	}
	kept := out.rows[:0]
	for _, row := range out.rows {
		ok, err := tupleMatches(out, row, crossConds)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, row)
		}
	}
	out.rows = kept
	return out, nil
}

func tupleMatches(ts *tupleSet, row []types.Value, conds []parser.Condition) (bool, error) {
	readOperand := func(op parser.Operand) (types.Value, error) {
		if !op.IsAttr {
			return op.Value, nil
		}
		idx, err := ts.find(op.Ref)
		if err != nil {
			return types.Value{}, err
		}
		return row[idx], nil
	}

	for _, cond := range conds {
		lv, err := readOperand(cond.Left)
		if err != nil {
			return false, err
		}
		switch cond.Op {
		case types.CompIsNull:
			if !lv.Null {
				return false, nil
			}
			continue
		case types.CompIsNotNull:
			if lv.Null {
				return false, nil
			}
			continue
		case types.CompIn:
			matched := false
			for _, member := range cond.List {
				if cmp, ok := types.Compare(lv, member.Value); ok && cmp == 0 {
					matched = true
					break
				}
			}
			if !matched {
				return false, nil
			}
			continue
		}
		rv, err := readOperand(cond.Right)
		if err != nil {
			return false, err
		}
		cmp, ok := types.Compare(lv, rv)
		if !ok || !cond.Op.Holds(cmp) {
			return false, nil
		}
	}
	return true, nil
}

