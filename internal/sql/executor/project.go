package executor

import (
	"fmt"
	"sort"

	"github.com/tamnm/minirel/internal/sql/parser"
	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/types"
)

// outField is one resolved projection item.
type outField struct {
	header string
	agg    parser.AggFunc
	star   bool // count(*) only
	idx    int  // tuple index; -1 for count(*)
}

// project turns the joined tuple set into the client result: resolve the
// projection, group and fold aggregates, then order.
func project(s *parser.SelectStmt, ts *tupleSet, qualify bool) (*Result, error) {
	fields, err := resolveProjection(s.Fields, ts, qualify)
	if err != nil {
		return nil, err
	}

	groupIdx := make([]int, 0, len(s.GroupBy))
	for _, ref := range s.GroupBy {
		idx, err := ts.find(ref)
		if err != nil {
			return nil, err
		}
		groupIdx = append(groupIdx, idx)
	}

	hasAgg := false
	for _, f := range fields {
		if f.agg != parser.AggNone {
			hasAgg = true
		}
	}

	var rows [][]types.Value
	switch {
	case len(groupIdx) > 0 || hasAgg:
		rows, err = foldGroups(fields, groupIdx, ts)
		if err != nil {
			return nil, err
		}
	default:
		for _, tuple := range ts.rows {
			row := make([]types.Value, len(fields))
			for i, f := range fields {
				row[i] = tuple[f.idx]
			}
			rows = append(rows, row)
		}
	}

	res := &Result{Rows: rows}
	for _, f := range fields {
		res.Columns = append(res.Columns, f.header)
	}

	if len(s.OrderBy) > 0 {
		if err := orderRows(s, ts, fields, res, groupIdx); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func resolveProjection(items []parser.SelectField, ts *tupleSet, qualify bool) ([]outField, error) {
	header := func(col tupleCol) string {
		if qualify {
			return col.table + "." + col.name
		}
		return col.name
	}

	var out []outField
	for _, item := range items {
		switch {
		case item.Star && item.Agg == parser.AggCount:
			out = append(out, outField{header: "count(*)", agg: parser.AggCount, star: true, idx: -1})

		case item.Star:
			// * or t.*: expand in tuple order.
			matched := false
			for i, col := range ts.cols {
				if item.Ref.Table != "" && col.table != item.Ref.Table {
					continue
				}
				out = append(out, outField{header: header(col), agg: parser.AggNone, idx: i})
				matched = true
			}
			if !matched {
				return nil, fmt.Errorf("no table %q in FROM: %w", item.Ref.Table, status.SchemaTableNameIllegal)
			}

		default:
			idx, err := ts.find(item.Ref)
			if err != nil {
				return nil, err
			}
			name := header(ts.cols[idx])
			if item.Agg != parser.AggNone {
				name = fmt.Sprintf("%s(%s)", item.Agg, name)
			}
			out = append(out, outField{header: name, agg: item.Agg, idx: idx})
		}
	}
	return out, nil
}

// compareForSort orders values for grouping and ORDER BY: NULL first,
// then the type's ordering.
func compareForSort(a, b types.Value) int {
	switch {
	case a.Null && b.Null:
		return 0
	case a.Null:
		return -1
	case b.Null:
		return 1
	}
	cmp, ok := types.Compare(a, b)
	if !ok {
		return 0
	}
	return cmp
}

// foldGroups sorts by the grouping key and folds each run of equal keys
// into one output row. With no GROUP BY the whole set is one group.
func foldGroups(fields []outField, groupIdx []int, ts *tupleSet) ([][]types.Value, error) {
	tuples := ts.rows
	if len(groupIdx) > 0 {
		tuples = append([][]types.Value(nil), ts.rows...)
		sort.SliceStable(tuples, func(i, j int) bool {
			for _, g := range groupIdx {
				if cmp := compareForSort(tuples[i][g], tuples[j][g]); cmp != 0 {
					return cmp < 0
				}
			}
			return false
		})
	}

	sameGroup := func(a, b []types.Value) bool {
		for _, g := range groupIdx {
			if compareForSort(a[g], b[g]) != 0 {
				return false
			}
		}
		return true
	}

	var out [][]types.Value
	for start := 0; start < len(tuples); {
		end := start + 1
		for end < len(tuples) && sameGroup(tuples[start], tuples[end]) {
			end++
		}
		row, err := foldOne(fields, tuples[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, row)
		start = end
	}

	// Aggregates over an empty, ungrouped set still yield one row.
	if len(out) == 0 && len(groupIdx) == 0 {
		row, err := foldOne(fields, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func foldOne(fields []outField, group [][]types.Value) ([]types.Value, error) {
	row := make([]types.Value, len(fields))
	for i, f := range fields {
		switch f.agg {
		case parser.AggNone:
			if len(group) == 0 {
				row[i] = types.NewNull()
			} else {
				row[i] = group[0][f.idx]
			}
		case parser.AggCount:
			row[i] = types.NewInt(int32(countAgg(f, group)))
		case parser.AggMax, parser.AggMin:
			row[i] = extremeAgg(f, group)
		case parser.AggAvg:
			v, err := avgAgg(f, group)
			if err != nil {
				return nil, err
			}
			row[i] = v
		}
	}
	return row, nil
}

func countAgg(f outField, group [][]types.Value) int {
	if f.star {
		return len(group)
	}
	n := 0
	for _, tuple := range group {
		if !tuple[f.idx].Null {
			n++
		}
	}
	return n
}

func extremeAgg(f outField, group [][]types.Value) types.Value {
	best := types.NewNull()
	for _, tuple := range group {
		v := tuple[f.idx]
		if v.Null {
			continue
		}
		if best.Null {
			best = v
			continue
		}
		cmp, ok := types.Compare(v, best)
		if !ok {
			continue
		}
		if (f.agg == parser.AggMax && cmp > 0) || (f.agg == parser.AggMin && cmp < 0) {
			best = v
		}
	}
	return best
}

func avgAgg(f outField, group [][]types.Value) (types.Value, error) {
	sum := float64(0)
	n := 0
	for _, tuple := range group {
		v := tuple[f.idx]
		if v.Null {
			continue
		}
		switch v.Type {
		case types.Int32:
			sum += float64(v.Int)
		case types.Float32:
			sum += float64(v.Float)
		default:
			return types.Value{}, fmt.Errorf("avg over %s: %w", v.Type, status.SchemaFieldTypeMismatch)
		}
		n++
	}
	if n == 0 {
		return types.NewNull(), nil
	}
	return types.NewFloat(float32(sum / float64(n))), nil
}

// orderRows applies a stable multi-key ORDER BY. An ungrouped query sorts
// result rows alongside their source tuples, so the sort column need not
// be projected. A grouped query can only sort on projected columns.
func orderRows(s *parser.SelectStmt, ts *tupleSet, fields []outField, res *Result, groupIdx []int) error {
	grouped := len(groupIdx) > 0
	for _, f := range fields {
		if f.agg != parser.AggNone {
			grouped = true
		}
	}
	if !grouped {
		return sortByTuples(s, ts, res)
	}

	positions := make([]int, 0, len(s.OrderBy))
	for _, item := range s.OrderBy {
		pos := -1
		for i, f := range fields {
			if f.agg != parser.AggNone || f.idx < 0 {
				continue
			}
			col := ts.cols[f.idx]
			if col.name == item.Ref.Column && (item.Ref.Table == "" || col.table == item.Ref.Table) {
				pos = i
				break
			}
		}
		if pos < 0 {
			return fmt.Errorf("ORDER BY column %q is not in the projection: %w", item.Ref.Column, status.SchemaFieldMissing)
		}
		positions = append(positions, pos)
	}

	sort.SliceStable(res.Rows, func(i, j int) bool {
		for k, pos := range positions {
			cmp := compareForSort(res.Rows[i][pos], res.Rows[j][pos])
			if s.OrderBy[k].Desc {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	return nil
}

// sortByTuples pairs each result row with its source tuple and sorts the
// pairs on the tuple-side keys.
func sortByTuples(s *parser.SelectStmt, ts *tupleSet, res *Result) error {
	idxs := make([]int, 0, len(s.OrderBy))
	for _, item := range s.OrderBy {
		idx, err := ts.find(item.Ref)
		if err != nil {
			return err
		}
		idxs = append(idxs, idx)
	}

	type pair struct {
		out   []types.Value
		tuple []types.Value
	}
	pairs := make([]pair, len(res.Rows))
	for i := range res.Rows {
		pairs[i] = pair{out: res.Rows[i], tuple: ts.rows[i]}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		for k, idx := range idxs {
			cmp := compareForSort(pairs[i].tuple[idx], pairs[j].tuple[idx])
			if s.OrderBy[k].Desc {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	for i := range pairs {
		res.Rows[i] = pairs[i].out
	}
	return nil
}
