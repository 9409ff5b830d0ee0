package table

import (
	"fmt"

	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/types"
)

// Operand is one side of a WHERE predicate: a (possibly table-qualified)
// column reference or a literal.
type Operand struct {
	IsAttr bool
	Table  string // optional qualifier
	Attr   string
	Value  types.Value
}

// Condition is one conjunct of a WHERE clause as the executor hands it
// down. For CompIn the right-hand side is List.
type Condition struct {
	Left  Operand
	Op    types.CompOp
	Right Operand
	List  []Operand
}

// conDesc is a resolved operand: either a slice of the record or a value.
type conDesc struct {
	isAttr  bool
	offset  int
	length  int
	nullOff int // -1 for literals, which have no null byte
	typ     types.Type
	value   types.Value
}

func (d conDesc) read(record []byte) types.Value {
	if !d.isAttr {
		return d.value
	}
	if d.nullOff >= 0 && record[d.nullOff] != 0 {
		return types.NewNull()
	}
	return types.Decode(d.typ, record[d.offset:d.offset+d.length])
}

// DefaultConditionFilter evaluates one predicate against a raw record.
// Any NULL side makes a binary comparison unknown, which never matches;
// IS NULL and IS NOT NULL test the null flag itself.
type DefaultConditionFilter struct {
	left  conDesc
	op    types.CompOp
	right conDesc
	list  []types.Value

	// Resolved column names, kept for index selection.
	leftField  string
	rightField string
}

// Match implements heap.Filter.
func (f *DefaultConditionFilter) Match(record []byte) bool {
	lv := f.left.read(record)

	switch f.op {
	case types.CompIsNull:
		return lv.Null
	case types.CompIsNotNull:
		return !lv.Null
	case types.CompIn:
		for _, member := range f.list {
			if cmp, ok := types.Compare(lv, member); ok && cmp == 0 {
				return true
			}
		}
		return false
	}

	cmp, ok := types.Compare(lv, f.right.read(record))
	if !ok {
		return false
	}
	return f.op.Holds(cmp)
}

// indexProbe reports whether this predicate binds a single column to a
// literal with an operator an index scanner can serve, and which side the
// column is on.
func (f *DefaultConditionFilter) indexProbe() (field string, op types.CompOp, v types.Value, ok bool) {
	if !f.op.Ordered() {
		return "", 0, types.Value{}, false
	}
	switch {
	case f.left.isAttr && !f.right.isAttr:
		return f.leftField, f.op, f.right.value, true
	case f.right.isAttr && !f.left.isAttr:
		// Flip the operator so the column ends up on the left.
		return f.rightField, flip(f.op), f.left.value, true
	}
	return "", 0, types.Value{}, false
}

func flip(op types.CompOp) types.CompOp {
	switch op {
	case types.CompLess:
		return types.CompGreater
	case types.CompLessEqual:
		return types.CompGreaterEqual
	case types.CompGreater:
		return types.CompLess
	case types.CompGreaterEqual:
		return types.CompLessEqual
	}
	return op
}

// CompositeConditionFilter is the conjunction of its parts; it
// short-circuits on the first miss. An empty composite matches all.
type CompositeConditionFilter struct {
	filters []*DefaultConditionFilter
}

func (f *CompositeConditionFilter) Match(record []byte) bool {
	for _, part := range f.filters {
		if !part.Match(record) {
			return false
		}
	}
	return true
}

func (f *CompositeConditionFilter) Filters() []*DefaultConditionFilter { return f.filters }

// BuildFilter resolves a conjunction of conditions against this table's
// metadata and type-checks every predicate.
func (m *TableMeta) BuildFilter(conds []Condition) (*CompositeConditionFilter, error) {
	out := &CompositeConditionFilter{}
	for _, cond := range conds {
		f, err := m.buildOne(cond)
		if err != nil {
			return nil, err
		}
		out.filters = append(out.filters, f)
	}
	return out, nil
}

func (m *TableMeta) buildOne(cond Condition) (*DefaultConditionFilter, error) {
	left, leftName, err := m.resolveOperand(cond.Left)
	if err != nil {
		return nil, err
	}
	f := &DefaultConditionFilter{left: left, op: cond.Op}
	f.leftField = leftName

	switch cond.Op {
	case types.CompIsNull, types.CompIsNotNull:
		return f, nil

	case types.CompIn:
		for _, member := range cond.List {
			if member.IsAttr {
				return nil, fmt.Errorf("IN list must hold literals: %w", status.InvalidArgument)
			}
			if !member.Value.Null && left.isAttr {
				if err := typeCheck(left.typ, member.Value.Type); err != nil {
					return nil, err
				}
			}
			f.list = append(f.list, member.Value)
		}
		return f, nil
	}

	right, rightName, err := m.resolveOperand(cond.Right)
	if err != nil {
		return nil, err
	}
	f.right = right
	f.rightField = rightName

	// A NULL literal is comparable with anything (the comparison is
	// simply unknown); otherwise the types must line up.
	lt, rt := operandType(left), operandType(right)
	if lt != types.Null && rt != types.Null {
		if err := typeCheck(lt, rt); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func operandType(d conDesc) types.Type {
	if d.isAttr {
		return d.typ
	}
	if d.value.Null {
		return types.Null
	}
	return d.value.Type
}

func typeCheck(a, b types.Type) error {
	stringy := func(t types.Type) bool { return t == types.Chars || t == types.Text }
	if a == b || (stringy(a) && stringy(b)) {
		return nil
	}
	return fmt.Errorf("cannot compare %s with %s: %w", a, b, status.SchemaFieldTypeMismatch)
}

func (m *TableMeta) resolveOperand(op Operand) (conDesc, string, error) {
	if !op.IsAttr {
		return conDesc{value: op.Value, nullOff: -1}, "", nil
	}
	idx := m.UserFieldIndex(op.Attr)
	if idx < 0 {
		return conDesc{}, "", fmt.Errorf("no column %q in table %s: %w", op.Attr, m.Name, status.SchemaFieldMissing)
	}
	field := m.UserField(idx)
	return conDesc{
		isAttr:  true,
		offset:  field.Offset,
		length:  field.Len,
		nullOff: m.NullByteOffset(idx),
		typ:     field.Type,
	}, field.Name, nil
}
