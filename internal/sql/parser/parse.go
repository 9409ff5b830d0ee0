package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/types"
)

// Parse turns one SQL statement into an AST. The trailing ';' is optional
// here; the REPL uses it as the statement terminator.
func Parse(sql string) (Statement, error) {
	tokens, err := scan(strings.TrimSpace(sql))
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	stmt, err := p.statement()
	if err != nil {
		return nil, err
	}
	p.accept(";")
	if p.peek().kind != tokEOF {
		return nil, p.fail("trailing input after statement")
	}
	return stmt, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

// peekAt looks n tokens ahead, clamping to EOF.
func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.tokens) {
		return token{kind: tokEOF}
	}
	return p.tokens[p.pos+n]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// accept consumes the token when it matches a keyword or symbol.
func (p *parser) accept(want string) bool {
	t := p.peek()
	if t.keyword(want) || t.symbol(want) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(want string) error {
	if !p.accept(want) {
		return p.fail("expected %q", want)
	}
	return nil
}

func (p *parser) ident() (string, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return "", p.fail("expected identifier")
	}
	p.next()
	return t.text, nil
}

func (p *parser) fail(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s near %q: %w", msg, p.peek().text, status.SQLSyntax)
}

func (p *parser) statement() (Statement, error) {
	t := p.peek()
	switch {
	case t.keyword("create"):
		p.next()
		switch {
		case p.accept("table"):
			return p.createTable()
		case p.accept("index"):
			return p.createIndex()
		}
		return nil, p.fail("expected TABLE or INDEX after CREATE")
	case t.keyword("drop"):
		p.next()
		switch {
		case p.accept("table"):
			name, err := p.ident()
			if err != nil {
				return nil, err
			}
			return &DropTableStmt{Table: name}, nil
		case p.accept("index"):
			return p.dropIndex()
		}
		return nil, p.fail("expected TABLE or INDEX after DROP")
	case t.keyword("show"):
		p.next()
		if err := p.expect("tables"); err != nil {
			return nil, err
		}
		return &ShowTablesStmt{}, nil
	case t.keyword("desc"):
		p.next()
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		return &DescStmt{Table: name}, nil
	case t.keyword("insert"):
		p.next()
		return p.insert()
	case t.keyword("select"):
		p.next()
		return p.selectStmt()
	case t.keyword("update"):
		p.next()
		return p.update()
	case t.keyword("delete"):
		p.next()
		return p.deleteStmt()
	case t.keyword("load"):
		p.next()
		return p.loadData()
	case t.keyword("begin"):
		p.next()
		return &BeginStmt{}, nil
	case t.keyword("commit"):
		p.next()
		return &CommitStmt{}, nil
	case t.keyword("rollback"):
		p.next()
		return &RollbackStmt{}, nil
	case t.keyword("sync"):
		p.next()
		return &SyncStmt{}, nil
	case t.keyword("help"):
		p.next()
		return &HelpStmt{}, nil
	case t.keyword("exit") || t.keyword("quit"):
		p.next()
		return &ExitStmt{}, nil
	}
	return nil, p.fail("unsupported statement")
}

// ---- DDL ----

func (p *parser) createTable() (Statement, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var cols []ColumnDef
	for {
		col, err := p.columnDef()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if p.accept(",") {
			continue
		}
		break
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return &CreateTableStmt{Table: name, Columns: cols}, nil
}

func (p *parser) columnDef() (ColumnDef, error) {
	name, err := p.ident()
	if err != nil {
		return ColumnDef{}, err
	}
	typeTok := p.peek()
	if typeTok.kind != tokIdent {
		return ColumnDef{}, p.fail("expected column type")
	}
	p.next()

	col := ColumnDef{Name: name}
	switch strings.ToLower(typeTok.text) {
	case "int", "integer":
		col.Type = types.Int32
	case "float":
		col.Type = types.Float32
	case "date":
		col.Type = types.Date
	case "text":
		col.Type = types.Text
	case "char", "chars", "varchar":
		col.Type = types.Chars
		if err := p.expect("("); err != nil {
			return ColumnDef{}, err
		}
		lenTok := p.peek()
		if lenTok.kind != tokNumber {
			return ColumnDef{}, p.fail("expected char length")
		}
		p.next()
		n, err := strconv.Atoi(lenTok.text)
		if err != nil || n <= 0 {
			return ColumnDef{}, p.fail("bad char length %q", lenTok.text)
		}
		col.Len = n
		if err := p.expect(")"); err != nil {
			return ColumnDef{}, err
		}
	default:
		return ColumnDef{}, p.fail("unknown column type %q", typeTok.text)
	}

	switch {
	case p.accept("nullable"):
		col.Nullable = true
	case p.peek().keyword("not"):
		p.next()
		if err := p.expect("null"); err != nil {
			return ColumnDef{}, err
		}
	}
	return col, nil
}

func (p *parser) createIndex() (Statement, error) {
	ixName, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expect("on"); err != nil {
		return nil, err
	}
	tableName, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	column, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return &CreateIndexStmt{Index: ixName, Table: tableName, Column: column}, nil
}

func (p *parser) dropIndex() (Statement, error) {
	ixName, err := p.ident()
	if err != nil {
		return nil, err
	}
	stmt := &DropIndexStmt{Index: ixName}
	if p.accept("on") {
		tableName, err := p.ident()
		if err != nil {
			return nil, err
		}
		stmt.Table = tableName
	}
	return stmt, nil
}

// ---- DML ----

func (p *parser) insert() (Statement, error) {
	if err := p.expect("into"); err != nil {
		return nil, err
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expect("values"); err != nil {
		return nil, err
	}
	stmt := &InsertStmt{Table: name}
	for {
		if err := p.expect("("); err != nil {
			return nil, err
		}
		var row []types.Value
		for {
			v, err := p.literal()
			if err != nil {
				return nil, err
			}
			row = append(row, v)
			if p.accept(",") {
				continue
			}
			break
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		stmt.Rows = append(stmt.Rows, row)
		if p.accept(",") {
			continue
		}
		break
	}
	return stmt, nil
}

// literal parses a constant. String literals shaped like dates become
// DATE values here, and an impossible calendar date is a syntax-band
// error, so `INSERT ... ("2021-02-29")` fails before it reaches storage.
func (p *parser) literal() (types.Value, error) {
	t := p.peek()
	switch {
	case t.kind == tokNumber:
		p.next()
		if strings.ContainsRune(t.text, '.') {
			f, err := strconv.ParseFloat(t.text, 32)
			if err != nil {
				return types.Value{}, p.fail("bad float literal %q", t.text)
			}
			return types.NewFloat(float32(f)), nil
		}
		n, err := strconv.ParseInt(t.text, 10, 32)
		if err != nil {
			return types.Value{}, p.fail("bad int literal %q", t.text)
		}
		return types.NewInt(int32(n)), nil

	case t.kind == tokString:
		p.next()
		if types.LooksLikeDate(t.text) {
			packed, err := types.ParseDate(t.text)
			if err != nil {
				return types.Value{}, fmt.Errorf("%v: %w", err, status.SQLSyntax)
			}
			return types.NewDate(packed), nil
		}
		return types.NewChars(t.text), nil

	case t.keyword("null"):
		p.next()
		return types.NewNull(), nil
	}
	return types.Value{}, p.fail("expected literal")
}

// columnRef parses col or table.col.
func (p *parser) columnRef() (ColumnRef, error) {
	first, err := p.ident()
	if err != nil {
		return ColumnRef{}, err
	}
	if p.accept(".") {
		second, err := p.ident()
		if err != nil {
			return ColumnRef{}, err
		}
		return ColumnRef{Table: first, Column: second}, nil
	}
	return ColumnRef{Column: first}, nil
}

func (p *parser) operand() (Operand, error) {
	t := p.peek()
	if t.kind == tokIdent && !t.keyword("null") {
		ref, err := p.columnRef()
		if err != nil {
			return Operand{}, err
		}
		return Operand{IsAttr: true, Ref: ref}, nil
	}
	v, err := p.literal()
	if err != nil {
		return Operand{}, err
	}
	return Operand{Value: v}, nil
}

var compSymbols = map[string]types.CompOp{
	"=":  types.CompEqual,
	"<>": types.CompNotEqual,
	"!=": types.CompNotEqual,
	"<":  types.CompLess,
	"<=": types.CompLessEqual,
	">":  types.CompGreater,
	">=": types.CompGreaterEqual,
}

func (p *parser) condition() (Condition, error) {
	left, err := p.operand()
	if err != nil {
		return Condition{}, err
	}

	t := p.peek()
	switch {
	case t.keyword("is"):
		p.next()
		op := types.CompIsNull
		if p.accept("not") {
			op = types.CompIsNotNull
		}
		if err := p.expect("null"); err != nil {
			return Condition{}, err
		}
		return Condition{Left: left, Op: op}, nil

	case t.keyword("in"):
		p.next()
		if err := p.expect("("); err != nil {
			return Condition{}, err
		}
		cond := Condition{Left: left, Op: types.CompIn}
		for {
			v, err := p.literal()
			if err != nil {
				return Condition{}, err
			}
			cond.List = append(cond.List, Operand{Value: v})
			if p.accept(",") {
				continue
			}
			break
		}
		if err := p.expect(")"); err != nil {
			return Condition{}, err
		}
		return cond, nil

	case t.kind == tokSymbol:
		op, ok := compSymbols[t.text]
		if !ok {
			return Condition{}, p.fail("expected comparison operator")
		}
		p.next()
		right, err := p.operand()
		if err != nil {
			return Condition{}, err
		}
		return Condition{Left: left, Op: op, Right: right}, nil
	}
	return Condition{}, p.fail("expected comparison operator")
}

func (p *parser) whereClause() ([]Condition, error) {
	if !p.accept("where") {
		return nil, nil
	}
	var conds []Condition
	for {
		cond, err := p.condition()
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
		if p.accept("and") {
			continue
		}
		break
	}
	return conds, nil
}

// ---- SELECT ----

var aggKeywords = map[string]AggFunc{
	"count": AggCount, "max": AggMax, "min": AggMin, "avg": AggAvg,
}

func (p *parser) selectField() (SelectField, error) {
	t := p.peek()

	if t.symbol("*") {
		p.next()
		return SelectField{Star: true}, nil
	}
	if t.kind != tokIdent {
		return SelectField{}, p.fail("expected select field")
	}

	if agg, ok := aggKeywords[strings.ToLower(t.text)]; ok && p.peekAt(1).symbol("(") {
		p.next()
		p.next()
		field := SelectField{Agg: agg}
		if p.accept("*") {
			if agg != AggCount {
				return SelectField{}, p.fail("only count may aggregate *")
			}
			field.Star = true
		} else {
			ref, err := p.columnRef()
			if err != nil {
				return SelectField{}, err
			}
			field.Ref = ref
		}
		if err := p.expect(")"); err != nil {
			return SelectField{}, err
		}
		return field, nil
	}

	ref, err := p.columnRef()
	if err != nil {
		return SelectField{}, err
	}
	return SelectField{Ref: ref}, nil
}

func (p *parser) selectStmt() (Statement, error) {
	stmt := &SelectStmt{}
	for {
		// t.* arrives as ident '.' '*'; columnRef cannot express it, so
		// catch it here.
		if p.peek().kind == tokIdent && p.peekAt(1).symbol(".") && p.peekAt(2).symbol("*") {
			tableName := p.next().text
			p.next()
			p.next()
			stmt.Fields = append(stmt.Fields, SelectField{Star: true, Ref: ColumnRef{Table: tableName}})
		} else {
			field, err := p.selectField()
			if err != nil {
				return nil, err
			}
			stmt.Fields = append(stmt.Fields, field)
		}
		if p.accept(",") {
			continue
		}
		break
	}

	if err := p.expect("from"); err != nil {
		return nil, err
	}
	for {
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		stmt.Tables = append(stmt.Tables, name)
		if p.accept(",") {
			continue
		}
		break
	}

	conds, err := p.whereClause()
	if err != nil {
		return nil, err
	}
	stmt.Conds = conds

	if p.accept("group") {
		if err := p.expect("by"); err != nil {
			return nil, err
		}
		for {
			ref, err := p.columnRef()
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, ref)
			if p.accept(",") {
				continue
			}
			break
		}
	}

	if p.accept("order") {
		if err := p.expect("by"); err != nil {
			return nil, err
		}
		for {
			ref, err := p.columnRef()
			if err != nil {
				return nil, err
			}
			item := OrderItem{Ref: ref}
			if p.accept("desc") {
				item.Desc = true
			} else {
				p.accept("asc")
			}
			stmt.OrderBy = append(stmt.OrderBy, item)
			if p.accept(",") {
				continue
			}
			break
		}
	}
	return stmt, nil
}

func (p *parser) update() (Statement, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expect("set"); err != nil {
		return nil, err
	}
	column, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expect("="); err != nil {
		return nil, err
	}
	value, err := p.literal()
	if err != nil {
		return nil, err
	}
	conds, err := p.whereClause()
	if err != nil {
		return nil, err
	}
	return &UpdateStmt{Table: name, Column: column, Value: value, Conds: conds}, nil
}

func (p *parser) deleteStmt() (Statement, error) {
	if err := p.expect("from"); err != nil {
		return nil, err
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	conds, err := p.whereClause()
	if err != nil {
		return nil, err
	}
	return &DeleteStmt{Table: name, Conds: conds}, nil
}

func (p *parser) loadData() (Statement, error) {
	if err := p.expect("data"); err != nil {
		return nil, err
	}
	if err := p.expect("infile"); err != nil {
		return nil, err
	}
	pathTok := p.peek()
	if pathTok.kind != tokString {
		return nil, p.fail("expected quoted file path")
	}
	p.next()
	if err := p.expect("into"); err != nil {
		return nil, err
	}
	if err := p.expect("table"); err != nil {
		return nil, err
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	return &LoadDataStmt{Path: pathTok.text, Table: name}, nil
}
