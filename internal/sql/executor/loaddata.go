package executor

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/tamnm/minirel/internal/sql/parser"
	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/table"
	"github.com/tamnm/minirel/internal/types"
)

// execLoadData bulk-inserts a tab- or comma-separated file through the
// normal insert path. Rows that fail legality checks are skipped with a
// warning; the reply reports both counts.
func (e *Executor) execLoadData(s *parser.LoadDataStmt) (*Result, error) {
	tbl, err := e.db.Table(s.Table)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Path, status.IOErr)
	}
	defer f.Close()

	tx, auto := e.statementTrx()
	mark := tx.Mark()

	inserted, skipped := 0, 0
	lineNo := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		values, convErr := parseLine(tbl.Meta(), line)
		if convErr == nil {
			_, convErr = tbl.InsertRecord(tx, values)
		}
		if convErr != nil {
			skipped++
			slog.Warn("load data: row rejected",
				"table", s.Table, "file", s.Path, "line", lineNo, "err", convErr)
			continue
		}
		inserted++
	}
	if scanErr := scanner.Err(); scanErr != nil {
		_ = e.settle(tx, auto, mark, scanErr)
		return nil, fmt.Errorf("read %s: %w", s.Path, status.IOErr)
	}
	if err := e.settle(tx, auto, mark, nil); err != nil {
		return nil, err
	}
	return &Result{
		Affected: inserted,
		Message:  fmt.Sprintf("%d rows inserted, %d rows skipped", inserted, skipped),
	}, nil
}

// parseLine splits one input line and converts each field to the column's
// type. Tab wins as the separator when present, comma otherwise.
func parseLine(m *table.TableMeta, line string) ([]types.Value, error) {
	sep := ","
	if strings.ContainsRune(line, '\t') {
		sep = "\t"
	}
	parts := strings.Split(line, sep)
	if len(parts) != m.UserFieldNum() {
		return nil, fmt.Errorf("%d fields for %d columns: %w", len(parts), m.UserFieldNum(), status.SchemaFieldMissing)
	}

	values := make([]types.Value, 0, len(parts))
	for i, raw := range parts {
		raw = strings.TrimSpace(raw)
		field := m.UserField(i)
		v, err := convertField(raw, field.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", field.Name, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func convertField(raw string, t types.Type) (types.Value, error) {
	if strings.EqualFold(raw, "null") {
		return types.NewNull(), nil
	}
	switch t {
	case types.Int32:
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return types.Value{}, fmt.Errorf("bad int %q: %w", raw, status.SchemaFieldTypeMismatch)
		}
		return types.NewInt(int32(n)), nil
	case types.Float32:
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return types.Value{}, fmt.Errorf("bad float %q: %w", raw, status.SchemaFieldTypeMismatch)
		}
		return types.NewFloat(float32(f)), nil
	case types.Date:
		packed, err := types.ParseDate(raw)
		if err != nil {
			return types.Value{}, fmt.Errorf("%v: %w", err, status.SchemaFieldTypeMismatch)
		}
		return types.NewDate(packed), nil
	case types.Chars:
		return types.NewChars(strings.Trim(raw, `"'`)), nil
	case types.Text:
		return types.NewText(strings.Trim(raw, `"'`)), nil
	}
	return types.Value{}, fmt.Errorf("unloadable column type %s: %w", t, status.GenericError)
}
