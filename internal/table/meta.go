package table

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/types"
)

// The first field of every record is reserved for the transaction header:
// 4 bytes of owner id and deleted flag maintained by the txn layer.
const (
	sysFieldNum  = 1
	sysFieldName = "__trx"
	sysFieldLen  = 4
)

// ColumnSpec is a column as declared in CREATE TABLE.
type ColumnSpec struct {
	Name     string
	Type     types.Type
	Len      int // CHARS capacity; ignored for fixed-width types
	Nullable bool
}

// FieldMeta pins one column to its slice of the record.
type FieldMeta struct {
	Name     string     `json:"name"`
	Type     types.Type `json:"type"`
	Offset   int        `json:"offset"`
	Len      int        `json:"len"`
	Nullable bool       `json:"nullable"`
	Visible  bool       `json:"visible"` // false for system fields
}

// IndexMeta names a single-column index.
type IndexMeta struct {
	Name  string `json:"name"`
	Field string `json:"field"`
}

// TableMeta is everything persisted in the .table file.
type TableMeta struct {
	Name       string      `json:"name"`
	Fields     []FieldMeta `json:"fields"`
	RecordSize int         `json:"record_size"` // field payloads only, bitmap excluded
	Indexes    []IndexMeta `json:"indexes"`
}

// NewTableMeta lays out the record: system header, then user columns in
// declaration order, then (at runtime) one null byte per user column.
func NewTableMeta(name string, columns []ColumnSpec) (*TableMeta, error) {
	if strings.TrimSpace(name) == "" || len(columns) == 0 {
		return nil, fmt.Errorf("table needs a name and at least one column: %w", status.InvalidArgument)
	}

	m := &TableMeta{Name: name}
	offset := 0
	m.Fields = append(m.Fields, FieldMeta{
		Name: sysFieldName, Type: types.Int32, Offset: 0, Len: sysFieldLen,
	})
	offset += sysFieldLen

	for _, col := range columns {
		if strings.TrimSpace(col.Name) == "" {
			return nil, fmt.Errorf("blank column name: %w", status.InvalidArgument)
		}
		if m.FieldByName(col.Name) != nil {
			return nil, fmt.Errorf("duplicate column %q: %w", col.Name, status.SchemaFieldNameIllegal)
		}
		length := col.Type.FixedLen()
		if col.Type == types.Chars {
			length = col.Len
		}
		if length <= 0 {
			return nil, fmt.Errorf("column %q has no width: %w", col.Name, status.InvalidArgument)
		}
		m.Fields = append(m.Fields, FieldMeta{
			Name:     col.Name,
			Type:     col.Type,
			Offset:   offset,
			Len:      length,
			Nullable: col.Nullable,
			Visible:  true,
		})
		offset += length
	}
	m.RecordSize = offset
	return m, nil
}

func (m *TableMeta) SysFieldNum() int  { return sysFieldNum }
func (m *TableMeta) UserFieldNum() int { return len(m.Fields) - sysFieldNum }

// RecordBytes is the full stored width: payloads plus the null bitmap.
func (m *TableMeta) RecordBytes() int { return m.RecordSize + m.UserFieldNum() }

// UserField returns the i-th user column (0-based, system fields skipped).
func (m *TableMeta) UserField(i int) *FieldMeta {
	return &m.Fields[i+sysFieldNum]
}

func (m *TableMeta) FieldByName(name string) *FieldMeta {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i]
		}
	}
	return nil
}

// UserFieldIndex finds a visible column's 0-based user position, or -1.
func (m *TableMeta) UserFieldIndex(name string) int {
	for i := sysFieldNum; i < len(m.Fields); i++ {
		if m.Fields[i].Name == name {
			return i - sysFieldNum
		}
	}
	return -1
}

// NullByteOffset is where user column i's null flag lives in the record.
func (m *TableMeta) NullByteOffset(userIdx int) int {
	return m.RecordSize + userIdx
}

func (m *TableMeta) Index(name string) *IndexMeta {
	for i := range m.Indexes {
		if m.Indexes[i].Name == name {
			return &m.Indexes[i]
		}
	}
	return nil
}

func (m *TableMeta) IndexByField(field string) *IndexMeta {
	for i := range m.Indexes {
		if m.Indexes[i].Field == field {
			return &m.Indexes[i]
		}
	}
	return nil
}

// Serialize writes the metadata blob. It is human-readable JSON and must
// round-trip exactly through Deserialize.
func (m *TableMeta) Serialize(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("serialize table meta %s: %w", m.Name, err)
	}
	return nil
}

func (m *TableMeta) Deserialize(r io.Reader) error {
	if err := json.NewDecoder(r).Decode(m); err != nil {
		return fmt.Errorf("deserialize table meta: %w", err)
	}
	return nil
}
