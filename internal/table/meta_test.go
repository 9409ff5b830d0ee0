package table

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/types"
)

func testColumns() []ColumnSpec {
	return []ColumnSpec{
		{Name: "id", Type: types.Int32},
		{Name: "name", Type: types.Chars, Len: 16, Nullable: true},
		{Name: "score", Type: types.Float32},
		{Name: "born", Type: types.Date, Nullable: true},
	}
}

func TestNewTableMetaLayout(t *testing.T) {
	m, err := NewTableMeta("users", testColumns())
	require.NoError(t, err)

	require.Equal(t, 1, m.SysFieldNum())
	require.Equal(t, 4, m.UserFieldNum())

	// System header first, then user columns at increasing offsets.
	require.Equal(t, sysFieldName, m.Fields[0].Name)
	require.Equal(t, 0, m.Fields[0].Offset)
	require.Equal(t, 4, m.UserField(0).Offset)
	require.Equal(t, 8, m.UserField(1).Offset)
	require.Equal(t, 24, m.UserField(2).Offset)
	require.Equal(t, 28, m.UserField(3).Offset)

	// Payload bytes plus one null byte per user column.
	require.Equal(t, 32, m.RecordSize)
	require.Equal(t, 36, m.RecordBytes())
	require.Equal(t, 32, m.NullByteOffset(0))
	require.Equal(t, 35, m.NullByteOffset(3))
}

func TestNewTableMetaRejectsBadInput(t *testing.T) {
	_, err := NewTableMeta("", testColumns())
	require.ErrorIs(t, err, status.InvalidArgument)

	_, err = NewTableMeta("t", nil)
	require.ErrorIs(t, err, status.InvalidArgument)

	_, err = NewTableMeta("t", []ColumnSpec{
		{Name: "a", Type: types.Int32},
		{Name: "a", Type: types.Int32},
	})
	require.ErrorIs(t, err, status.SchemaFieldNameIllegal)

	_, err = NewTableMeta("t", []ColumnSpec{{Name: "c", Type: types.Chars, Len: 0}})
	require.ErrorIs(t, err, status.InvalidArgument)
}

func TestSerializeRoundTrip(t *testing.T) {
	m, err := NewTableMeta("users", testColumns())
	require.NoError(t, err)
	m.Indexes = append(m.Indexes, IndexMeta{Name: "ix_id", Field: "id"})

	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))

	got := &TableMeta{}
	require.NoError(t, got.Deserialize(&buf))
	require.Equal(t, m, got)
}

func TestFieldLookups(t *testing.T) {
	m, err := NewTableMeta("users", testColumns())
	require.NoError(t, err)

	require.NotNil(t, m.FieldByName("score"))
	require.Nil(t, m.FieldByName("missing"))
	require.Equal(t, 2, m.UserFieldIndex("score"))
	require.Equal(t, -1, m.UserFieldIndex(sysFieldName), "system fields are not user-addressable")

	m.Indexes = []IndexMeta{{Name: "ix", Field: "id"}}
	require.NotNil(t, m.Index("ix"))
	require.Nil(t, m.Index("nope"))
	require.NotNil(t, m.IndexByField("id"))
	require.Nil(t, m.IndexByField("name"))
}
