package index

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tamnm/minirel/internal/heap"
	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/storage"
	"github.com/tamnm/minirel/internal/types"
)

// Records in these tests are 4 header bytes, one int column, one null byte.
var testField = Field{Name: "a", Type: types.Int32, Offset: 4, Len: 4, NullOff: 8}

func testRecord(v int32, null bool) []byte {
	rec := make([]byte, 9)
	binary.LittleEndian.PutUint32(rec[4:], uint32(v))
	if null {
		rec[8] = 1
	}
	return rec
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	pool := storage.NewBufferPool(storage.NewMemBackend(), 32)
	ix, err := Create(pool, "t-a.index", testField)
	require.NoError(t, err)
	return ix
}

func drain(t *testing.T, s interface{ Next() (heap.RID, error) }) []heap.RID {
	t.Helper()
	var out []heap.RID
	for {
		rid, err := s.Next()
		if err != nil {
			require.ErrorIs(t, err, status.RecordEOF)
			return out
		}
		out = append(out, rid)
	}
}

func TestInsertDeleteEntry(t *testing.T) {
	ix := newTestIndex(t)

	for i := int32(0); i < 50; i++ {
		require.NoError(t, ix.InsertEntry(testRecord(i%10, false), heap.RID{Page: i, Slot: 0}))
	}

	s, err := ix.Scan(types.CompEqual, types.NewInt(3))
	require.NoError(t, err)
	require.Len(t, drain(t, s), 5)

	require.NoError(t, ix.DeleteEntry(testRecord(3, false), heap.RID{Page: 3, Slot: 0}))
	s, err = ix.Scan(types.CompEqual, types.NewInt(3))
	require.NoError(t, err)
	require.Len(t, drain(t, s), 4)
}

func TestNullColumnEntries(t *testing.T) {
	ix := newTestIndex(t)

	require.NoError(t, ix.InsertEntry(testRecord(1, false), heap.RID{Page: 1, Slot: 0}))
	require.NoError(t, ix.InsertEntry(testRecord(0, true), heap.RID{Page: 2, Slot: 0}))

	// The NULL record is indexed but unmatchable by comparison.
	s, err := ix.Scan(types.CompNotEqual, types.NewInt(99))
	require.NoError(t, err)
	require.Equal(t, []heap.RID{{Page: 1, Slot: 0}}, drain(t, s))

	s, err = ix.ScanAll()
	require.NoError(t, err)
	require.Len(t, drain(t, s), 2)

	// A NULL comparison bound matches nothing at all.
	s, err = ix.Scan(types.CompEqual, types.NewNull())
	require.NoError(t, err)
	require.Empty(t, drain(t, s))
}

func TestUnorderedOperatorRejected(t *testing.T) {
	ix := newTestIndex(t)
	_, err := ix.Scan(types.CompIsNull, types.NewNull())
	require.ErrorIs(t, err, status.InvalidArgument)
}

func TestReopen(t *testing.T) {
	pool := storage.NewBufferPool(storage.NewMemBackend(), 32)
	ix, err := Create(pool, "t-a.index", testField)
	require.NoError(t, err)
	require.NoError(t, ix.InsertEntry(testRecord(9, false), heap.RID{Page: 7, Slot: 3}))
	require.NoError(t, ix.Sync())
	require.NoError(t, ix.Close())

	ix2, err := Open(pool, "t-a.index", testField)
	require.NoError(t, err)
	s, err := ix2.Scan(types.CompEqual, types.NewInt(9))
	require.NoError(t, err)
	require.Equal(t, []heap.RID{{Page: 7, Slot: 3}}, drain(t, s))
}
