package heap

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/storage"
)

func newTestHeap(t *testing.T, recordSize int) *RecordFile {
	t.Helper()
	bp := storage.NewBufferPool(storage.NewMemBackend(), 16)
	require.NoError(t, bp.CreateFile("t.data"))
	id, err := bp.OpenFile("t.data")
	require.NoError(t, err)
	f, err := Open(bp, id, recordSize)
	require.NoError(t, err)
	return f
}

func record(size int, tag byte) []byte {
	return bytes.Repeat([]byte{tag}, size)
}

func TestInsertGetUpdateDelete(t *testing.T) {
	f := newTestHeap(t, 32)

	rid, err := f.Insert(record(32, 'a'))
	require.NoError(t, err)
	require.Equal(t, RID{0, 0}, rid)

	got, err := f.Get(rid)
	require.NoError(t, err)
	require.Equal(t, record(32, 'a'), got)

	require.NoError(t, f.Update(rid, record(32, 'b')))
	got, err = f.Get(rid)
	require.NoError(t, err)
	require.Equal(t, record(32, 'b'), got)

	require.NoError(t, f.Delete(rid))
	_, err = f.Get(rid)
	require.ErrorIs(t, err, status.RecordInvalidKey)
}

func TestInsertSpansPages(t *testing.T) {
	size := 1024
	f := newTestHeap(t, size)
	perPage := pageCapacity(size)

	var rids []RID
	for i := 0; i < perPage*2+1; i++ {
		rid, err := f.Insert(record(size, byte(i)))
		require.NoError(t, err)
		rids = append(rids, rid)
	}
	require.Equal(t, int32(0), rids[0].Page)
	require.Equal(t, int32(1), rids[perPage].Page)
	require.Equal(t, int32(2), rids[2*perPage].Page)
}

func TestDeleteFreesSlotForReuse(t *testing.T) {
	f := newTestHeap(t, 64)

	a, err := f.Insert(record(64, 'a'))
	require.NoError(t, err)
	_, err = f.Insert(record(64, 'b'))
	require.NoError(t, err)

	require.NoError(t, f.Delete(a))
	c, err := f.Insert(record(64, 'c'))
	require.NoError(t, err)
	require.Equal(t, a, c, "first free slot is reused")
}

func TestPayloadSizeEnforced(t *testing.T) {
	f := newTestHeap(t, 16)
	_, err := f.Insert(record(15, 'x'))
	require.ErrorIs(t, err, status.InvalidArgument)
}

type tagFilter struct{ tag byte }

func (f tagFilter) Match(rec []byte) bool { return rec[0] == f.tag }

func TestScan(t *testing.T) {
	size := 512
	f := newTestHeap(t, size)
	perPage := pageCapacity(size)

	n := perPage + perPage/2
	inserted := make(map[RID]byte, n)
	for i := 0; i < n; i++ {
		tag := byte('a' + i%2)
		rid, err := f.Insert(record(size, tag))
		require.NoError(t, err)
		inserted[rid] = tag
	}

	// Full scan sees every live record exactly once.
	seen := make(map[RID]bool)
	sc := f.Scan(nil)
	for {
		rid, rec, err := sc.Next()
		if err != nil {
			require.ErrorIs(t, err, status.RecordEOF)
			break
		}
		require.Len(t, rec, size)
		require.False(t, seen[rid])
		seen[rid] = true
	}
	sc.Close()
	require.Len(t, seen, n)

	// Filtered scan only yields matching payloads.
	sc = f.Scan(tagFilter{'a'})
	count := 0
	for {
		_, rec, err := sc.Next()
		if err != nil {
			break
		}
		require.Equal(t, byte('a'), rec[0])
		count++
	}
	sc.Close()
	require.Equal(t, (n+1)/2, count)
}

func TestScanSkipsDeleted(t *testing.T) {
	f := newTestHeap(t, 64)

	var rids []RID
	for i := 0; i < 10; i++ {
		rid, err := f.Insert(record(64, byte(i)))
		require.NoError(t, err)
		rids = append(rids, rid)
	}
	for i := 0; i < 10; i += 2 {
		require.NoError(t, f.Delete(rids[i]))
	}

	sc := f.Scan(nil)
	defer sc.Close()
	count := 0
	for {
		_, rec, err := sc.Next()
		if err != nil {
			break
		}
		require.Equal(t, 1, int(rec[0])%2)
		count++
	}
	require.Equal(t, 5, count)
}

func TestScanEmptyFile(t *testing.T) {
	f := newTestHeap(t, 64)
	sc := f.Scan(nil)
	defer sc.Close()
	_, _, err := sc.Next()
	require.ErrorIs(t, err, status.RecordEOF)
}

func TestPageCapacityInvariant(t *testing.T) {
	for _, size := range []int{8, 32, 100, 1000, 4000} {
		c := pageCapacity(size)
		require.Positive(t, c, "size %d", size)
		require.LessOrEqual(t, pageHeaderLen+(c+7)/8+c*size, storage.PageSize,
			fmt.Sprintf("capacity %d overflows page for record size %d", c, size))
		// One more record must not fit.
		require.Greater(t, pageHeaderLen+(c+8)/8+(c+1)*size, storage.PageSize)
	}
}
