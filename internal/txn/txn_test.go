package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tamnm/minirel/internal/heap"
)

// fakeTable records the physical calls the transaction layer makes.
type fakeTable struct {
	name    string
	records map[heap.RID][]byte

	committedDeletes  []heap.RID
	rolledBackInserts []heap.RID
	rolledBackUpdates []heap.RID
}

func newFakeTable() *fakeTable {
	return &fakeTable{name: "t", records: make(map[heap.RID][]byte)}
}

func (f *fakeTable) Name() string { return f.name }

func (f *fakeTable) ReadRecord(rid heap.RID) ([]byte, error) {
	return append([]byte(nil), f.records[rid]...), nil
}

func (f *fakeTable) WriteRecordRaw(rid heap.RID, data []byte) error {
	f.records[rid] = append([]byte(nil), data...)
	return nil
}

func (f *fakeTable) CommitDelete(rid heap.RID) error {
	delete(f.records, rid)
	f.committedDeletes = append(f.committedDeletes, rid)
	return nil
}

func (f *fakeTable) RollbackInsert(rid heap.RID) error {
	delete(f.records, rid)
	f.rolledBackInserts = append(f.rolledBackInserts, rid)
	return nil
}

func (f *fakeTable) RollbackUpdate(rid heap.RID, oldData, newData []byte) error {
	f.records[rid] = append([]byte(nil), oldData...)
	f.rolledBackUpdates = append(f.rolledBackUpdates, rid)
	return nil
}

func rec(owner int32, deleted bool, tail ...byte) []byte {
	r := make([]byte, HeaderLen+len(tail))
	stamp(r, owner, deleted)
	copy(r[HeaderLen:], tail)
	return r
}

func TestHeaderRoundTrip(t *testing.T) {
	r := make([]byte, HeaderLen)
	stamp(r, 42, true)
	owner, deleted := Header(r)
	require.Equal(t, int32(42), owner)
	require.True(t, deleted)

	stamp(r, 0, false)
	owner, deleted = Header(r)
	require.Zero(t, owner)
	require.False(t, deleted)
}

func TestVisibilityRules(t *testing.T) {
	m := NewManager()
	self := m.Begin()
	other := m.Begin()

	// Committed live record: visible to everyone.
	require.True(t, self.IsVisible(rec(0, false)))
	require.True(t, other.IsVisible(rec(0, false)))

	// My pending insert: mine only.
	mine := rec(self.ID(), false)
	require.True(t, self.IsVisible(mine))
	require.False(t, other.IsVisible(mine))

	// My pending delete: gone for me, still there for others.
	deleted := rec(self.ID(), true)
	require.False(t, self.IsVisible(deleted))
	require.True(t, other.IsVisible(deleted))
}

func TestCommitPublishesInserts(t *testing.T) {
	m := NewManager()
	tx := m.Begin()
	tbl := newFakeTable()

	rid := heap.RID{Page: 0, Slot: 0}
	r := rec(0, false, 'x')
	tx.StampNew(r)
	tbl.records[rid] = r
	tx.LogInsert(tbl, rid)

	owner, _ := Header(tbl.records[rid])
	require.Equal(t, tx.ID(), owner)

	require.NoError(t, tx.Commit())
	owner, deleted := Header(tbl.records[rid])
	require.Zero(t, owner, "commit flips the owner to the committed marker")
	require.False(t, deleted)
}

func TestRollbackRemovesInserts(t *testing.T) {
	m := NewManager()
	tx := m.Begin()
	tbl := newFakeTable()

	rid := heap.RID{Page: 0, Slot: 1}
	r := rec(0, false, 'x')
	tx.StampNew(r)
	tbl.records[rid] = r
	tx.LogInsert(tbl, rid)

	require.NoError(t, tx.Rollback())
	require.NotContains(t, tbl.records, rid)
	require.Equal(t, []heap.RID{rid}, tbl.rolledBackInserts)
}

func TestDeleteStampsAndCommits(t *testing.T) {
	m := NewManager()
	tx := m.Begin()
	tbl := newFakeTable()

	rid := heap.RID{Page: 1, Slot: 0}
	tbl.records[rid] = rec(0, false, 'a')

	require.NoError(t, tx.DeleteRecord(tbl, rid))
	owner, deleted := Header(tbl.records[rid])
	require.Equal(t, tx.ID(), owner)
	require.True(t, deleted)

	require.NoError(t, tx.Commit())
	require.Equal(t, []heap.RID{rid}, tbl.committedDeletes)
}

func TestDeleteRollbackRestoresPreImage(t *testing.T) {
	m := NewManager()
	tx := m.Begin()
	tbl := newFakeTable()

	rid := heap.RID{Page: 1, Slot: 0}
	original := rec(0, false, 'a', 'b')
	tbl.records[rid] = append([]byte(nil), original...)

	require.NoError(t, tx.DeleteRecord(tbl, rid))
	require.NoError(t, tx.Rollback())
	require.Equal(t, original, tbl.records[rid])
}

func TestInsertThenDeleteSameTxnCommit(t *testing.T) {
	m := NewManager()
	tx := m.Begin()
	tbl := newFakeTable()

	rid := heap.RID{Page: 2, Slot: 0}
	r := rec(0, false, 'z')
	tx.StampNew(r)
	tbl.records[rid] = r
	tx.LogInsert(tbl, rid)
	require.NoError(t, tx.DeleteRecord(tbl, rid))

	// Commit applies in order: publish, then delete. Net effect: gone.
	require.NoError(t, tx.Commit())
	require.NotContains(t, tbl.records, rid)
}

func TestStatementMarkRollback(t *testing.T) {
	m := NewManager()
	tx := m.Begin()
	tbl := newFakeTable()

	first := heap.RID{Page: 0, Slot: 0}
	tbl.records[first] = rec(tx.ID(), false, '1')
	tx.LogInsert(tbl, first)

	mark := tx.Mark()
	second := heap.RID{Page: 0, Slot: 1}
	tbl.records[second] = rec(tx.ID(), false, '2')
	tx.LogInsert(tbl, second)

	// Unwinding to the mark keeps the first statement's work.
	require.NoError(t, tx.RollbackTo(mark))
	require.Contains(t, tbl.records, first)
	require.NotContains(t, tbl.records, second)

	require.NoError(t, tx.Commit())
	owner, _ := Header(tbl.records[first])
	require.Zero(t, owner)
}

func TestUpdateRollbackDelegates(t *testing.T) {
	m := NewManager()
	tx := m.Begin()
	tbl := newFakeTable()

	rid := heap.RID{Page: 3, Slot: 0}
	oldData := rec(0, false, 'o')
	newData := rec(0, false, 'n')
	tbl.records[rid] = append([]byte(nil), newData...)
	tx.LogUpdate(tbl, rid, oldData, newData)

	require.NoError(t, tx.Rollback())
	require.Equal(t, oldData, tbl.records[rid])
	require.Equal(t, []heap.RID{rid}, tbl.rolledBackUpdates)
}

func TestManagerIDsAreMonotonic(t *testing.T) {
	m := NewManager()
	a, b, c := m.Begin(), m.Begin(), m.Begin()
	require.Equal(t, int32(1), a.ID())
	require.Equal(t, int32(2), b.ID())
	require.Equal(t, int32(3), c.ID())
}
