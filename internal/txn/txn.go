// Package txn provides MVCC-flavored visibility and per-transaction undo.
//
// Every record starts with a 4-byte header the transaction layer owns:
// bit 31 is the deleted flag, the low 31 bits are the owning transaction
// id. Owner 0 means committed. A reader sees a record when its owner is 0
// or the reader itself and the deleted flag is clear - with one twist:
// another transaction's pending delete is still visible (the row is
// committed until that delete commits), while its pending insert is not.
package txn

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/tamnm/minirel/internal/heap"
)

// HeaderLen is the record prefix the transaction layer stamps.
const HeaderLen = 4

const deletedBit = uint32(1) << 31

// Table is the slice of table behavior a transaction needs to apply or
// undo its effects. *table.Table satisfies it; the indirection keeps the
// packages from importing each other.
type Table interface {
	Name() string
	ReadRecord(rid heap.RID) ([]byte, error)
	// WriteRecordRaw overwrites record bytes without any legality or
	// index maintenance; only the txn layer may call it.
	WriteRecordRaw(rid heap.RID, data []byte) error
	// CommitDelete removes the record from every index, then the heap.
	CommitDelete(rid heap.RID) error
	// RollbackInsert unwinds a pending insert the same way.
	RollbackInsert(rid heap.RID) error
	// RollbackUpdate restores old bytes and swaps index entries back.
	RollbackUpdate(rid heap.RID, oldData, newData []byte) error
}

// Header reads a record's owner and deleted flag.
func Header(record []byte) (owner int32, deleted bool) {
	raw := binary.LittleEndian.Uint32(record[:HeaderLen])
	return int32(raw &^ deletedBit), raw&deletedBit != 0
}

func stamp(record []byte, owner int32, deleted bool) {
	raw := uint32(owner)
	if deleted {
		raw |= deletedBit
	}
	binary.LittleEndian.PutUint32(record[:HeaderLen], raw)
}

type opKind int

const (
	opInsert opKind = iota
	opDelete
	opUpdate
)

type operation struct {
	kind  opKind
	table Table
	rid   heap.RID
	old   []byte // pre-image: delete and update
	new   []byte // post-image: update
}

// Trx is one transaction: an id and an ordered operation log.
type Trx struct {
	id  int32
	ops []operation
}

func (t *Trx) ID() int32 { return t.id }

// StampNew marks a freshly built record as this transaction's pending
// insert. Until commit only this transaction sees it.
func (t *Trx) StampNew(record []byte) { stamp(record, t.id, false) }

// IsVisible is the read filter applied to every scanned record.
func (t *Trx) IsVisible(record []byte) bool {
	owner, deleted := Header(record)
	if owner == 0 || owner == t.id {
		return !deleted
	}
	// Someone else's in-flight change: their pending insert is hidden,
	// their pending delete still shows the committed row.
	return deleted
}

// LogInsert records a heap insert already performed by the table.
func (t *Trx) LogInsert(tbl Table, rid heap.RID) {
	t.ops = append(t.ops, operation{kind: opInsert, table: tbl, rid: rid})
}

// DeleteRecord stamps the record as this transaction's pending delete and
// writes it back in place. Indexes are untouched until commit.
func (t *Trx) DeleteRecord(tbl Table, rid heap.RID) error {
	record, err := tbl.ReadRecord(rid)
	if err != nil {
		return err
	}
	old := append([]byte(nil), record...)
	stamp(record, t.id, true)
	if err := tbl.WriteRecordRaw(rid, record); err != nil {
		return err
	}
	t.ops = append(t.ops, operation{kind: opDelete, table: tbl, rid: rid, old: old})
	return nil
}

// LogUpdate records an in-place update with both images so rollback can
// restore the record and its index entries.
func (t *Trx) LogUpdate(tbl Table, rid heap.RID, oldData, newData []byte) {
	t.ops = append(t.ops, operation{
		kind:  opUpdate,
		table: tbl,
		rid:   rid,
		old:   append([]byte(nil), oldData...),
		new:   append([]byte(nil), newData...),
	})
}

// Mark notes the current log position; RollbackTo unwinds back to it.
// The executor brackets each statement this way so a failed statement
// leaves earlier statements of the transaction intact.
func (t *Trx) Mark() int { return len(t.ops) }

// RollbackTo undoes every operation logged after mark, newest first.
func (t *Trx) RollbackTo(mark int) error {
	var firstErr error
	for i := len(t.ops) - 1; i >= mark; i-- {
		if err := t.undo(t.ops[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.ops = t.ops[:mark]
	return firstErr
}

// Commit applies every logged operation in order and publishes the
// transaction's records by clearing their owner stamp.
func (t *Trx) Commit() error {
	for _, op := range t.ops {
		var err error
		switch op.kind {
		case opInsert:
			err = t.publish(op)
		case opDelete:
			err = op.table.CommitDelete(op.rid)
		case opUpdate:
			// Updates apply in place at statement time; commit only
			// retires the undo images.
		}
		if err != nil {
			return fmt.Errorf("commit trx %d: %w", t.id, err)
		}
	}
	t.ops = nil
	return nil
}

// publish flips a pending insert's owner to 0, making it visible to all.
func (t *Trx) publish(op operation) error {
	record, err := op.table.ReadRecord(op.rid)
	if err != nil {
		return err
	}
	stamp(record, 0, false)
	return op.table.WriteRecordRaw(op.rid, record)
}

// Rollback unwinds the whole log in reverse.
func (t *Trx) Rollback() error {
	err := t.RollbackTo(0)
	if err != nil {
		return fmt.Errorf("rollback trx %d: %w", t.id, err)
	}
	return nil
}

func (t *Trx) undo(op operation) error {
	switch op.kind {
	case opInsert:
		if err := op.table.RollbackInsert(op.rid); err != nil {
			slog.Error("failed to unwind insert, on-disk state is inconsistent",
				"panic", true, "table", op.table.Name(), "rid", op.rid.String(), "err", err)
			return err
		}
	case opDelete:
		// Restore the pre-image: the record, its header, and its owner
		// as they were before this transaction touched it.
		if err := op.table.WriteRecordRaw(op.rid, op.old); err != nil {
			return err
		}
	case opUpdate:
		if err := op.table.RollbackUpdate(op.rid, op.old, op.new); err != nil {
			slog.Error("failed to unwind update, on-disk state is inconsistent",
				"panic", true, "table", op.table.Name(), "rid", op.rid.String(), "err", err)
			return err
		}
	}
	return nil
}
