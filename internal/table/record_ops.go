package table

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tamnm/minirel/internal/heap"
	"github.com/tamnm/minirel/internal/index"
	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/txn"
	"github.com/tamnm/minirel/internal/types"
)

// isLegal checks one value against one column: nullability, type, and
// CHARS capacity.
func isLegal(v types.Value, field *FieldMeta) error {
	if v.Null {
		if !field.Nullable {
			return fmt.Errorf("column %q is not nullable: %w", field.Name, status.SchemaFieldNameIllegal)
		}
		return nil
	}
	stringy := func(t types.Type) bool { return t == types.Chars || t == types.Text }
	if v.Type != field.Type && !(stringy(v.Type) && stringy(field.Type)) {
		return fmt.Errorf("column %q wants %s, got %s: %w",
			field.Name, field.Type, v.Type, status.SchemaFieldTypeMismatch)
	}
	if stringy(field.Type) && len(v.Str) > field.Len {
		return fmt.Errorf("value of %d bytes overflows %s(%d): %w",
			len(v.Str), field.Type, field.Len, status.SchemaFieldMissing)
	}
	return nil
}

// makeRecord materializes one row: system header, encoded payloads, null
// bitmap. The header is zero (committed) until a transaction stamps it.
func (t *Table) makeRecord(values []types.Value) ([]byte, error) {
	if len(values) != t.meta.UserFieldNum() {
		return nil, fmt.Errorf("%d values for %d columns: %w",
			len(values), t.meta.UserFieldNum(), status.SchemaFieldMissing)
	}
	for i, v := range values {
		if err := isLegal(v, t.meta.UserField(i)); err != nil {
			return nil, err
		}
	}

	record := make([]byte, t.meta.RecordBytes())
	for i, v := range values {
		field := t.meta.UserField(i)
		v.Type = field.Type // NULLs adopt the column type for sentinel bytes
		v.EncodeInto(record[field.Offset : field.Offset+field.Len])
		if v.Null {
			record[t.meta.NullByteOffset(i)] = 1
		}
	}
	return record, nil
}

// DecodeRecord reads one user column out of a raw record.
func (t *Table) DecodeRecord(record []byte, userIdx int) types.Value {
	if record[t.meta.NullByteOffset(userIdx)] != 0 {
		return types.NewNull()
	}
	field := t.meta.UserField(userIdx)
	return types.Decode(field.Type, record[field.Offset:field.Offset+field.Len])
}

// InsertRecord validates, materializes and stores one row, then indexes
// it. A failure on any index unwinds everything done so far.
func (t *Table) InsertRecord(tx *txn.Trx, values []types.Value) (heap.RID, error) {
	record, err := t.makeRecord(values)
	if err != nil {
		return heap.RID{}, err
	}
	if tx != nil {
		tx.StampNew(record)
	}

	rid, err := t.records.Insert(record)
	if err != nil {
		return heap.RID{}, err
	}

	for i, ix := range t.indexes {
		if err := ix.InsertEntry(record, rid); err != nil {
			t.compensateInsert(record, rid, i)
			return heap.RID{}, err
		}
	}

	// Log only once the row is fully in place, so the undo log never
	// holds a half-inserted record.
	if tx != nil {
		tx.LogInsert(t, rid)
	}
	return rid, nil
}

// compensateInsert removes the record and the index entries inserted
// before the failure at index position failedAt.
func (t *Table) compensateInsert(record []byte, rid heap.RID, failedAt int) {
	for i := 0; i < failedAt; i++ {
		if err := t.indexes[i].DeleteEntry(record, rid); err != nil {
			slog.Error("failed to unwind index entry after insert failure",
				"panic", true, "table", t.meta.Name, "rid", rid.String(), "err", err)
		}
	}
	if err := t.records.Delete(rid); err != nil {
		slog.Error("failed to unwind heap record after insert failure",
			"panic", true, "table", t.meta.Name, "rid", rid.String(), "err", err)
	}
}

// match is one row caught by a scan, copied out so later mutation of the
// page cannot invalidate it.
type match struct {
	rid    heap.RID
	record []byte
}

// collect materializes every visible record matching the filter. Mutating
// operations work from this snapshot so they never chase their own writes.
func (t *Table) collect(tx *txn.Trx, filter *CompositeConditionFilter) ([]match, error) {
	var out []match
	err := t.Scan(tx, filter, -1, func(rid heap.RID, record []byte) error {
		out = append(out, match{rid: rid, record: append([]byte(nil), record...)})
		return nil
	})
	return out, err
}

// checkConditionTables rejects conditions qualified with another table's
// name; UPDATE and DELETE are strictly single-table.
func (t *Table) checkConditionTables(conds []Condition) error {
	for _, cond := range conds {
		for _, op := range []Operand{cond.Left, cond.Right} {
			if op.IsAttr && op.Table != "" && op.Table != t.meta.Name {
				return fmt.Errorf("condition references table %q: %w", op.Table, status.SchemaTableNameIllegal)
			}
		}
	}
	return nil
}

// UpdateRecords sets one column on every row matching the conditions.
// The rewrite is applied in place; the transaction keeps both images so
// rollback can restore them.
func (t *Table) UpdateRecords(tx *txn.Trx, attr string, value types.Value, conds []Condition) (int, error) {
	if err := t.checkConditionTables(conds); err != nil {
		return 0, err
	}
	userIdx := t.meta.UserFieldIndex(attr)
	if userIdx < 0 {
		return 0, fmt.Errorf("no column %q in %s: %w", attr, t.meta.Name, status.SchemaFieldNotExist)
	}
	field := t.meta.UserField(userIdx)
	if err := isLegal(value, field); err != nil {
		return 0, err
	}
	filter, err := t.meta.BuildFilter(conds)
	if err != nil {
		return 0, err
	}
	matches, err := t.collect(tx, filter)
	if err != nil {
		return 0, err
	}

	ix := t.findIndexOnField(attr)
	updated := 0
	for _, m := range matches {
		newRecord := append([]byte(nil), m.record...)
		v := value
		v.Type = field.Type
		v.EncodeInto(newRecord[field.Offset : field.Offset+field.Len])
		if value.Null {
			newRecord[t.meta.NullByteOffset(userIdx)] = 1
		} else {
			newRecord[t.meta.NullByteOffset(userIdx)] = 0
		}

		if err := t.applyUpdate(m.rid, m.record, newRecord, ix); err != nil {
			return updated, err
		}
		if tx != nil {
			tx.LogUpdate(t, m.rid, m.record, newRecord)
		}
		updated++
	}
	return updated, nil
}

// applyUpdate swaps the indexed key and rewrites the payload. A failed
// re-insert puts the old entry and bytes back before reporting.
func (t *Table) applyUpdate(rid heap.RID, oldRecord, newRecord []byte, ix *index.Index) error {
	if ix != nil {
		if err := ix.DeleteEntry(oldRecord, rid); err != nil {
			return err
		}
	}
	if err := t.records.Update(rid, newRecord); err != nil {
		return err
	}
	if ix != nil {
		if err := ix.InsertEntry(newRecord, rid); err != nil {
			if err2 := t.records.Update(rid, oldRecord); err2 != nil {
				slog.Error("failed to restore record after index failure",
					"panic", true, "table", t.meta.Name, "rid", rid.String(), "err", err2)
			}
			if err2 := ix.InsertEntry(oldRecord, rid); err2 != nil {
				slog.Error("failed to restore index entry after index failure",
					"panic", true, "table", t.meta.Name, "rid", rid.String(), "err", err2)
			}
			return err
		}
	}
	return nil
}

// DeleteRecords removes every row matching the conditions. Inside a
// transaction the rows are only stamped as pending deletes; the physical
// removal happens at commit.
func (t *Table) DeleteRecords(tx *txn.Trx, conds []Condition) (int, error) {
	if err := t.checkConditionTables(conds); err != nil {
		return 0, err
	}
	filter, err := t.meta.BuildFilter(conds)
	if err != nil {
		return 0, err
	}
	matches, err := t.collect(tx, filter)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, m := range matches {
		if tx != nil {
			if err := tx.DeleteRecord(t, m.rid); err != nil {
				return deleted, err
			}
		} else {
			if err := t.CommitDelete(m.rid); err != nil {
				return deleted, err
			}
		}
		deleted++
	}
	return deleted, nil
}

// ---- txn.Table contract ----

// ReadRecord hands the transaction layer a copy of the raw record.
func (t *Table) ReadRecord(rid heap.RID) ([]byte, error) {
	return t.records.Get(rid)
}

// WriteRecordRaw overwrites record bytes verbatim; only the transaction
// layer calls this, for header stamping and image restore.
func (t *Table) WriteRecordRaw(rid heap.RID, data []byte) error {
	return t.records.Update(rid, data)
}

// CommitDelete makes a pending delete physical: indexes first, then heap.
func (t *Table) CommitDelete(rid heap.RID) error {
	record, err := t.records.Get(rid)
	if err != nil {
		return err
	}
	if err := t.deleteEntryOfIndexes(record, rid); err != nil {
		slog.Error("failed to drop index entries while deleting",
			"panic", true, "table", t.meta.Name, "rid", rid.String(), "err", err)
		return err
	}
	return t.records.Delete(rid)
}

// RollbackInsert unwinds a pending insert: the record never becomes
// visible, so its index entries and heap slot just go away. An entry
// already absent from an index is not an error here.
func (t *Table) RollbackInsert(rid heap.RID) error {
	record, err := t.records.Get(rid)
	if err != nil {
		return err
	}
	for _, ix := range t.indexes {
		if err := ix.DeleteEntry(record, rid); err != nil && !errors.Is(err, status.RecordInvalidKey) {
			return err
		}
	}
	return t.records.Delete(rid)
}

// RollbackUpdate restores the pre-image and swaps index entries back.
func (t *Table) RollbackUpdate(rid heap.RID, oldData, newData []byte) error {
	for _, ix := range t.indexes {
		if err := ix.DeleteEntry(newData, rid); err != nil && !errors.Is(err, status.RecordInvalidKey) {
			return err
		}
		if err := ix.InsertEntry(oldData, rid); err != nil && !errors.Is(err, status.RecordInvalidKey) {
			return err
		}
	}
	return t.records.Update(rid, oldData)
}

func (t *Table) deleteEntryOfIndexes(record []byte, rid heap.RID) error {
	for _, ix := range t.indexes {
		if err := ix.DeleteEntry(record, rid); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) findIndexOnField(field string) *index.Index {
	for _, ix := range t.indexes {
		if ix.FieldName() == field {
			return ix
		}
	}
	return nil
}
