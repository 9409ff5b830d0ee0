package table

import (
	"errors"
	"math"

	"github.com/tamnm/minirel/internal/btree"
	"github.com/tamnm/minirel/internal/heap"
	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/txn"
	"github.com/tamnm/minirel/internal/types"
)

// visible applies transaction visibility; scans without a transaction are
// internal maintenance passes and see every live record.
func visible(tx *txn.Trx, record []byte) bool {
	return tx == nil || tx.IsVisible(record)
}

// Scan drives fn over every visible record matching the filter, stopping
// after limit deliveries (limit < 0 means no limit). When some conjunct
// binds an indexed column to a literal, the index serves the scan and the
// remaining conjuncts screen each fetched record.
func (t *Table) Scan(tx *txn.Trx, filter *CompositeConditionFilter, limit int, fn func(rid heap.RID, record []byte) error) error {
	if limit == 0 {
		return nil
	}
	if limit < 0 {
		limit = math.MaxInt
	}

	if scanner := t.findIndexForScan(filter); scanner != nil {
		return t.scanByIndex(tx, scanner, filter, limit, fn)
	}
	return t.scanHeap(tx, filter, limit, fn)
}

func (t *Table) scanHeap(tx *txn.Trx, filter *CompositeConditionFilter, limit int, fn func(heap.RID, []byte) error) error {
	var hf heap.Filter
	if filter != nil {
		hf = filter
	}
	sc := t.records.Scan(hf)
	defer sc.Close()

	delivered := 0
	for delivered < limit {
		rid, record, err := sc.Next()
		if err != nil {
			if errors.Is(err, status.RecordEOF) {
				return nil
			}
			return err
		}
		if !visible(tx, record) {
			continue
		}
		if err := fn(rid, record); err != nil {
			return err
		}
		delivered++
	}
	return nil
}

func (t *Table) scanByIndex(tx *txn.Trx, scanner *btree.Scanner, filter *CompositeConditionFilter, limit int, fn func(heap.RID, []byte) error) error {
	defer scanner.Close()

	delivered := 0
	for delivered < limit {
		rid, err := scanner.Next()
		if err != nil {
			if errors.Is(err, status.RecordEOF) {
				return nil
			}
			return err
		}
		record, err := t.records.Get(rid)
		if err != nil {
			return err
		}
		if !visible(tx, record) {
			continue
		}
		if filter != nil && !filter.Match(record) {
			continue
		}
		if err := fn(rid, record); err != nil {
			return err
		}
		delivered++
	}
	return nil
}

// findIndexForScan returns a positioned index scanner when one conjunct
// can be served by an index, preferring equality probes.
func (t *Table) findIndexForScan(filter *CompositeConditionFilter) *btree.Scanner {
	if filter == nil {
		return nil
	}
	var fallback *btree.Scanner
	for _, part := range filter.Filters() {
		field, op, value, ok := part.indexProbe()
		if !ok {
			continue
		}
		ix := t.findIndexOnField(field)
		if ix == nil {
			continue
		}
		scanner, err := ix.Scan(op, value)
		if err != nil {
			continue
		}
		if op == types.CompEqual {
			// Equality: the tightest probe there is, take it.
			if fallback != nil {
				fallback.Close()
			}
			return scanner
		}
		if fallback == nil {
			fallback = scanner
		} else {
			scanner.Close()
		}
	}
	return fallback
}
