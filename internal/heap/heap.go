package heap

import (
	"fmt"

	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/storage"
)

// Filter screens raw record payloads during a scan. The record manager
// knows nothing about columns; the table layer supplies the predicate.
type Filter interface {
	Match(record []byte) bool
}

// RecordFile is a heap of fixed-size records over one page file. It deals
// only in opaque payloads of exactly recordSize bytes.
type RecordFile struct {
	pool       *storage.BufferPool
	file       storage.FileID
	recordSize int
}

func Open(pool *storage.BufferPool, file storage.FileID, recordSize int) (*RecordFile, error) {
	if recordSize <= 0 || pageCapacity(recordSize) == 0 {
		return nil, fmt.Errorf("record size %d does not fit a page: %w", recordSize, status.InvalidArgument)
	}
	return &RecordFile{pool: pool, file: file, recordSize: recordSize}, nil
}

func (f *RecordFile) RecordSize() int { return f.recordSize }

// Insert copies the payload into the first page with a free slot,
// allocating a new page when every page is full.
func (f *RecordFile) Insert(data []byte) (RID, error) {
	if len(data) != f.recordSize {
		return RID{}, fmt.Errorf("payload is %d bytes, want %d: %w", len(data), f.recordSize, status.InvalidArgument)
	}

	pages, err := f.pool.PageCount(f.file)
	if err != nil {
		return RID{}, err
	}
	for pageNo := int32(0); pageNo < pages; pageNo++ {
		fr, err := f.pool.FetchPage(f.file, pageNo)
		if err != nil {
			return RID{}, err
		}
		p := recordPage{fr.Data}
		if !p.initialized() {
			p.format(f.recordSize)
		}
		if slot := p.freeSlot(); slot >= 0 {
			rid := RID{Page: pageNo, Slot: int32(slot)}
			f.place(p, slot, data)
			f.pool.Unpin(fr, true)
			return rid, nil
		}
		f.pool.Unpin(fr, false)
	}

	fr, err := f.pool.AllocatePage(f.file)
	if err != nil {
		return RID{}, err
	}
	p := recordPage{fr.Data}
	p.format(f.recordSize)
	rid := RID{Page: fr.PageNo(), Slot: 0}
	f.place(p, 0, data)
	f.pool.Unpin(fr, true)
	return rid, nil
}

func (f *RecordFile) place(p recordPage, slot int, data []byte) {
	copy(p.record(slot), data)
	p.setOccupied(slot, true)
	p.setCount(p.count() + 1)
}

// Get copies the record out; the caller owns the returned slice.
func (f *RecordFile) Get(rid RID) ([]byte, error) {
	fr, p, err := f.pin(rid)
	if err != nil {
		return nil, err
	}
	defer f.pool.Unpin(fr, false)

	out := make([]byte, f.recordSize)
	copy(out, p.record(int(rid.Slot)))
	return out, nil
}

// Update overwrites the record in place; records never change size.
func (f *RecordFile) Update(rid RID, data []byte) error {
	if len(data) != f.recordSize {
		return fmt.Errorf("payload is %d bytes, want %d: %w", len(data), f.recordSize, status.InvalidArgument)
	}
	fr, p, err := f.pin(rid)
	if err != nil {
		return err
	}
	copy(p.record(int(rid.Slot)), data)
	f.pool.Unpin(fr, true)
	return nil
}

// Delete frees the slot; it is reusable by the next Insert.
func (f *RecordFile) Delete(rid RID) error {
	fr, p, err := f.pin(rid)
	if err != nil {
		return err
	}
	p.setOccupied(int(rid.Slot), false)
	p.setCount(p.count() - 1)
	f.pool.Unpin(fr, true)
	return nil
}

// pin fetches the record's page and validates the slot address.
func (f *RecordFile) pin(rid RID) (*storage.Frame, recordPage, error) {
	fr, err := f.pool.FetchPage(f.file, rid.Page)
	if err != nil {
		return nil, recordPage{}, err
	}
	p := recordPage{fr.Data}
	if !p.initialized() || int(rid.Slot) >= p.capacity() || !p.occupied(int(rid.Slot)) {
		f.pool.Unpin(fr, false)
		return nil, recordPage{}, fmt.Errorf("no record at %s: %w", rid, status.RecordInvalidKey)
	}
	return fr, p, nil
}

// Scan opens an iterator over live records. A nil filter matches all.
func (f *RecordFile) Scan(filter Filter) *Scanner {
	return &Scanner{file: f, filter: filter}
}
