package heap

import (
	"encoding/binary"

	"github.com/tamnm/minirel/internal/storage"
)

// Record page layout:
//
//	+----------------------------+ 0
//	| recordSize u32             |
//	| capacity   u32             |
//	| count      u32             |
//	+----------------------------+ 12
//	| free-slot bitmap           |  1 bit per slot, 1 = occupied
//	+----------------------------+ 12 + ceil(capacity/8)
//	| record 0 | record 1 | ...  |  fixed recordSize bytes each
//	+----------------------------+
const pageHeaderLen = 12

// recordPage interprets a pinned frame as a page of fixed-size records.
type recordPage struct {
	data []byte
}

func (p recordPage) recordSize() int { return int(binary.LittleEndian.Uint32(p.data[0:])) }
func (p recordPage) capacity() int   { return int(binary.LittleEndian.Uint32(p.data[4:])) }
func (p recordPage) count() int      { return int(binary.LittleEndian.Uint32(p.data[8:])) }

func (p recordPage) setCount(n int) {
	binary.LittleEndian.PutUint32(p.data[8:], uint32(n))
}

// initialized reports whether the page has ever been formatted. A fresh
// page is all zeroes, and no formatted page has recordSize 0.
func (p recordPage) initialized() bool { return p.recordSize() != 0 }

func (p recordPage) format(recordSize int) {
	for i := range p.data {
		p.data[i] = 0
	}
	binary.LittleEndian.PutUint32(p.data[0:], uint32(recordSize))
	binary.LittleEndian.PutUint32(p.data[4:], uint32(pageCapacity(recordSize)))
}

// pageCapacity is the largest slot count whose header, bitmap and payload
// all fit in one page.
func pageCapacity(recordSize int) int {
	c := (storage.PageSize - pageHeaderLen) * 8 / (recordSize*8 + 1)
	for c > 0 && pageHeaderLen+(c+7)/8+c*recordSize > storage.PageSize {
		c--
	}
	return c
}

func (p recordPage) bitmapLen() int { return (p.capacity() + 7) / 8 }

func (p recordPage) occupied(slot int) bool {
	return p.data[pageHeaderLen+slot/8]&(1<<uint(slot%8)) != 0
}

func (p recordPage) setOccupied(slot int, occupied bool) {
	if occupied {
		p.data[pageHeaderLen+slot/8] |= 1 << uint(slot%8)
	} else {
		p.data[pageHeaderLen+slot/8] &^= 1 << uint(slot%8)
	}
}

// freeSlot finds the first unoccupied slot, or -1 when the page is full.
func (p recordPage) freeSlot() int {
	capacity := p.capacity()
	for i := 0; i < capacity; i++ {
		if !p.occupied(i) {
			return i
		}
	}
	return -1
}

func (p recordPage) record(slot int) []byte {
	off := pageHeaderLen + p.bitmapLen() + slot*p.recordSize()
	return p.data[off : off+p.recordSize()]
}
