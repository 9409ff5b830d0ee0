package btree

import (
	"encoding/binary"

	"github.com/tamnm/minirel/internal/heap"
	"github.com/tamnm/minirel/internal/storage"
)

// On-disk layout.
//
// Page 0 is the tree header:
//
//	magic u32 | keyType u8 | keyLen u16 | root i32 | freeHead i32
//
// Every other page is a node:
//
//	kind u8 | numKeys u16 | next i32 | pad to 16
//	leaf:     numKeys * (key | ridPage i32 | ridSlot i32)
//	internal: child0 i32, then numKeys * (key | ridPage | ridSlot | child i32)
//
// A key is the column payload plus one trailing null-flag byte. Separator
// keys in internal nodes carry the RID of the entry they were promoted
// from, so every key in the tree is unique and duplicate column values
// traverse in stable RID order.
const (
	treeMagic = 0x42545245 // "BTRE"

	metaPage      = int32(0)
	nodeHeaderLen = 16

	kindLeaf     = byte(1)
	kindInternal = byte(2)

	nilPage = int32(-1)
)

type entry struct {
	key []byte // keyLen column bytes + 1 null-flag byte
	rid heap.RID
}

type node struct {
	page int32
	leaf bool
	next int32 // right sibling, leaves only

	entries  []entry // leaf payload, or internal separators
	children []int32 // len(entries)+1, internals only
}

// leafCapacity and internalCapacity are the entry counts that fit a page.
func leafCapacity(keySize int) int {
	return (storage.PageSize - nodeHeaderLen) / (keySize + 8)
}

func internalCapacity(keySize int) int {
	return (storage.PageSize - nodeHeaderLen - 4) / (keySize + 8 + 4)
}

func (t *Tree) decodeNode(page int32, data []byte) *node {
	keySize := t.keySize()
	n := &node{
		page: page,
		leaf: data[0] == kindLeaf,
		next: int32(binary.LittleEndian.Uint32(data[3:])),
	}
	numKeys := int(binary.LittleEndian.Uint16(data[1:]))
	off := nodeHeaderLen

	if !n.leaf {
		n.children = make([]int32, 0, numKeys+1)
		n.children = append(n.children, int32(binary.LittleEndian.Uint32(data[off:])))
		off += 4
	}
	n.entries = make([]entry, 0, numKeys)
	for i := 0; i < numKeys; i++ {
		key := make([]byte, keySize)
		copy(key, data[off:off+keySize])
		off += keySize
		var rid heap.RID
		rid.Page = int32(binary.LittleEndian.Uint32(data[off:]))
		rid.Slot = int32(binary.LittleEndian.Uint32(data[off+4:]))
		off += 8
		n.entries = append(n.entries, entry{key: key, rid: rid})
		if !n.leaf {
			n.children = append(n.children, int32(binary.LittleEndian.Uint32(data[off:])))
			off += 4
		}
	}
	return n
}

func (t *Tree) encodeNode(n *node, data []byte) {
	for i := range data {
		data[i] = 0
	}
	if n.leaf {
		data[0] = kindLeaf
	} else {
		data[0] = kindInternal
	}
	binary.LittleEndian.PutUint16(data[1:], uint16(len(n.entries)))
	binary.LittleEndian.PutUint32(data[3:], uint32(n.next))
	off := nodeHeaderLen

	if !n.leaf {
		binary.LittleEndian.PutUint32(data[off:], uint32(n.children[0]))
		off += 4
	}
	for i, e := range n.entries {
		copy(data[off:], e.key)
		off += t.keySize()
		binary.LittleEndian.PutUint32(data[off:], uint32(e.rid.Page))
		binary.LittleEndian.PutUint32(data[off+4:], uint32(e.rid.Slot))
		off += 8
		if !n.leaf {
			binary.LittleEndian.PutUint32(data[off:], uint32(n.children[i+1]))
			off += 4
		}
	}
}

func (n *node) insertEntryAt(i int, e entry) {
	n.entries = append(n.entries, entry{})
	copy(n.entries[i+1:], n.entries[i:])
	n.entries[i] = e
}

func (n *node) removeEntryAt(i int) {
	n.entries = append(n.entries[:i], n.entries[i+1:]...)
}

func (n *node) insertChildAt(i int, page int32) {
	n.children = append(n.children, 0)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = page
}

func (n *node) removeChildAt(i int) {
	n.children = append(n.children[:i], n.children[i+1:]...)
}
