package btree

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/tamnm/minirel/internal/heap"
	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/storage"
	"github.com/tamnm/minirel/internal/types"
)

// Tree is a disk-resident B+-tree mapping one column's key bytes to RIDs.
// Keys carry a trailing null-flag byte; NULL keys sort above every value,
// and entries with equal keys order by RID.
type Tree struct {
	pool    *storage.BufferPool
	file    storage.FileID
	keyType types.Type
	keyLen  int // column bytes, excluding the null-flag byte

	root     int32
	freeHead int32
}

func (t *Tree) keySize() int { return t.keyLen + 1 }

// Create formats an empty tree in a fresh file: a header page and one
// empty root leaf.
func Create(pool *storage.BufferPool, file storage.FileID, keyType types.Type, keyLen int) (*Tree, error) {
	t := &Tree{pool: pool, file: file, keyType: keyType, keyLen: keyLen, freeHead: nilPage}
	if leafCapacity(t.keySize()) < 4 || internalCapacity(t.keySize()) < 4 {
		return nil, fmt.Errorf("key of %d bytes is too wide to index: %w", keyLen, status.InvalidArgument)
	}

	meta, err := pool.AllocatePage(file)
	if err != nil {
		return nil, err
	}
	pool.Unpin(meta, true)

	rootFrame, err := pool.AllocatePage(file)
	if err != nil {
		return nil, err
	}
	t.root = rootFrame.PageNo()
	t.encodeNode(&node{page: t.root, leaf: true, next: nilPage}, rootFrame.Data)
	pool.Unpin(rootFrame, true)

	if err := t.writeMeta(); err != nil {
		return nil, err
	}
	return t, nil
}

// Open loads an existing tree's header.
func Open(pool *storage.BufferPool, file storage.FileID) (*Tree, error) {
	fr, err := pool.FetchPage(file, metaPage)
	if err != nil {
		return nil, err
	}
	defer pool.Unpin(fr, false)

	if binary.LittleEndian.Uint32(fr.Data[0:]) != treeMagic {
		return nil, fmt.Errorf("not an index file: %w", status.GenericError)
	}
	t := &Tree{
		pool:     pool,
		file:     file,
		keyType:  types.Type(fr.Data[4]),
		keyLen:   int(binary.LittleEndian.Uint16(fr.Data[5:])),
		root:     int32(binary.LittleEndian.Uint32(fr.Data[7:])),
		freeHead: int32(binary.LittleEndian.Uint32(fr.Data[11:])),
	}
	return t, nil
}

func (t *Tree) writeMeta() error {
	fr, err := t.pool.FetchPage(t.file, metaPage)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(fr.Data[0:], treeMagic)
	fr.Data[4] = byte(t.keyType)
	binary.LittleEndian.PutUint16(fr.Data[5:], uint16(t.keyLen))
	binary.LittleEndian.PutUint32(fr.Data[7:], uint32(t.root))
	binary.LittleEndian.PutUint32(fr.Data[11:], uint32(t.freeHead))
	t.pool.Unpin(fr, true)
	return nil
}

// Sync flushes the index file.
func (t *Tree) Sync() error { return t.pool.FlushFile(t.file) }

// ---- node I/O ----

func (t *Tree) readNode(page int32) (*node, error) {
	fr, err := t.pool.FetchPage(t.file, page)
	if err != nil {
		return nil, err
	}
	n := t.decodeNode(page, fr.Data)
	t.pool.Unpin(fr, false)
	return n, nil
}

func (t *Tree) writeNode(n *node) error {
	fr, err := t.pool.FetchPage(t.file, n.page)
	if err != nil {
		return err
	}
	t.encodeNode(n, fr.Data)
	t.pool.Unpin(fr, true)
	return nil
}

// allocNode reuses a freed page when one exists.
func (t *Tree) allocNode() (int32, error) {
	if t.freeHead != nilPage {
		page := t.freeHead
		fr, err := t.pool.FetchPage(t.file, page)
		if err != nil {
			return 0, err
		}
		t.freeHead = int32(binary.LittleEndian.Uint32(fr.Data[0:]))
		t.pool.Unpin(fr, false)
		return page, t.writeMeta()
	}
	fr, err := t.pool.AllocatePage(t.file)
	if err != nil {
		return 0, err
	}
	page := fr.PageNo()
	t.pool.Unpin(fr, true)
	return page, nil
}

func (t *Tree) freeNode(page int32) error {
	fr, err := t.pool.FetchPage(t.file, page)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(fr.Data[0:], uint32(t.freeHead))
	t.pool.Unpin(fr, true)
	t.freeHead = page
	return t.writeMeta()
}

// ---- ordering ----

// compareKeys orders full keys: NULL sorts above every value, two NULLs
// tie (the RID breaks the tie).
func (t *Tree) compareKeys(a, b []byte) int {
	aNull, bNull := a[t.keyLen] != 0, b[t.keyLen] != 0
	switch {
	case aNull && bNull:
		return 0
	case aNull:
		return 1
	case bNull:
		return -1
	}
	return types.CompareBytes(t.keyType, a[:t.keyLen], b[:t.keyLen])
}

func (t *Tree) compareEntries(a, b entry) int {
	if c := t.compareKeys(a.key, b.key); c != 0 {
		return c
	}
	return a.rid.Compare(b.rid)
}

// lowerBound is the index of the first entry >= e.
func (t *Tree) lowerBound(n *node, e entry) int {
	return sort.Search(len(n.entries), func(i int) bool {
		return t.compareEntries(n.entries[i], e) >= 0
	})
}

// childIndex picks the subtree an entry belongs to: the child left of the
// first separator greater than the entry.
func (t *Tree) childIndex(n *node, e entry) int {
	return sort.Search(len(n.entries), func(i int) bool {
		return t.compareEntries(n.entries[i], e) > 0
	})
}

type pathElem struct {
	node     *node
	childIdx int
}

// descend walks from the root to the leaf that owns e, recording the
// internal nodes on the way for split/merge propagation.
func (t *Tree) descend(e entry) (*node, []pathElem, error) {
	n, err := t.readNode(t.root)
	if err != nil {
		return nil, nil, err
	}
	var path []pathElem
	for !n.leaf {
		i := t.childIndex(n, e)
		path = append(path, pathElem{node: n, childIdx: i})
		n, err = t.readNode(n.children[i])
		if err != nil {
			return nil, nil, err
		}
	}
	return n, path, nil
}

// ---- insert ----

// Insert adds one (key, RID) entry. The key must be keyLen column bytes
// plus the null-flag byte. Inserting the exact same entry twice fails.
func (t *Tree) Insert(key []byte, rid heap.RID) error {
	if len(key) != t.keySize() {
		return fmt.Errorf("key is %d bytes, want %d: %w", len(key), t.keySize(), status.InvalidArgument)
	}
	e := entry{key: append([]byte(nil), key...), rid: rid}

	leaf, path, err := t.descend(e)
	if err != nil {
		return err
	}
	pos := t.lowerBound(leaf, e)
	if pos < len(leaf.entries) && t.compareEntries(leaf.entries[pos], e) == 0 {
		return fmt.Errorf("duplicate index entry at %s: %w", rid, status.RecordInvalidKey)
	}
	leaf.insertEntryAt(pos, e)

	if len(leaf.entries) <= leafCapacity(t.keySize()) {
		return t.writeNode(leaf)
	}
	return t.splitLeaf(leaf, path)
}

// splitLeaf half-moves the upper entries into a fresh right sibling and
// pushes the separator up.
func (t *Tree) splitLeaf(leaf *node, path []pathElem) error {
	rightPage, err := t.allocNode()
	if err != nil {
		return err
	}
	mid := len(leaf.entries) / 2
	right := &node{
		page:    rightPage,
		leaf:    true,
		next:    leaf.next,
		entries: append([]entry(nil), leaf.entries[mid:]...),
	}
	leaf.entries = leaf.entries[:mid]
	leaf.next = rightPage

	if err := t.writeNode(leaf); err != nil {
		return err
	}
	if err := t.writeNode(right); err != nil {
		return err
	}
	return t.insertIntoParent(path, right.entries[0], rightPage)
}

// insertIntoParent threads a promoted separator up the recorded path,
// splitting internal nodes as they overflow.
func (t *Tree) insertIntoParent(path []pathElem, sep entry, rightPage int32) error {
	sep = entry{key: append([]byte(nil), sep.key...), rid: sep.rid}

	for len(path) > 0 {
		parent := path[len(path)-1]
		path = path[:len(path)-1]

		n := parent.node
		n.insertEntryAt(parent.childIdx, sep)
		n.insertChildAt(parent.childIdx+1, rightPage)

		if len(n.entries) <= internalCapacity(t.keySize()) {
			return t.writeNode(n)
		}

		newRight, err := t.allocNode()
		if err != nil {
			return err
		}
		mid := len(n.entries) / 2
		promoted := n.entries[mid]
		right := &node{
			page:     newRight,
			leaf:     false,
			next:     nilPage,
			entries:  append([]entry(nil), n.entries[mid+1:]...),
			children: append([]int32(nil), n.children[mid+1:]...),
		}
		n.entries = n.entries[:mid]
		n.children = n.children[:mid+1]

		if err := t.writeNode(n); err != nil {
			return err
		}
		if err := t.writeNode(right); err != nil {
			return err
		}
		sep, rightPage = promoted, newRight
	}

	// The root itself split: grow the tree by one level.
	newRootPage, err := t.allocNode()
	if err != nil {
		return err
	}
	oldRoot := t.root
	newRoot := &node{
		page:     newRootPage,
		leaf:     false,
		next:     nilPage,
		entries:  []entry{sep},
		children: []int32{oldRoot, rightPage},
	}
	if err := t.writeNode(newRoot); err != nil {
		return err
	}
	t.root = newRootPage
	return t.writeMeta()
}

// ---- delete ----

// Delete removes the exact (key, RID) entry. A missing entry fails with
// status.RecordInvalidKey.
func (t *Tree) Delete(key []byte, rid heap.RID) error {
	if len(key) != t.keySize() {
		return fmt.Errorf("key is %d bytes, want %d: %w", len(key), t.keySize(), status.InvalidArgument)
	}
	e := entry{key: key, rid: rid}

	leaf, path, err := t.descend(e)
	if err != nil {
		return err
	}
	pos := t.lowerBound(leaf, e)
	if pos >= len(leaf.entries) || t.compareEntries(leaf.entries[pos], e) != 0 {
		return fmt.Errorf("no index entry at %s: %w", rid, status.RecordInvalidKey)
	}
	leaf.removeEntryAt(pos)

	return t.rebalanceAfterDelete(leaf, path)
}

func (t *Tree) minEntries(n *node) int {
	if n.leaf {
		return leafCapacity(t.keySize()) / 2
	}
	return internalCapacity(t.keySize()) / 2
}

// rebalanceAfterDelete restores the half-full invariant by borrowing from
// a sibling when it can spare an entry, merging otherwise, walking up.
func (t *Tree) rebalanceAfterDelete(n *node, path []pathElem) error {
	for {
		if len(path) == 0 {
			// Root: a leaf root may hold any count; an internal root
			// with no separators collapses into its only child.
			if !n.leaf && len(n.entries) == 0 {
				t.root = n.children[0]
				if err := t.freeNode(n.page); err != nil {
					return err
				}
				return t.writeMeta()
			}
			return t.writeNode(n)
		}
		if len(n.entries) >= t.minEntries(n) {
			return t.writeNode(n)
		}

		parent := path[len(path)-1]
		path = path[:len(path)-1]
		p, i := parent.node, parent.childIdx

		var left, right *node
		var err error
		if i > 0 {
			if left, err = t.readNode(p.children[i-1]); err != nil {
				return err
			}
		}
		if i < len(p.children)-1 {
			if right, err = t.readNode(p.children[i+1]); err != nil {
				return err
			}
		}

		switch {
		case left != nil && len(left.entries) > t.minEntries(left):
			t.borrowFromLeft(p, i, left, n)
			return t.writeAll(left, n, p)
		case right != nil && len(right.entries) > t.minEntries(right):
			t.borrowFromRight(p, i, n, right)
			return t.writeAll(n, right, p)
		case left != nil:
			if err := t.merge(p, i-1, left, n); err != nil {
				return err
			}
		default:
			if err := t.merge(p, i, n, right); err != nil {
				return err
			}
		}
		n = p
	}
}

func (t *Tree) borrowFromLeft(p *node, i int, left, n *node) {
	if n.leaf {
		moved := left.entries[len(left.entries)-1]
		left.entries = left.entries[:len(left.entries)-1]
		n.insertEntryAt(0, moved)
		p.entries[i-1] = copyEntry(moved)
		return
	}
	// Rotate through the parent separator.
	sep := p.entries[i-1]
	movedChild := left.children[len(left.children)-1]
	movedEntry := left.entries[len(left.entries)-1]
	left.entries = left.entries[:len(left.entries)-1]
	left.children = left.children[:len(left.children)-1]
	n.insertEntryAt(0, sep)
	n.insertChildAt(0, movedChild)
	p.entries[i-1] = movedEntry
}

func (t *Tree) borrowFromRight(p *node, i int, n, right *node) {
	if n.leaf {
		moved := right.entries[0]
		right.removeEntryAt(0)
		n.entries = append(n.entries, moved)
		p.entries[i] = copyEntry(right.entries[0])
		return
	}
	sep := p.entries[i]
	movedChild := right.children[0]
	movedEntry := right.entries[0]
	right.removeEntryAt(0)
	right.removeChildAt(0)
	n.entries = append(n.entries, sep)
	n.children = append(n.children, movedChild)
	p.entries[i] = movedEntry
}

func copyEntry(e entry) entry {
	return entry{key: append([]byte(nil), e.key...), rid: e.rid}
}

// merge folds right into left and drops the separator at sepIdx.
func (t *Tree) merge(p *node, sepIdx int, left, right *node) error {
	if left.leaf {
		left.entries = append(left.entries, right.entries...)
		left.next = right.next
	} else {
		left.entries = append(left.entries, p.entries[sepIdx])
		left.entries = append(left.entries, right.entries...)
		left.children = append(left.children, right.children...)
	}
	p.removeEntryAt(sepIdx)
	p.removeChildAt(sepIdx + 1)

	if err := t.writeNode(left); err != nil {
		return err
	}
	return t.freeNode(right.page)
}

func (t *Tree) writeAll(nodes ...*node) error {
	for _, n := range nodes {
		if err := t.writeNode(n); err != nil {
			return err
		}
	}
	return nil
}

// leftmostLeaf is where full traversals start.
func (t *Tree) leftmostLeaf() (*node, error) {
	n, err := t.readNode(t.root)
	if err != nil {
		return nil, err
	}
	for !n.leaf {
		n, err = t.readNode(n.children[0])
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}
