package btree

import (
	"fmt"

	"github.com/tamnm/minirel/internal/heap"
	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/types"
)

// Scanner yields the RIDs whose keys satisfy one comparison against a
// bound, in key order. The supported operators are =, <>, <, <=, > and >=.
// A scanner built from a NULL comparison key yields nothing: a comparison
// with NULL is unknown, so no row qualifies. Stored NULL keys likewise
// never satisfy a comparison and end the scan when reached, since they
// sort above every value.
type Scanner struct {
	tree *Tree
	op   compareMode
	key  []byte // bound, keySize bytes; nil for a full traversal

	node *node
	idx  int
	done bool
}

type compareMode int

const (
	scanAll compareMode = iota
	scanEqual
	scanNotEqual
	scanLess
	scanLessEqual
	scanGreater
	scanGreaterEqual
)

// ScanAll traverses every entry in key order, NULL keys included. Tests
// use it to cross-check an index against its heap.
func (t *Tree) ScanAll() (*Scanner, error) {
	return t.newScanner(scanAll, nil)
}

// Scan positions a scanner for one comparison operator from the WHERE
// surface. Only ordered operators can be served by an index.
func (t *Tree) Scan(op types.CompOp, key []byte) (*Scanner, error) {
	mode, ok := scanModes[op]
	if !ok {
		return nil, fmt.Errorf("operator %q cannot drive an index scan: %w", op, status.InvalidArgument)
	}
	return t.newScanner(mode, key)
}

var scanModes = map[types.CompOp]compareMode{
	types.CompEqual:        scanEqual,
	types.CompNotEqual:     scanNotEqual,
	types.CompLess:         scanLess,
	types.CompLessEqual:    scanLessEqual,
	types.CompGreater:      scanGreater,
	types.CompGreaterEqual: scanGreaterEqual,
}

func (t *Tree) newScanner(op compareMode, key []byte) (*Scanner, error) {
	s := &Scanner{tree: t, op: op, key: key}
	if op != scanAll {
		if len(key) != t.keySize() {
			return nil, fmt.Errorf("scan key is %d bytes, want %d: %w", len(key), t.keySize(), status.InvalidArgument)
		}
		if key[t.keyLen] != 0 {
			// NULL comparison key: nothing can match.
			s.done = true
			return s, nil
		}
	}

	var err error
	switch op {
	case scanAll, scanLess, scanLessEqual, scanNotEqual:
		s.node, err = t.leftmostLeaf()
		s.idx = 0
	case scanEqual, scanGreaterEqual:
		s.node, s.idx, err = t.seek(entry{key: key, rid: heap.RID{Page: -1 << 30, Slot: -1 << 30}})
	case scanGreater:
		s.node, s.idx, err = t.seek(entry{key: key, rid: heap.RID{Page: 1<<31 - 1, Slot: 1<<31 - 1}})
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// seek finds the leaf position of the first entry >= e.
func (t *Tree) seek(e entry) (*node, int, error) {
	leaf, _, err := t.descend(e)
	if err != nil {
		return nil, 0, err
	}
	idx := t.lowerBound(leaf, e)
	return leaf, idx, nil
}

// Next returns the next qualifying RID, or a status.RecordEOF error.
func (s *Scanner) Next() (heap.RID, error) {
	for !s.done {
		if s.idx >= len(s.node.entries) {
			if s.node.next == nilPage {
				break
			}
			next, err := s.tree.readNode(s.node.next)
			if err != nil {
				return heap.RID{}, err
			}
			s.node, s.idx = next, 0
			continue
		}

		e := s.node.entries[s.idx]
		s.idx++

		isNull := e.key[s.tree.keyLen] != 0
		if s.op == scanAll {
			return e.rid, nil
		}
		if isNull {
			// The NULL region is the tail of the key space; no
			// comparison scan can match anything from here on.
			break
		}

		cmp := s.tree.compareKeys(e.key, s.key)
		switch s.op {
		case scanEqual:
			if cmp != 0 {
				s.done = true
				return heap.RID{}, fmt.Errorf("scan exhausted: %w", status.RecordEOF)
			}
			return e.rid, nil
		case scanLess:
			if cmp >= 0 {
				s.done = true
				return heap.RID{}, fmt.Errorf("scan exhausted: %w", status.RecordEOF)
			}
			return e.rid, nil
		case scanLessEqual:
			if cmp > 0 {
				s.done = true
				return heap.RID{}, fmt.Errorf("scan exhausted: %w", status.RecordEOF)
			}
			return e.rid, nil
		case scanGreater, scanGreaterEqual:
			return e.rid, nil
		case scanNotEqual:
			if cmp == 0 {
				continue
			}
			return e.rid, nil
		}
	}
	s.done = true
	return heap.RID{}, fmt.Errorf("scan exhausted: %w", status.RecordEOF)
}

// Close releases the scanner. Nodes are decoded copies, so there is no
// pin to drop; Close only makes further Next calls return EOF.
func (s *Scanner) Close() { s.done = true }
