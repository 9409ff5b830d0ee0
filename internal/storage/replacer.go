package storage

import "container/list"

// Replacer picks the frame to evict when the pool is full.
type Replacer interface {
	RecordAccess(frameID int)
	SetEvictable(frameID int, evictable bool)
	Evict() (frameID int, ok bool)
	Remove(frameID int)
}

// lruReplacer evicts the least recently used evictable frame. Pinned frames
// are simply not evictable.
type lruReplacer struct {
	order     *list.List // front = most recent
	elems     map[int]*list.Element
	evictable map[int]bool
}

func newLRUReplacer() *lruReplacer {
	return &lruReplacer{
		order:     list.New(),
		elems:     make(map[int]*list.Element),
		evictable: make(map[int]bool),
	}
}

func (r *lruReplacer) RecordAccess(frameID int) {
	if e, ok := r.elems[frameID]; ok {
		r.order.MoveToFront(e)
		return
	}
	r.elems[frameID] = r.order.PushFront(frameID)
}

func (r *lruReplacer) SetEvictable(frameID int, evictable bool) {
	if _, ok := r.elems[frameID]; !ok {
		return
	}
	r.evictable[frameID] = evictable
}

func (r *lruReplacer) Evict() (int, bool) {
	for e := r.order.Back(); e != nil; e = e.Prev() {
		id := e.Value.(int)
		if r.evictable[id] {
			r.remove(id)
			return id, true
		}
	}
	return 0, false
}

func (r *lruReplacer) Remove(frameID int) { r.remove(frameID) }

func (r *lruReplacer) remove(frameID int) {
	if e, ok := r.elems[frameID]; ok {
		r.order.Remove(e)
		delete(r.elems, frameID)
		delete(r.evictable, frameID)
	}
}
