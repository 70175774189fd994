package alloc

import (
	"github.com/heaplab/heapscope/heap/arena"
	"github.com/heaplab/heapscope/internal/format"
)

// nilOffset terminates the free-list chain.
const nilOffset = ^uint64(0)

// freeList is a singly linked chain of free spans threaded through the
// arena itself: the first 16 bytes of each span hold its size and the
// offset of the next span. Offsets rather than pointers keep the
// structure valid across snapshots and avoid aliasing the buffer.
//
// The list is a search structure over the same spans the block table
// tracks; allocators keep the two consistent after every mutation.
type freeList struct {
	a    *arena.Arena
	head uint64
}

func newFreeList(a *arena.Arena) *freeList {
	return &freeList{a: a, head: nilOffset}
}

func (f *freeList) reset() {
	f.head = nilOffset
}

func (f *freeList) empty() bool {
	return f.head == nilOffset
}

func (f *freeList) nodeSize(off uint64) uint64 {
	return format.ReadU64(f.a.Bytes(), off)
}

func (f *freeList) nodeNext(off uint64) uint64 {
	return format.ReadU64(f.a.Bytes(), off+8)
}

func (f *freeList) writeNode(off, size, next uint64) {
	buf := f.a.Bytes()
	format.PutU64(buf, off, size)
	format.PutU64(buf, off+8, next)
}

// push inserts the span at the head of the list.
func (f *freeList) push(off, size uint64) {
	f.writeNode(off, size, f.head)
	f.head = off
}

// resize rewrites the size of the node at off. The node must be linked.
func (f *freeList) resize(off, size uint64) {
	format.PutU64(f.a.Bytes(), off, size)
}

// remove unlinks the node at off. It reports false when no such node is
// linked.
func (f *freeList) remove(off uint64) bool {
	prev := nilOffset
	for cur := f.head; cur != nilOffset; cur = f.nodeNext(cur) {
		if cur == off {
			if prev == nilOffset {
				f.head = f.nodeNext(cur)
			} else {
				f.writeNode(prev, f.nodeSize(prev), f.nodeNext(cur))
			}
			return true
		}
		prev = cur
	}
	return false
}

// bestFit walks the whole list and returns the offset and size of the
// smallest span satisfying need. Ties keep the first span encountered.
func (f *freeList) bestFit(need uint64) (off, size uint64, ok bool) {
	for cur := f.head; cur != nilOffset; cur = f.nodeNext(cur) {
		sz := f.nodeSize(cur)
		if sz < need {
			continue
		}
		if !ok || sz < size {
			off, size, ok = cur, sz, true
		}
	}
	return off, size, ok
}

// take removes and returns the best-fit span for need.
func (f *freeList) take(need uint64) (off, size uint64, ok bool) {
	off, size, ok = f.bestFit(need)
	if ok {
		f.remove(off)
	}
	return off, size, ok
}

// span is a free-list entry materialized for rebuilds and tests.
type span struct {
	off, size uint64
}

// spans returns the linked spans in list order.
func (f *freeList) spans() []span {
	var out []span
	for cur := f.head; cur != nilOffset; cur = f.nodeNext(cur) {
		out = append(out, span{off: cur, size: f.nodeSize(cur)})
	}
	return out
}

// rebuild discards the chain and relinks the given spans in order.
func (f *freeList) rebuild(spans []span) {
	f.reset()
	for _, s := range spans {
		f.push(s.off, s.size)
	}
}
