package alloc

import (
	"github.com/heaplab/heapscope/heap/arena"
	"github.com/heaplab/heapscope/heap/block"
	"github.com/heaplab/heapscope/heap/oplog"
	"github.com/heaplab/heapscope/heap/stats"
	"github.com/heaplab/heapscope/internal/format"
)

// Bump is the monotonic-cursor allocator: O(1) allocation, no headers,
// no free list, and no reuse. Free is accepted but never reclaims space;
// Init/Reset are the only way to recover memory. One conceptual free
// block always trails the cursor.
type Bump struct {
	arena  *arena.Arena
	table  *block.Table
	log    *oplog.Log
	clock  block.Clock
	st     stats.Stats
	cursor uint64
}

// NewBump returns an uninitialized bump allocator; call Init before use.
func NewBump() *Bump {
	return &Bump{}
}

// Init resets the heap to the given capacity (clamped to the compile-time
// maximum) with the cursor at zero.
func (b *Bump) Init(size uint64) {
	if b.arena == nil {
		b.arena = arena.NewBacking(format.MaxHeapSize)
		b.table = block.NewTable()
		b.log = oplog.NewLog()
	}

	total := format.Clamp(size)
	b.clock.Reset()
	b.st.Seed(total)
	b.cursor = 0

	b.table.Reset(block.Block{
		Offset:    0,
		Size:      total,
		State:     block.Free,
		Timestamp: b.clock.Tick(),
	})

	b.log.Clear()
	b.updateStats()
	b.log.Append(oplog.Entry{
		Action:  oplog.ActionInit,
		Size:    size,
		Success: true,
	}, &b.clock)
}

// Malloc advances the cursor by the aligned size. Out of space is the
// only failure mode: no search, no retry.
func (b *Bump) Malloc(size uint64) (Handle, error) {
	aligned := format.Align8(size)

	if b.cursor+aligned > b.st.TotalSize {
		b.log.Append(oplog.Entry{
			Action:       oplog.ActionMalloc,
			AllocationID: b.st.NextAllocationID,
			Size:         size,
		}, &b.clock)
		return NoHandle, ErrNoSpace
	}

	off := b.cursor
	id := b.st.NextAllocationID

	if freeIdx := b.findFreeBlock(); freeIdx >= 0 && !b.table.Full() {
		b.table.Append(block.Block{
			Offset:        off,
			Size:          aligned,
			State:         block.Allocated,
			AllocationID:  id,
			Timestamp:     b.clock.Tick(),
			RequestedSize: size,
		})

		// Shrink the trailing free block; drop it when exhausted.
		free := b.table.At(freeIdx)
		free.Offset = off + aligned
		free.Size = b.st.TotalSize - free.Offset
		if free.Size == 0 {
			b.table.RemoveAt(freeIdx)
		}
	}

	b.log.Append(oplog.Entry{
		Action:       oplog.ActionMalloc,
		AllocationID: id,
		Size:         size,
		Offset:       off,
		Success:      true,
	}, &b.clock)
	b.st.NextAllocationID++
	b.cursor += aligned

	b.updateStats()
	return Handle(off), nil
}

// Free logs the release but never reclaims: bump allocation cannot free
// individual blocks. Nil handles are ignored entirely.
func (b *Bump) Free(h Handle) {
	if h == NoHandle {
		return
	}
	b.log.Append(oplog.Entry{
		Action: oplog.ActionFree,
		Offset: uint64(h),
	}, &b.clock)
}

// Reset re-initializes with the previously configured capacity.
func (b *Bump) Reset() {
	b.Init(b.st.TotalSize)
}

// Stats returns the aggregate statistics.
func (b *Bump) Stats() stats.Stats {
	s := b.st
	s.TimestampCounter = b.clock.Now()
	return s
}

// Blocks returns the block table sorted by offset.
func (b *Bump) Blocks() []block.Block {
	return b.table.Snapshot()
}

// Logs returns the operation trace.
func (b *Bump) Logs() []oplog.Entry {
	return b.log.Entries()
}

// ClearLog empties the operation trace.
func (b *Bump) ClearLog() {
	b.log.Clear()
}

// Bytes returns the user slice behind a live handle, or nil.
func (b *Bump) Bytes(h Handle) []byte {
	if h == NoHandle {
		return nil
	}
	idx := b.table.Find(0, uint64(h), block.Allocated)
	if idx < 0 {
		return nil
	}
	row := b.table.At(idx)
	return b.arena.Bytes()[row.Offset : row.Offset+row.Size]
}

func (b *Bump) findFreeBlock() int {
	for i := 0; i < b.table.Len(); i++ {
		if b.table.At(i).State == block.Free {
			return i
		}
	}
	return -1
}

// updateStats derives the bump-specific view: the heap is exactly the
// region before the cursor plus one trailing free block, so there is
// never external fragmentation and alignment waste is not tracked.
func (b *Bump) updateStats() {
	b.st.AllocatedBytes = b.cursor
	b.st.FreeBytes = b.st.TotalSize - b.cursor
	b.st.AllocationCount = 0
	b.st.FreeBlockCount = 0

	for i := 0; i < b.table.Len(); i++ {
		switch b.table.At(i).State {
		case block.Allocated:
			b.st.AllocationCount++
		case block.Free:
			b.st.FreeBlockCount = 1
		}
	}

	if b.st.FreeBytes > 0 {
		b.st.LargestFreeBlock = b.st.FreeBytes
		b.st.SmallestFreeBlock = b.st.FreeBytes
	} else {
		b.st.LargestFreeBlock = 0
		b.st.SmallestFreeBlock = 0
	}
	b.st.ExternalFragmentation = 0
	b.st.InternalFragmentation = 0

	if b.st.MinFreeBytes == 0 || b.st.FreeBytes < b.st.MinFreeBytes {
		b.st.MinFreeBytes = b.st.FreeBytes
	}
}

// Compile-time interface check
var _ Allocator = (*Bump)(nil)
