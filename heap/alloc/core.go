package alloc

import (
	"github.com/heaplab/heapscope/heap/arena"
	"github.com/heaplab/heapscope/heap/block"
	"github.com/heaplab/heapscope/heap/oplog"
	"github.com/heaplab/heapscope/heap/stats"
	"github.com/heaplab/heapscope/internal/format"
)

// releaseResult classifies the outcome of core.release.
type releaseResult int

const (
	// releaseNone: nil or out-of-range handle. Nothing logged.
	releaseNone releaseResult = iota

	// releaseUnmatched: plausible handle but no Allocated row at that
	// offset. The caller logs an unattributed FREE; table and free list
	// stay untouched.
	releaseUnmatched

	// releaseOK: the block was marked Freed and its span pushed onto the
	// free list.
	releaseOK
)

// spanFor returns the span a request occupies: the aligned size plus
// the embedded header, floored at the free-list node footprint so a
// later free can thread the span without writing past it.
func spanFor(requested uint64) uint64 {
	need := format.Align8(requested) + format.HeaderSize
	if need < format.FreeNodeSize {
		need = format.FreeNodeSize
	}
	return need
}

// core is the state shared by the buffer-backed free-list allocators
// (BestFit and Coalescing): arena, block table, free list, operation log,
// statistics and the instance clock.
type core struct {
	arena *arena.Arena
	table *block.Table
	log   *oplog.Log
	free  *freeList
	clock block.Clock
	st    stats.Stats
}

// setup (re)initializes the heap to the requested capacity. The arena is
// always sized at format.MaxHeapSize, like the fixed backing buffer of
// an embedded allocator; the tracked capacity is the clamped size.
func (c *core) setup(requested uint64) {
	if c.arena == nil {
		c.arena = arena.NewBacking(format.MaxHeapSize)
		c.table = block.NewTable()
		c.log = oplog.NewLog()
		c.free = newFreeList(c.arena)
	}

	total := format.Clamp(requested)
	c.clock.Reset()
	c.st.Seed(total)

	c.free.reset()
	c.free.push(0, total)

	c.table.Reset(block.Block{
		Offset:    0,
		Size:      total,
		State:     block.Free,
		Timestamp: c.clock.Tick(),
	})

	c.log.Clear()
	c.st.Update(c.table.View())
	c.log.Append(oplog.Entry{
		Action:  oplog.ActionInit,
		Size:    requested,
		Success: true,
	}, &c.clock)
}

// logMallocFail records an out-of-space malloc.
func (c *core) logMallocFail(size uint64) {
	c.log.Append(oplog.Entry{
		Action:       oplog.ActionMalloc,
		AllocationID: c.st.NextAllocationID,
		Size:         size,
	}, &c.clock)
}

// claim turns the free span at off (already removed from the free list)
// into an allocation of requested bytes. It writes the embedded size
// header, splits the span when the excess is worth tracking, stamps the
// table row, logs the MALLOC, and recomputes statistics.
func (c *core) claim(off, requested uint64) Handle {
	aligned := format.Align8(requested)
	need := spanFor(requested)
	id := c.st.NextAllocationID

	format.PutU64(c.arena.Bytes(), off, aligned)

	if idx := c.table.Find(0, off, block.Free, block.Freed); idx >= 0 {
		row := c.table.At(idx)
		orig := row.Size

		// Split only when the remainder is large enough to be useful;
		// otherwise the allocation absorbs the whole span.
		if orig > need+format.SplitSlack && !c.table.Full() {
			rem := block.Block{
				Offset:    off + need,
				Size:      orig - need,
				State:     row.State, // remainder keeps Free or Freed
				Timestamp: c.clock.Tick(),
			}
			c.table.Append(rem)
			c.free.push(rem.Offset, rem.Size)

			// Append can reallocate the table's backing array; re-fetch
			// before mutating the row.
			row = c.table.At(idx)
			row.Size = need
		}

		row.State = block.Allocated
		row.AllocationID = id
		row.Timestamp = c.clock.Tick()
		row.RequestedSize = requested
	}

	c.log.Append(oplog.Entry{
		Action:       oplog.ActionMalloc,
		AllocationID: id,
		Size:         requested,
		Offset:       off,
		Success:      true,
	}, &c.clock)
	c.st.NextAllocationID++

	c.table.Sort()
	c.st.Update(c.table.View())

	return Handle(off + format.HeaderSize)
}

// release marks the allocation behind h as Freed and links its span into
// the free list. It performs no logging; callers finish with the policy
// of their variant.
func (c *core) release(h Handle) (off uint64, id uint32, res releaseResult) {
	if h == NoHandle {
		return 0, 0, releaseNone
	}
	user := uint64(h)
	if user < format.HeaderSize || user > c.st.TotalSize {
		return 0, 0, releaseNone
	}
	off = user - format.HeaderSize

	idx := c.table.Find(0, off, block.Allocated)
	if idx < 0 {
		return off, 0, releaseUnmatched
	}

	row := c.table.At(idx)
	id = row.AllocationID
	row.State = block.Freed
	row.AllocationID = 0
	row.RequestedSize = 0

	c.free.push(off, row.Size)
	return off, id, releaseOK
}

// logFree records a FREE (attributed or not), re-sorts the table and
// recomputes statistics.
func (c *core) logFree(off uint64, id uint32) {
	c.log.Append(oplog.Entry{
		Action:       oplog.ActionFree,
		AllocationID: id,
		Offset:       off,
		Success:      true,
	}, &c.clock)
	c.table.Sort()
	c.st.Update(c.table.View())
}

func (c *core) statsSnapshot() stats.Stats {
	s := c.st
	s.TimestampCounter = c.clock.Now()
	return s
}

func (c *core) blocks() []block.Block {
	return c.table.Snapshot()
}

func (c *core) logs() []oplog.Entry {
	return c.log.Entries()
}

func (c *core) clearLog() {
	c.log.Clear()
}

// bytes returns the user slice behind a live handle, or nil.
func (c *core) bytes(h Handle) []byte {
	if h == NoHandle {
		return nil
	}
	user := uint64(h)
	if user < format.HeaderSize || user >= c.st.TotalSize {
		return nil
	}
	aligned := format.ReadU64(c.arena.Bytes(), user-format.HeaderSize)
	if user+aligned > c.st.TotalSize {
		return nil
	}
	return c.arena.Bytes()[user : user+aligned]
}
