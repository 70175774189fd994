package alloc

import (
	"github.com/heaplab/heapscope/heap/block"
	"github.com/heaplab/heapscope/heap/oplog"
	"github.com/heaplab/heapscope/heap/stats"
)

// fragThreshold is the external fragmentation percentage above which a
// pending full-coalesce sweep runs before the next allocation.
const fragThreshold = 30.0

// Coalescing is the best-fit allocator with two defragmentation layers:
// every free merges the released block with free neighbors immediately,
// and a heap-wide compaction sweep runs lazily on the next malloc once
// external fragmentation crosses fragThreshold (or as a last resort when
// a search comes up empty).
type Coalescing struct {
	core

	// pending is set by Free and cleared by the sweep. It gates the sweep
	// so back-to-back mallocs without an intervening free never re-scan.
	pending bool
}

// NewCoalescing returns an uninitialized coalescing allocator; call Init
// before use.
func NewCoalescing() *Coalescing {
	return &Coalescing{}
}

// Init resets the heap to the given capacity (clamped).
func (c *Coalescing) Init(size uint64) {
	c.setup(size)
	c.pending = false
}

// Malloc allocates best-fit. Before searching it runs the deferred sweep
// when fragmentation warrants it; after a failed search it sweeps once
// more and retries, so the request only fails when even a fully merged
// heap cannot hold it.
func (c *Coalescing) Malloc(size uint64) (Handle, error) {
	need := spanFor(size)

	c.st.Update(c.table.View())
	if c.pending && c.st.ExternalFragmentation > fragThreshold {
		c.fullSweep()
		c.st.Update(c.table.View())
	}

	off, _, ok := c.free.take(need)
	if !ok && c.pending {
		c.fullSweep()
		off, _, ok = c.free.take(need)
	}
	if !ok {
		c.logMallocFail(size)
		return NoHandle, ErrNoSpace
	}
	return c.claim(off, size), nil
}

// Free releases the block and immediately merges it with any adjacent
// free neighbor, then arms the deferred sweep.
func (c *Coalescing) Free(h Handle) {
	off, id, res := c.release(h)
	switch res {
	case releaseNone:
		return
	case releaseOK:
		immediateCoalesce(c.table, c.free, &c.clock, c.log, off, 0)
		c.pending = true
	}
	c.logFree(off, id)
}

// Reset re-initializes with the previously configured capacity.
func (c *Coalescing) Reset() {
	c.Init(c.st.TotalSize)
}

// Stats returns the aggregate statistics.
func (c *Coalescing) Stats() stats.Stats {
	return c.statsSnapshot()
}

// Blocks returns the block table sorted by offset.
func (c *Coalescing) Blocks() []block.Block {
	return c.blocks()
}

// Logs returns the operation trace.
func (c *Coalescing) Logs() []oplog.Entry {
	return c.logs()
}

// ClearLog empties the operation trace.
func (c *Coalescing) ClearLog() {
	c.clearLog()
}

// Bytes returns the user slice behind a live handle, or nil.
func (c *Coalescing) Bytes(h Handle) []byte {
	return c.bytes(h)
}

// fullSweep compacts the whole table, relinks the free list from the
// merged rows and records the sweep. The entry is written even when no
// runs merged: the sweep itself is the observable event.
func (c *Coalescing) fullSweep() {
	merges := fullCoalesce(c.table)

	spans := make([]span, 0, c.table.Len())
	for i := 0; i < c.table.Len(); i++ {
		row := c.table.At(i)
		if row.State == block.Free {
			spans = append(spans, span{off: row.Offset, size: row.Size})
		}
	}
	c.free.rebuild(spans)
	c.pending = false

	c.log.Append(oplog.Entry{
		Action:  oplog.ActionFullCoalesce,
		Size:    uint64(merges),
		Success: true,
	}, &c.clock)
}

// immediateCoalesce merges the just-freed block at off with its free
// left and right neighbors in the same region, patching both the table
// rows and the free-list nodes so the two structures keep describing
// identical spans. It logs one COALESCE covering all merges for this
// free, and reports whether anything merged.
func immediateCoalesce(t *block.Table, f *freeList, clk *block.Clock, l *oplog.Log, off uint64, region uint8) bool {
	t.Sort()
	idx := t.Find(region, off)
	if idx < 0 {
		return false
	}

	merged := false

	if idx > 0 {
		left := t.At(idx - 1)
		cur := t.At(idx)
		if left.RegionID == region &&
			(left.State == block.Free || left.State == block.Freed) &&
			left.Offset+left.Size == cur.Offset {
			f.remove(cur.Offset)
			left.Size += cur.Size
			left.State = block.Free
			left.AllocationID = 0
			f.resize(left.Offset, left.Size)
			t.RemoveAt(idx)
			idx--
			merged = true
		}
	}

	if idx+1 < t.Len() {
		cur := t.At(idx)
		right := t.At(idx + 1)
		if right.RegionID == region &&
			(right.State == block.Free || right.State == block.Freed) &&
			cur.Offset+cur.Size == right.Offset {
			f.remove(right.Offset)
			cur.Size += right.Size
			cur.State = block.Free
			cur.AllocationID = 0
			f.resize(cur.Offset, cur.Size)
			t.RemoveAt(idx + 1)
			merged = true
		}
	}

	if merged {
		l.Append(oplog.Entry{
			Action:   oplog.ActionCoalesce,
			Offset:   off,
			Success:  true,
			RegionID: region,
		}, clk)
	}
	return merged
}

// fullCoalesce compacts the table in place: every Freed row becomes
// Free, and adjacent same-region free runs collapse into single rows.
// It returns the number of merges performed. Callers rebuild the free
// list from the surviving rows.
func fullCoalesce(t *block.Table) int {
	t.Sort()
	rows := t.View()
	n := len(rows)
	merges := 0

	w := 0
	for i := 0; i < n; i++ {
		rows[w] = rows[i]
		cur := &rows[w]
		if cur.State == block.Freed {
			cur.State = block.Free
			cur.AllocationID = 0
		}
		for i+1 < n && cur.State == block.Free &&
			(rows[i+1].State == block.Free || rows[i+1].State == block.Freed) &&
			cur.RegionID == rows[i+1].RegionID &&
			cur.Offset+cur.Size == rows[i+1].Offset {
			cur.Size += rows[i+1].Size
			i++
			merges++
		}
		w++
	}
	t.Truncate(w)
	return merges
}

// Compile-time interface check
var _ Allocator = (*Coalescing)(nil)
