package alloc

import (
	"sync"

	"github.com/heaplab/heapscope/heap/block"
	"github.com/heaplab/heapscope/heap/oplog"
	"github.com/heaplab/heapscope/heap/stats"
	"github.com/heaplab/heapscope/internal/format"
)

// shadowSplitSlack is the don't-split threshold for the synthetic
// first-fit simulation. Looser than the buffer-backed variants' slack:
// shadow rows carry no header or free-list node, so the only cost of a
// tiny remainder is table noise.
const shadowSplitSlack = 64

// trackedAlloc records one live delegated allocation: the opaque handle
// given to the caller, the real buffer behind it, and the metadata the
// shadow table mirrors.
type trackedAlloc struct {
	handle    Handle
	buf       []byte
	size      uint64
	requested uint64
	id        uint32
	timestamp uint32
}

// Tracked is the thread-safe passthrough allocator. Memory comes from
// the host runtime, not from a simulated buffer; every public operation
// holds one mutex for its full duration, so calls from multiple
// goroutines serialize and the delegate call plus bookkeeping never
// observe a torn state.
//
// Because the host layout is opaque, the block table is a shadow: a
// parallel first-fit simulation over the configured capacity that
// produces deterministic synthetic offsets for visualization. Those
// offsets must never be treated as addresses; Buffer is the only way to
// reach the real memory.
type Tracked struct {
	mu sync.Mutex

	table  *block.Table
	log    *oplog.Log
	clock  block.Clock
	st     stats.Stats
	allocs []trackedAlloc

	nextHandle Handle
}

// NewTracked returns an uninitialized passthrough allocator; call Init
// before use.
func NewTracked() *Tracked {
	return &Tracked{}
}

// Init resets the tracker to the given simulated capacity (clamped).
// Previously delegated buffers are dropped for the host to collect.
func (t *Tracked) Init(size uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.initLocked(size)
}

func (t *Tracked) initLocked(size uint64) {
	if t.table == nil {
		t.table = block.NewTable()
		t.log = oplog.NewLog()
	}

	total := format.Clamp(size)
	t.clock.Reset()
	t.st.Seed(total)
	t.allocs = t.allocs[:0]
	t.nextHandle = 1

	t.table.Reset(block.Block{
		Offset:    0,
		Size:      total,
		State:     block.Free,
		Timestamp: t.clock.Tick(),
	})

	t.log.Clear()
	t.st.Update(t.table.View())
	t.log.Append(oplog.Entry{
		Action:  oplog.ActionInit,
		Size:    size,
		Success: true,
	}, &t.clock)
}

// Malloc delegates to the host and mirrors the allocation into the
// shadow table with a synthetic first-fit placement. The request fails
// when the simulated capacity has no span for it, keeping the tracked
// view bounded like the buffer-backed variants.
func (t *Tracked) Malloc(size uint64) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	aligned := format.Align8(size)
	idx := t.shadowFirstFit(aligned)
	if idx < 0 {
		t.log.Append(oplog.Entry{
			Action:       oplog.ActionMalloc,
			AllocationID: t.st.NextAllocationID,
			Size:         size,
		}, &t.clock)
		return NoHandle, ErrNoSpace
	}

	id := t.st.NextAllocationID
	row := t.table.At(idx)
	off := row.Offset

	if row.Size > aligned+shadowSplitSlack && !t.table.Full() {
		t.table.Append(block.Block{
			Offset:    off + aligned,
			Size:      row.Size - aligned,
			State:     row.State,
			Timestamp: t.clock.Tick(),
		})

		// Append can reallocate the table's backing array; re-fetch
		// before mutating the row.
		row = t.table.At(idx)
		row.Size = aligned
	}
	row.State = block.Allocated
	row.AllocationID = id
	row.Timestamp = t.clock.Tick()
	row.RequestedSize = size

	h := t.nextHandle
	t.nextHandle++
	t.allocs = append([]trackedAlloc{{
		handle:    h,
		buf:       make([]byte, aligned),
		size:      aligned,
		requested: size,
		id:        id,
		timestamp: row.Timestamp,
	}}, t.allocs...)

	t.log.Append(oplog.Entry{
		Action:       oplog.ActionMalloc,
		AllocationID: id,
		Size:         size,
		Offset:       off,
		Success:      true,
	}, &t.clock)
	t.st.NextAllocationID++

	t.table.Sort()
	t.st.Update(t.table.View())
	return h, nil
}

// Free searches the tracking list linearly for the handle, flips the
// matching shadow row to Freed and drops the tracking node. Handles the
// tracker does not know produce an unattributed FREE entry and nothing
// else; nil handles are ignored entirely.
func (t *Tracked) Free(h Handle) {
	if h == NoHandle {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var id uint32
	var off uint64
	for i := range t.allocs {
		if t.allocs[i].handle != h {
			continue
		}
		id = t.allocs[i].id
		if idx := t.table.FindAllocatedByID(id); idx >= 0 {
			row := t.table.At(idx)
			off = row.Offset
			row.State = block.Freed
			row.AllocationID = 0
			row.RequestedSize = 0
			row.Timestamp = t.clock.Tick()
		}
		t.allocs = append(t.allocs[:i], t.allocs[i+1:]...)
		break
	}

	t.log.Append(oplog.Entry{
		Action:       oplog.ActionFree,
		AllocationID: id,
		Offset:       off,
		Success:      true,
	}, &t.clock)

	t.table.Sort()
	t.st.Update(t.table.View())
}

// Reset re-initializes with the previously configured capacity.
func (t *Tracked) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.initLocked(t.st.TotalSize)
}

// Stats returns the aggregate statistics over the shadow table.
func (t *Tracked) Stats() stats.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.st
	s.TimestampCounter = t.clock.Now()
	return s
}

// Blocks returns the shadow block table sorted by synthetic offset.
func (t *Tracked) Blocks() []block.Block {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.table.Snapshot()
}

// Logs returns the operation trace.
func (t *Tracked) Logs() []oplog.Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.log.Entries()
}

// ClearLog empties the operation trace.
func (t *Tracked) ClearLog() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.log.Clear()
}

// Buffer returns the real host-allocated bytes behind a live handle, or
// nil. Synthetic offsets from Blocks never index into this memory.
func (t *Tracked) Buffer(h Handle) []byte {
	if h == NoHandle {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.allocs {
		if t.allocs[i].handle == h {
			return t.allocs[i].buf
		}
	}
	return nil
}

// shadowFirstFit returns the index of the first free or freed shadow row
// holding at least aligned bytes, in offset order, or -1. First-fit
// keeps the synthetic layout deterministic without pretending to mirror
// the host's real policy.
func (t *Tracked) shadowFirstFit(aligned uint64) int {
	t.table.Sort()
	for i := 0; i < t.table.Len(); i++ {
		row := t.table.At(i)
		if (row.State == block.Free || row.State == block.Freed) && row.Size >= aligned {
			return i
		}
	}
	return -1
}

// Compile-time interface check
var _ Allocator = (*Tracked)(nil)
