package alloc

import (
	"github.com/heaplab/heapscope/heap/block"
	"github.com/heaplab/heapscope/heap/oplog"
	"github.com/heaplab/heapscope/heap/stats"
)

// BestFit is the best-fit free-list allocator without coalescing. Freed
// blocks go back on the free list individually and are never merged with
// their neighbors, so external fragmentation grows without bound under
// churn. That limitation is the point of this variant.
type BestFit struct {
	core
}

// NewBestFit returns an uninitialized best-fit allocator; call Init
// before use.
func NewBestFit() *BestFit {
	return &BestFit{}
}

// Init resets the heap to the given capacity (clamped).
func (b *BestFit) Init(size uint64) {
	b.setup(size)
}

// Malloc walks the entire free list for the smallest span that holds the
// aligned size plus the embedded header, splitting it when the excess is
// worth tracking.
func (b *BestFit) Malloc(size uint64) (Handle, error) {
	need := spanFor(size)

	off, _, ok := b.free.take(need)
	if !ok {
		b.logMallocFail(size)
		return NoHandle, ErrNoSpace
	}
	return b.claim(off, size), nil
}

// Free marks the block Freed (visually distinct from never-allocated)
// and pushes its span onto the free list head. Neighbors are never
// merged.
func (b *BestFit) Free(h Handle) {
	off, id, res := b.release(h)
	if res == releaseNone {
		return
	}
	b.logFree(off, id)
}

// Reset re-initializes with the previously configured capacity.
func (b *BestFit) Reset() {
	b.Init(b.st.TotalSize)
}

// Stats returns the aggregate statistics.
func (b *BestFit) Stats() stats.Stats {
	return b.statsSnapshot()
}

// Blocks returns the block table sorted by offset.
func (b *BestFit) Blocks() []block.Block {
	return b.blocks()
}

// Logs returns the operation trace.
func (b *BestFit) Logs() []oplog.Entry {
	return b.logs()
}

// ClearLog empties the operation trace.
func (b *BestFit) ClearLog() {
	b.clearLog()
}

// Bytes returns the user slice behind a live handle, or nil.
func (b *BestFit) Bytes(h Handle) []byte {
	return b.bytes(h)
}

// Compile-time interface check
var _ Allocator = (*BestFit)(nil)
