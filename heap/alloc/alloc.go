package alloc

import (
	"github.com/heaplab/heapscope/heap/block"
	"github.com/heaplab/heapscope/heap/oplog"
	"github.com/heaplab/heapscope/heap/stats"
)

// Handle addresses the user bytes of a live allocation. For buffer-backed
// variants it is the user-data offset into the arena; MultiRegion packs
// the region id into the high 32 bits; Tracked hands out opaque tokens.
type Handle uint64

// NoHandle is the null handle returned by failed allocations. Freeing it
// is a no-op.
const NoHandle Handle = ^Handle(0)

// Allocator is the operation surface every variant exposes to its host.
//
// Implementations:
//   - Bump: monotonic cursor, no reuse
//   - BestFit: best-fit free list, no coalescing
//   - Tracked: mutex-serialized passthrough to the host allocator
//   - Coalescing: best-fit with immediate and deferred coalescing
//   - MultiRegion: coalescing across capability-flagged regions
type Allocator interface {
	// Init resets all state for a heap of the given capacity. Sizes
	// beyond format.MaxHeapSize are silently clamped.
	Init(size uint64)

	// Malloc allocates size bytes, 8-byte aligned internally. It returns
	// NoHandle and ErrNoSpace when the request cannot be satisfied; the
	// failure is logged and non-fatal.
	Malloc(size uint64) (Handle, error)

	// Free releases a previously returned handle. Nil or unrecognized
	// handles are tolerated as no-ops.
	Free(h Handle)

	// Reset re-runs Init with the previously configured size.
	Reset()

	// Stats returns the aggregate statistics, always consistent with the
	// current block table.
	Stats() stats.Stats

	// Blocks returns the block table sorted by offset.
	Blocks() []block.Block

	// Logs returns the operation trace in append order.
	Logs() []oplog.Entry

	// ClearLog empties the operation trace.
	ClearLog()
}

// FlagAllocator is implemented by variants that support capability-flag
// placement (MultiRegion). For every other variant MallocFlags is just
// Malloc.
type FlagAllocator interface {
	Allocator

	// MallocFlags restricts placement to regions whose capability mask
	// contains every bit in flags; flags 0 searches all regions.
	MallocFlags(size uint64, flags uint8) (Handle, error)
}
