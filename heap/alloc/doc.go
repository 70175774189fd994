// Package alloc implements five heap allocator variants over a simulated
// address space, each with full block-table, operation-log and statistics
// introspection.
//
// # Overview
//
// All variants share one data model: an arena (the backing byte buffer),
// a block table describing the address space as a sorted partition, a
// capped append-only operation log, and derived statistics. They differ
// only in placement and free policy:
//
//   - Bump: monotonic cursor, no reuse. Free is a logged no-op.
//   - BestFit: explicit free list, best-fit search, block splitting,
//     no coalescing. The canonical fragmentation demonstrator.
//   - Tracked: thread-safe passthrough to the host allocator with a
//     synthetic shadow table for visualization.
//   - Coalescing: best-fit plus immediate neighbor merging on free and a
//     deferred full sweep once external fragmentation crosses 30%.
//   - MultiRegion: the coalescing policy applied independently across
//     2-8 capability-flagged regions with global aggregation.
//
// # Usage
//
//	a := alloc.NewCoalescing()
//	a.Init(4096)
//
//	h, err := a.Malloc(100)
//	if err != nil {
//	    // out of space: logged, non-fatal
//	}
//	a.Free(h)
//
//	for _, b := range a.Blocks() {
//	    fmt.Println(b.Offset, b.Size, b.State)
//	}
//
// # Handles
//
// Malloc returns a Handle addressing the user bytes of the allocation.
// For the buffer-backed variants it is the user-data offset into the
// arena; MultiRegion packs the region id into the high 32 bits; Tracked
// hands out opaque tokens. Freeing NoHandle or a stale handle is a
// silent no-op.
//
// # Consistency
//
// Every mutating call updates the block table, appends its log entries,
// and recomputes statistics before returning. The free list and the
// block table always describe the same free spans. When the block table
// or the log reach their fixed capacity the allocator degrades
// gracefully: structural detail is dropped, operations never panic.
//
// # Thread Safety
//
// Bump, BestFit, Coalescing and MultiRegion are single-threaded by
// contract; callers synchronize externally. Tracked serializes every
// operation behind one mutex and is safe for concurrent use.
package alloc
