// Package block tracks the simulated address space as an ordered set of
// non-overlapping blocks. The table is the source of truth for the
// statistics engine and for visualization consumers; allocators keep it
// consistent with their free lists after every mutation.
package block

// State describes the lifecycle of a tracked block.
type State uint8

const (
	// Free marks memory that has never been handed out, or that has been
	// reclaimed by coalescing.
	Free State = iota

	// Allocated marks a live allocation.
	Allocated

	// Freed marks a block released by the caller but not yet merged back
	// into the general free pool. Visualization consumers draw Freed and
	// Free differently; coalescing allocators transition Freed to Free
	// once merged.
	Freed
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Allocated:
		return "allocated"
	case Freed:
		return "freed"
	default:
		return "unknown"
	}
}

// Block is the fundamental tracked unit of the address space.
type Block struct {
	// Offset is the byte offset into the backing store. Region-local for
	// the multi-region allocator.
	Offset uint64

	// Size is the span size as currently tracked. For allocated blocks
	// with an embedded header this includes the header.
	Size uint64

	// State is Free, Allocated, or Freed.
	State State

	// AllocationID is the id assigned at allocation time; 0 means the
	// block is not an active allocation.
	AllocationID uint32

	// Timestamp is the instance clock value stamped at creation or last
	// state change.
	Timestamp uint32

	// RequestedSize is the caller's pre-alignment request; 0 for
	// free/freed blocks. Used to derive internal fragmentation.
	RequestedSize uint64

	// RegionID is the owning region (multi-region allocator only).
	RegionID uint8
}
