package block

import (
	"sort"

	"github.com/heaplab/heapscope/internal/format"
)

// Table is a fixed-capacity ordered record of blocks. It always describes
// a complete partition of the address space it tracks: sorted by offset,
// blocks are contiguous from 0 to capacity with no gaps or overlaps
// (per region for the multi-region allocator).
type Table struct {
	blocks []Block
	max    int
}

// NewTable returns an empty table bounded at format.MaxBlocks entries.
func NewTable() *Table {
	return &Table{max: format.MaxBlocks}
}

// Reset discards all rows and installs the given initial blocks.
func (t *Table) Reset(initial ...Block) {
	t.blocks = t.blocks[:0]
	t.blocks = append(t.blocks, initial...)
}

// Len returns the number of tracked blocks.
func (t *Table) Len() int {
	return len(t.blocks)
}

// Full reports whether the table is at capacity. Callers skip split
// bookkeeping when full rather than failing the operation.
func (t *Table) Full() bool {
	return len(t.blocks) >= t.max
}

// At returns a pointer to row i for in-place mutation.
func (t *Table) At(i int) *Block {
	return &t.blocks[i]
}

// Append adds a row. It reports false (and records nothing) at capacity.
func (t *Table) Append(b Block) bool {
	if t.Full() {
		return false
	}
	t.blocks = append(t.blocks, b)
	return true
}

// RemoveAt deletes row i, preserving order.
func (t *Table) RemoveAt(i int) {
	t.blocks = append(t.blocks[:i], t.blocks[i+1:]...)
}

// Truncate drops every row past the first n. Used by the full-coalesce
// sweep after compacting merged runs in place.
func (t *Table) Truncate(n int) {
	if n < len(t.blocks) {
		t.blocks = t.blocks[:n]
	}
}

// Sort orders rows by region, then by offset within the region. Offsets
// are region-local, so region-major order is what keeps each region's
// rows contiguous for neighbor-adjacency checks. Single-region tables
// carry region 0 throughout and end up in plain offset order.
func (t *Table) Sort() {
	sort.SliceStable(t.blocks, func(i, j int) bool {
		if t.blocks[i].RegionID != t.blocks[j].RegionID {
			return t.blocks[i].RegionID < t.blocks[j].RegionID
		}
		return t.blocks[i].Offset < t.blocks[j].Offset
	})
}

// Find returns the index of the row at offset in region with one of the
// wanted states, or -1. An empty states list matches any state.
func (t *Table) Find(region uint8, offset uint64, states ...State) int {
	for i := range t.blocks {
		b := &t.blocks[i]
		if b.Offset != offset || b.RegionID != region {
			continue
		}
		if len(states) == 0 {
			return i
		}
		for _, s := range states {
			if b.State == s {
				return i
			}
		}
	}
	return -1
}

// FindAllocatedByID returns the index of the Allocated row carrying id,
// or -1.
func (t *Table) FindAllocatedByID(id uint32) int {
	for i := range t.blocks {
		if t.blocks[i].AllocationID == id && t.blocks[i].State == Allocated {
			return i
		}
	}
	return -1
}

// View returns the underlying rows for read-only iteration. The slice is
// invalidated by the next mutation.
func (t *Table) View() []Block {
	return t.blocks
}

// Snapshot returns a sorted copy of the table for external consumers,
// in the same region-major order as Sort.
func (t *Table) Snapshot() []Block {
	out := make([]Block, len(t.blocks))
	copy(out, t.blocks)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RegionID != out[j].RegionID {
			return out[i].RegionID < out[j].RegionID
		}
		return out[i].Offset < out[j].Offset
	})
	return out
}
