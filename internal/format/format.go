// Package format holds the layout constants and byte-order helpers shared
// by every allocator variant: capacity bounds, alignment rules, and the
// little-endian accessors used for block headers and free-list nodes.
package format

import "encoding/binary"

const (
	// MaxHeapSize is the capacity of the simulated address space in bytes.
	// Init requests beyond this are silently clamped.
	MaxHeapSize = 65536

	// MaxBlocks bounds the block table. When the table is full, split
	// bookkeeping is silently skipped rather than failing the allocation.
	MaxBlocks = 1000

	// MaxLogEntries bounds the operation log. Once full, further entries
	// are dropped; the oldest entries are retained.
	MaxLogEntries = 1000

	// Alignment is the allocation granularity. All user sizes are rounded
	// up to a multiple of this.
	Alignment = 8

	// HeaderSize is the embedded size header preceding the user bytes of
	// an allocated block (free-list variants only; the bump allocator
	// stores no header).
	HeaderSize = 8

	// FreeNodeSize is the in-buffer footprint of a free-list node:
	// a u64 span size followed by a u64 next-node offset.
	FreeNodeSize = 16

	// SplitSlack is the minimum excess beyond the needed size for a free
	// span to be worth splitting. Smaller excess is absorbed by the
	// allocation as internal fragmentation.
	SplitSlack = FreeNodeSize + 16
)

// Align8 rounds n up to the next multiple of 8.
func Align8(n uint64) uint64 {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

// Clamp bounds a requested heap capacity to MaxHeapSize.
func Clamp(size uint64) uint64 {
	if size > MaxHeapSize {
		return MaxHeapSize
	}
	return size
}

// PutU64 writes v little-endian at off.
func PutU64(b []byte, off uint64, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+8], v)
}

// ReadU64 reads a little-endian u64 at off.
func ReadU64(b []byte, off uint64) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}
