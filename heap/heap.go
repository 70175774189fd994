// Package heap selects and drives exactly one allocator variant at a
// time, presenting the full operation surface to hosts (CLIs, tests,
// visualizations) without exposing which variant is behind it.
package heap

import (
	"fmt"
	"strings"

	"github.com/heaplab/heapscope/heap/alloc"
	"github.com/heaplab/heapscope/heap/block"
	"github.com/heaplab/heapscope/heap/oplog"
	"github.com/heaplab/heapscope/heap/stats"
)

// Kind identifies an allocator variant.
type Kind int

const (
	KindBump Kind = iota + 1
	KindBestFit
	KindTracked
	KindCoalescing
	KindMultiRegion
)

var kindNames = map[Kind]string{
	KindBump:        "bump",
	KindBestFit:     "bestfit",
	KindTracked:     "tracked",
	KindCoalescing:  "coalesce",
	KindMultiRegion: "region",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves a variant name as used on CLI flags.
func ParseKind(s string) (Kind, error) {
	for k, n := range kindNames {
		if n == strings.ToLower(strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("heap: unknown allocator %q (want bump|bestfit|tracked|coalesce|region)", s)
}

// Heap is one initialized allocator instance.
type Heap struct {
	kind Kind
	a    alloc.Allocator
}

// New constructs and initializes the requested variant. size is the
// simulated capacity in bytes (clamped internally); the multi-region
// variant sizes itself from its region configuration and ignores it.
func New(kind Kind, size uint64) (*Heap, error) {
	var a alloc.Allocator
	switch kind {
	case KindBump:
		a = alloc.NewBump()
	case KindBestFit:
		a = alloc.NewBestFit()
	case KindTracked:
		a = alloc.NewTracked()
	case KindCoalescing:
		a = alloc.NewCoalescing()
	case KindMultiRegion:
		a = alloc.NewMultiRegion()
	default:
		return nil, fmt.Errorf("heap: unknown kind %v", kind)
	}
	a.Init(size)
	return &Heap{kind: kind, a: a}, nil
}

// Kind returns the active variant.
func (h *Heap) Kind() Kind {
	return h.kind
}

// Init re-initializes to the given capacity.
func (h *Heap) Init(size uint64) {
	h.a.Init(size)
}

// Malloc allocates size bytes from the active variant.
func (h *Heap) Malloc(size uint64) (alloc.Handle, error) {
	return h.a.Malloc(size)
}

// MallocFlags allocates with capability flags. Variants without flag
// routing treat any flags as unconstrained and fall back to Malloc.
func (h *Heap) MallocFlags(size uint64, flags uint8) (alloc.Handle, error) {
	if fa, ok := h.a.(alloc.FlagAllocator); ok {
		return fa.MallocFlags(size, flags)
	}
	return h.a.Malloc(size)
}

// Free releases a handle; invalid handles are tolerated.
func (h *Heap) Free(handle alloc.Handle) {
	h.a.Free(handle)
}

// Reset re-initializes with the previously configured capacity.
func (h *Heap) Reset() {
	h.a.Reset()
}

// Stats returns the aggregate statistics.
func (h *Heap) Stats() stats.Stats {
	return h.a.Stats()
}

// Blocks returns the block table sorted by offset.
func (h *Heap) Blocks() []block.Block {
	return h.a.Blocks()
}

// Logs returns the operation trace.
func (h *Heap) Logs() []oplog.Entry {
	return h.a.Logs()
}

// ClearLog empties the operation trace.
func (h *Heap) ClearLog() {
	h.a.ClearLog()
}

// RegionCount returns the number of regions, or 0 for single-buffer
// variants.
func (h *Heap) RegionCount() int {
	if m, ok := h.a.(*alloc.MultiRegion); ok {
		return m.RegionCount()
	}
	return 0
}

// RegionName returns the region's name, or "" for non-region variants.
func (h *Heap) RegionName(id int) string {
	if m, ok := h.a.(*alloc.MultiRegion); ok {
		return m.RegionName(id)
	}
	return ""
}

// RegionFlags returns the region's capability mask, or 0.
func (h *Heap) RegionFlags(id int) uint8 {
	if m, ok := h.a.(*alloc.MultiRegion); ok {
		return m.RegionFlags(id)
	}
	return 0
}

// RegionSize returns the region's capacity, or 0.
func (h *Heap) RegionSize(id int) uint64 {
	if m, ok := h.a.(*alloc.MultiRegion); ok {
		return m.RegionSize(id)
	}
	return 0
}

// RegionStats returns per-region statistics; ok is false for invalid
// ids and non-region variants.
func (h *Heap) RegionStats(id int) (stats.Stats, bool) {
	if m, ok := h.a.(*alloc.MultiRegion); ok {
		return m.RegionStats(id)
	}
	return stats.Stats{}, false
}
