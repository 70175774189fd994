package alloc

import (
	"github.com/heaplab/heapscope/heap/arena"
	"github.com/heaplab/heapscope/heap/block"
	"github.com/heaplab/heapscope/heap/oplog"
	"github.com/heaplab/heapscope/heap/stats"
	"github.com/heaplab/heapscope/internal/format"
)

// Capability bits regions advertise and callers request. A request is
// placed only in regions whose mask contains every requested bit.
const (
	FlagFast     uint8 = 0x01
	FlagDMA      uint8 = 0x02
	FlagUncached uint8 = 0x04
	FlagPinned   uint8 = 0x08
)

// maxRegions bounds the region set; the flag byte has eight bits.
const maxRegions = 8

// RegionConfig declares one region: a human-readable name, its backing
// capacity and its capability mask.
type RegionConfig struct {
	Name  string
	Size  uint64
	Flags uint8
}

// DefaultRegions is the standard three-region layout: a small fast
// region, a DMA-capable region and an uncached region.
func DefaultRegions() []RegionConfig {
	return []RegionConfig{
		{Name: "FAST", Size: 10240, Flags: FlagFast},
		{Name: "DMA", Size: 13312, Flags: FlagDMA},
		{Name: "UNCACHED", Size: 9216, Flags: FlagUncached},
	}
}

// region is one independently managed backing span with its own free
// list and statistics. Offsets inside it are region-local.
type region struct {
	cfg   RegionConfig
	arena *arena.Arena
	free  *freeList
	st    stats.Stats
}

// MultiRegion applies the coalescing allocator's policy independently
// within each configured region. Placement is routed by capability
// flags; statistics exist per region and as a global aggregate. Blocks
// never migrate or merge across regions.
type MultiRegion struct {
	table   *block.Table
	log     *oplog.Log
	clock   block.Clock
	st      stats.Stats
	regions []region
	pending bool

	// scratch holds one region's rows during per-region stats updates.
	scratch []block.Block
}

// NewMultiRegion returns an uninitialized allocator over the given
// regions (DefaultRegions when none are supplied, at most maxRegions);
// call Init before use.
func NewMultiRegion(configs ...RegionConfig) *MultiRegion {
	if len(configs) == 0 {
		configs = DefaultRegions()
	}
	if len(configs) > maxRegions {
		configs = configs[:maxRegions]
	}

	m := &MultiRegion{}
	for _, cfg := range configs {
		cfg.Size = format.Clamp(cfg.Size)
		m.regions = append(m.regions, region{cfg: cfg})
	}
	return m
}

// Init resets every region. The size argument is ignored: capacity is
// fixed by the region configuration, and the aggregate total is the sum
// of the region sizes.
func (m *MultiRegion) Init(size uint64) {
	if m.table == nil {
		m.table = block.NewTable()
		m.log = oplog.NewLog()
		for i := range m.regions {
			r := &m.regions[i]

			// A free-list node must fit even in a minimally sized region.
			asz := r.cfg.Size
			if asz < format.FreeNodeSize {
				asz = format.FreeNodeSize
			}
			r.arena = arena.NewBacking(int(asz))
			r.free = newFreeList(r.arena)
		}
	}

	m.clock.Reset()
	m.pending = false
	m.table.Reset()

	var total uint64
	for i := range m.regions {
		r := &m.regions[i]
		total += r.cfg.Size
		r.st.Seed(r.cfg.Size)
		r.free.reset()
		r.free.push(0, r.cfg.Size)
		m.table.Append(block.Block{
			Offset:    0,
			Size:      r.cfg.Size,
			State:     block.Free,
			Timestamp: m.clock.Tick(),
			RegionID:  uint8(i),
		})
	}
	m.st.Seed(total)

	m.log.Clear()
	m.updateStats()
	m.log.Append(oplog.Entry{
		Action:   oplog.ActionInit,
		Size:     total,
		Success:  true,
		RegionID: oplog.RegionNone,
	}, &m.clock)
}

// Malloc places without capability constraints: global best-fit across
// all regions.
func (m *MultiRegion) Malloc(size uint64) (Handle, error) {
	return m.MallocFlags(size, 0)
}

// MallocFlags restricts placement to regions whose capability mask
// contains every bit in flags, then picks the single smallest
// satisfying span across the qualifying regions. A request no region
// qualifies for fails exactly like out-of-space, even when other
// regions have room.
func (m *MultiRegion) MallocFlags(size uint64, flags uint8) (Handle, error) {
	need := spanFor(size)

	m.updateStats()
	if m.pending && m.st.ExternalFragmentation > fragThreshold {
		m.fullSweep()
		m.updateStats()
	}

	rid, off, ok := m.pick(need, flags)
	if !ok && m.pending {
		m.fullSweep()
		rid, off, ok = m.pick(need, flags)
	}
	if !ok {
		m.log.Append(oplog.Entry{
			Action:       oplog.ActionMalloc,
			AllocationID: m.st.NextAllocationID,
			Size:         size,
			RegionID:     oplog.RegionNone,
			Flags:        flags,
		}, &m.clock)
		return NoHandle, ErrNoSpace
	}

	m.regions[rid].free.remove(off)
	return m.claim(rid, off, size, flags), nil
}

// Free releases a handle, merging the block with free neighbors inside
// its own region. Nil or out-of-range handles are ignored; a handle
// with no matching allocation logs an unattributed FREE.
func (m *MultiRegion) Free(h Handle) {
	if h == NoHandle {
		return
	}
	rid := int(uint64(h) >> 32)
	user := uint64(h) & 0xFFFFFFFF
	if rid >= len(m.regions) {
		return
	}
	r := &m.regions[rid]
	if user < format.HeaderSize || user > r.cfg.Size {
		return
	}
	off := user - format.HeaderSize

	var id uint32
	if idx := m.table.Find(uint8(rid), off, block.Allocated); idx >= 0 {
		row := m.table.At(idx)
		id = row.AllocationID
		row.State = block.Freed
		row.AllocationID = 0
		row.RequestedSize = 0

		r.free.push(off, row.Size)
		immediateCoalesce(m.table, r.free, &m.clock, m.log, off, uint8(rid))
		m.pending = true
	}

	m.log.Append(oplog.Entry{
		Action:       oplog.ActionFree,
		AllocationID: id,
		Offset:       off,
		Success:      true,
		RegionID:     uint8(rid),
	}, &m.clock)

	m.table.Sort()
	m.updateStats()
}

// Reset re-initializes every region from its stored configuration.
func (m *MultiRegion) Reset() {
	m.Init(0)
}

// Stats returns the global aggregate across all regions.
func (m *MultiRegion) Stats() stats.Stats {
	s := m.st
	s.TimestampCounter = m.clock.Now()
	return s
}

// Blocks returns the block table grouped by region, sorted by offset
// within each region.
func (m *MultiRegion) Blocks() []block.Block {
	return m.table.Snapshot()
}

// Logs returns the operation trace.
func (m *MultiRegion) Logs() []oplog.Entry {
	return m.log.Entries()
}

// ClearLog empties the operation trace.
func (m *MultiRegion) ClearLog() {
	m.log.Clear()
}

// Bytes returns the user slice behind a live handle, or nil.
func (m *MultiRegion) Bytes(h Handle) []byte {
	if h == NoHandle {
		return nil
	}
	rid := int(uint64(h) >> 32)
	user := uint64(h) & 0xFFFFFFFF
	if rid >= len(m.regions) {
		return nil
	}
	r := &m.regions[rid]
	if user < format.HeaderSize || user >= r.cfg.Size {
		return nil
	}
	aligned := format.ReadU64(r.arena.Bytes(), user-format.HeaderSize)
	if user+aligned > r.cfg.Size {
		return nil
	}
	return r.arena.Bytes()[user : user+aligned]
}

// RegionCount returns the number of configured regions.
func (m *MultiRegion) RegionCount() int {
	return len(m.regions)
}

// RegionName returns the region's name, or "UNKNOWN" for an invalid id.
func (m *MultiRegion) RegionName(id int) string {
	if id < 0 || id >= len(m.regions) {
		return "UNKNOWN"
	}
	return m.regions[id].cfg.Name
}

// RegionFlags returns the region's capability mask, or 0 for an invalid
// id.
func (m *MultiRegion) RegionFlags(id int) uint8 {
	if id < 0 || id >= len(m.regions) {
		return 0
	}
	return m.regions[id].cfg.Flags
}

// RegionSize returns the region's capacity, or 0 for an invalid id.
func (m *MultiRegion) RegionSize(id int) uint64 {
	if id < 0 || id >= len(m.regions) {
		return 0
	}
	return m.regions[id].cfg.Size
}

// RegionStats returns the live per-region statistics. The second result
// is false for an invalid id.
func (m *MultiRegion) RegionStats(id int) (stats.Stats, bool) {
	if id < 0 || id >= len(m.regions) {
		return stats.Stats{}, false
	}
	s := m.regions[id].st
	s.TimestampCounter = m.clock.Now()
	return s, true
}

// pick runs the global best-fit: among regions whose mask satisfies
// flags, the single smallest span holding need wins (tie: lowest region
// id). The span is left on its list for the caller to remove.
func (m *MultiRegion) pick(need uint64, flags uint8) (rid int, off uint64, ok bool) {
	var best uint64
	for i := range m.regions {
		r := &m.regions[i]
		if flags != 0 && r.cfg.Flags&flags != flags {
			continue
		}
		o, sz, found := r.free.bestFit(need)
		if !found {
			continue
		}
		if !ok || sz < best {
			rid, off, best, ok = i, o, sz, true
		}
	}
	return rid, off, ok
}

// claim mirrors the single-heap claim but scoped to one region: header
// in the region arena, split remainder on the region list, region id
// stamped on rows and log entries, global allocation id.
func (m *MultiRegion) claim(rid int, off, requested uint64, flags uint8) Handle {
	r := &m.regions[rid]
	aligned := format.Align8(requested)
	need := spanFor(requested)
	id := m.st.NextAllocationID

	format.PutU64(r.arena.Bytes(), off, aligned)

	if idx := m.table.Find(uint8(rid), off, block.Free, block.Freed); idx >= 0 {
		row := m.table.At(idx)
		orig := row.Size

		if orig > need+format.SplitSlack && !m.table.Full() {
			rem := block.Block{
				Offset:    off + need,
				Size:      orig - need,
				State:     row.State,
				Timestamp: m.clock.Tick(),
				RegionID:  uint8(rid),
			}
			m.table.Append(rem)
			r.free.push(rem.Offset, rem.Size)

			// Append can reallocate the table's backing array; re-fetch
			// before mutating the row.
			row = m.table.At(idx)
			row.Size = need
		}

		row.State = block.Allocated
		row.AllocationID = id
		row.Timestamp = m.clock.Tick()
		row.RequestedSize = requested
	}

	m.log.Append(oplog.Entry{
		Action:       oplog.ActionMalloc,
		AllocationID: id,
		Size:         requested,
		Offset:       off,
		Success:      true,
		RegionID:     uint8(rid),
		Flags:        flags,
	}, &m.clock)
	m.st.NextAllocationID++

	m.table.Sort()
	m.updateStats()

	return Handle(uint64(rid)<<32 | (off + format.HeaderSize))
}

// fullSweep compacts all regions in one pass. Merges never cross region
// boundaries; every region's free list is rebuilt from its surviving
// rows. One FULL_COALESCE entry records the sweep.
func (m *MultiRegion) fullSweep() {
	merges := fullCoalesce(m.table)

	for i := range m.regions {
		m.regions[i].free.reset()
	}
	for i := 0; i < m.table.Len(); i++ {
		row := m.table.At(i)
		if row.State == block.Free {
			m.regions[row.RegionID].free.push(row.Offset, row.Size)
		}
	}
	m.pending = false

	m.log.Append(oplog.Entry{
		Action:   oplog.ActionFullCoalesce,
		Size:     uint64(merges),
		Success:  true,
		RegionID: oplog.RegionNone,
	}, &m.clock)
}

// updateStats recomputes each region's statistics from its rows, then
// folds them into the global aggregate.
func (m *MultiRegion) updateStats() {
	rows := m.table.View()
	for i := range m.regions {
		m.scratch = m.scratch[:0]
		for j := range rows {
			if rows[j].RegionID == uint8(i) {
				m.scratch = append(m.scratch, rows[j])
			}
		}
		m.regions[i].st.Update(m.scratch)
	}

	per := make([]stats.Stats, len(m.regions))
	for i := range m.regions {
		per[i] = m.regions[i].st
	}
	stats.AggregateRegions(per, &m.st)
}

// Compile-time interface check
var _ FlagAllocator = (*MultiRegion)(nil)
