// Package stats derives aggregate utilization and fragmentation metrics
// from a block table. Statistics are recomputed after every mutating
// allocator call; nothing here is stored independently of the table
// except the min-free low-water mark and the id/clock counters.
package stats

import "github.com/heaplab/heapscope/heap/block"

// Stats is the aggregate view of one heap (or one region).
type Stats struct {
	TotalSize        uint64 `json:"total_size"`
	AllocatedBytes   uint64 `json:"allocated_bytes"`
	FreeBytes        uint64 `json:"free_bytes"`
	AllocationCount  uint32 `json:"allocation_count"`
	FreeBlockCount   uint32 `json:"free_block_count"`
	NextAllocationID uint32 `json:"next_allocation_id"`
	TimestampCounter uint32 `json:"timestamp_counter"`
	LargestFreeBlock uint64 `json:"largest_free_block"`

	// SmallestFreeBlock is 0 when no free or freed blocks exist.
	SmallestFreeBlock uint64 `json:"smallest_free_block"`

	// MinFreeBytes is the historic low-water mark of FreeBytes since the
	// last init. Non-increasing within an epoch.
	MinFreeBytes uint64 `json:"min_free_bytes"`

	// ExternalFragmentation is (1 - largest_free/free_bytes) * 100.
	ExternalFragmentation float32 `json:"external_fragmentation"`

	// InternalFragmentation is the percentage of allocated bytes wasted
	// to alignment and absorbed split remainders.
	InternalFragmentation float32 `json:"internal_fragmentation"`
}

// Seed resets s for a new epoch of the given capacity. The min-free
// low-water mark starts at the full capacity and allocation ids restart
// at 1.
func (s *Stats) Seed(total uint64) {
	*s = Stats{
		TotalSize:        total,
		FreeBytes:        total,
		NextAllocationID: 1,
		MinFreeBytes:     total,
	}
}

// Update recomputes every derived metric from the table rows. TotalSize,
// MinFreeBytes and the counters carry over; MinFreeBytes is lowered when
// free bytes dip below it.
func (s *Stats) Update(blocks []block.Block) {
	s.AllocatedBytes = 0
	s.FreeBytes = 0
	s.AllocationCount = 0
	s.FreeBlockCount = 0
	s.LargestFreeBlock = 0
	s.SmallestFreeBlock = s.TotalSize

	var totalRequested, totalAllocated uint64
	hasFree := false

	for i := range blocks {
		b := &blocks[i]
		switch b.State {
		case block.Allocated:
			s.AllocatedBytes += b.Size
			s.AllocationCount++
			if b.RequestedSize > 0 {
				totalRequested += b.RequestedSize
				totalAllocated += b.Size
			}
		case block.Free, block.Freed:
			s.FreeBytes += b.Size
			s.FreeBlockCount++
			hasFree = true
			if b.Size > s.LargestFreeBlock {
				s.LargestFreeBlock = b.Size
			}
			if b.Size < s.SmallestFreeBlock {
				s.SmallestFreeBlock = b.Size
			}
		}
	}

	if s.FreeBytes > 0 && s.LargestFreeBlock > 0 {
		s.ExternalFragmentation = (1 - float32(s.LargestFreeBlock)/float32(s.FreeBytes)) * 100
	} else {
		s.ExternalFragmentation = 0
	}

	if totalAllocated > 0 && totalRequested > 0 {
		s.InternalFragmentation = float32(totalAllocated-totalRequested) / float32(totalAllocated) * 100
	} else {
		s.InternalFragmentation = 0
	}

	if s.MinFreeBytes == 0 || s.FreeBytes < s.MinFreeBytes {
		s.MinFreeBytes = s.FreeBytes
	}

	if !hasFree {
		s.SmallestFreeBlock = 0
	}
}

// AggregateRegions folds per-region statistics into agg: bytes and
// counts are summed, largest/smallest free block are the extrema across
// regions, and fragmentation percentages are averaged over regions that
// currently have free bytes (empty regions do not dilute the average).
// agg.TotalSize and the counters are the caller's; the min-free
// low-water mark is maintained on agg itself.
func AggregateRegions(per []Stats, agg *Stats) {
	agg.AllocatedBytes = 0
	agg.FreeBytes = 0
	agg.AllocationCount = 0
	agg.FreeBlockCount = 0
	agg.LargestFreeBlock = 0
	agg.SmallestFreeBlock = agg.TotalSize

	var extSum, intSum float32
	contributing := 0

	for i := range per {
		r := &per[i]
		agg.AllocatedBytes += r.AllocatedBytes
		agg.FreeBytes += r.FreeBytes
		agg.AllocationCount += r.AllocationCount
		agg.FreeBlockCount += r.FreeBlockCount

		if r.LargestFreeBlock > agg.LargestFreeBlock {
			agg.LargestFreeBlock = r.LargestFreeBlock
		}
		if r.FreeBlockCount > 0 && r.SmallestFreeBlock < agg.SmallestFreeBlock {
			agg.SmallestFreeBlock = r.SmallestFreeBlock
		}

		if r.FreeBytes > 0 {
			extSum += r.ExternalFragmentation
			intSum += r.InternalFragmentation
			contributing++
		}
	}

	if contributing > 0 {
		agg.ExternalFragmentation = extSum / float32(contributing)
		agg.InternalFragmentation = intSum / float32(contributing)
	} else {
		agg.ExternalFragmentation = 0
		agg.InternalFragmentation = 0
	}

	if agg.MinFreeBytes == 0 || agg.FreeBytes < agg.MinFreeBytes {
		agg.MinFreeBytes = agg.FreeBytes
	}

	if agg.FreeBlockCount == 0 {
		agg.SmallestFreeBlock = 0
	}
}
