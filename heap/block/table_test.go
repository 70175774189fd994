package block

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/heaplab/heapscope/internal/format"
)

func Test_TableSortByOffset(t *testing.T) {
	tb := NewTable()
	tb.Reset(
		Block{Offset: 200, Size: 56, State: Allocated, AllocationID: 2},
		Block{Offset: 0, Size: 100, State: Allocated, AllocationID: 1},
		Block{Offset: 100, Size: 100, State: Free},
	)
	tb.Sort()

	require.Equal(t, uint64(0), tb.At(0).Offset)
	require.Equal(t, uint64(100), tb.At(1).Offset)
	require.Equal(t, uint64(200), tb.At(2).Offset)
}

func Test_TableSortRegionMajor(t *testing.T) {
	tb := NewTable()
	tb.Reset(
		Block{Offset: 0, RegionID: 2},
		Block{Offset: 128, RegionID: 0},
		Block{Offset: 0, RegionID: 1},
		Block{Offset: 0, RegionID: 0},
	)
	tb.Sort()

	// Offsets are region-local, so rows group by region first and sort
	// by offset within each group.
	require.Equal(t, uint8(0), tb.At(0).RegionID)
	require.Equal(t, uint64(0), tb.At(0).Offset)
	require.Equal(t, uint8(0), tb.At(1).RegionID)
	require.Equal(t, uint64(128), tb.At(1).Offset)
	require.Equal(t, uint8(1), tb.At(2).RegionID)
	require.Equal(t, uint8(2), tb.At(3).RegionID)
}

func Test_TableFind(t *testing.T) {
	tb := NewTable()
	tb.Reset(
		Block{Offset: 0, Size: 64, State: Allocated, AllocationID: 1},
		Block{Offset: 64, Size: 64, State: Freed},
		Block{Offset: 128, Size: 64, State: Free},
	)

	require.Equal(t, 0, tb.Find(0, 0, Allocated))
	require.Equal(t, -1, tb.Find(0, 0, Free, Freed))
	require.Equal(t, 1, tb.Find(0, 64, Free, Freed))
	require.Equal(t, 2, tb.Find(0, 128))
	require.Equal(t, -1, tb.Find(1, 64, Freed), "wrong region must not match")
	require.Equal(t, 0, tb.FindAllocatedByID(1))
	require.Equal(t, -1, tb.FindAllocatedByID(9))
}

func Test_TableAppendCapacity(t *testing.T) {
	tb := NewTable()
	for i := 0; i < format.MaxBlocks; i++ {
		require.True(t, tb.Append(Block{Offset: uint64(i) * 8, Size: 8}))
	}
	require.True(t, tb.Full())
	require.False(t, tb.Append(Block{Offset: 1 << 20, Size: 8}), "append past capacity must decline")
	require.Equal(t, format.MaxBlocks, tb.Len())
}

func Test_TableRemoveAt(t *testing.T) {
	tb := NewTable()
	tb.Reset(
		Block{Offset: 0, Size: 8},
		Block{Offset: 8, Size: 8},
		Block{Offset: 16, Size: 8},
	)
	tb.RemoveAt(1)
	require.Equal(t, 2, tb.Len())
	require.Equal(t, uint64(0), tb.At(0).Offset)
	require.Equal(t, uint64(16), tb.At(1).Offset)
}

func Test_SnapshotIsACopy(t *testing.T) {
	tb := NewTable()
	tb.Reset(Block{Offset: 8, Size: 8}, Block{Offset: 0, Size: 8})

	snap := tb.Snapshot()
	require.Equal(t, uint64(0), snap[0].Offset, "snapshot is sorted")

	snap[0].Offset = 999
	require.NotEqual(t, uint64(999), tb.At(0).Offset)
	require.NotEqual(t, uint64(999), tb.At(1).Offset)
}

func Test_ClockMonotonic(t *testing.T) {
	var c Clock
	require.Equal(t, uint32(0), c.Tick())
	require.Equal(t, uint32(1), c.Tick())
	require.Equal(t, uint32(2), c.Now())
	c.Reset()
	require.Equal(t, uint32(0), c.Tick())
}
