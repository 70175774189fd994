package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/heaplab/heapscope/heap/block"
	"github.com/heaplab/heapscope/heap/oplog"
	"github.com/heaplab/heapscope/internal/format"
)

func Test_BestFitSplitOnAllocate(t *testing.T) {
	b := NewBestFit()
	b.Init(256)

	h, err := b.Malloc(100)
	require.NoError(t, err)
	require.Equal(t, Handle(format.HeaderSize), h, "user data sits past the embedded header")

	blocks := b.Blocks()
	require.Len(t, blocks, 2)
	require.Equal(t, block.Allocated, blocks[0].State)
	require.Equal(t, uint64(112), blocks[0].Size, "aligned size plus header")
	require.Equal(t, uint64(100), blocks[0].RequestedSize)
	require.Equal(t, block.Free, blocks[1].State)
	require.Equal(t, uint64(112), blocks[1].Offset)
	require.Equal(t, uint64(144), blocks[1].Size)
}

func Test_BestFitReusesFreedBlock(t *testing.T) {
	b := NewBestFit()
	b.Init(256)

	h, err := b.Malloc(100)
	require.NoError(t, err)
	b.Free(h)

	// The freed 112-byte span is a tighter fit than the 144-byte
	// remainder, and its excess is below the split threshold, so the
	// allocation consumes it whole.
	h2, err := b.Malloc(100)
	require.NoError(t, err)
	require.Equal(t, h, h2)

	blocks := b.Blocks()
	require.Len(t, blocks, 2)
	require.Equal(t, block.Allocated, blocks[0].State)
	require.Equal(t, uint64(112), blocks[0].Size)
	require.Equal(t, uint32(2), blocks[0].AllocationID, "ids are never reused")
}

func Test_BestFitNeverCoalesces(t *testing.T) {
	b := NewBestFit()
	b.Init(512)

	h1, err := b.Malloc(100)
	require.NoError(t, err)
	h2, err := b.Malloc(100)
	require.NoError(t, err)

	b.Free(h1)
	b.Free(h2)

	// Two physically adjacent freed blocks stay separate rows forever.
	blocks := b.Blocks()
	require.Equal(t, block.Freed, blocks[0].State)
	require.Equal(t, uint64(112), blocks[0].Size)
	require.Equal(t, block.Freed, blocks[1].State)
	require.Equal(t, uint64(112), blocks[1].Size)

	for _, e := range b.Logs() {
		require.NotEqual(t, oplog.ActionCoalesce, e.Action)
		require.NotEqual(t, oplog.ActionFullCoalesce, e.Action)
	}

	s := b.Stats()
	require.Equal(t, uint32(3), s.FreeBlockCount)
	require.Equal(t, uint64(288), s.LargestFreeBlock, "trailing remainder, not a merged span")
}

func Test_BestFitNoSplitWhenRemainderTooSmall(t *testing.T) {
	b := NewBestFit()
	b.Init(144)

	// need = 112; the 32-byte excess is exactly the slack threshold, so
	// the whole span is absorbed as internal fragmentation.
	h, err := b.Malloc(100)
	require.NoError(t, err)

	blocks := b.Blocks()
	require.Len(t, blocks, 1)
	require.Equal(t, uint64(144), blocks[0].Size)

	s := b.Stats()
	require.Equal(t, uint64(0), s.FreeBytes)
	require.InDelta(t, float32(144-100)/144*100, s.InternalFragmentation, 0.01)

	b.Free(h)
	require.Equal(t, uint64(144), b.Stats().FreeBytes)
}

func Test_BestFitPicksSmallestSpan(t *testing.T) {
	b := NewBestFit()
	b.Init(1024)

	h1, _ := b.Malloc(100) // 112 @ 0
	h2, _ := b.Malloc(200) // 208 @ 112
	_, err := b.Malloc(100) // 112 @ 320, pins the layout
	require.NoError(t, err)

	b.Free(h1)
	b.Free(h2)

	// Spans now: 112 @ 0 (freed), 208 @ 112 (freed), 592 @ 432 (tail).
	h4, err := b.Malloc(100)
	require.NoError(t, err)
	require.Equal(t, h1, h4, "best fit prefers the 112 span over the 208 one")
}

func Test_BestFitExhaustion(t *testing.T) {
	b := NewBestFit()
	b.Init(128)

	_, err := b.Malloc(104)
	require.NoError(t, err, "104 aligned plus header is 120, within 128")

	h, err := b.Malloc(64)
	require.ErrorIs(t, err, ErrNoSpace)
	require.Equal(t, NoHandle, h)

	logs := b.Logs()
	last := logs[len(logs)-1]
	require.Equal(t, oplog.ActionMalloc, last.Action)
	require.False(t, last.Success)
}

func Test_BestFitInvalidFree(t *testing.T) {
	b := NewBestFit()
	b.Init(256)
	_, err := b.Malloc(100)
	require.NoError(t, err)
	before := b.Blocks()

	// Plausible handle, but nothing allocated there: table untouched,
	// unattributed FREE logged.
	b.Free(Handle(200))

	require.Equal(t, before, b.Blocks())
	logs := b.Logs()
	last := logs[len(logs)-1]
	require.Equal(t, oplog.ActionFree, last.Action)
	require.Equal(t, uint32(0), last.AllocationID)

	// Out-of-range and nil handles do not even log.
	n := len(b.Logs())
	b.Free(NoHandle)
	b.Free(Handle(format.MaxHeapSize * 2))
	require.Len(t, b.Logs(), n)
}

func Test_BestFitDoubleFree(t *testing.T) {
	b := NewBestFit()
	b.Init(256)

	h, err := b.Malloc(100)
	require.NoError(t, err)
	b.Free(h)
	nblocks := len(b.Blocks())

	// Second free finds no Allocated row: unattributed log, no mutation.
	b.Free(h)
	require.Len(t, b.Blocks(), nblocks)
	logs := b.Logs()
	require.Equal(t, uint32(0), logs[len(logs)-1].AllocationID)
}

func Test_BestFitBytes(t *testing.T) {
	b := NewBestFit()
	b.Init(256)

	h, err := b.Malloc(20)
	require.NoError(t, err)

	buf := b.Bytes(h)
	require.Len(t, buf, 24)
	buf[0] = 0xAB
	require.Equal(t, byte(0xAB), b.Bytes(h)[0])

	require.Nil(t, b.Bytes(NoHandle))
	require.Nil(t, b.Bytes(Handle(3)), "inside the header region")
}

func Test_BestFitRepeatedSplitsKeepPartition(t *testing.T) {
	b := NewBestFit()
	b.Init(4096)

	// Each split appends a remainder row, growing the table as it goes;
	// the rows must stay an exact partition after every allocation.
	for i := 0; i < 10; i++ {
		h, err := b.Malloc(64)
		require.NoError(t, err)
		require.NotEqual(t, NoHandle, h)

		blocks := b.Blocks()
		var sum uint64
		allocated := 0
		for _, blk := range blocks {
			sum += blk.Size
			if blk.State == block.Allocated {
				allocated++
			}
		}
		require.Equal(t, uint64(4096), sum, "rows partition the heap after every split")
		require.Equal(t, i+1, allocated)
		require.Equal(t, block.Allocated, blocks[i].State)
		require.Equal(t, uint32(i+1), blocks[i].AllocationID)
		require.Equal(t, uint64(72), blocks[i].Size)
	}

	s := b.Stats()
	require.Equal(t, uint64(720), s.AllocatedBytes)
	require.Equal(t, uint64(4096-720), s.FreeBytes)
}

func Test_BestFitMinimalSpanRequest(t *testing.T) {
	b := NewBestFit()
	b.Init(1024)

	// A zero-byte request still occupies a span large enough for a free
	// node, so freeing it cannot scribble over the neighbor's bookkeeping.
	h, err := b.Malloc(0)
	require.NoError(t, err)
	require.Equal(t, uint64(format.FreeNodeSize), b.Blocks()[0].Size)

	b.Free(h)

	h2, err := b.Malloc(100)
	require.NoError(t, err)
	require.NotEqual(t, NoHandle, h2)

	s := b.Stats()
	require.Equal(t, s.TotalSize, s.AllocatedBytes+s.FreeBytes)
}

func Test_BestFitMinFreeWatermark(t *testing.T) {
	b := NewBestFit()
	b.Init(512)

	h1, _ := b.Malloc(100)
	h2, _ := b.Malloc(100)
	low := b.Stats().FreeBytes

	b.Free(h1)
	b.Free(h2)

	s := b.Stats()
	require.Equal(t, uint64(512), s.FreeBytes)
	require.Equal(t, low, s.MinFreeBytes, "watermark keeps the historic low")
}
