package alloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/heaplab/heapscope/heap/block"
	"github.com/heaplab/heapscope/heap/oplog"
)

func Test_TrackedMallocAndBuffer(t *testing.T) {
	tr := NewTracked()
	tr.Init(4096)

	h, err := tr.Malloc(100)
	require.NoError(t, err)
	require.NotEqual(t, NoHandle, h)

	buf := tr.Buffer(h)
	require.Len(t, buf, 104, "real buffer carries the aligned size")
	buf[0] = 0xEE
	require.Equal(t, byte(0xEE), tr.Buffer(h)[0])

	s := tr.Stats()
	require.Equal(t, uint64(104), s.AllocatedBytes)
	require.Equal(t, uint32(1), s.AllocationCount)
}

func Test_TrackedShadowTableMirrorsAllocations(t *testing.T) {
	tr := NewTracked()
	tr.Init(1024)

	h1, _ := tr.Malloc(100)
	h2, _ := tr.Malloc(50)
	require.NotEqual(t, NoHandle, h2)

	blocks := tr.Blocks()
	require.Equal(t, block.Allocated, blocks[0].State)
	require.Equal(t, uint64(0), blocks[0].Offset, "synthetic first-fit placement")
	require.Equal(t, uint64(104), blocks[0].Size)
	require.Equal(t, block.Allocated, blocks[1].State)
	require.Equal(t, uint64(104), blocks[1].Offset)

	tr.Free(h1)
	blocks = tr.Blocks()
	require.Equal(t, block.Freed, blocks[0].State)
	require.Equal(t, uint32(0), blocks[0].AllocationID)

	// The shadow stays a complete partition of the simulated capacity.
	var sum uint64
	for _, b := range blocks {
		sum += b.Size
	}
	require.Equal(t, uint64(1024), sum)
}

func Test_TrackedShadowOffsetsAreNotAddresses(t *testing.T) {
	tr := NewTracked()
	tr.Init(1024)

	h1, _ := tr.Malloc(64)
	h2, _ := tr.Malloc(64)

	// Shadow offsets are bookkeeping, not addresses: the second block
	// sits at synthetic offset 64, but its handle is an unrelated token
	// and the offset itself resolves to nothing.
	require.Equal(t, uint64(64), tr.Blocks()[1].Offset)
	require.NotEqual(t, Handle(64), h2)
	require.Nil(t, tr.Buffer(Handle(64)))
	require.NotNil(t, tr.Buffer(h1))
	require.NotNil(t, tr.Buffer(h2))
}

func Test_TrackedFreeUnknownHandle(t *testing.T) {
	tr := NewTracked()
	tr.Init(1024)
	_, err := tr.Malloc(64)
	require.NoError(t, err)
	nblocks := len(tr.Blocks())

	tr.Free(Handle(9999))

	require.Len(t, tr.Blocks(), nblocks, "unknown handle mutates nothing")
	logs := tr.Logs()
	last := logs[len(logs)-1]
	require.Equal(t, oplog.ActionFree, last.Action)
	require.Equal(t, uint32(0), last.AllocationID)

	n := len(tr.Logs())
	tr.Free(NoHandle)
	require.Len(t, tr.Logs(), n)
}

func Test_TrackedExhaustionAtSimulatedCapacity(t *testing.T) {
	tr := NewTracked()
	tr.Init(128)

	_, err := tr.Malloc(128)
	require.NoError(t, err)

	h, err := tr.Malloc(8)
	require.ErrorIs(t, err, ErrNoSpace)
	require.Equal(t, NoHandle, h)
}

func Test_TrackedFreedSlotReused(t *testing.T) {
	tr := NewTracked()
	tr.Init(256)

	h1, _ := tr.Malloc(100)
	tr.Free(h1)

	h2, err := tr.Malloc(100)
	require.NoError(t, err)
	require.NotEqual(t, h1, h2, "handles are tokens, never recycled")
	require.Equal(t, uint64(0), tr.Blocks()[0].Offset)
	require.Equal(t, block.Allocated, tr.Blocks()[0].State)
}

func Test_TrackedRepeatedSplitsKeepShadow(t *testing.T) {
	tr := NewTracked()
	tr.Init(4096)

	// Every split appends a remainder row; the shadow must stay a
	// complete partition with each new row correctly stamped.
	for i := 0; i < 10; i++ {
		h, err := tr.Malloc(64)
		require.NoError(t, err)
		require.NotEqual(t, NoHandle, h)

		blocks := tr.Blocks()
		var sum uint64
		for _, blk := range blocks {
			sum += blk.Size
		}
		require.Equal(t, uint64(4096), sum, "shadow partition holds after every split")
		require.Equal(t, block.Allocated, blocks[i].State)
		require.Equal(t, uint64(64), blocks[i].Size)
		require.Equal(t, uint32(i+1), blocks[i].AllocationID)
	}

	s := tr.Stats()
	require.Equal(t, uint64(640), s.AllocatedBytes)
	require.Equal(t, uint32(10), s.AllocationCount)
}

func Test_TrackedConcurrentChurn(t *testing.T) {
	tr := NewTracked()
	tr.Init(16384)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				h, err := tr.Malloc(64)
				if err != nil {
					continue
				}
				buf := tr.Buffer(h)
				if buf != nil {
					buf[0] = byte(i)
				}
				tr.Free(h)
			}
		}()
	}
	wg.Wait()

	s := tr.Stats()
	require.Equal(t, uint64(0), s.AllocatedBytes, "everything was freed")
	require.Equal(t, uint64(16384), s.TotalSize)

	var sum uint64
	for _, b := range tr.Blocks() {
		require.NotEqual(t, block.Allocated, b.State)
		sum += b.Size
	}
	require.Equal(t, uint64(16384), sum, "shadow partition survives concurrent churn")
}

func Test_TrackedReset(t *testing.T) {
	tr := NewTracked()
	tr.Init(512)
	h, _ := tr.Malloc(100)
	require.NotEqual(t, NoHandle, h)

	tr.Reset()

	require.Nil(t, tr.Buffer(h), "old handles die with the epoch")
	s := tr.Stats()
	require.Equal(t, uint64(512), s.FreeBytes)
	require.Len(t, tr.Logs(), 1)
	require.Equal(t, oplog.ActionInit, tr.Logs()[0].Action)
}
