package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/heaplab/heapscope/heap/arena"
)

func newTestList(t *testing.T) *freeList {
	t.Helper()
	return newFreeList(arena.New(4096))
}

func Test_FreeListPushAndSpans(t *testing.T) {
	f := newTestList(t)
	require.True(t, f.empty())

	f.push(0, 128)
	f.push(256, 64)
	f.push(512, 512)

	got := f.spans()
	require.Equal(t, []span{{512, 512}, {256, 64}, {0, 128}}, got, "head insertion reverses push order")
	require.False(t, f.empty())
}

func Test_FreeListBestFit(t *testing.T) {
	f := newTestList(t)
	f.push(0, 128)
	f.push(256, 64)
	f.push(512, 512)

	off, size, ok := f.bestFit(48)
	require.True(t, ok)
	require.Equal(t, uint64(256), off, "smallest satisfying span wins")
	require.Equal(t, uint64(64), size)

	off, _, ok = f.bestFit(200)
	require.True(t, ok)
	require.Equal(t, uint64(512), off)

	_, _, ok = f.bestFit(1024)
	require.False(t, ok)
}

func Test_FreeListBestFitTieKeepsFirst(t *testing.T) {
	f := newTestList(t)
	f.push(0, 64)
	f.push(256, 64)

	// List order is 256 then 0; the first encountered equal span wins.
	off, _, ok := f.bestFit(64)
	require.True(t, ok)
	require.Equal(t, uint64(256), off)
}

func Test_FreeListRemove(t *testing.T) {
	f := newTestList(t)
	f.push(0, 64)
	f.push(128, 64)
	f.push(256, 64)

	require.True(t, f.remove(128), "middle node")
	require.Equal(t, []span{{256, 64}, {0, 64}}, f.spans())

	require.True(t, f.remove(256), "head node")
	require.Equal(t, []span{{0, 64}}, f.spans())

	require.False(t, f.remove(999), "unlinked offset")

	require.True(t, f.remove(0))
	require.True(t, f.empty())
}

func Test_FreeListTakeRemoves(t *testing.T) {
	f := newTestList(t)
	f.push(0, 128)
	f.push(256, 64)

	off, size, ok := f.take(64)
	require.True(t, ok)
	require.Equal(t, uint64(256), off)
	require.Equal(t, uint64(64), size)
	require.Equal(t, []span{{0, 128}}, f.spans())
}

func Test_FreeListResizeAndRebuild(t *testing.T) {
	f := newTestList(t)
	f.push(0, 64)
	f.resize(0, 256)

	_, size, ok := f.bestFit(200)
	require.True(t, ok)
	require.Equal(t, uint64(256), size)

	f.rebuild([]span{{0, 32}, {64, 32}})
	require.Equal(t, []span{{64, 32}, {0, 32}}, f.spans())

	f.rebuild(nil)
	require.True(t, f.empty())
}
