package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Align8(t *testing.T) {
	cases := []struct {
		in, want uint64
	}{
		{0, 0},
		{1, 8},
		{7, 8},
		{8, 8},
		{9, 16},
		{100, 104},
		{104, 104},
		{65529, 65536},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Align8(tc.in), "Align8(%d)", tc.in)
	}
}

func Test_Clamp(t *testing.T) {
	require.Equal(t, uint64(1024), Clamp(1024))
	require.Equal(t, uint64(MaxHeapSize), Clamp(MaxHeapSize))
	require.Equal(t, uint64(MaxHeapSize), Clamp(MaxHeapSize+1))
	require.Equal(t, uint64(MaxHeapSize), Clamp(1<<40))
}

func Test_PutReadU64(t *testing.T) {
	buf := make([]byte, 32)
	PutU64(buf, 8, 0xDEADBEEFCAFE)
	require.Equal(t, uint64(0xDEADBEEFCAFE), ReadU64(buf, 8))
	require.Equal(t, uint64(0), ReadU64(buf, 0))
	require.Equal(t, uint64(0), ReadU64(buf, 16))
}

func Test_SplitSlackDerivation(t *testing.T) {
	// The don't-split threshold is one free-list node plus fixed slack.
	require.Equal(t, FreeNodeSize+16, SplitSlack)
}
