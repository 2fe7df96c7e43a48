package util_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/initia-labs/soldebug/util"
)

func TestHexToBytes(t *testing.T) {
	b, err := util.HexToBytes("0xabc")
	require.NoError(t, err)
	require.Equal(t, []byte{0x0a, 0xbc}, b)

	b, err = util.HexToBytes("")
	require.NoError(t, err)
	require.Empty(t, b)

	_, err = util.HexToBytes("0xzz")
	require.Error(t, err)
}

func TestHexToWord(t *testing.T) {
	w, err := util.HexToWord("0x05")
	require.NoError(t, err)
	require.Equal(t, uint64(5), w.Uint64())

	_, err = util.HexToWord("0x" + util.PadWord("1") + "00")
	require.Error(t, err)
}

func TestJoinMemory(t *testing.T) {
	mem, err := util.JoinMemory([]string{util.PadWord("1"), util.PadWord("ff")})
	require.NoError(t, err)
	require.Len(t, mem, 64)
	require.Equal(t, byte(1), mem[31])
	require.Equal(t, byte(0xff), mem[63])
}

func TestFindLowerBound(t *testing.T) {
	sorted := []int{0, 6, 21, 40}
	tests := []struct {
		target   int
		expected int
	}{
		{-1, -1},
		{0, 0},
		{5, 0},
		{6, 1},
		{25, 2},
		{100, 3},
	}
	for _, tt := range tests {
		require.Equal(t, tt.expected, util.FindLowerBound(tt.target, sorted), "target %d", tt.target)
	}
}
