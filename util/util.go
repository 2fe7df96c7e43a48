package util

import (
	"encoding/hex"
	"sort"
	"strings"

	"github.com/holiman/uint256"

	"github.com/initia-labs/soldebug/types"
)

func HexToBytes(hexStr string) ([]byte, error) {
	hexStr = strings.TrimPrefix(hexStr, "0x")
	if hexStr == "" {
		return []byte{}, nil
	}
	// Pad with leading zero if hex string has odd length
	if len(hexStr)%2 == 1 {
		hexStr = "0" + hexStr
	}
	return hex.DecodeString(hexStr)
}

func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

func BytesToHexWithPrefix(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// HexToWord parses a stack word or slot value. Empty input is zero.
func HexToWord(hexStr string) (*uint256.Int, error) {
	b, err := HexToBytes(hexStr)
	if err != nil {
		return nil, types.NewInvalidValueError("word", hexStr, err.Error())
	}
	if len(b) > types.WordSize {
		return nil, types.NewInvalidValueError("word", hexStr, "longer than 32 bytes")
	}
	return new(uint256.Int).SetBytes(b), nil
}

// HexToInt parses a stack word that is used as a memory offset or size.
func HexToInt(hexStr string) (int, error) {
	w, err := HexToWord(hexStr)
	if err != nil {
		return 0, err
	}
	if !w.IsUint64() || w.Uint64() > 1<<31 {
		return 0, types.NewInvalidValueError("offset", hexStr, "too large")
	}
	return int(w.Uint64()), nil
}

// PadWord left-pads a hex value without prefix to 64 characters.
func PadWord(hexStr string) string {
	hexStr = strings.TrimPrefix(hexStr, "0x")
	if len(hexStr) < 64 {
		return strings.Repeat("0", 64-len(hexStr)) + hexStr
	}
	return hexStr
}

// JoinMemory concatenates the 32-byte words of a struct log memory dump.
func JoinMemory(words []string) ([]byte, error) {
	var sb strings.Builder
	for _, w := range words {
		sb.WriteString(strings.TrimPrefix(w, "0x"))
	}
	return HexToBytes(sb.String())
}

// FindLowerBound returns the index of the last element of the sorted slice
// that is <= target, or -1 when every element is greater.
func FindLowerBound(target int, sorted []int) int {
	return sort.Search(len(sorted), func(i int) bool { return sorted[i] > target }) - 1
}
