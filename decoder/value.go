package decoder

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

func leftPad(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}

// lowBytes returns the n least significant bytes of a big-endian word.
func lowBytes(b []byte, n int) []byte {
	b = leftPad(b, n)
	return b[len(b)-n:]
}

// highBytes returns the n most significant bytes, right-padding short input.
func highBytes(b []byte, n int) []byte {
	if len(b) >= n {
		return b[:n]
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func hexLength(n uint64) string {
	return fmt.Sprintf("0x%x", n)
}

// renderValue formats a value type read from word. word is either the full
// 32-byte word or the storageBytes slice extracted from a slot.
func renderValue(desc *Descriptor, word []byte) any {
	switch desc.Kind {
	case Uint:
		return new(uint256.Int).SetBytes(lowBytes(word, desc.StorageBytes)).Dec()
	case Int:
		x := new(uint256.Int).SetBytes(lowBytes(word, desc.StorageBytes))
		if desc.StorageBytes < 32 {
			x.ExtendSign(x, uint256.NewInt(uint64(desc.StorageBytes-1)))
		}
		if x.Sign() < 0 {
			return "-" + new(uint256.Int).Neg(x).Dec()
		}
		return x.Dec()
	case Address:
		return "0x" + strings.ToUpper(hex.EncodeToString(lowBytes(word, 20)))
	case Bool:
		for _, b := range lowBytes(word, desc.StorageBytes) {
			if b != 0 {
				return true
			}
		}
		return false
	case FixedBytes:
		return "0x" + strings.ToUpper(hex.EncodeToString(highBytes(word, desc.StorageBytes)))
	case Enum:
		v := new(uint256.Int).SetBytes(lowBytes(word, desc.StorageBytes))
		if v.IsUint64() && v.Uint64() < uint64(len(desc.EnumValues)) {
			return desc.EnumValues[v.Uint64()]
		}
		return fmt.Sprintf("INVALID_ENUM<%s>", v.Dec())
	case Function:
		return "at program counter " + hex.EncodeToString(lowBytes(word, desc.StorageBytes))
	}
	return hex.EncodeToString(word)
}
