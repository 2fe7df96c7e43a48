package decoder

import (
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/initia-labs/soldebug/metrics"
)

const wordSize = 32

// memoryWord returns the 32 bytes at offset, zero-filled past the end.
func memoryWord(mem []byte, offset int) []byte {
	out := make([]byte, wordSize)
	if offset < 0 || offset >= len(mem) {
		return out
	}
	copy(out, mem[offset:])
	return out
}

// wordToInt reads a word as a non-negative int, false when it does not fit.
func wordToInt(word []byte) (int, bool) {
	v := new(uint256.Int).SetBytes(word)
	if !v.IsUint64() || v.Uint64() > 1<<31 {
		return 0, false
	}
	return int(v.Uint64()), true
}

// DecodeFromMemory decodes the value whose head is at offset. Reference
// types hold a pointer there.
func (d *Decoder) DecodeFromMemory(desc *Descriptor, offset int, mem []byte) (v Value) {
	defer metrics.RecoverFromPanic("decoder", func(p any) {
		v = failed(desc, "memory", fmt.Sprintf("panic: %v", p))
	})
	switch {
	case desc.Kind.IsValueType():
		return Value{Type: desc.TypeName, Value: renderValue(desc, memoryWord(mem, offset))}
	case desc.Kind == Mapping:
		return Value{Type: desc.TypeName, Value: "", Length: "0x0"}
	}
	ptr, ok := wordToInt(memoryWord(mem, offset))
	if !ok {
		return failed(desc, "memory", "pointer out of range")
	}
	return d.decodeFromMemoryAt(desc, ptr, mem, 0)
}

// decodeFromMemoryAt decodes the reference type whose data starts at offset.
// skip is the number of array elements already shown.
func (d *Decoder) decodeFromMemoryAt(desc *Descriptor, offset int, mem []byte, skip int) Value {
	switch desc.Kind {
	case Array:
		return d.decodeArrayFromMemory(desc, offset, mem, skip)
	case Struct:
		members := make(map[string]Value, len(desc.Members))
		for _, m := range desc.Members {
			members[m.Name] = d.DecodeFromMemory(m.Type, offset, mem)
			if m.Type.Kind != Mapping {
				offset += wordSize
			}
		}
		return Value{Type: desc.TypeName, Value: members}
	case Bytes, String:
		data, length, ok := bytesFromMemory(mem, offset)
		if !ok {
			return failed(desc, "memory", "length out of range")
		}
		if desc.Kind == String {
			return formatString(data, length)
		}
		return Value{Type: desc.TypeName, Value: "0x" + hex.EncodeToString(data), Length: hexLength(length)}
	case Mapping:
		return Value{Type: desc.TypeName, Value: "", Length: "0x0"}
	}
	return Value{Type: desc.TypeName, Value: renderValue(desc, memoryWord(mem, offset))}
}

func bytesFromMemory(mem []byte, offset int) ([]byte, uint64, bool) {
	length, ok := wordToInt(memoryWord(mem, offset))
	if !ok {
		return nil, 0, false
	}
	start := offset + wordSize
	if start+length > len(mem) {
		return nil, 0, false
	}
	data := make([]byte, length)
	copy(data, mem[start:start+length])
	return data, uint64(length), true
}

func (d *Decoder) decodeArrayFromMemory(desc *Descriptor, offset int, mem []byte, skip int) Value {
	length := desc.ArraySize
	if desc.IsDynamicArray() {
		n, ok := wordToInt(memoryWord(mem, offset))
		if !ok {
			return failed(desc, "memory", "length out of range")
		}
		length = n
		offset += wordSize
	}
	if skip < 0 || skip > length {
		skip = 0
	}
	offset += wordSize * skip

	limit := length - skip
	if limit > d.memoryArrayCap {
		limit = d.memoryArrayCap
	}
	values := make([]Value, 0, limit)
	for k := 0; k < limit; k++ {
		values = append(values, d.DecodeFromMemory(desc.Elem, offset, mem))
		offset += wordSize
	}
	return Value{
		Type:    desc.TypeName,
		Value:   values,
		Length:  hexLength(uint64(length)),
		Cursor:  skip + limit,
		HasNext: length > skip+limit,
	}
}
