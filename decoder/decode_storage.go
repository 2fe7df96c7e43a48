package decoder

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/initia-labs/soldebug/metrics"
	"github.com/initia-labs/soldebug/storage"
)

// maxStorageBytes caps the bytes read for a long bytes/string value.
const maxStorageBytes = 16000

var errNoStorage = errors.New("no storage available")

type storageDecodeFunc func(ctx context.Context, d *Decoder, desc *Descriptor, loc StorageLocation, r StorageReader) Value

var storageDecoders [kindCount]storageDecodeFunc

func init() {
	storageDecoders = [kindCount]storageDecodeFunc{
		Uint:       decodeValueFromStorage,
		Int:        decodeValueFromStorage,
		Address:    decodeValueFromStorage,
		Bool:       decodeValueFromStorage,
		FixedBytes: decodeValueFromStorage,
		Enum:       decodeValueFromStorage,
		Function:   decodeValueFromStorage,
		Bytes:      decodeBytesFromStorage,
		String:     decodeStringFromStorage,
		Array:      decodeArrayFromStorage,
		Struct:     decodeStructFromStorage,
		Mapping:    decodeMappingFromStorage,
	}
}

// DecodeFromStorage decodes the value of desc stored at loc.
func (d *Decoder) DecodeFromStorage(ctx context.Context, desc *Descriptor, loc StorageLocation, r StorageReader) (v Value) {
	defer metrics.RecoverFromPanic("decoder", func(p any) {
		v = failed(desc, "storage", fmt.Sprintf("panic: %v", p))
	})
	if err := ctx.Err(); err != nil {
		return failed(desc, "storage", err.Error())
	}
	return storageDecoders[desc.Kind](ctx, d, desc, loc, r)
}

func readSlot(ctx context.Context, r StorageReader, slot *uint256.Int) ([]byte, error) {
	if r == nil {
		return nil, errNoStorage
	}
	v, err := r.StorageSlot(ctx, common.Hash(slot.Bytes32()))
	if err != nil {
		return nil, err
	}
	return v.Bytes(), nil
}

// extractValue returns byteLength bytes of the slot at loc, loc.Offset bytes
// from its least significant end.
func extractValue(ctx context.Context, r StorageReader, loc StorageLocation, byteLength int) ([]byte, error) {
	word, err := readSlot(ctx, r, &loc.Slot)
	if err != nil {
		return nil, err
	}
	end := 32 - loc.Offset
	start := end - byteLength
	if start < 0 || end > 32 {
		return nil, errors.New("value crosses the slot boundary")
	}
	return word[start:end], nil
}

func dataSlot(slot *uint256.Int) *uint256.Int {
	b := slot.Bytes32()
	return new(uint256.Int).SetBytes(crypto.Keccak256(b[:]))
}

func decodeValueFromStorage(ctx context.Context, _ *Decoder, desc *Descriptor, loc StorageLocation, r StorageReader) Value {
	b, err := extractValue(ctx, r, loc, desc.StorageBytes)
	if err != nil {
		return failed(desc, "storage", err.Error())
	}
	return Value{Type: desc.TypeName, Value: renderValue(desc, b)}
}

func readBytesFromStorage(ctx context.Context, desc *Descriptor, loc StorageLocation, r StorageReader) ([]byte, uint64, error) {
	word, err := extractValue(ctx, r, loc, 32)
	if err != nil {
		return nil, 0, err
	}
	if word[31]&1 == 0 {
		size := int(word[31]) / 2
		if size > 31 {
			return nil, 0, errors.New("short bytes longer than a slot")
		}
		return word[:size], uint64(size), nil
	}

	v := new(uint256.Int).SetBytes(word)
	v.Sub(v, uint256.NewInt(1)).Rsh(v, 1)
	length := uint64(maxStorageBytes)
	if v.IsUint64() && v.Uint64() < length {
		length = v.Uint64()
	}
	toRead := int(length)

	data := make([]byte, 0, toRead+32)
	pos := dataSlot(&loc.Slot)
	for len(data) < toRead {
		chunk, err := readSlot(ctx, r, pos)
		if err != nil {
			return nil, 0, err
		}
		data = append(data, chunk...)
		pos = new(uint256.Int).AddUint64(pos, 1)
	}
	if v.IsUint64() {
		return data[:toRead], v.Uint64(), nil
	}
	return data[:toRead], length, nil
}

func decodeBytesFromStorage(ctx context.Context, _ *Decoder, desc *Descriptor, loc StorageLocation, r StorageReader) Value {
	data, length, err := readBytesFromStorage(ctx, desc, loc, r)
	if err != nil {
		return failed(desc, "storage", err.Error())
	}
	return Value{Type: desc.TypeName, Value: "0x" + hex.EncodeToString(data), Length: hexLength(length)}
}

func decodeStringFromStorage(ctx context.Context, _ *Decoder, desc *Descriptor, loc StorageLocation, r StorageReader) Value {
	data, length, err := readBytesFromStorage(ctx, desc, loc, r)
	if err != nil {
		return failed(desc, "storage", err.Error())
	}
	return formatString(data, length)
}

func formatString(data []byte, length uint64) Value {
	v := Value{Type: "string", Length: hexLength(length), Raw: "0x" + hex.EncodeToString(data)}
	if !utf8.Valid(data) {
		v.Error = "Invalid UTF8 encoding"
		return v
	}
	v.Value = string(data)
	return v
}

func decodeArrayFromStorage(ctx context.Context, d *Decoder, desc *Descriptor, loc StorageLocation, r StorageReader) Value {
	word, err := extractValue(ctx, r, loc, 32)
	if err != nil {
		return failed(desc, "storage", err.Error())
	}

	cur := StorageLocation{Slot: loc.Slot}
	size := uint256.NewInt(uint64(desc.ArraySize))
	if desc.IsDynamicArray() {
		size = new(uint256.Int).SetBytes(word)
		cur.Slot = *dataSlot(&loc.Slot)
	}
	count := uint64(d.storageArrayCap)
	if size.IsUint64() && size.Uint64() < count {
		count = size.Uint64()
	}

	elem := desc.Elem
	values := make([]Value, 0, count)
	for k := uint64(0); k < count; k++ {
		if ctx.Err() != nil {
			break
		}
		values = append(values, d.DecodeFromStorage(ctx, elem, cur, r))
		if elem.StorageSlots == 1 && elem.StorageBytes <= 32 {
			cur.Offset += elem.StorageBytes
			if cur.Offset+elem.StorageBytes > 32 {
				cur.Offset = 0
				cur.Slot.AddUint64(&cur.Slot, 1)
			}
		} else {
			cur.Slot.AddUint64(&cur.Slot, uint64(elem.StorageSlots))
			cur.Offset = 0
		}
	}
	return Value{Type: desc.TypeName, Value: values, Length: "0x" + size.Hex()[2:]}
}

func decodeStructFromStorage(ctx context.Context, d *Decoder, desc *Descriptor, loc StorageLocation, r StorageReader) Value {
	members := make(map[string]Value, len(desc.Members))
	for _, m := range desc.Members {
		var at StorageLocation
		at.Offset = loc.Offset + m.Offset
		at.Slot.AddUint64(&loc.Slot, m.Slot)
		members[m.Name] = d.DecodeFromStorage(ctx, m.Type, at, r)
	}
	return Value{Type: desc.TypeName, Value: members}
}

func mappingCorrections(desc *Descriptor) []storage.Correction {
	if desc.Value == nil || desc.Value.Kind != Struct {
		return nil
	}
	out := make([]storage.Correction, len(desc.Value.Members))
	for i, m := range desc.Value.Members {
		out[i] = storage.Correction{Offset: m.Offset, Slot: m.Slot}
	}
	return out
}

func decodeMappingFromStorage(ctx context.Context, d *Decoder, desc *Descriptor, loc StorageLocation, r StorageReader) Value {
	if r == nil {
		return failed(desc, "storage", errNoStorage.Error())
	}
	corrections := mappingCorrections(desc)
	slotBytes := loc.Slot.Bytes32()
	key := mappingKey{desc: desc, address: r.Address(), slot: hex.EncodeToString(slotBytes[:])}

	d.mappingMu.Lock()
	initial, ok := d.mappingState[key]
	d.mappingMu.Unlock()
	if !ok {
		preimages, err := r.InitialMappingsLocation(ctx, corrections)
		if err != nil {
			return failed(desc, "storage", err.Error())
		}
		initial = d.decodeMappingEntries(ctx, desc, preimages, loc, r)
		d.mappingMu.Lock()
		d.mappingState[key] = initial
		d.mappingMu.Unlock()
	}

	preimages, err := r.MappingsLocation(ctx, corrections)
	if err != nil {
		return failed(desc, "storage", err.Error())
	}
	current := d.decodeMappingEntries(ctx, desc, preimages, loc, r)

	merged := make(map[string]Value, len(initial)+len(current))
	for k, v := range initial {
		merged[k] = v
	}
	for k, v := range current {
		merged[k] = v
	}
	return Value{Type: desc.TypeName, Value: merged}
}

// mappingEntryLocation is keccak256(key . pad32(slot)).
func mappingEntryLocation(key []byte, slot *uint256.Int) *uint256.Int {
	p := slot.Bytes32()
	return new(uint256.Int).SetBytes(crypto.Keccak256(key, p[:]))
}

func (d *Decoder) decodeMappingEntries(ctx context.Context, desc *Descriptor, preimages storage.MappingKeys, loc StorageLocation, r StorageReader) map[string]Value {
	slotBytes := loc.Slot.Bytes32()
	keys := preimages[hex.EncodeToString(slotBytes[:])]
	if len(keys) == 0 {
		return map[string]Value{}
	}

	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make(map[string]Value, len(names))
	for _, k := range names {
		raw, err := hex.DecodeString(trimHex(k))
		if err != nil {
			d.logger.Debug("skipping malformed mapping key", "key", k)
			continue
		}
		at := StorageLocation{Slot: *mappingEntryLocation(raw, &loc.Slot), Offset: loc.Offset}
		out[k] = d.DecodeFromStorage(ctx, desc.Value, at, r)
	}
	return out
}

func trimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return s
}
