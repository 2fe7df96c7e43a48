package decoder

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/initia-labs/soldebug/metrics"
	"github.com/initia-labs/soldebug/util"
)

// Frame is the machine state a local is decoded against.
type Frame struct {
	// Stack is top first, as returned by the trace store.
	Stack    []string
	Memory   []byte
	CallData []byte
	Storage  StorageReader
	// Cursor is the number of array elements already shown.
	Cursor int
}

func stackWord(stack []string, depth int) ([]byte, error) {
	return util.HexToBytes(util.PadWord(stack[len(stack)-1-depth]))
}

// DecodeFromStack decodes a local from the stack slot it was bound to.
func (d *Decoder) DecodeFromStack(ctx context.Context, local Local, f Frame) (v Value) {
	desc := local.Type
	defer metrics.RecoverFromPanic("decoder", func(p any) {
		v = failed(desc, "stack", fmt.Sprintf("panic: %v", p))
	})
	if desc == nil {
		return failed(nil, "stack", "no type")
	}
	if desc.Kind.IsValueType() {
		if local.StackDepth >= len(f.Stack) {
			return Value{Type: desc.TypeName, Value: renderValue(desc, make([]byte, wordSize))}
		}
		word, err := stackWord(f.Stack, local.StackDepth)
		if err != nil {
			return failed(desc, "stack", err.Error())
		}
		return Value{Type: desc.TypeName, Value: renderValue(desc, word)}
	}

	if len(f.Stack)-1 < local.StackDepth {
		return failed(desc, "stack", fmt.Sprintf("stack underflow %d", local.StackDepth))
	}
	word, err := stackWord(f.Stack, local.StackDepth)
	if err != nil {
		return failed(desc, "stack", err.Error())
	}

	switch desc.Location {
	case LocationStorage:
		var loc StorageLocation
		loc.Slot.SetBytes(word)
		return d.DecodeFromStorage(ctx, desc, loc, f.Storage)
	case LocationMemory:
		offset, ok := wordToInt(word)
		if !ok {
			return failed(desc, "memory", "pointer out of range")
		}
		return d.decodeFromMemoryAt(desc, offset, f.Memory, f.Cursor)
	case LocationCalldata:
		return d.decodeFromCallData(desc, local, f.CallData)
	}
	return failed(desc, "stack", fmt.Sprintf("no decoder for %q", desc.Location))
}

func (d *Decoder) parsedABI(raw []byte) (*abi.ABI, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.abis[string(raw)]; ok {
		return a, nil
	}
	a, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	d.abis[string(raw)] = &a
	return &a, nil
}

// decodeFromCallData ABI-decodes the arguments of the called function and
// picks the one bound to local.
func (d *Decoder) decodeFromCallData(desc *Descriptor, local Local, calldata []byte) Value {
	if len(local.ABI) == 0 {
		return failed(desc, "calldata", "no abi")
	}
	if len(calldata) < 4 {
		return failed(desc, "calldata", "call data shorter than a selector")
	}
	parsed, err := d.parsedABI(local.ABI)
	if err != nil {
		return failed(desc, "calldata", err.Error())
	}
	method, err := parsed.MethodById(calldata[:4])
	if err != nil {
		return failed(desc, "calldata", err.Error())
	}
	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return failed(desc, "calldata", err.Error())
	}
	i := argumentIndex(method.Inputs, local.Name)
	if i < 0 || i >= len(args) {
		return failed(desc, "calldata", fmt.Sprintf("argument %s not found", local.Name))
	}
	return renderABIValue(desc, reflect.ValueOf(args[i]))
}

// argumentIndex finds an input by name. Unnamed inputs are bound as $i.
func argumentIndex(inputs abi.Arguments, name string) int {
	for i, arg := range inputs {
		if arg.Name != "" && arg.Name == name {
			return i
		}
	}
	if rest, ok := strings.CutPrefix(name, "$"); ok {
		if i, err := strconv.Atoi(rest); err == nil && i < len(inputs) && inputs[i].Name == "" {
			return i
		}
	}
	return -1
}

var bigIntType = reflect.TypeOf((*big.Int)(nil))

func renderABIValue(desc *Descriptor, v reflect.Value) Value {
	kind := v.Kind()
	isBytes := (kind == reflect.Slice || kind == reflect.Array) && v.Type().Elem().Kind() == reflect.Uint8
	if (kind == reflect.Slice || kind == reflect.Array) && !isBytes {
		elem := desc
		if desc.Kind == Array && desc.Elem != nil {
			elem = desc.Elem
		}
		values := make([]Value, v.Len())
		for i := range values {
			values[i] = renderABIValue(elem, v.Index(i))
		}
		return Value{Type: desc.TypeName, Value: values, Length: hexLength(uint64(v.Len()))}
	}
	return Value{Type: desc.TypeName, Value: formatABIScalar(v)}
}

func formatABIScalar(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Type() == bigIntType {
		return v.Interface().(*big.Int).String()
	}
	switch x := v.Interface().(type) {
	case common.Address:
		return x.Hex()
	case []byte:
		return hexutil.Encode(x)
	case string:
		return x
	}
	switch v.Kind() {
	case reflect.Array:
		b := make([]byte, v.Len())
		for i := range b {
			b[i] = byte(v.Index(i).Uint())
		}
		return "0x" + hex.EncodeToString(b)
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return uint256.NewInt(v.Uint()).Dec()
	}
	return strings.TrimSpace(fmt.Sprint(v.Interface()))
}
