package decoder

import (
	"encoding/json"
	"strings"

	"github.com/holiman/uint256"

	"github.com/initia-labs/soldebug/types"
)

// Kind is the closed set of Solidity type families the decoder handles.
type Kind int

const (
	Uint Kind = iota
	Int
	Address
	Bool
	FixedBytes
	Enum
	Function
	Bytes
	String
	Array
	Struct
	Mapping

	kindCount
)

var kindNames = [kindCount]string{
	Uint:       "uint",
	Int:        "int",
	Address:    "address",
	Bool:       "bool",
	FixedBytes: "bytesX",
	Enum:       "enum",
	Function:   "function",
	Bytes:      "bytes",
	String:     "string",
	Array:      "array",
	Struct:     "struct",
	Mapping:    "mapping",
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return "unknown"
	}
	return kindNames[k]
}

// IsValueType reports whether values of the kind fit in one word.
func (k Kind) IsValueType() bool {
	return k < Bytes
}

// Location is where a reference type lives.
type Location string

const (
	LocationNone     Location = ""
	LocationStorage  Location = "storage"
	LocationMemory   Location = "memory"
	LocationCalldata Location = "calldata"
)

// ParseLocation maps the solc location suffixes and AST storageLocation
// values onto a Location.
func ParseLocation(s string) Location {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "storage"):
		return LocationStorage
	case s == "memory":
		return LocationMemory
	case s == "calldata":
		return LocationCalldata
	}
	return LocationNone
}

// Descriptor describes a decoded Solidity type. Descriptors are shared and
// must not be modified once returned by the decoder.
type Descriptor struct {
	Kind         Kind
	TypeName     string
	StorageSlots int
	StorageBytes int
	Location     Location

	// Array
	Elem      *Descriptor
	ArraySize int // -1 when dynamic

	// Struct
	Members []Member

	// Enum
	EnumValues []string

	// Mapping
	Key   *Descriptor
	Value *Descriptor
}

func (d *Descriptor) IsDynamicArray() bool {
	return d.Kind == Array && d.ArraySize < 0
}

// Member is a struct member or a state variable with its position in
// storage relative to the enclosing slot.
type Member struct {
	Name      string
	Type      *Descriptor
	Constant  bool
	Immutable bool
	Slot      uint64
	Offset    int
}

// StorageLocation is an absolute storage position: a slot and a byte
// offset counted from the least significant end.
type StorageLocation struct {
	Slot   uint256.Int
	Offset int
}

func slotLocation(slot uint64) StorageLocation {
	var l StorageLocation
	l.Slot.SetUint64(slot)
	return l
}

// Value is a decoded variable. Value holds a string, a bool, a []Value or
// a map[string]Value depending on the type.
type Value struct {
	Type      string `json:"type"`
	Value     any    `json:"value,omitempty"`
	Length    string `json:"length,omitempty"`
	Raw       string `json:"raw,omitempty"`
	Error     string `json:"error,omitempty"`
	Cursor    int    `json:"cursor,omitempty"`
	HasNext   bool   `json:"hasNext,omitempty"`
	Constant  bool   `json:"constant,omitempty"`
	Immutable bool   `json:"immutable,omitempty"`
}

// Local is a variable or parameter binding found while building the scope
// tree. StackDepth counts from the bottom of the stack.
type Local struct {
	Name       string               `json:"name"`
	Type       *Descriptor          `json:"-"`
	StackDepth int                  `json:"stackDepth"`
	Source     types.SourceLocation `json:"sourceLocation"`
	// ABI is set on function parameters for call-data decoding.
	ABI json.RawMessage `json:"-"`
}
