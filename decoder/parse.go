package decoder

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/initia-labs/soldebug/ast"
	"github.com/initia-labs/soldebug/types"
)

var (
	locationSuffix = regexp.MustCompile(`( storage ref| storage pointer| memory| calldata)`)
	trailingLoc    = regexp.MustCompile(`( storage ref| storage pointer| memory| calldata)$`)
	arrayType      = regexp.MustCompile(`^(.*)\[(.*?)\]( storage ref| storage pointer| memory| calldata)?$`)
	mappingType    = regexp.MustCompile(`^mapping\((.*?)=>(.*)\)$`)
	structType     = regexp.MustCompile(`^struct (\S+?)( storage ref| storage pointer| memory| calldata)?$`)
	enumType       = regexp.MustCompile(`^enum (.*)$`)
	digits         = regexp.MustCompile(`[0-9]+`)
)

func removeLocation(t string) string {
	return locationSuffix.ReplaceAllString(t, "")
}

func extractLocation(t string) Location {
	if m := trailingLoc.FindStringSubmatch(t); m != nil {
		return ParseLocation(m[1])
	}
	return LocationNone
}

// typeClass reduces a full type string to the token that selects a decoder:
// "uint8[2] storage ref" is "array", "uint256" is "uint", "bytes32" is "bytesX".
func typeClass(full string) string {
	full = removeLocation(full)
	if strings.HasSuffix(full, "]") {
		return "array"
	}
	if strings.HasPrefix(full, "mapping") {
		return "mapping"
	}
	if i := strings.Index(full, " "); i != -1 {
		full = full[:i]
	}
	if strings.HasPrefix(full, "bytes") {
		return digits.ReplaceAllString(full, "X")
	}
	return digits.ReplaceAllString(full, "")
}

// Parse returns the descriptor of a compiler type string as seen from
// contractName. An empty location keeps the one carried by the type string.
func (d *Decoder) Parse(typeString, contractName string, location Location) (*Descriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parse(typeString, contractName, location)
}

func (d *Decoder) parse(typeString, contractName string, location Location) (*Descriptor, error) {
	key := descriptorKey{typeString: typeString, contract: contractName, location: location}
	if desc, ok := d.descriptors[key]; ok {
		return desc, nil
	}

	var (
		desc *Descriptor
		err  error
	)
	switch typeClass(typeString) {
	case "contract", "address":
		desc = &Descriptor{Kind: Address, TypeName: "address", StorageSlots: 1, StorageBytes: 20}
	case "bool":
		desc = &Descriptor{Kind: Bool, TypeName: "bool", StorageSlots: 1, StorageBytes: 1}
	case "function":
		desc = &Descriptor{Kind: Function, TypeName: "function", StorageSlots: 1, StorageBytes: 8}
	case "uint":
		desc, err = parseInteger(typeString, "uint", Uint)
	case "int":
		desc, err = parseInteger(typeString, "int", Int)
	case "bytesX":
		desc, err = parseFixedBytes(typeString)
	case "bytes":
		desc, err = parseDynamicBytes(typeString, location, Bytes)
	case "string":
		desc, err = parseDynamicBytes(typeString, location, String)
	case "array":
		desc, err = d.parseArray(typeString, contractName, location)
	case "mapping":
		desc, err = d.parseMapping(typeString, contractName)
	case "struct":
		desc, err = d.parseStruct(typeString, contractName, location)
	case "enum":
		desc, err = d.parseEnum(typeString, contractName)
	default:
		err = types.NewUnknownTypeError(typeString)
	}
	if err != nil {
		return nil, err
	}
	d.descriptors[key] = desc
	return desc, nil
}

func parseInteger(typeString, prefix string, kind Kind) (*Descriptor, error) {
	t := removeLocation(typeString)
	bits := 256
	if t != prefix {
		n, err := strconv.Atoi(strings.TrimPrefix(t, prefix))
		if err != nil || n <= 0 || n > 256 || n%8 != 0 {
			return nil, types.NewUnknownTypeError(typeString)
		}
		bits = n
	}
	return &Descriptor{Kind: kind, TypeName: prefix + strconv.Itoa(bits), StorageSlots: 1, StorageBytes: bits / 8}, nil
}

func parseFixedBytes(typeString string) (*Descriptor, error) {
	t := removeLocation(typeString)
	n, err := strconv.Atoi(strings.TrimPrefix(t, "bytes"))
	if err != nil || n <= 0 || n > 32 {
		return nil, types.NewUnknownTypeError(typeString)
	}
	return &Descriptor{Kind: FixedBytes, TypeName: t, StorageSlots: 1, StorageBytes: n}, nil
}

func parseDynamicBytes(typeString string, location Location, kind Kind) (*Descriptor, error) {
	if location == LocationNone {
		location = extractLocation(typeString)
	}
	if location == LocationNone {
		return nil, types.NewUnknownTypeError(typeString)
	}
	return &Descriptor{Kind: kind, TypeName: kind.String(), StorageSlots: 1, StorageBytes: 32, Location: location}, nil
}

func (d *Decoder) parseArray(typeString, contractName string, location Location) (*Descriptor, error) {
	m := arrayType.FindStringSubmatch(typeString)
	if m == nil {
		return nil, types.NewUnknownTypeError(typeString)
	}
	if location == LocationNone {
		location = ParseLocation(m[3])
	}
	size := -1
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil || n < 0 {
			return nil, types.NewUnknownTypeError(typeString)
		}
		size = n
	}

	elem, err := d.parse(m[1], contractName, location)
	if err != nil {
		return nil, err
	}

	slots := 1
	suffix := ""
	if size >= 0 {
		suffix = strconv.Itoa(size)
		if elem.StorageBytes < 32 {
			perSlot := 32 / elem.StorageBytes
			slots = (size + perSlot - 1) / perSlot
		} else {
			slots = size * elem.StorageSlots
		}
	}
	return &Descriptor{
		Kind:         Array,
		TypeName:     elem.TypeName + "[" + suffix + "]",
		StorageSlots: slots,
		StorageBytes: 32,
		Location:     location,
		Elem:         elem,
		ArraySize:    size,
	}, nil
}

func (d *Decoder) parseMapping(typeString, contractName string) (*Descriptor, error) {
	m := mappingType.FindStringSubmatch(typeString)
	if m == nil {
		return nil, types.NewUnknownTypeError(typeString)
	}
	key, err := d.parse(strings.TrimSpace(m[1]), contractName, LocationStorage)
	if err != nil {
		return nil, err
	}
	value, err := d.parse(strings.TrimSpace(m[2]), contractName, LocationStorage)
	if err != nil {
		return nil, err
	}
	return &Descriptor{
		Kind:         Mapping,
		TypeName:     removeLocation(typeString),
		StorageSlots: 1,
		StorageBytes: 32,
		Location:     LocationStorage,
		Key:          key,
		Value:        value,
	}, nil
}

// qualify splits "C.S" into its owner and name, defaulting to contractName.
func qualify(name, contractName string) (owner, qualified string) {
	if i := strings.LastIndex(name, "."); i != -1 {
		return name[:i], name
	}
	return contractName, contractName + "." + name
}

func (d *Decoder) parseStruct(typeString, contractName string, location Location) (*Descriptor, error) {
	m := structType.FindStringSubmatch(typeString)
	if m == nil {
		return nil, types.NewUnknownTypeError(typeString)
	}
	if location == LocationNone {
		location = ParseLocation(m[2])
	}
	owner, qualified := qualify(m[1], contractName)

	// registered before the members so recursive structs resolve to it
	key := structKey{name: qualified, location: location}
	if desc, ok := d.structs[key]; ok {
		return desc, nil
	}
	def, ok := d.index.Definition(owner, m[1], ast.NodeStructDefinition)
	if !ok {
		return nil, types.NewUnknownTypeError(typeString)
	}
	desc := &Descriptor{Kind: Struct, TypeName: "struct " + m[1], StorageBytes: 32, Location: location}
	d.structs[key] = desc

	members, slots, err := d.computeOffsets(def.Children("members"), owner, location)
	if err != nil {
		delete(d.structs, key)
		return nil, err
	}
	desc.Members = members
	desc.StorageSlots = slots
	return desc, nil
}

func (d *Decoder) parseEnum(typeString, contractName string) (*Descriptor, error) {
	m := enumType.FindStringSubmatch(removeLocation(typeString))
	if m == nil {
		return nil, types.NewUnknownTypeError(typeString)
	}
	owner, _ := qualify(m[1], contractName)
	def, ok := d.index.Definition(owner, m[1], ast.NodeEnumDefinition)
	if !ok {
		return nil, types.NewUnknownTypeError(typeString)
	}

	members := def.Children("members")
	values := make([]string, len(members))
	for i, mem := range members {
		values[i] = mem.Name()
	}
	storageBytes := 1
	for n := len(values); n > 256; n = (n + 255) / 256 {
		storageBytes++
	}
	return &Descriptor{Kind: Enum, TypeName: "enum", StorageSlots: 1, StorageBytes: storageBytes, EnumValues: values}, nil
}

// computeOffsets lays out declarations the way solc packs them in storage
// and returns the number of slots used.
func (d *Decoder) computeOffsets(decls []ast.Node, contractName string, location Location) ([]Member, int, error) {
	var (
		slot   uint64
		offset int
	)
	members := make([]Member, 0, len(decls))
	for _, v := range decls {
		desc, err := d.parse(v.TypeString(), contractName, location)
		if err != nil {
			return nil, 0, err
		}
		immutable := v.String("mutability") == "immutable"
		constant := v.Bool("constant") || v.String("mutability") == "constant"
		inStorage := !immutable && !constant

		if inStorage && offset+desc.StorageBytes > 32 {
			slot++
			offset = 0
		}
		m := Member{Name: v.Name(), Type: desc, Constant: constant, Immutable: immutable}
		if inStorage {
			m.Slot = slot
			m.Offset = offset
			if desc.StorageSlots == 1 && offset+desc.StorageBytes <= 32 {
				offset += desc.StorageBytes
			} else {
				slot += uint64(desc.StorageSlots)
				offset = 0
			}
		}
		members = append(members, m)
	}
	if offset > 0 {
		slot++
	}
	return members, int(slot), nil
}

// StateVariables returns the storage layout of contractName, base contract
// variables first. Unknown contracts have no variables.
func (d *Decoder) StateVariables(contractName string) ([]Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if vars, ok := d.stateVars[contractName]; ok {
		return vars, nil
	}
	state, ok := d.index.States(contractName)
	if !ok {
		return nil, nil
	}
	vars, _, err := d.computeOffsets(state.StateVariables, contractName, LocationStorage)
	if err != nil {
		return nil, err
	}
	d.stateVars[contractName] = vars
	return vars, nil
}
