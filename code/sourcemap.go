package code

import (
	"strconv"
	"strings"

	"github.com/initia-labs/soldebug/types"
)

// DecodeSourceMap expands a compressed solc source map into one location per
// instruction. An empty field repeats the value of the previous entry.
func DecodeSourceMap(sourceMap string) []types.SourceLocation {
	if sourceMap == "" {
		return nil
	}

	ret := types.SourceLocation{Jump: types.JumpNone}
	entries := strings.Split(sourceMap, ";")
	locations := make([]types.SourceLocation, 0, len(entries))
	for _, entry := range entries {
		if entry == "" {
			locations = append(locations, ret)
			continue
		}

		fields := strings.Split(entry, ":")
		if v, ok := field(fields, 0); ok {
			ret.Start = v
		}
		if v, ok := field(fields, 1); ok {
			ret.Length = v
		}
		if v, ok := field(fields, 2); ok {
			ret.File = v
		}
		if len(fields) > 3 && fields[3] != "" {
			ret.Jump = types.JumpKind(fields[3])
		}
		if v, ok := field(fields, 4); ok {
			ret.ModifierDepth = v
		}
		locations = append(locations, ret)
	}
	return locations
}

func field(fields []string, i int) (int, bool) {
	if i >= len(fields) || fields[i] == "" {
		return 0, false
	}
	v, err := strconv.Atoi(fields[i])
	if err != nil {
		return 0, false
	}
	return v, true
}
