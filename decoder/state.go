package decoder

import (
	"context"
	"fmt"
	"strings"
)

// DecodeState decodes state variables from storage. Constants and
// immutables are not in storage and are reported as such.
func (d *Decoder) DecodeState(ctx context.Context, vars []Member, r StorageReader) map[string]Value {
	out := make(map[string]Value, len(vars))
	for _, v := range vars {
		switch {
		case v.Constant:
			out[v.Name] = Value{Type: v.Type.TypeName, Value: "<constant>", Constant: true}
		case v.Immutable:
			out[v.Name] = Value{Type: v.Type.TypeName, Value: "<immutable>", Immutable: true}
		default:
			loc := slotLocation(v.Slot)
			loc.Offset = v.Offset
			out[v.Name] = d.DecodeFromStorage(ctx, v.Type, loc, r)
		}
	}
	return out
}

// DecodeLocals decodes the locals already pushed on the stack of f.
// Compiler-generated names are shown as <1>, <2>, ...
func (d *Decoder) DecodeLocals(ctx context.Context, locals []Local, f Frame) map[string]Value {
	out := make(map[string]Value, len(locals))
	anonymous := 1
	for _, l := range locals {
		if l.StackDepth >= len(f.Stack) {
			continue
		}
		name := l.Name
		if strings.Contains(name, "$") {
			name = fmt.Sprintf("<%d>", anonymous)
			anonymous++
		}
		out[name] = d.DecodeFromStack(ctx, l, f)
	}
	return out
}
