package calltree

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/initia-labs/soldebug/ast"
	"github.com/initia-labs/soldebug/code"
	"github.com/initia-labs/soldebug/decoder"
	"github.com/initia-labs/soldebug/trace"
	"github.com/initia-labs/soldebug/types"
)

// declarationLocation is where a declaration keeps its data when the
// source does not say: storage for locals, memory for parameters.
func declarationLocation(n ast.Node, fallback decoder.Location) decoder.Location {
	switch loc := n.String("storageLocation"); {
	case loc != "" && loc != "default":
		return decoder.ParseLocation(loc)
	case n.Bool("stateVariable"):
		return decoder.LocationStorage
	}
	return fallback
}

func (t *Tree) includeVariableDeclaration(ctx context.Context, f *frame, scope *Scope, step types.StructLog, loc types.SourceLocation, newLocation bool) {
	address, err := t.trace.CurrentCalledAddressAt(f.step)
	if err != nil {
		return
	}
	contract, err := t.resolver.ContractAt(ctx, address)
	if err != nil {
		t.logger.Debug("no contract for variable discovery", slog.Int("step", f.step), slog.String("address", address))
		return
	}
	stackLen := len(step.Stack)

	for _, decl := range t.index.VariableDeclarations(loc) {
		name := decl.Name()
		if name == "" || scope.hasLocal(name) {
			continue
		}
		desc, err := t.parser.Parse(decl.TypeString(), contract.Name, declarationLocation(decl, decoder.LocationStorage))
		if err != nil {
			t.logger.Debug("skipping local", slog.String("name", name), slog.Any("error", err))
			continue
		}
		scope.setLocal(Local{Name: name, Type: desc, StackDepth: stackLen, Source: loc})
	}

	fn, ok := t.index.FunctionDefinition(f.previous)
	if !ok || !newLocation {
		return
	}
	isConstructor := fn.String("kind") == "constructor"
	if !isConstructor && !t.isJumpDest(f.step-1) && !t.isJumpDest(f.step-2) {
		return
	}

	t.functionCallStack = append(t.functionCallStack, f.step)
	entry := &FunctionEntry{Definition: fn, Name: fn.Name(), Kind: fn.String("kind")}

	inputs := fn.Child("parameters").Children("parameters")
	entry.Inputs = t.addParams(scope, contract, inputs, f.previous, stackLen, len(inputs), -1)
	t.addParams(scope, contract, fn.Child("returnParameters").Children("parameters"), f.previous, stackLen, 0, 1)

	t.functionsByScope[scope.ID.String()] = entry
}

func (t *Tree) isJumpDest(step int) bool {
	if step < 0 {
		return false
	}
	s, err := t.trace.StepAt(step)
	return err == nil && trace.IsJumpDestInstruction(s)
}

// addParams binds parameters relative to the stack length at function
// entry: inputs sit below it, outputs are reserved above it.
func (t *Tree) addParams(scope *Scope, contract *code.Contract, params []ast.Node, loc types.SourceLocation, stackLen, position, dir int) []string {
	var names []string
	for i, p := range params {
		depth := stackLen + dir*position
		position += dir
		if depth < 0 {
			continue
		}
		name := p.Name()
		if name == "" {
			name = fmt.Sprintf("$%d", i)
		}
		desc, err := t.parser.Parse(p.TypeString(), contract.Name, declarationLocation(p, decoder.LocationMemory))
		if err != nil {
			t.logger.Debug("skipping parameter", slog.String("name", name), slog.Any("error", err))
			continue
		}
		scope.setLocal(Local{Name: name, Type: desc, StackDepth: depth, Source: loc, ABI: contract.ABI})
		names = append(names, name)
	}
	return names
}
