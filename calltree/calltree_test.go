package calltree_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/initia-labs/soldebug/ast"
	"github.com/initia-labs/soldebug/calltree"
	"github.com/initia-labs/soldebug/code"
	"github.com/initia-labs/soldebug/config"
	"github.com/initia-labs/soldebug/decoder"
	"github.com/initia-labs/soldebug/log"
	"github.com/initia-labs/soldebug/types"
)

type fakeTrace []types.StructLog

func (f fakeTrace) Length() (int, error) { return len(f), nil }

func (f fakeTrace) StepAt(i int) (types.StructLog, error) {
	if i < 0 || i >= len(f) {
		return types.StructLog{}, types.NewIndexOutOfRangeError(i, len(f))
	}
	return f[i], nil
}

func (f fakeTrace) CurrentCalledAddressAt(i int) (string, error) {
	if i < 0 || i >= len(f) {
		return "", types.NewIndexOutOfRangeError(i, len(f))
	}
	if f[i].Depth > 1 {
		return "0x00000000000000000000000000000000000000bb", nil
	}
	return "0x00000000000000000000000000000000000000aa", nil
}

type fakeResolver struct {
	locations map[int]types.SourceLocation
	fallback  types.SourceLocation
	failAt    int
}

func (r *fakeResolver) SourceLocationAt(_ context.Context, _ string, step int) (types.SourceLocation, error) {
	if step == r.failAt {
		return types.SourceLocation{}, types.NewInvalidProgramCounterError("0xaa", 0, step)
	}
	if loc, ok := r.locations[step]; ok {
		return loc, nil
	}
	return r.fallback, nil
}

func (r *fakeResolver) ValidSourceLocationAt(ctx context.Context, address string, step int) (types.SourceLocation, error) {
	return r.SourceLocationAt(ctx, address, step)
}

func (r *fakeResolver) ContractAt(context.Context, string) (*code.Contract, error) {
	return &code.Contract{Name: "C", ABI: json.RawMessage(`[]`)}, nil
}

const program = `{"sources": {"C.sol": {"id": 0, "ast": {
  "nodeType": "SourceUnit", "id": 1, "src": "0:200:0",
  "nodes": [{"nodeType": "ContractDefinition", "id": 2, "src": "0:200:0", "name": "C",
    "linearizedBaseContracts": [2],
    "nodes": [{"nodeType": "FunctionDefinition", "id": 3, "src": "100:50:0", "name": "f", "kind": "function",
      "parameters": {"nodeType": "ParameterList", "id": 4, "src": "110:9:0", "parameters": [
        {"nodeType": "VariableDeclaration", "id": 5, "src": "111:9:0", "name": "a", "storageLocation": "default",
         "typeDescriptions": {"typeString": "uint256"}}]},
      "returnParameters": {"nodeType": "ParameterList", "id": 6, "src": "140:9:0", "parameters": [
        {"nodeType": "VariableDeclaration", "id": 7, "src": "141:7:0", "name": "", "storageLocation": "default",
         "typeDescriptions": {"typeString": "uint256"}}]},
      "body": {"nodeType": "Block", "id": 8, "src": "115:35:0", "statements": [
        {"nodeType": "VariableDeclaration", "id": 9, "src": "120:5:0", "name": "x", "storageLocation": "default",
         "typeDescriptions": {"typeString": "uint256"}}]}}]}]
}}}}`

func build(t *testing.T, steps fakeTrace, resolver *fakeResolver, maxDepth int) (*calltree.Tree, error) {
	t.Helper()
	var c types.CompilationResult
	require.NoError(t, json.Unmarshal([]byte(program), &c))
	index := ast.NewIndex(&c)
	dec := decoder.New(log.Discard(), index, *config.DefaultDebuggerConfig())
	return calltree.Build(context.Background(), log.Discard(), steps, resolver, index, dec, maxDepth)
}

func loc(start, length int, jump types.JumpKind) types.SourceLocation {
	return types.SourceLocation{Start: start, Length: length, File: 0, Jump: jump}
}

// externalCallTrace has a CALL at step 5 whose frame runs steps 6..19.
func externalCallTrace() fakeTrace {
	steps := make(fakeTrace, 30)
	for i := range steps {
		steps[i] = types.StructLog{Op: "PUSH1", Depth: 1, Stack: []string{"0x1"}}
		if i >= 6 && i < 20 {
			steps[i].Depth = 2
			steps[i].Stack = nil
		}
	}
	steps[5].Op = "CALL"
	return steps
}

func TestFindScopeAroundExternalCall(t *testing.T) {
	tree, err := build(t, externalCallTrace(), &fakeResolver{fallback: loc(0, 10, types.JumpNone), failAt: -1}, 0)
	require.NoError(t, err)

	inner, ok := tree.FindScope(10)
	require.True(t, ok)
	assert.Equal(t, 6, inner.FirstStep)
	assert.Equal(t, 19, inner.LastStep)
	assert.Equal(t, "1", inner.ID.String())

	outer, ok := tree.FindScope(25)
	require.True(t, ok)
	assert.True(t, outer.ID.IsRoot())

	before, ok := tree.FindScope(5)
	require.True(t, ok)
	assert.True(t, before.ID.IsRoot())

	assert.Equal(t, []int{0, 6, 29}, tree.ReducedTrace())
	assert.Len(t, tree.Scopes(), 2)
}

func internalCallTrace() (fakeTrace, *fakeResolver) {
	steps := fakeTrace{
		{Op: "PUSH1", Depth: 1},
		{Op: "JUMP", Depth: 1, Stack: []string{"0x1"}},
		{Op: "JUMPDEST", Depth: 1, Stack: []string{"0x1", "0x7"}},
		{Op: "PUSH1", Depth: 1, Stack: []string{"0x1", "0x7"}},
		{Op: "JUMP", Depth: 1, Stack: []string{"0x1", "0x7", "0x0"}},
		{Op: "STOP", Depth: 1},
	}
	resolver := &fakeResolver{
		locations: map[int]types.SourceLocation{
			0: loc(0, 200, types.JumpNone),
			1: loc(90, 5, types.JumpIn),
			2: loc(100, 50, types.JumpNone),
			3: loc(120, 5, types.JumpNone),
			4: loc(130, 5, types.JumpOut),
			5: loc(0, 200, types.JumpNone),
		},
		failAt: -1,
	}
	return steps, resolver
}

func TestInternalFunctionScope(t *testing.T) {
	steps, resolver := internalCallTrace()
	tree, err := build(t, steps, resolver, 0)
	require.NoError(t, err)

	scope, ok := tree.FindScope(3)
	require.True(t, ok)
	assert.Equal(t, "1", scope.ID.String())
	assert.Equal(t, 2, scope.FirstStep)
	assert.Equal(t, 4, scope.LastStep)

	x, ok := scope.Local("x")
	require.True(t, ok)
	assert.Equal(t, 2, x.StackDepth)
	assert.Equal(t, decoder.LocationNone, x.Type.Location)

	a, ok := scope.Local("a")
	require.True(t, ok)
	assert.Equal(t, 1, a.StackDepth)
	assert.NotEmpty(t, a.ABI)

	ret, ok := scope.Local("$0")
	require.True(t, ok)
	assert.Equal(t, 2, ret.StackDepth)

	root, ok := tree.FindScope(5)
	require.True(t, ok)
	assert.True(t, root.ID.IsRoot())

	assert.Equal(t, []int{3}, tree.FunctionCallStack())
	fns, err := tree.RetrieveFunctionsStack(3)
	require.NoError(t, err)
	require.Len(t, fns, 1)
	assert.Equal(t, "f", fns[0].Name)
	assert.Equal(t, []string{"a"}, fns[0].Inputs)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, tree.ReducedTrace())
}

func TestBuildFailsOnUnresolvedLocation(t *testing.T) {
	steps, resolver := internalCallTrace()
	resolver.failAt = 3
	_, err := build(t, steps, resolver, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUnresolvedSourceLocation))

	var se *types.StandardError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 3, se.Details["step"])
}

func TestBuildRecursionGuard(t *testing.T) {
	steps := fakeTrace{{Op: "JUMP", Depth: 1}, {Op: "JUMP", Depth: 1}, {Op: "JUMP", Depth: 1}, {Op: "STOP", Depth: 1}}
	resolver := &fakeResolver{fallback: loc(0, 10, types.JumpIn), failAt: -1}
	_, err := build(t, steps, resolver, 2)
	assert.True(t, errors.Is(err, types.ErrRecursionTooDeep))
}

func TestBuildHonoursCancellation(t *testing.T) {
	var c types.CompilationResult
	require.NoError(t, json.Unmarshal([]byte(program), &c))
	index := ast.NewIndex(&c)
	dec := decoder.New(log.Discard(), index, *config.DefaultDebuggerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := calltree.Build(ctx, log.Discard(), externalCallTrace(), &fakeResolver{fallback: loc(0, 10, types.JumpNone), failAt: -1}, index, dec, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPath(t *testing.T) {
	p, err := calltree.ParsePath("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, calltree.Path{1, 2, 3}, p)
	assert.Equal(t, "1.2.3", p.String())

	parent, ok := p.Parent()
	require.True(t, ok)
	assert.Equal(t, "1.2", parent.String())
	assert.Equal(t, "1.2.4", parent.Child(4).String())
	assert.Equal(t, "1.2", parent.String(), "Child must not alias the parent")

	root, err := calltree.ParsePath("")
	require.NoError(t, err)
	assert.True(t, root.IsRoot())
	_, ok = root.Parent()
	assert.False(t, ok)

	assert.Equal(t, -1, calltree.Path{1}.Compare(calltree.Path{1, 1}))
	assert.Equal(t, 1, calltree.Path{2}.Compare(calltree.Path{1, 5}))
	assert.True(t, calltree.Path{3, 1}.Equal(calltree.Path{3, 1}))

	_, err = calltree.ParsePath("1.x")
	assert.Error(t, err)
}
