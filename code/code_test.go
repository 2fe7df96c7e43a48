package code_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/initia-labs/soldebug/code"
	"github.com/initia-labs/soldebug/types"
)

func TestDecodeSourceMap(t *testing.T) {
	locations := code.DecodeSourceMap("10:5:0:-;15:3:0:i")
	require.Len(t, locations, 2)
	require.Equal(t, types.SourceLocation{Start: 10, Length: 5, File: 0, Jump: types.JumpNone}, locations[0])
	require.Equal(t, types.SourceLocation{Start: 15, Length: 3, File: 0, Jump: types.JumpIn}, locations[1])
}

func TestDecodeSourceMapDefaultsJump(t *testing.T) {
	locations := code.DecodeSourceMap("10:5:0;;20:1:0:i")
	require.Len(t, locations, 3)
	require.Equal(t, types.JumpNone, locations[0].Jump)
	require.Equal(t, types.JumpNone, locations[1].Jump)
	require.Equal(t, types.JumpIn, locations[2].Jump)
}

func TestDecodeSourceMapRepeatsFields(t *testing.T) {
	locations := code.DecodeSourceMap("1:2:0:-:0;;:4;::1:o;-1:-1:-1:-:1")
	require.Len(t, locations, 5)
	require.Equal(t, locations[0], locations[1])
	require.Equal(t, types.SourceLocation{Start: 1, Length: 4, File: 0, Jump: types.JumpNone}, locations[2])
	require.Equal(t, types.SourceLocation{Start: 1, Length: 4, File: 1, Jump: types.JumpOut}, locations[3])
	require.Equal(t, types.SourceLocation{Start: -1, Length: -1, File: -1, Jump: types.JumpNone, ModifierDepth: 1}, locations[4])

	require.Empty(t, code.DecodeSourceMap(""))
}

func TestDisassemble(t *testing.T) {
	p := code.Disassemble([]byte{0x60, 0x80, 0x60, 0x40, 0x52, 0xfe})
	require.Equal(t, []string{"0 PUSH1 80", "2 PUSH1 40", "4 MSTORE", "5 INVALID"}, p.Instructions)
	require.Equal(t, map[uint64]int{0: 0, 2: 1, 4: 2, 5: 3}, p.IndexByOffset)
	require.Equal(t, "0x6080604052fe", p.Code)
}

func TestDisassemblePadsOffsets(t *testing.T) {
	raw := make([]byte, 120)
	raw[0] = 0x60
	raw[1] = 0x80
	p := code.Disassemble(raw)
	require.Equal(t, "000 PUSH1 80", p.Instructions[0])
	require.Equal(t, "002 STOP", p.Instructions[1])
}

func TestDisassembleTruncatedPush(t *testing.T) {
	p := code.Disassemble([]byte{0x00, 0x61, 0x01})
	require.Equal(t, []string{"0 STOP", "1 PUSH2 01"}, p.Instructions)
}

func TestMatchBytecode(t *testing.T) {
	body := "60806040"
	placeholder := "__$" + strings.Repeat("1", 34) + "$__"
	address := strings.Repeat("ab", 20)

	tests := []struct {
		name     string
		onChain  string
		compiled string
		creation bool
		want     bool
	}{
		{name: "identical", onChain: "0x" + body, compiled: body, want: true},
		{name: "different", onChain: "0x6080", compiled: body, want: false},
		{name: "abstract contract", onChain: "0x", compiled: "", want: false},
		{name: "metadata differs", onChain: "0x" + body + "a165627a7a7231" + "0007", compiled: body + "a165627a7a7230" + "0007", want: true},
		{name: "linked library", onChain: "0x608073" + address + "5050", compiled: "608073" + placeholder + "5050", want: true},
		{name: "constructor arguments", onChain: "0x" + body + strings.Repeat("0", 63) + "1", compiled: body, creation: true, want: true},
		{name: "constructor arguments on runtime code", onChain: "0x" + body + strings.Repeat("0", 63) + "1", compiled: body, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, code.MatchBytecode(tt.onChain, tt.compiled, tt.creation))
		})
	}
}

type fakeTrace struct {
	pcs      []uint64
	creation map[string]string
}

func (f fakeTrace) PCAt(step int) (uint64, error) {
	if step < 0 || step >= len(f.pcs) {
		return 0, types.NewIndexOutOfRangeError(step, len(f.pcs))
	}
	return f.pcs[step], nil
}

func (f fakeTrace) ContractCreationCode(token string) (string, error) {
	c, ok := f.creation[token]
	if !ok {
		return "", types.NewNotFoundError(token)
	}
	return c, nil
}

type fakeFetcher struct {
	code  string
	calls atomic.Int32
}

func (f *fakeFetcher) GetCode(context.Context, string, string) (string, error) {
	f.calls.Add(1)
	return f.code, nil
}

func compilation() *types.CompilationResult {
	c := types.CompiledContract{ABI: []byte(`[]`)}
	c.EVM.DeployedBytecode = types.Bytecode{Object: "6080604052", SourceMap: "0:10:0:-;5:3:0:i;5:3:1:-"}
	c.EVM.Bytecode = types.Bytecode{Object: "60016002", SourceMap: "0:20:0:-;0:20:0:-"}
	return &types.CompilationResult{
		Sources:   map[string]types.CompilationSource{"c.sol": {ID: 0}},
		Contracts: map[string]map[string]types.CompiledContract{"c.sol": {"C": c}},
	}
}

func newResolver(pcs []uint64, fetcher code.CodeFetcher) *code.Resolver {
	tr := fakeTrace{pcs: pcs, creation: map[string]string{"(Contract Creation - Step 0)": "0x60016002" + strings.Repeat("0", 64)}}
	return code.NewResolver(slog.New(slog.NewTextHandler(io.Discard, nil)), compilation(), tr, fetcher, "latest")
}

func TestResolverSourceLocations(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{code: "0x6080604052"}
	r := newResolver([]uint64{0, 2, 4, 1}, fetcher)
	addr := "0x00000000000000000000000000000000000000aa"

	loc, err := r.SourceLocationAt(ctx, addr, 1)
	require.NoError(t, err)
	require.Equal(t, types.SourceLocation{Start: 5, Length: 3, File: 0, Jump: types.JumpIn}, loc)

	// step 2 sits in a generated source, the valid location is the one of step 1
	loc, err = r.ValidSourceLocationAt(ctx, addr, 2)
	require.NoError(t, err)
	require.Equal(t, 0, loc.File)
	require.Equal(t, types.JumpIn, loc.Jump)

	_, err = r.SourceLocationAt(ctx, addr, 3)
	require.True(t, errors.Is(err, types.ErrInvalidProgramCounter))

	instructions, err := r.Instructions(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, []string{"0 PUSH1 80", "2 PUSH1 40", "4 MSTORE"}, instructions)

	contract, err := r.ContractAt(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, "C", contract.Name)
	require.False(t, contract.Creation)

	require.EqualValues(t, 1, fetcher.calls.Load())
}

func TestResolverCreationToken(t *testing.T) {
	r := newResolver([]uint64{0, 2}, nil)
	token := "(Contract Creation - Step 0)"

	loc, err := r.SourceLocationAt(context.Background(), token, 1)
	require.NoError(t, err)
	require.Equal(t, 20, loc.Length)

	contract, err := r.ContractAt(context.Background(), token)
	require.NoError(t, err)
	require.True(t, contract.Creation)
}

func TestResolverUnresolvedContract(t *testing.T) {
	r := newResolver([]uint64{0}, &fakeFetcher{code: "0x6001"})
	_, err := r.SourceLocationAt(context.Background(), "0xbb", 0)
	require.True(t, errors.Is(err, types.ErrUnresolvedContract))
}
