package trace_test

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/initia-labs/soldebug/config"
	"github.com/initia-labs/soldebug/trace"
	"github.com/initia-labs/soldebug/types"
)

const (
	callerAddr = "0x00000000000000000000000000000000000000aa"
	calleeAddr = "0x00000000000000000000000000000000000000bb"
)

func word(hex string) string {
	hex = strings.TrimPrefix(hex, "0x")
	return strings.Repeat("0", 64-len(hex)) + hex
}

func step(op string, depth int, stack ...string) types.StructLog {
	if stack == nil {
		stack = []string{}
	}
	return types.StructLog{Op: op, Depth: depth, Gas: 100, GasCost: 3, Stack: stack}
}

func withMemory(s types.StructLog, words ...string) types.StructLog {
	s.Memory = words
	return s
}

// callTrace is a root frame calling callee at step 2, which stores and
// returns (or reverts) at step 5.
func callTrace(endOp string) []types.StructLog {
	return []types.StructLog{
		step("PUSH1", 1),
		step("SSTORE", 1, "0x07", "0x01"),
		withMemory(step("CALL", 1, "0x20", "0x0", "0x4", "0x0", "0x0", "0xbb", "0xffff"), "a9059cbb"+strings.Repeat("0", 56)),
		step("PUSH1", 2),
		step("SSTORE", 2, "0x09", "0x02"),
		withMemory(step(endOp, 2, "0x20", "0x0"), word("0x2a")),
		step("POP", 1, "0x1"),
		step("STOP", 1),
	}
}

func newStore(t *testing.T, policy config.RevertPolicy, logs []types.StructLog, tx types.Transaction) *trace.Store {
	t.Helper()
	s := trace.NewStore(slog.New(slog.NewTextHandler(io.Discard, nil)), policy)
	require.NoError(t, s.Load(logs, tx))
	return s
}

func callTx() types.Transaction {
	to := common.HexToAddress("0xaa")
	return types.Transaction{To: &to, Input: common.FromHex("0x12345678")}
}

func TestAccessorsBeforeLoad(t *testing.T) {
	s := trace.NewStore(slog.New(slog.NewTextHandler(io.Discard, nil)), config.RevertClearAll)
	require.False(t, s.IsLoaded())

	_, err := s.Length()
	require.True(t, errors.Is(err, types.ErrNotLoaded))
	_, err = s.StepAt(0)
	require.True(t, errors.Is(err, types.ErrNotLoaded))
	_, err = s.FindStepOut(0)
	require.True(t, errors.Is(err, types.ErrNotLoaded))
}

func TestLoadEmptyTrace(t *testing.T) {
	s := trace.NewStore(slog.New(slog.NewTextHandler(io.Discard, nil)), config.RevertClearAll)
	err := s.Load(nil, callTx())
	require.True(t, errors.Is(err, types.ErrTraceUnavailable))
}

func TestStepAccessorsRange(t *testing.T) {
	s := newStore(t, config.RevertClearAll, callTrace("RETURN"), callTx())
	n, err := s.Length()
	require.NoError(t, err)

	for i := -1; i <= n; i++ {
		_, err := s.StepAt(i)
		if i >= 0 && i < n {
			require.NoError(t, err)
			require.True(t, s.InRange(i))
			continue
		}
		require.True(t, errors.Is(err, types.ErrIndexOutOfRange), "step %d", i)
		require.False(t, s.InRange(i))
	}
}

func TestCallTree(t *testing.T) {
	s := newStore(t, config.RevertClearAll, callTrace("RETURN"), callTx())

	root, err := s.RootCall()
	require.NoError(t, err)
	require.Equal(t, callerAddr, root.Address)
	require.Equal(t, 0, root.Start)
	require.Equal(t, 7, root.Return)
	require.Len(t, root.Calls, 1)

	child := root.Calls[0]
	require.Equal(t, calleeAddr, child.Address)
	require.Equal(t, 3, child.Start)
	require.Equal(t, 5, child.Return)
	require.False(t, child.Reverted)
	require.Equal(t, []string{callerAddr, calleeAddr}, child.CallStack)

	// closed calls are contained in their parents
	require.GreaterOrEqual(t, child.Start, root.Start)
	require.LessOrEqual(t, child.Return, root.Return)

	addr, err := s.CurrentCalledAddressAt(4)
	require.NoError(t, err)
	require.Equal(t, calleeAddr, addr)
	addr, err = s.CurrentCalledAddressAt(6)
	require.NoError(t, err)
	require.Equal(t, callerAddr, addr)

	path, err := s.BuildCallPath(4)
	require.NoError(t, err)
	require.Len(t, path, 2)

	addresses, err := s.Addresses()
	require.NoError(t, err)
	require.Equal(t, []string{callerAddr, calleeAddr}, addresses)
}

func TestCallDataAndReturnValues(t *testing.T) {
	s := newStore(t, config.RevertClearAll, callTrace("RETURN"), callTx())

	data, err := s.CallDataAt(0)
	require.NoError(t, err)
	require.Equal(t, "0x12345678", data)

	data, err = s.CallDataAt(4)
	require.NoError(t, err)
	require.Equal(t, "0xa9059cbb", data)

	data, err = s.CallDataAt(6)
	require.NoError(t, err)
	require.Equal(t, "0x12345678", data)

	ret, err := s.ReturnValueAt(5)
	require.NoError(t, err)
	require.Equal(t, []string{"0x" + word("0x2a")}, ret)

	_, err = s.ReturnValueAt(4)
	require.True(t, errors.Is(err, types.ErrNotFound))

	stops, err := s.StopIndexes()
	require.NoError(t, err)
	require.Equal(t, []trace.StepMarker{{Index: 5, Address: calleeAddr}, {Index: 7, Address: callerAddr}}, stops)
}

func TestStackAtIsTopFirst(t *testing.T) {
	s := newStore(t, config.RevertClearAll, callTrace("RETURN"), callTx())
	stack, err := s.StackAt(1)
	require.NoError(t, err)
	require.Equal(t, []string{"0x01", "0x07"}, stack)
}

func TestMemoryAtUsesLastSnapshot(t *testing.T) {
	s := newStore(t, config.RevertClearAll, callTrace("RETURN"), callTx())

	mem, err := s.MemoryAt(1)
	require.NoError(t, err)
	require.Empty(t, mem)

	mem, err = s.MemoryAt(4)
	require.NoError(t, err)
	require.Len(t, mem, 1)
	require.True(t, strings.HasPrefix(mem[0], "a9059cbb"))
}

func TestAccumulateStorageChanges(t *testing.T) {
	s := newStore(t, config.RevertClearAll, callTrace("RETURN"), callTx())
	slot1 := crypto.Keccak256Hash(common.HexToHash("0x01").Bytes())
	slot2 := crypto.Keccak256Hash(common.HexToHash("0x02").Bytes())

	base := types.StorageMap{}
	require.Empty(t, s.AccumulateStorageChanges(1, callerAddr, base))

	at2 := s.AccumulateStorageChanges(2, callerAddr, base)
	require.Len(t, at2, 1)
	require.Equal(t, common.HexToHash("0x07"), at2[slot1].Value)
	require.Empty(t, base)

	at7 := s.AccumulateStorageChanges(7, calleeAddr, base)
	require.Equal(t, common.HexToHash("0x09"), at7[slot2].Value)

	// same inputs, same result
	require.Equal(t, at7, s.AccumulateStorageChanges(7, calleeAddr, base))
}

func TestRevertPolicies(t *testing.T) {
	slot1 := crypto.Keccak256Hash(common.HexToHash("0x01").Bytes())

	clearAll := newStore(t, config.RevertClearAll, callTrace("REVERT"), callTx())
	require.Empty(t, clearAll.AccumulateStorageChanges(7, callerAddr, nil))
	root, err := clearAll.RootCall()
	require.NoError(t, err)
	require.True(t, root.Calls[0].Reverted)

	scoped := newStore(t, config.RevertScoped, callTrace("REVERT"), callTx())
	require.Contains(t, scoped.AccumulateStorageChanges(7, callerAddr, nil), slot1)
	require.Empty(t, scoped.AccumulateStorageChanges(7, calleeAddr, nil))
}

func TestNavigation(t *testing.T) {
	s := newStore(t, config.RevertClearAll, callTrace("RETURN"), callTx())

	tests := []struct {
		name string
		fn   func(int) (int, error)
		in   int
		want int
	}{
		{name: "over forward a call", fn: s.FindStepOverForward, in: 2, want: 6},
		{name: "over forward a plain step", fn: s.FindStepOverForward, in: 0, want: 1},
		{name: "over forward at the end", fn: s.FindStepOverForward, in: 7, want: 7},
		{name: "over back from a return", fn: s.FindStepOverBack, in: 5, want: 2},
		{name: "over back a plain step", fn: s.FindStepOverBack, in: 6, want: 5},
		{name: "over back at the start", fn: s.FindStepOverBack, in: 0, want: 0},
		{name: "next call", fn: s.FindNextCall, in: 0, want: 2},
		{name: "no next call", fn: s.FindNextCall, in: 6, want: 6},
		{name: "step out of callee", fn: s.FindStepOut, in: 4, want: 5},
		{name: "step out of root", fn: s.FindStepOut, in: 1, want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestPrecompileCallOpensNoFrame(t *testing.T) {
	logs := []types.StructLog{
		step("STATICCALL", 1, "0x20", "0x0", "0x4", "0x0", "0x2", "0xffff"),
		step("POP", 1, "0x1"),
		step("STOP", 1),
	}
	s := newStore(t, config.RevertClearAll, logs, callTx())
	root, err := s.RootCall()
	require.NoError(t, err)
	require.Empty(t, root.Calls)

	next, err := s.FindStepOverForward(0)
	require.NoError(t, err)
	require.Equal(t, 1, next)
}

func TestContractCreation(t *testing.T) {
	initCode := "6080604052"
	logs := []types.StructLog{
		step("PUSH1", 1),
		withMemory(step("CREATE", 1, "0x5", "0x0", "0x0"), initCode+strings.Repeat("0", 54)),
		step("PUSH1", 2),
		step("RETURN", 2, "0x0", "0x0"),
		step("STOP", 1),
	}
	tx := types.Transaction{Input: common.FromHex("0x60806040")}
	s := newStore(t, config.RevertClearAll, logs, tx)

	rootToken := trace.ContractCreationToken(0)
	require.Equal(t, "(Contract Creation - Step 0)", rootToken)
	code, err := s.ContractCreationCode(rootToken)
	require.NoError(t, err)
	require.Equal(t, "0x60806040", code)

	root, err := s.RootCall()
	require.NoError(t, err)
	require.Equal(t, rootToken, root.Address)
	require.Len(t, root.Calls, 1)
	require.Equal(t, trace.ContractCreationToken(1), root.Calls[0].Address)
	require.True(t, trace.IsContractCreation(root.Calls[0].Address))

	created, err := s.ContractCreationCode(root.Calls[0].Address)
	require.NoError(t, err)
	require.Equal(t, "0x"+initCode, created)

	isCreation, err := s.IsCreationStep(1)
	require.NoError(t, err)
	require.True(t, isCreation)

	_, err = s.ContractCreationCode("(Contract Creation - Step 99)")
	require.True(t, errors.Is(err, types.ErrNotFound))
}

func TestOutOfGasIndexes(t *testing.T) {
	logs := callTrace("RETURN")
	logs[4].Gas = 2
	logs[4].GasCost = 5000
	s := newStore(t, config.RevertClearAll, logs, callTx())

	oog, err := s.OutOfGasIndexes()
	require.NoError(t, err)
	require.Equal(t, []trace.StepMarker{{Index: 4, Address: calleeAddr}}, oog)
}
