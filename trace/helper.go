package trace

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/initia-labs/soldebug/types"
)

// opOf maps a struct log op name to its opcode. Unknown names report false
// because vm.StringToOp falls back to STOP.
func opOf(step types.StructLog) (vm.OpCode, bool) {
	op := vm.StringToOp(step.Op)
	if op == vm.STOP && step.Op != "STOP" {
		return op, false
	}
	return op, true
}

func isOp(step types.StructLog, ops ...vm.OpCode) bool {
	op, ok := opOf(step)
	if !ok {
		return false
	}
	for _, o := range ops {
		if op == o {
			return true
		}
	}
	return false
}

func IsCallInstruction(step types.StructLog) bool {
	return isOp(step, vm.CALL, vm.STATICCALL, vm.CALLCODE, vm.DELEGATECALL, vm.CREATE, vm.CREATE2)
}

func IsCreateInstruction(step types.StructLog) bool {
	return isOp(step, vm.CREATE, vm.CREATE2)
}

func IsReturnInstruction(step types.StructLog) bool {
	return isOp(step, vm.RETURN)
}

func IsStopInstruction(step types.StructLog) bool {
	return isOp(step, vm.STOP)
}

func IsRevertInstruction(step types.StructLog) bool {
	return isOp(step, vm.REVERT)
}

func IsJumpDestInstruction(step types.StructLog) bool {
	return isOp(step, vm.JUMPDEST)
}

func IsSStoreInstruction(step types.StructLog) bool {
	return isOp(step, vm.SSTORE)
}

// isNewStorageContext reports whether the callee runs against its own storage.
func isNewStorageContext(step types.StructLog) bool {
	return isOp(step, vm.CALL, vm.CREATE, vm.CREATE2)
}

// IsCallToPrecompiledContract guesses that a call did not open a frame when
// the following step still has a stack. A fresh frame starts with an empty one.
func IsCallToPrecompiledContract(index int, trace []types.StructLog) bool {
	if !IsCallInstruction(trace[index]) {
		return false
	}
	return index+1 < len(trace) && len(trace[index+1].Stack) != 0
}

func ContractCreationToken(index int) string {
	return fmt.Sprintf("%s %d)", types.ContractCreationPrefix, index)
}

func IsContractCreation(address string) bool {
	return strings.Contains(address, types.ContractCreationPrefix)
}

// ResolveCalledAddress returns the callee of the call at index, or "" when
// the step is not a call.
func ResolveCalledAddress(index int, trace []types.StructLog) string {
	step := trace[index]
	if IsCreateInstruction(step) {
		return ContractCreationToken(index)
	}
	if IsCallInstruction(step) && len(step.Stack) >= 2 {
		return types.NormalizeAddress(step.Stack[len(step.Stack)-2])
	}
	return ""
}

// stackArg reads the n-th word from the top of the stack (1 = top).
func stackArg(step types.StructLog, n int) (string, bool) {
	if n > len(step.Stack) {
		return "", false
	}
	return step.Stack[len(step.Stack)-n], true
}
