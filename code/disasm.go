package code

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/core/vm"
)

// Program is a disassembled contract code.
type Program struct {
	Code          string
	Instructions  []string
	IndexByOffset map[uint64]int
}

// Disassemble lists the instructions of raw as "000 PUSH1 80" lines and maps
// every instruction byte offset to its position in the list.
func Disassemble(raw []byte) Program {
	width := len(fmt.Sprint(len(raw)))
	if len(raw) > 0 && isPowerOfTen(len(raw)) {
		width--
	}

	p := Program{
		Code:          "0x" + hex.EncodeToString(raw),
		IndexByOffset: make(map[uint64]int),
	}
	for pc := 0; pc < len(raw); pc++ {
		op := vm.OpCode(raw[pc])
		p.IndexByOffset[uint64(pc)] = len(p.Instructions)

		name := op.String()
		if strings.HasPrefix(name, "opcode ") {
			name = "INVALID"
		}

		line := fmt.Sprintf("%0*d %s", width, pc, name)
		if op >= vm.PUSH1 && op <= vm.PUSH32 {
			n := int(op-vm.PUSH1) + 1
			end := pc + 1 + n
			if end > len(raw) {
				end = len(raw)
			}
			if data := raw[pc+1 : end]; len(data) > 0 {
				line += " " + hex.EncodeToString(data)
			}
			pc = end - 1
		}
		p.Instructions = append(p.Instructions, line)
	}
	return p
}

func isPowerOfTen(n int) bool {
	for n >= 10 && n%10 == 0 {
		n /= 10
	}
	return n == 1
}
