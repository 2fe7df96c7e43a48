package trace

import (
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/initia-labs/soldebug/config"
	"github.com/initia-labs/soldebug/types"
	"github.com/initia-labs/soldebug/util"
)

// StorageWrite is one SSTORE, or a context marker when Key is nil.
type StorageWrite struct {
	Step      int
	Address   string
	Key       *common.Hash
	Value     common.Hash
	HashedKey common.Hash
}

// StepMarker tags a step with the address of the frame it belongs to.
type StepMarker struct {
	Index   int
	Address string
}

// index holds everything derived from one pass over the struct logs.
type index struct {
	root             *Call
	addresses        []string
	callDataChanges  []int
	callsData        map[int]string
	memoryChanges    []int
	writes           []StorageWrite
	returnValues     map[int][]string
	stopIndexes      []StepMarker
	outOfGasIndexes  []StepMarker
	contractCreation map[string]string
}

type frame struct {
	call      *Call
	callData  string
	storage   string
	writeMark int
}

type analyser struct {
	trace  []types.StructLog
	policy config.RevertPolicy
	logger *slog.Logger

	idx       *index
	frames    []frame
	callStack []string
}

func analyse(trace []types.StructLog, tx types.Transaction, policy config.RevertPolicy, logger *slog.Logger) *index {
	a := &analyser{
		trace:  trace,
		policy: policy,
		logger: logger,
		idx: &index{
			callsData:        make(map[int]string),
			returnValues:     make(map[int][]string),
			contractCreation: make(map[string]string),
		},
	}

	rootAddress := ""
	if tx.IsCreation() {
		rootAddress = ContractCreationToken(0)
		a.idx.contractCreation[rootAddress] = util.BytesToHexWithPrefix(tx.Input)
	} else {
		rootAddress = types.NormalizeAddress(tx.To.Hex())
	}

	a.callStack = []string{rootAddress}
	root := newCall(trace[0].Op, rootAddress, cloneStrings(a.callStack), 0, nil)
	a.idx.root = root
	a.idx.addresses = append(a.idx.addresses, rootAddress)

	rootData := util.BytesToHexWithPrefix(tx.Input)
	a.pushCallData(0, rootData)
	a.pushWrite(0, rootAddress, nil, "")
	a.frames = []frame{{call: root, callData: rootData, storage: rootAddress}}

	for k := range trace {
		a.buildMemory(k)
		a.buildFrames(k)
	}
	return a.idx
}

func (a *analyser) current() *frame {
	return &a.frames[len(a.frames)-1]
}

func (a *analyser) buildMemory(k int) {
	if a.trace[k].Memory != nil {
		a.idx.memoryChanges = append(a.idx.memoryChanges, k)
	}
}

type closeKind int

const (
	notClosing closeKind = iota
	closeSuccess
	closeFailure
)

func (a *analyser) closing(k int) closeKind {
	step := a.trace[k]
	switch {
	case step.Error != "", IsRevertInstruction(step):
		return closeFailure
	case IsReturnInstruction(step), IsStopInstruction(step):
		return closeSuccess
	case k+1 < len(a.trace) && a.trace[k+1].Depth < step.Depth:
		// SELFDESTRUCT and other implicit frame ends
		return closeSuccess
	}
	return notClosing
}

func (a *analyser) buildFrames(k int) {
	step := a.trace[k]

	if IsReturnInstruction(step) {
		a.buildReturnValues(k)
	}
	a.buildOutOfGas(k)

	kind := a.closing(k)
	switch {
	case kind == notClosing && IsCallInstruction(step) && !IsCallToPrecompiledContract(k, a.trace):
		a.openFrame(k)
	case kind == notClosing && IsSStoreInstruction(step):
		key, okKey := stackArg(step, 1)
		value, okValue := stackArg(step, 2)
		if okKey && okValue {
			a.pushWrite(k+1, a.current().storage, &key, value)
		}
	case kind != notClosing:
		a.closeFrame(k, kind)
	}
}

func (a *analyser) openFrame(k int) {
	step := a.trace[k]
	parent := a.current()

	var address string
	if IsCreateInstruction(step) {
		address = ContractCreationToken(k)
		a.idx.contractCreation[address] = a.memorySlice(k, 2, 3)
	} else {
		address = ResolveCalledAddress(k, a.trace)
		if address == "" {
			a.logger.Warn("call step without callee operand, depth changes will be corrupted", slog.Int("step", k))
		}
	}
	a.callStack = append(a.callStack, address)

	call := newCall(step.Op, address, cloneStrings(a.callStack), k+1, parent.call)
	parent.call.Calls = append(parent.call.Calls, call)
	a.idx.addresses = append(a.idx.addresses, address)

	var callData string
	if IsCreateInstruction(step) {
		callData = "0x"
	} else if step.Op == "DELEGATECALL" || step.Op == "STATICCALL" {
		callData = a.memorySlice(k, 3, 4)
	} else {
		callData = a.memorySlice(k, 4, 5)
	}
	a.pushCallData(k+1, callData)

	storage := parent.storage
	if isNewStorageContext(step) {
		storage = address
	}
	mark := len(a.idx.writes)
	a.pushWrite(k+1, storage, nil, "")

	a.frames = append(a.frames, frame{call: call, callData: callData, storage: storage, writeMark: mark})
}

func (a *analyser) closeFrame(k int, kind closeKind) {
	cur := a.current()
	cur.call.Return = k
	if kind == closeFailure {
		cur.call.Reverted = true
	}

	step := a.trace[k]
	if IsReturnInstruction(step) || IsStopInstruction(step) || IsRevertInstruction(step) {
		a.idx.stopIndexes = append(a.idx.stopIndexes, StepMarker{Index: k, Address: cur.call.Address})
	}

	if kind == closeFailure {
		a.rollback(cur.writeMark)
	}

	if len(a.frames) == 1 {
		// the root frame stays current until the end of the trace
		return
	}
	a.frames = a.frames[:len(a.frames)-1]
	a.callStack = a.callStack[:len(a.callStack)-1]

	parent := a.current()
	a.pushCallData(k+1, parent.callData)
	if kind == closeSuccess {
		a.pushWrite(k+1, parent.storage, nil, "")
	}
}

// rollback drops the writes undone by a failing frame.
func (a *analyser) rollback(mark int) {
	switch a.policy {
	case config.RevertScoped:
		a.idx.writes = a.idx.writes[:mark]
	default:
		a.idx.writes = nil
	}
}

func (a *analyser) buildReturnValues(k int) {
	step := a.trace[k]
	offsetHex, ok1 := stackArg(step, 1)
	sizeHex, ok2 := stackArg(step, 2)
	if !ok1 || !ok2 {
		return
	}
	offset, err1 := util.HexToInt(offsetHex)
	size, err2 := util.HexToInt(sizeHex)
	if err1 != nil || err2 != nil {
		return
	}

	memory := a.lastMemory()
	words := make([]string, 0, size/types.WordSize)
	for i := 0; i < size/types.WordSize; i++ {
		words = append(words, "0x"+hexRange(memory, 2*offset, 2*types.WordSize, true))
		offset += types.WordSize
	}
	a.idx.returnValues[k] = words
}

func (a *analyser) buildOutOfGas(k int) {
	step := a.trace[k]
	if step.Gas <= step.GasCost || step.Error == "OutOfGas" || step.Error == "out of gas" {
		a.idx.outOfGasIndexes = append(a.idx.outOfGasIndexes, StepMarker{Index: k, Address: a.current().call.Address})
	}
}

func (a *analyser) pushCallData(step int, data string) {
	a.idx.callDataChanges = append(a.idx.callDataChanges, step)
	a.idx.callsData[step] = data
}

func (a *analyser) pushWrite(step int, address string, key *string, value string) {
	w := StorageWrite{Step: step, Address: address}
	if key != nil {
		k := common.HexToHash(*key)
		w.Key = &k
		w.Value = common.HexToHash(value)
		w.HashedKey = crypto.Keccak256Hash(k.Bytes())
	}
	a.idx.writes = append(a.idx.writes, w)
}

// lastMemory joins the most recent memory snapshot into one hex string.
func (a *analyser) lastMemory() string {
	if len(a.idx.memoryChanges) == 0 {
		return ""
	}
	memory := a.trace[a.idx.memoryChanges[len(a.idx.memoryChanges)-1]].Memory
	var sb strings.Builder
	for _, w := range memory {
		sb.WriteString(strings.TrimPrefix(w, "0x"))
	}
	return sb.String()
}

// memorySlice reads memory at the offset/size found at the given stack
// positions of step k.
func (a *analyser) memorySlice(k, offsetPos, sizePos int) string {
	step := a.trace[k]
	offsetHex, ok1 := stackArg(step, offsetPos)
	sizeHex, ok2 := stackArg(step, sizePos)
	if !ok1 || !ok2 {
		return "0x"
	}
	offset, err1 := util.HexToInt(offsetHex)
	size, err2 := util.HexToInt(sizeHex)
	if err1 != nil || err2 != nil {
		return "0x"
	}
	return "0x" + hexRange(a.lastMemory(), 2*offset, 2*size, false)
}

// hexRange cuts n hex chars at start. With pad, missing memory reads as zero.
func hexRange(hex string, start, n int, pad bool) string {
	var out string
	if start < len(hex) {
		end := start + n
		if end > len(hex) {
			end = len(hex)
		}
		out = hex[start:end]
	}
	if pad && len(out) < n {
		out += strings.Repeat("0", n-len(out))
	}
	return out
}

func cloneStrings(s []string) []string {
	return append([]string(nil), s...)
}
