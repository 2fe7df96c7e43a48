// Package trace indexes the struct log of a finished transaction.
package trace

import (
	"log/slog"
	"sync"

	"github.com/initia-labs/soldebug/config"
	"github.com/initia-labs/soldebug/metrics"
	"github.com/initia-labs/soldebug/types"
	"github.com/initia-labs/soldebug/util"
)

// Store answers point queries about a loaded trace. Load is called once;
// every accessor is safe for concurrent use afterwards.
type Store struct {
	mu     sync.RWMutex
	logger *slog.Logger
	policy config.RevertPolicy

	tx    types.Transaction
	trace []types.StructLog
	idx   *index
}

func NewStore(logger *slog.Logger, policy config.RevertPolicy) *Store {
	if policy == "" {
		policy = config.RevertClearAll
	}
	return &Store{
		logger: logger.With("component", "trace"),
		policy: policy,
	}
}

// Load indexes the struct logs of tx in a single forward pass.
func (s *Store) Load(trace []types.StructLog, tx types.Transaction) error {
	if len(trace) == 0 {
		return types.NewTraceUnavailableError(tx.Hash.Hex(), nil)
	}

	idx := analyse(trace, tx, s.policy, s.logger)

	s.mu.Lock()
	s.tx = tx
	s.trace = trace
	s.idx = idx
	s.mu.Unlock()

	metrics.GetMetrics().Debugger.TraceStepsTotal.Add(float64(len(trace)))
	s.logger.Debug("trace loaded",
		slog.String("tx", tx.Hash.Hex()),
		slog.Int("steps", len(trace)),
		slog.Int("calls", len(idx.addresses)))
	return nil
}

func (s *Store) IsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx != nil
}

func (s *Store) Length() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.idx == nil {
		return 0, types.NewNotLoadedError("trace")
	}
	return len(s.trace), nil
}

func (s *Store) InRange(step int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx != nil && step >= 0 && step < len(s.trace)
}

// Transaction returns the transaction the trace belongs to.
func (s *Store) Transaction() types.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tx
}

// check must be called with the read lock held.
func (s *Store) check(step int) error {
	if s.idx == nil {
		return types.NewNotLoadedError("trace")
	}
	if step < 0 || step >= len(s.trace) {
		return types.NewIndexOutOfRangeError(step, len(s.trace))
	}
	return nil
}

func (s *Store) StepAt(step int) (types.StructLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(step); err != nil {
		return types.StructLog{}, err
	}
	return s.trace[step], nil
}

// StackAt returns a copy of the stack with the top first, words 0x-prefixed.
func (s *Store) StackAt(step int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(step); err != nil {
		return nil, err
	}
	raw := s.trace[step].Stack
	stack := make([]string, len(raw))
	for i, w := range raw {
		if len(w) < 2 || w[:2] != "0x" {
			w = "0x" + w
		}
		stack[len(raw)-1-i] = w
	}
	return stack, nil
}

// MemoryAt returns the last memory snapshot at or before step.
func (s *Store) MemoryAt(step int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(step); err != nil {
		return nil, err
	}
	i := util.FindLowerBound(step, s.idx.memoryChanges)
	if i < 0 {
		return []string{}, nil
	}
	return s.trace[s.idx.memoryChanges[i]].Memory, nil
}

func (s *Store) CallDataAt(step int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(step); err != nil {
		return "", err
	}
	i := util.FindLowerBound(step, s.idx.callDataChanges)
	if i < 0 {
		return "", types.NewNotFoundError("call data")
	}
	return s.idx.callsData[s.idx.callDataChanges[i]], nil
}

// ReturnValueAt returns the 32-byte words returned by the RETURN at step.
func (s *Store) ReturnValueAt(step int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(step); err != nil {
		return nil, err
	}
	v, ok := s.idx.returnValues[step]
	if !ok {
		return nil, types.NewNotFoundError("return value at a non return step")
	}
	return v, nil
}

// CallAt returns the innermost call containing step.
func (s *Store) CallAt(step int) (*Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(step); err != nil {
		return nil, err
	}
	return findCall(step, s.idx.root), nil
}

// BuildCallPath lists the calls from the root to the innermost one containing step.
func (s *Store) BuildCallPath(step int) ([]*Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(step); err != nil {
		return nil, err
	}
	return buildCallPath(step, s.idx.root), nil
}

func (s *Store) CurrentCalledAddressAt(step int) (string, error) {
	call, err := s.CallAt(step)
	if err != nil {
		return "", err
	}
	return call.Address, nil
}

func (s *Store) CallStackAt(step int) ([]string, error) {
	call, err := s.CallAt(step)
	if err != nil {
		return nil, err
	}
	return cloneStrings(call.CallStack), nil
}

// RootCall returns the transaction-level frame.
func (s *Store) RootCall() (*Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.idx == nil {
		return nil, types.NewNotLoadedError("trace")
	}
	return s.idx.root, nil
}

func (s *Store) PCAt(step int) (uint64, error) {
	st, err := s.StepAt(step)
	return st.Pc, err
}

func (s *Store) StepCost(step int) (uint64, error) {
	st, err := s.StepAt(step)
	return st.GasCost, err
}

func (s *Store) RemainingGas(step int) (uint64, error) {
	st, err := s.StepAt(step)
	return st.Gas, err
}

func (s *Store) IsCreationStep(step int) (bool, error) {
	st, err := s.StepAt(step)
	if err != nil {
		return false, err
	}
	return IsCreateInstruction(st), nil
}

// ContractCreationCode returns the init code recorded for a creation token.
func (s *Store) ContractCreationCode(token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.idx == nil {
		return "", types.NewNotLoadedError("trace")
	}
	code, ok := s.idx.contractCreation[token]
	if !ok {
		return "", types.NewNotFoundError("contract creation " + token)
	}
	return code, nil
}

// Addresses lists the called addresses in call order, root first.
func (s *Store) Addresses() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.idx == nil {
		return nil, types.NewNotLoadedError("trace")
	}
	return cloneStrings(s.idx.addresses), nil
}

func (s *Store) StopIndexes() ([]StepMarker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.idx == nil {
		return nil, types.NewNotLoadedError("trace")
	}
	return append([]StepMarker(nil), s.idx.stopIndexes...), nil
}

func (s *Store) OutOfGasIndexes() ([]StepMarker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.idx == nil {
		return nil, types.NewNotLoadedError("trace")
	}
	return append([]StepMarker(nil), s.idx.outOfGasIndexes...), nil
}

// StorageWrites returns the recorded write log in step order.
func (s *Store) StorageWrites() []StorageWrite {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.idx == nil {
		return nil
	}
	return append([]StorageWrite(nil), s.idx.writes...)
}

// AccumulateStorageChanges overlays the writes to address recorded at or
// before step on a copy of base.
func (s *Store) AccumulateStorageChanges(step int, address string, base types.StorageMap) types.StorageMap {
	return AccumulateStorageChanges(s.StorageWrites(), step, address, base)
}

// AccumulateStorageChanges is the pure overlay of a write log on base.
func AccumulateStorageChanges(writes []StorageWrite, step int, address string, base types.StorageMap) types.StorageMap {
	ret := make(types.StorageMap, len(base))
	for k, v := range base {
		ret[k] = v
	}
	for _, w := range writes {
		if w.Step > step {
			break
		}
		if w.Address != address || w.Key == nil {
			continue
		}
		key := *w.Key
		ret[w.HashedKey] = types.StorageEntry{Key: &key, Value: w.Value}
	}
	return ret
}
