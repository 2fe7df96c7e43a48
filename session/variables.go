package session

import (
	"context"
	"log/slog"

	"github.com/initia-labs/soldebug/calltree"
	"github.com/initia-labs/soldebug/decoder"
	"github.com/initia-labs/soldebug/storage"
	"github.com/initia-labs/soldebug/types"
	"github.com/initia-labs/soldebug/util"
)

// Globals decodes the state variables of the contract running at the
// current step, inherited ones included.
func (s *Session) Globals(ctx context.Context) (map[string]decoder.Value, error) {
	step := s.Step()
	address, err := s.Trace.CurrentCalledAddressAt(step)
	if err != nil {
		return nil, err
	}
	contract, err := s.Code.ContractAt(ctx, address)
	if err != nil {
		return nil, err
	}
	vars, err := s.Decoder.StateVariables(contract.Name)
	if err != nil {
		return nil, err
	}
	view := storage.NewView(s.Storage, s.Trace, step, address)
	return s.Decoder.DecodeState(ctx, vars, view), nil
}

// Locals decodes the variables bound in the innermost scope of the
// current step.
func (s *Session) Locals(ctx context.Context) (map[string]decoder.Value, error) {
	step := s.Step()
	scope, ok := s.Tree.FindScope(step)
	if !ok {
		return nil, types.NewNotFoundError("scope")
	}
	frame, err := s.frameAt(step)
	if err != nil {
		return nil, err
	}
	return s.Decoder.DecodeLocals(ctx, scope.Locals, frame), nil
}

// Local decodes a single local, paging its array elements from cursor.
func (s *Session) Local(ctx context.Context, name string, cursor int) (decoder.Value, error) {
	step := s.Step()
	scope, ok := s.Tree.FindScope(step)
	if !ok {
		return decoder.Value{}, types.NewNotFoundError("scope")
	}
	local, ok := scope.Local(name)
	if !ok {
		return decoder.Value{}, types.NewNotFoundError("local " + name)
	}
	frame, err := s.frameAt(step)
	if err != nil {
		return decoder.Value{}, err
	}
	frame.Cursor = cursor
	return s.Decoder.DecodeFromStack(ctx, local, frame), nil
}

// Scope returns the innermost scope of the current step.
func (s *Session) Scope() (*calltree.Scope, bool) {
	return s.Tree.FindScope(s.Step())
}

// Functions lists the functions entered at the current step, innermost
// first.
func (s *Session) Functions() ([]calltree.FunctionEntry, error) {
	return s.Tree.RetrieveFunctionsStack(s.Step())
}

func (s *Session) frameAt(step int) (decoder.Frame, error) {
	address, err := s.Trace.CurrentCalledAddressAt(step)
	if err != nil {
		return decoder.Frame{}, err
	}
	stack, err := s.Trace.StackAt(step)
	if err != nil {
		return decoder.Frame{}, err
	}
	words, err := s.Trace.MemoryAt(step)
	if err != nil {
		return decoder.Frame{}, err
	}
	memory, err := util.JoinMemory(words)
	if err != nil {
		return decoder.Frame{}, err
	}
	var callData []byte
	if raw, err := s.Trace.CallDataAt(step); err == nil {
		if callData, err = util.HexToBytes(raw); err != nil {
			s.logger.Debug("malformed call data", slog.Int("step", step), slog.Any("error", err))
		}
	}
	return decoder.Frame{
		Stack:    stack,
		Memory:   memory,
		CallData: callData,
		Storage:  storage.NewView(s.Storage, s.Trace, step, address),
	}, nil
}
