package session

import (
	"context"
	"strings"

	"github.com/initia-labs/soldebug/types"
	"github.com/initia-labs/soldebug/util"
)

// NoTarget is returned by navigation when nothing is left to stop at.
const NoTarget = -1

// Start moves to the first source line of the trace.
func (s *Session) Start(ctx context.Context) (int, error) {
	s.mu.Lock()
	s.step = 0
	s.location = types.UnsetSourceLocation()
	s.mu.Unlock()
	return s.NextLine(ctx, false)
}

// NextLine moves to the next (or previous) source location, stepping over
// internal function calls.
func (s *Session) NextLine(ctx context.Context, reverse bool) (int, error) {
	target, err := s.findNextLine(ctx, reverse, s.Step(), false)
	if err != nil {
		return NoTarget, err
	}
	return s.jumpTo(ctx, target)
}

// StepIn moves to the next source location, entering internal calls.
func (s *Session) StepIn(ctx context.Context) (int, error) {
	target, err := s.findNextLine(ctx, false, s.Step(), true)
	if err != nil {
		return NoTarget, err
	}
	return s.jumpTo(ctx, target)
}

// StepOut moves to the first source location after the end of the
// current scope.
func (s *Session) StepOut(ctx context.Context) (int, error) {
	scope, ok := s.Tree.FindScope(s.Step())
	if !ok || !scope.Closed() {
		return NoTarget, nil
	}
	target, err := s.findNextLine(ctx, false, scope.LastStep, false)
	if err != nil {
		return NoTarget, err
	}
	return s.jumpTo(ctx, target)
}

// Continue runs to the next (or previous) breakpoint.
func (s *Session) Continue(ctx context.Context, reverse bool) (int, error) {
	target, err := s.findNextBreakpoint(ctx, reverse)
	if err != nil {
		return NoTarget, err
	}
	return s.jumpTo(ctx, target)
}

// JumpTo moves to an arbitrary step.
func (s *Session) JumpTo(ctx context.Context, step int) (int, error) {
	if !s.Trace.InRange(step) {
		length, _ := s.Trace.Length()
		return NoTarget, types.NewIndexOutOfRangeError(step, length)
	}
	return s.jumpTo(ctx, step)
}

func (s *Session) jumpTo(ctx context.Context, target int) (int, error) {
	if target == NoTarget {
		return NoTarget, nil
	}
	loc, err := s.Tree.ExtractSourceLocation(ctx, target)
	if err != nil {
		return NoTarget, err
	}
	s.mu.Lock()
	s.step = target
	s.location = loc
	s.mu.Unlock()
	return target, nil
}

// skippable ops only get a stop of their own when they enter a function
func skippable(step types.StructLog, loc types.SourceLocation) bool {
	if loc.Jump == types.JumpIn {
		return false
	}
	for _, prefix := range []string{"DUP", "PUSH", "JUMP", "CALLDATASIZE"} {
		if strings.HasPrefix(step.Op, prefix) {
			return true
		}
	}
	return false
}

// sourceStep resolves the location of step when it lies in a known file.
func (s *Session) sourceStep(ctx context.Context, step int) (types.SourceLocation, types.StructLog, bool) {
	loc, err := s.Tree.ExtractSourceLocation(ctx, step)
	if err != nil {
		return loc, types.StructLog{}, false
	}
	if _, ok := s.files[loc.File]; !ok {
		return loc, types.StructLog{}, false
	}
	st, err := s.Trace.StepAt(step)
	if err != nil {
		return loc, types.StructLog{}, false
	}
	return loc, st, true
}

func (s *Session) findNextLine(ctx context.Context, reverse bool, start int, stepIn bool) (int, error) {
	length, err := s.Trace.Length()
	if err != nil {
		return NoTarget, err
	}
	s.mu.Lock()
	old := s.location
	s.mu.Unlock()

	oldScopeEnd := -1
	if scope, ok := s.Tree.FindScope(start); ok {
		oldScopeEnd = scope.LastStep
	}
	calls := s.Tree.FunctionCallStack()

	cur := start
	for {
		if reverse {
			cur--
		} else {
			cur++
		}
		if cur < 0 || cur >= length {
			return NoTarget, nil
		}
		if err := ctx.Err(); err != nil {
			return NoTarget, err
		}

		loc, step, ok := s.sourceStep(ctx, cur)
		if !ok || loc.SameRange(old) || skippable(step, loc) {
			continue
		}
		if stepIn {
			return cur, nil
		}

		scope, ok := s.Tree.FindScope(cur)
		if !ok {
			continue
		}
		if scope.LastStep != oldScopeEnd && scope.Closed() {
			closest := util.FindLowerBound(start, calls)
			if closest >= 0 && closest+1 < len(calls) && cur >= calls[closest] {
				// skip the whole callee
				if reverse {
					cur = scope.FirstStep
				} else {
					cur = scope.LastStep
				}
				continue
			}
		}
		return cur, nil
	}
}

func (s *Session) findNextBreakpoint(ctx context.Context, reverse bool) (int, error) {
	length, err := s.Trace.Length()
	if err != nil {
		return NoTarget, err
	}

	cur := s.Step()
	for {
		if reverse {
			cur--
		} else {
			cur++
		}
		if cur < 0 || cur >= length {
			return NoTarget, nil
		}
		if err := ctx.Err(); err != nil {
			return NoTarget, err
		}

		loc, step, ok := s.sourceStep(ctx, cur)
		if !ok {
			continue
		}
		if s.hasInstructionBreakpoint(step.Pc) {
			return cur, nil
		}
		if skippable(step, loc) {
			continue
		}
		f := s.files[loc.File]
		if s.hasBreakpoint(f.Path, f.Line(loc.Start)) {
			return cur, nil
		}
	}
}
