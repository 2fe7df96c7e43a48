package trace

import (
	"sort"
)

// FindStepOverBack steps back over a whole sub-call when standing on its RETURN.
func (s *Store) FindStepOverBack(step int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(step); err != nil {
		return -1, err
	}
	if IsReturnInstruction(s.trace[step]) {
		call := findCall(step, s.idx.root)
		if call.Start > 0 {
			return call.Start - 1, nil
		}
		return 0, nil
	}
	if step > 0 {
		return step - 1, nil
	}
	return 0, nil
}

// FindStepOverForward steps over a sub-call when standing on the call.
func (s *Store) FindStepOverForward(step int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(step); err != nil {
		return -1, err
	}
	last := len(s.trace) - 1
	if IsCallInstruction(s.trace[step]) && !IsCallToPrecompiledContract(step, s.trace) && step < last {
		call := findCall(step+1, s.idx.root)
		if !call.Closed() || call.Return+1 > last {
			return last, nil
		}
		return call.Return + 1, nil
	}
	if step < last {
		return step + 1, nil
	}
	return step, nil
}

// FindNextCall returns the step just before the next sub-call of the current
// frame, or step itself when there is none.
func (s *Store) FindNextCall(step int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(step); err != nil {
		return -1, err
	}
	call := findCall(step, s.idx.root)
	starts := call.ChildStarts()
	next := sort.Search(len(starts), func(i int) bool { return starts[i] > step })
	if next < len(starts) {
		return starts[next] - 1, nil
	}
	return step, nil
}

// FindStepOut returns the last step of the current frame.
func (s *Store) FindStepOut(step int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(step); err != nil {
		return -1, err
	}
	call := findCall(step, s.idx.root)
	if !call.Closed() {
		return len(s.trace) - 1, nil
	}
	return call.Return, nil
}
