package session

// Breakpoint is a zero-based line breakpoint. It is verified when the line
// exists in a loaded source.
type Breakpoint struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Line     int    `json:"line"`
	Verified bool   `json:"verified"`
}

func (s *Session) SetBreakpoint(path string, line int) Breakpoint {
	path = normalizePath(path)
	s.mu.Lock()
	defer s.mu.Unlock()

	bp := Breakpoint{ID: s.nextBreakpointID, Path: path, Line: line}
	s.nextBreakpointID++
	if f, ok := s.filesByPath[path]; ok {
		bp.Verified = line >= 0 && line < f.Lines()
	}
	s.breakpoints[path] = append(s.breakpoints[path], bp)
	return bp
}

// ClearBreakpoint removes the first breakpoint on line.
func (s *Session) ClearBreakpoint(path string, line int) (Breakpoint, bool) {
	path = normalizePath(path)
	s.mu.Lock()
	defer s.mu.Unlock()

	bps := s.breakpoints[path]
	for i, bp := range bps {
		if bp.Line == line {
			s.breakpoints[path] = append(bps[:i:i], bps[i+1:]...)
			return bp, true
		}
	}
	return Breakpoint{}, false
}

// ClearBreakpoints removes every line breakpoint of path.
func (s *Session) ClearBreakpoints(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.breakpoints, normalizePath(path))
}

func (s *Session) Breakpoints(path string) []Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Breakpoint(nil), s.breakpoints[normalizePath(path)]...)
}

func (s *Session) hasBreakpoint(path string, line int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, bp := range s.breakpoints[path] {
		if bp.Line == line {
			return true
		}
	}
	return false
}

// SetInstructionBreakpoint stops Continue on any step executing pc.
func (s *Session) SetInstructionBreakpoint(pc uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instructionBreakpoints[pc] = struct{}{}
}

func (s *Session) ClearInstructionBreakpoints() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.instructionBreakpoints)
}

func (s *Session) hasInstructionBreakpoint(pc uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.instructionBreakpoints[pc]
	return ok
}
