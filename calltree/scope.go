package calltree

import (
	"github.com/initia-labs/soldebug/ast"
	"github.com/initia-labs/soldebug/decoder"
)

type Local = decoder.Local

// Scope is one activation: an external call frame or an internal function
// body. LastStep is -1 while the scope has not been seen closing.
type Scope struct {
	ID         Path    `json:"id"`
	FirstStep  int     `json:"firstStep"`
	LastStep   int     `json:"lastStep"`
	IsCreation bool    `json:"isCreation"`
	Locals     []Local `json:"locals"`

	byName map[string]int
}

func newScope(id Path, first int, creation bool) *Scope {
	return &Scope{ID: id, FirstStep: first, LastStep: -1, IsCreation: creation, byName: make(map[string]int)}
}

func (s *Scope) Closed() bool {
	return s.LastStep >= 0
}

func (s *Scope) Local(name string) (Local, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Local{}, false
	}
	return s.Locals[i], true
}

func (s *Scope) hasLocal(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// setLocal adds l or replaces the binding of the same name.
func (s *Scope) setLocal(l Local) {
	if i, ok := s.byName[l.Name]; ok {
		s.Locals[i] = l
		return
	}
	s.byName[l.Name] = len(s.Locals)
	s.Locals = append(s.Locals, l)
}

// FunctionEntry is the function definition entered at the start of a scope
// and the names of its bound inputs.
type FunctionEntry struct {
	Definition ast.Node `json:"-"`
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Inputs     []string `json:"inputs"`
}
