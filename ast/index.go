package ast

import (
	"sort"
	"sync"

	"github.com/initia-labs/soldebug/types"
)

const (
	NodeContractDefinition           = "ContractDefinition"
	NodeStructDefinition             = "StructDefinition"
	NodeEnumDefinition               = "EnumDefinition"
	NodeFunctionDefinition           = "FunctionDefinition"
	NodeVariableDeclaration          = "VariableDeclaration"
	NodeVariableDeclarationStatement = "VariableDeclarationStatement"

	nodeYulFunctionDefinition           = "YulFunctionDefinition"
	nodeYulVariableDeclaration          = "YulVariableDeclaration"
	nodeYulVariableDeclarationStatement = "YulVariableDeclarationStatement"
)

// ContractState lists what a contract declares at contract level, base
// contracts first.
type ContractState struct {
	Contract Node
	// Definitions holds every contract-level node: variables, structs,
	// enums, functions, events.
	Definitions    []Node
	StateVariables []Node
}

// Index answers declaration lookups over one compilation. Lookups are
// computed on first use and cached.
type Index struct {
	sources         map[int]Node
	sourceUnitNodes []Node
	contractsByName map[string]Node
	contractsByID   map[int64]Node

	mu        sync.Mutex
	states    map[string]*ContractState
	variables map[int]map[string][]Node
	functions map[int]map[string]Node
}

func NewIndex(compilation *types.CompilationResult) *Index {
	ix := &Index{
		sources:         make(map[int]Node),
		contractsByName: make(map[string]Node),
		contractsByID:   make(map[int64]Node),
		states:          make(map[string]*ContractState),
		variables:       make(map[int]map[string][]Node),
		functions:       make(map[int]map[string]Node),
	}
	if compilation == nil {
		return ix
	}

	paths := make([]string, 0, len(compilation.Sources))
	for p := range compilation.Sources {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		src := compilation.Sources[p]
		root := Node(src.AST)
		if root == nil {
			continue
		}
		ix.sources[src.ID] = root
		for _, n := range root.Children("nodes") {
			if n.NodeType() != NodeContractDefinition {
				ix.sourceUnitNodes = append(ix.sourceUnitNodes, n)
			}
		}
		Walk(root, func(n Node) {
			if n.NodeType() == NodeContractDefinition {
				ix.contractsByID[n.ID()] = n
				ix.contractsByName[n.Name()] = n
			}
		})
	}
	return ix
}

// AST returns the root node of the source with the given file index.
func (ix *Index) AST(file int) (Node, bool) {
	n, ok := ix.sources[file]
	return n, ok
}

func (ix *Index) Contract(name string) (Node, bool) {
	n, ok := ix.contractsByName[name]
	return n, ok
}

func (ix *Index) ContractNames() []string {
	names := make([]string, 0, len(ix.contractsByName))
	for n := range ix.contractsByName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LinearizedBaseContracts returns the contract followed by its bases, most
// derived first, as solc linearizes them.
func (ix *Index) LinearizedBaseContracts(name string) []Node {
	c, ok := ix.contractsByName[name]
	if !ok {
		return nil
	}
	ids := c.IDs("linearizedBaseContracts")
	if len(ids) == 0 {
		return []Node{c}
	}
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		if base, ok := ix.contractsByID[id]; ok {
			out = append(out, base)
		}
	}
	return out
}

// States returns the contract-level declarations of name including those
// inherited from its bases.
func (ix *Index) States(name string) (*ContractState, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if s, ok := ix.states[name]; ok {
		return s, true
	}
	bases := ix.LinearizedBaseContracts(name)
	if len(bases) == 0 {
		return nil, false
	}

	state := &ContractState{Contract: bases[0]}
	for i := len(bases) - 1; i >= 0; i-- {
		for _, item := range bases[i].Children("nodes") {
			state.Definitions = append(state.Definitions, item)
			if item.NodeType() == NodeVariableDeclaration {
				state.StateVariables = append(state.StateVariables, item)
			}
		}
	}
	ix.states[name] = state
	return state, true
}

// Definition finds a struct or enum declaration visible from contractName.
// Qualified names ("Lib.S") are looked up in the qualifying contract.
// File-level declarations are searched last.
func (ix *Index) Definition(contractName, typeName, nodeType string) (Node, bool) {
	owner, local := contractName, typeName
	for i := len(typeName) - 1; i >= 0; i-- {
		if typeName[i] == '.' {
			owner, local = typeName[:i], typeName[i+1:]
			break
		}
	}
	if state, ok := ix.States(owner); ok {
		for _, d := range state.Definitions {
			if d.NodeType() == nodeType && d.Name() == local {
				return d, true
			}
		}
	}
	for _, d := range ix.sourceUnitNodes {
		if d.NodeType() == nodeType && d.Name() == local {
			return d, true
		}
	}
	return nil, false
}

// VariableDeclarations returns the declarations whose range is exactly loc.
// A declaration statement with an initial value registers its declarations
// under the range of that value.
func (ix *Index) VariableDeclarations(loc types.SourceLocation) []Node {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	byFile, ok := ix.variables[loc.File]
	if !ok {
		root, found := ix.sources[loc.File]
		if !found {
			return nil
		}
		byFile = make(map[string][]Node)
		Walk(root, func(n Node) {
			switch n.NodeType() {
			case NodeVariableDeclaration, nodeYulVariableDeclaration:
				byFile[n.Src()] = []Node{n}
			}
			switch n.NodeType() {
			case NodeVariableDeclarationStatement, nodeYulVariableDeclarationStatement:
				if init := n.Child("initialValue"); init != nil {
					byFile[init.Src()] = n.Children("declarations")
				}
			}
		})
		ix.variables[loc.File] = byFile
	}
	return byFile[loc.Src()]
}

// FunctionDefinition returns the function whose range is exactly loc.
func (ix *Index) FunctionDefinition(loc types.SourceLocation) (Node, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	byFile, ok := ix.functions[loc.File]
	if !ok {
		root, found := ix.sources[loc.File]
		if !found {
			return nil, false
		}
		byFile = make(map[string]Node)
		Walk(root, func(n Node) {
			switch n.NodeType() {
			case NodeFunctionDefinition, nodeYulFunctionDefinition:
				byFile[n.Src()] = n
			}
		})
		ix.functions[loc.File] = byFile
	}
	n, ok := byFile[loc.Src()]
	return n, ok
}
