package types

import "encoding/json"

// CompilationResult is the solc standard-json output.
type CompilationResult struct {
	Sources   map[string]CompilationSource           `json:"sources"`
	Contracts map[string]map[string]CompiledContract `json:"contracts"`
}

type CompilationSource struct {
	ID  int            `json:"id"`
	AST map[string]any `json:"ast"`
}

type CompiledContract struct {
	ABI json.RawMessage `json:"abi"`
	EVM struct {
		Bytecode         Bytecode `json:"bytecode"`
		DeployedBytecode Bytecode `json:"deployedBytecode"`
	} `json:"evm"`
}

type Bytecode struct {
	Object           string            `json:"object"`
	SourceMap        string            `json:"sourceMap"`
	GeneratedSources []GeneratedSource `json:"generatedSources"`
}

type GeneratedSource struct {
	ID       int            `json:"id"`
	Name     string         `json:"name"`
	Language string         `json:"language"`
	Contents string         `json:"contents"`
	AST      map[string]any `json:"ast"`
}

// SourcePathByID returns the path of the source with the given file index.
func (c *CompilationResult) SourcePathByID(id int) (string, bool) {
	for path, src := range c.Sources {
		if src.ID == id {
			return path, true
		}
	}
	return "", false
}
