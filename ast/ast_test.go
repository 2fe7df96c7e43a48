package ast_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/initia-labs/soldebug/ast"
	"github.com/initia-labs/soldebug/types"
)

const fixture = `{
  "sources": {
    "Token.sol": {
      "id": 0,
      "ast": {
        "nodeType": "SourceUnit", "id": 1, "src": "0:400:0",
        "nodes": [
          {"nodeType": "StructDefinition", "id": 2, "src": "0:20:0", "name": "Point", "members": []},
          {"nodeType": "ContractDefinition", "id": 10, "src": "20:100:0", "name": "Base",
           "linearizedBaseContracts": [10],
           "nodes": [
             {"nodeType": "VariableDeclaration", "id": 11, "src": "30:10:0", "name": "owner",
              "typeDescriptions": {"typeString": "address"}}
           ]},
          {"nodeType": "ContractDefinition", "id": 20, "src": "120:280:0", "name": "Token",
           "linearizedBaseContracts": [20, 10],
           "nodes": [
             {"nodeType": "EnumDefinition", "id": 21, "src": "130:20:0", "name": "State", "members": [
               {"nodeType": "EnumValue", "id": 22, "src": "140:3:0", "name": "On"}
             ]},
             {"nodeType": "VariableDeclaration", "id": 23, "src": "150:10:0", "name": "total",
              "typeDescriptions": {"typeString": "uint256"}},
             {"nodeType": "FunctionDefinition", "id": 30, "src": "200:100:0", "name": "mint", "kind": "function",
              "body": {"nodeType": "Block", "id": 31, "src": "250:50:0", "statements": [
                {"nodeType": "VariableDeclarationStatement", "id": 32, "src": "260:20:0",
                 "declarations": [
                   {"nodeType": "VariableDeclaration", "id": 33, "src": "260:9:0", "name": "x",
                    "typeDescriptions": {"typeString": "uint256"}}
                 ],
                 "initialValue": {"nodeType": "Literal", "id": 34, "src": "272:1:0"}}
              ]}}
           ]}
        ]
      }
    }
  }
}`

func loadIndex(t *testing.T) *ast.Index {
	t.Helper()
	var c types.CompilationResult
	require.NoError(t, json.Unmarshal([]byte(fixture), &c))
	return ast.NewIndex(&c)
}

func TestWalkVisitsInOrder(t *testing.T) {
	ix := loadIndex(t)
	root, ok := ix.AST(0)
	require.True(t, ok)

	var names []string
	ast.Walk(root, func(n ast.Node) {
		if n.NodeType() == ast.NodeContractDefinition {
			names = append(names, n.Name())
		}
	})
	assert.Equal(t, []string{"Base", "Token"}, names)
}

func TestStatesIncludeBaseContracts(t *testing.T) {
	ix := loadIndex(t)

	state, ok := ix.States("Token")
	require.True(t, ok)
	require.Len(t, state.StateVariables, 2)
	assert.Equal(t, "owner", state.StateVariables[0].Name())
	assert.Equal(t, "total", state.StateVariables[1].Name())
	assert.Equal(t, "uint256", state.StateVariables[1].TypeString())

	_, ok = ix.States("Missing")
	assert.False(t, ok)
}

func TestDefinitionLookup(t *testing.T) {
	ix := loadIndex(t)

	enum, ok := ix.Definition("Token", "State", ast.NodeEnumDefinition)
	require.True(t, ok)
	assert.Len(t, enum.Children("members"), 1)

	_, ok = ix.Definition("Base", "Token.State", ast.NodeEnumDefinition)
	assert.True(t, ok)

	_, ok = ix.Definition("Token", "Point", ast.NodeStructDefinition)
	assert.True(t, ok, "file level struct")

	_, ok = ix.Definition("Base", "State", ast.NodeEnumDefinition)
	assert.False(t, ok)
}

func TestDeclarationLookupByLocation(t *testing.T) {
	ix := loadIndex(t)

	fn, ok := ix.FunctionDefinition(types.SourceLocation{Start: 200, Length: 100, File: 0})
	require.True(t, ok)
	assert.Equal(t, "mint", fn.Name())

	decls := ix.VariableDeclarations(types.SourceLocation{Start: 272, Length: 1, File: 0})
	require.Len(t, decls, 1)
	assert.Equal(t, "x", decls[0].Name())

	decls = ix.VariableDeclarations(types.SourceLocation{Start: 260, Length: 9, File: 0})
	require.Len(t, decls, 1)

	assert.Empty(t, ix.VariableDeclarations(types.SourceLocation{Start: 1, Length: 1, File: 7}))
}

func TestNodeAccessors(t *testing.T) {
	ix := loadIndex(t)
	token, ok := ix.Contract("Token")
	require.True(t, ok)
	assert.Equal(t, int64(20), token.ID())
	assert.Equal(t, []int64{20, 10}, token.IDs("linearizedBaseContracts"))
	assert.Equal(t, []string{"Base", "Token"}, ix.ContractNames())
	assert.Len(t, ix.LinearizedBaseContracts("Token"), 2)
}
