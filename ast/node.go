// Package ast reads the declarations out of solc AST JSON.
package ast

import (
	"encoding/json"
	"sort"
)

// Node is one object of the compiler AST as decoded from JSON.
type Node map[string]any

func asNode(v any) (Node, bool) {
	switch n := v.(type) {
	case Node:
		return n, true
	case map[string]any:
		return Node(n), true
	}
	return nil, false
}

// IsAstNode reports whether n carries the nodeType and src attributes.
// Yul nodes have no id, so it is not required.
func (n Node) IsAstNode() bool {
	if n == nil {
		return false
	}
	_, hasType := n["nodeType"]
	_, hasSrc := n["src"]
	return hasType && hasSrc
}

func (n Node) NodeType() string {
	return n.String("nodeType")
}

func (n Node) Src() string {
	return n.String("src")
}

func (n Node) Name() string {
	return n.String("name")
}

// ID returns the node id, -1 when absent.
func (n Node) ID() int64 {
	return toInt64(n["id"])
}

func (n Node) String(key string) string {
	s, _ := n[key].(string)
	return s
}

func (n Node) Bool(key string) bool {
	b, _ := n[key].(bool)
	return b
}

func (n Node) Child(key string) Node {
	c, _ := asNode(n[key])
	return c
}

func (n Node) Children(key string) []Node {
	raw, ok := n[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Node, 0, len(raw))
	for _, r := range raw {
		if c, ok := asNode(r); ok {
			out = append(out, c)
		}
	}
	return out
}

// TypeString is the typeDescriptions.typeString attribute of a declaration.
func (n Node) TypeString() string {
	return n.Child("typeDescriptions").String("typeString")
}

// IDs reads an array of node ids such as linearizedBaseContracts.
func (n Node) IDs(key string) []int64 {
	raw, ok := n[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(raw))
	for _, r := range raw {
		if id := toInt64(r); id >= 0 {
			out = append(out, id)
		}
	}
	return out
}

func toInt64(v any) int64 {
	switch id := v.(type) {
	case float64:
		return int64(id)
	case int:
		return int64(id)
	case int64:
		return id
	case json.Number:
		i, err := id.Int64()
		if err == nil {
			return i
		}
	}
	return -1
}

// Walk visits root and every AST node below it in pre-order. Objects that
// are not AST nodes stop the descent. Keys are visited in sorted order.
func Walk(root Node, fn func(Node)) {
	if !root.IsAstNode() {
		return
	}
	stack := []Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(n)

		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var children []Node
		for _, k := range keys {
			switch v := n[k].(type) {
			case []any:
				for _, item := range v {
					if c, ok := asNode(item); ok && c.IsAstNode() {
						children = append(children, c)
					}
				}
			default:
				if c, ok := asNode(v); ok && c.IsAstNode() {
					children = append(children, c)
				}
			}
		}
		// reversed so the first child is visited first
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}
