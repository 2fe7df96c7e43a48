package types

import "fmt"

// JumpKind is the jump field of a source map entry.
type JumpKind string

const (
	JumpIn   JumpKind = "i"
	JumpOut  JumpKind = "o"
	JumpNone JumpKind = "-"
)

// SourceLocation is one decoded source map entry.
type SourceLocation struct {
	Start         int      `json:"start"`
	Length        int      `json:"length"`
	File          int      `json:"file"`
	Jump          JumpKind `json:"jump"`
	ModifierDepth int      `json:"modifierDepth"`
}

// UnsetSourceLocation is the location tracked before any step is resolved.
func UnsetSourceLocation() SourceLocation {
	return SourceLocation{Start: -1, Length: -1, File: -1, Jump: JumpNone}
}

// Src renders the location the way AST nodes encode their src attribute.
func (l SourceLocation) Src() string {
	return fmt.Sprintf("%d:%d:%d", l.Start, l.Length, l.File)
}

// Contains reports whether other lies inside l in the same file.
func (l SourceLocation) Contains(other SourceLocation) bool {
	return other.Start != -1 &&
		other.Length != -1 &&
		other.File != -1 &&
		other.Start >= l.Start &&
		other.Start+other.Length <= l.Start+l.Length &&
		other.File == l.File
}

// SameRange compares start, length and file.
func (l SourceLocation) SameRange(other SourceLocation) bool {
	return l.Start == other.Start && l.Length == other.Length && l.File == other.File
}
