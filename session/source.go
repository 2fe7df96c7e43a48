package session

import (
	"strings"

	"github.com/initia-labs/soldebug/util"
)

// SourceFile maps character offsets of a compiled source to zero-based
// lines and columns.
type SourceFile struct {
	ID   int
	Path string

	// offsets[0] is 0, then the position of every newline
	offsets []int
}

// Range is a zero-based line/column span.
type Range struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
	EndLine     int `json:"endLine"`
	EndColumn   int `json:"endColumn"`
}

func NewSourceFile(id int, path, text string) *SourceFile {
	offsets := []int{0}
	for pos := strings.IndexByte(text, '\n'); pos >= 0; {
		offsets = append(offsets, pos)
		next := strings.IndexByte(text[pos+1:], '\n')
		if next < 0 {
			break
		}
		pos += next + 1
	}
	return &SourceFile{ID: id, Path: normalizePath(path), offsets: offsets}
}

// Lines is the number of lines of the file.
func (f *SourceFile) Lines() int {
	return len(f.offsets)
}

// Line returns the line holding the character at pos.
func (f *SourceFile) Line(pos int) int {
	return max(util.FindLowerBound(pos, f.offsets), 0)
}

func (f *SourceFile) column(line, pos int) int {
	col := pos - f.offsets[line]
	if line > 0 {
		// skip the newline itself
		col--
	}
	return col
}

// Range converts a start/length pair of a source location.
func (f *SourceFile) Range(start, length int) Range {
	startLine := f.Line(start)
	endLine := f.Line(start + length - 1)
	return Range{
		StartLine:   startLine,
		StartColumn: f.column(startLine, start),
		EndLine:     endLine,
		EndColumn:   f.column(endLine, start+length),
	}
}

func normalizePath(path string) string {
	return strings.ReplaceAll(path, `\`, "/")
}
