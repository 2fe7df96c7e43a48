package calltree

import (
	"strconv"
	"strings"
)

// Path identifies a scope by its position in the tree: the root is empty,
// "1.2" is the second sub-scope of the first sub-scope of the root.
type Path []int

func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, nil
	}
	parts := strings.Split(s, ".")
	p := make(Path, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		p[i] = n
	}
	return p, nil
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, n := range p {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Child returns a new path for the n-th sub-scope of p.
func (p Path) Child(n int) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = n
	return out
}

func (p Path) Parent() (Path, bool) {
	if p.IsRoot() {
		return nil, false
	}
	return p[:len(p)-1:len(p)-1], true
}

// Compare orders paths element by element, a prefix sorting first.
func (p Path) Compare(o Path) int {
	for i := 0; i < len(p) && i < len(o); i++ {
		if p[i] != o[i] {
			if p[i] < o[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(p) < len(o):
		return -1
	case len(p) > len(o):
		return 1
	}
	return 0
}

func (p Path) Equal(o Path) bool {
	return p.Compare(o) == 0
}

func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
