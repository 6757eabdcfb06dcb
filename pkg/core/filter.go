package core

import (
	gopath "path"
	"strings"
)

// PathFilter selects paths with a dotted glob pattern:
//
//	**.T             every path ending in an element called T
//	a.b.c.M          exactly that path
//	Synthesis.**.x.* paths under Synthesis whose second-last element is x
//
// "*" matches exactly one element, "**" one or more elements, and within an
// element the usual glob syntax of path.Match applies ("T*", "x?"). An empty
// pattern matches every path.
type PathFilter struct {
	pattern []string
}

// NewPathFilter compiles pattern. It fails with path.ErrBadPattern on
// malformed element globs such as "[a".
func NewPathFilter(pattern string) (*PathFilter, error) {
	if pattern == "" {
		return &PathFilter{}, nil
	}
	elems := strings.Split(pattern, PathSeparator)
	for _, e := range elems {
		if e == "**" {
			continue
		}
		if _, err := gopath.Match(e, ""); err != nil {
			return nil, err
		}
	}
	return &PathFilter{pattern: elems}, nil
}

// MustPathFilter is like NewPathFilter but panics on a malformed pattern.
func MustPathFilter(pattern string) *PathFilter {
	f, err := NewPathFilter(pattern)
	if err != nil {
		panic(err)
	}
	return f
}

// Matches reports whether p, as a whole, is matched by the filter.
func (f *PathFilter) Matches(p Path) bool {
	if f == nil || f.pattern == nil {
		return true
	}
	return matchElems(f.pattern, p)
}

func matchElems(pattern []string, p Path) bool {
	if len(pattern) == 0 {
		return len(p) == 0
	}
	head := pattern[0]
	if head == "**" {
		for n := 1; n <= len(p); n++ {
			if matchElems(pattern[1:], p[n:]) {
				return true
			}
		}
		return false
	}
	if len(p) == 0 {
		return false
	}
	ok, _ := gopath.Match(head, p[0])
	return ok && matchElems(pattern[1:], p[1:])
}

// Filter returns the paths matched by f, keeping their order.
func (f *PathFilter) Filter(paths []Path) []Path {
	var out []Path
	for _, p := range paths {
		if f.Matches(p) {
			out = append(out, p)
		}
	}
	return out
}
