package core

import (
	"slices"
	"strings"
)

// PathSeparator joins path elements in the textual form of a Path.
const PathSeparator = "."

// Path addresses a node in a Structure as a sequence of keys.
type Path []string

// ParsePath splits a dotted path. The empty string is the root path.
func ParsePath(s string) Path {
	if s == "" {
		return Path{}
	}
	return strings.Split(s, PathSeparator)
}

// String returns the dotted form, e.g. "Heater.Shell.U".
func (p Path) String() string {
	return strings.Join(p, PathSeparator)
}

// Equal reports whether both paths have the same elements.
func (p Path) Equal(o Path) bool {
	return slices.Equal(p, o)
}

// HasPrefix reports whether prefix addresses p itself or one of its ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	return len(prefix) <= len(p) && slices.Equal(p[:len(prefix)], prefix)
}

// Clone returns a copy that does not share storage with p.
func (p Path) Clone() Path {
	return slices.Clone(p)
}

// Child returns p extended by key, never aliasing p's backing array.
func (p Path) Child(key string) Path {
	c := make(Path, len(p)+1)
	copy(c, p)
	c[len(p)] = key
	return c
}
