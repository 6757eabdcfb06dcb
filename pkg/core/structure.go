package core

import (
	"fmt"
	"slices"
	"sort"

	"github.com/leapstack-labs/leapcalc/pkg/units"
)

// Structure is an ordered tree with string keys. Leaves are units.Quantity
// values and inner nodes are *Structure. Keys keep their insertion order.
//
// A Structure is not safe for concurrent mutation; callers that share one
// across goroutines hand out clones.
type Structure struct {
	keys  []string
	items map[string]any
}

// NewStructure returns an empty structure.
func NewStructure() *Structure {
	return &Structure{items: make(map[string]any)}
}

// FromMap builds a structure from nested maps. Values must be units.Quantity,
// *Structure or map[string]any. Keys are inserted in sorted order.
func FromMap(m map[string]any) (*Structure, error) {
	s := NewStructure()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := m[k].(type) {
		case map[string]any:
			sub, err := FromMap(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			s.put(k, sub)
		case units.Quantity, *Structure:
			s.put(k, v)
		default:
			return nil, fmt.Errorf("%s: %w: %T", k, ErrInvalidValue, v)
		}
	}
	return s, nil
}

// Put appends or replaces a direct child and returns s for chaining.
// It panics when v is neither a units.Quantity nor a *Structure.
func (s *Structure) Put(key string, v any) *Structure {
	if !isNode(v) {
		panic(fmt.Sprintf("core: %v: %T", ErrInvalidValue, v))
	}
	s.put(key, v)
	return s
}

func (s *Structure) put(key string, v any) {
	if s.items == nil {
		s.items = make(map[string]any)
	}
	if _, ok := s.items[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.items[key] = v
}

func isNode(v any) bool {
	switch n := v.(type) {
	case units.Quantity:
		return true
	case *Structure:
		return n != nil
	}
	return false
}

// Len returns the number of direct children.
func (s *Structure) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Keys returns the direct child keys in insertion order.
func (s *Structure) Keys() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.keys)
}

// Get returns the node at path, either a units.Quantity or a *Structure.
// The empty path yields s itself.
func (s *Structure) Get(path Path) (any, error) {
	var node any = s
	for i, key := range path {
		sub, ok := node.(*Structure)
		if !ok {
			return nil, &KeyError{Path: path[:i].Clone(), Err: ErrNotAMapping}
		}
		child, ok := sub.items[key]
		if !ok {
			return nil, &KeyError{Path: path[:i+1].Clone(), Err: ErrKeyNotFound}
		}
		node = child
	}
	return node, nil
}

// Quantity returns the leaf at path.
func (s *Structure) Quantity(path Path) (units.Quantity, error) {
	node, err := s.Get(path)
	if err != nil {
		return units.Quantity{}, err
	}
	q, ok := node.(units.Quantity)
	if !ok {
		return units.Quantity{}, &KeyError{Path: path.Clone(), Err: fmt.Errorf("%w: not a quantity", ErrInvalidValue)}
	}
	return q, nil
}

// Sub returns the inner node at path.
func (s *Structure) Sub(path Path) (*Structure, error) {
	node, err := s.Get(path)
	if err != nil {
		return nil, err
	}
	sub, ok := node.(*Structure)
	if !ok {
		return nil, &KeyError{Path: path.Clone(), Err: ErrNotAMapping}
	}
	return sub, nil
}

// Set writes value at path. The parent of path must exist and be a mapping;
// the final key is replaced in place or appended.
func (s *Structure) Set(path Path, value any) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}
	if !isNode(value) {
		return &KeyError{Path: path.Clone(), Err: fmt.Errorf("%w: %T", ErrInvalidValue, value)}
	}
	parent, err := s.Sub(path[:len(path)-1])
	if err != nil {
		return err
	}
	parent.put(path[len(path)-1], value)
	return nil
}

// Walk calls fn for every leaf, depth-first in insertion order. The path
// handed to fn is owned by the callee. Walk stops at the first error.
func (s *Structure) Walk(fn func(Path, units.Quantity) error) error {
	return s.walk(Path{}, fn)
}

func (s *Structure) walk(prefix Path, fn func(Path, units.Quantity) error) error {
	if s == nil {
		return nil
	}
	for _, k := range s.keys {
		p := prefix.Child(k)
		switch v := s.items[k].(type) {
		case units.Quantity:
			if err := fn(p, v); err != nil {
				return err
			}
		case *Structure:
			if err := v.walk(p, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// AllPaths returns the paths of all leaves, depth-first in insertion order.
func (s *Structure) AllPaths() []Path {
	var paths []Path
	_ = s.Walk(func(p Path, _ units.Quantity) error {
		paths = append(paths, p)
		return nil
	})
	return paths
}

// NumLeaves returns the number of quantities in the tree.
func (s *Structure) NumLeaves() int {
	n := 0
	_ = s.Walk(func(Path, units.Quantity) error {
		n++
		return nil
	})
	return n
}

// ConvertAllPossibleTo converts every leaf compatible with u to u and leaves
// the others untouched. It returns the number of converted leaves.
func (s *Structure) ConvertAllPossibleTo(u units.Unit) int {
	if s == nil {
		return 0
	}
	n := 0
	for _, k := range s.keys {
		switch v := s.items[k].(type) {
		case units.Quantity:
			if c, err := v.To(u); err == nil {
				s.items[k] = c
				n++
			}
		case *Structure:
			n += v.ConvertAllPossibleTo(u)
		}
	}
	return n
}

// Clone returns a deep copy of s.
func (s *Structure) Clone() *Structure {
	if s == nil {
		return nil
	}
	c := &Structure{
		keys:  slices.Clone(s.keys),
		items: make(map[string]any, len(s.items)),
	}
	for k, v := range s.items {
		if sub, ok := v.(*Structure); ok {
			v = sub.Clone()
		}
		c.items[k] = v
	}
	return c
}

// Equal reports whether both trees have the same keys in the same order and
// equal leaves.
func (s *Structure) Equal(o *Structure) bool {
	if s.Len() != o.Len() {
		return false
	}
	if s == nil || o == nil {
		return true
	}
	if !slices.Equal(s.keys, o.keys) {
		return false
	}
	for _, k := range s.keys {
		switch v := s.items[k].(type) {
		case units.Quantity:
			w, ok := o.items[k].(units.Quantity)
			if !ok || !v.Equal(w) {
				return false
			}
		case *Structure:
			w, ok := o.items[k].(*Structure)
			if !ok || !v.Equal(w) {
				return false
			}
		}
	}
	return true
}

// ToJSONable renders every leaf as text that ParseQuantity reads back,
// keeping the key order.
func (s *Structure) ToJSONable() *JSONTree {
	t := NewJSONTree()
	if s == nil {
		return t
	}
	for _, k := range s.keys {
		switch v := s.items[k].(type) {
		case units.Quantity:
			t.SetLeaf(k, v.String())
		case *Structure:
			t.SetTree(k, v.ToJSONable())
		}
	}
	return t
}

// FromJSONable parses a tree produced by ToJSONable. Plain numbers without a
// unit become dimensionless quantities.
func FromJSONable(reg *units.Registry, t *JSONTree) (*Structure, error) {
	s := NewStructure()
	if t == nil {
		return s, nil
	}
	for _, k := range t.Keys() {
		if sub, ok := t.Tree(k); ok {
			child, err := FromJSONable(reg, sub)
			if err != nil {
				return nil, fmt.Errorf("%s.%w", k, err)
			}
			s.put(k, child)
			continue
		}
		leaf, _ := t.Leaf(k)
		q, err := reg.ParseQuantity(leaf)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		s.put(k, q)
	}
	return s, nil
}
