package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
)

// JSONTree is the serialized form of a Structure: nested JSON objects whose
// leaves are strings such as "5 m^3/h". Unlike map[string]any it keeps key
// order across a marshal round trip.
type JSONTree struct {
	keys  []string
	nodes map[string]jsonNode
}

type jsonNode struct {
	leaf string
	tree *JSONTree
}

// NewJSONTree returns an empty tree.
func NewJSONTree() *JSONTree {
	return &JSONTree{nodes: make(map[string]jsonNode)}
}

func (t *JSONTree) set(key string, n jsonNode) {
	if t.nodes == nil {
		t.nodes = make(map[string]jsonNode)
	}
	if _, ok := t.nodes[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.nodes[key] = n
}

// SetLeaf stores a text leaf.
func (t *JSONTree) SetLeaf(key, value string) { t.set(key, jsonNode{leaf: value}) }

// SetTree stores a subtree.
func (t *JSONTree) SetTree(key string, sub *JSONTree) { t.set(key, jsonNode{tree: sub}) }

// Keys returns the keys in document order.
func (t *JSONTree) Keys() []string {
	if t == nil {
		return nil
	}
	return slices.Clone(t.keys)
}

// Leaf returns the text leaf stored under key.
func (t *JSONTree) Leaf(key string) (string, bool) {
	n, ok := t.nodes[key]
	if !ok || n.tree != nil {
		return "", false
	}
	return n.leaf, true
}

// Tree returns the subtree stored under key.
func (t *JSONTree) Tree(key string) (*JSONTree, bool) {
	n, ok := t.nodes[key]
	if !ok || n.tree == nil {
		return nil, false
	}
	return n.tree, true
}

// Lookup follows path and returns the leaf found there.
func (t *JSONTree) Lookup(path Path) (string, bool) {
	cur := t
	for i, k := range path {
		if cur == nil {
			return "", false
		}
		if i == len(path)-1 {
			return cur.Leaf(k)
		}
		cur, _ = cur.Tree(k)
	}
	return "", false
}

// MarshalJSON writes the tree with keys in insertion order.
func (t *JSONTree) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *JSONTree) encode(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	if t != nil {
		for i, k := range t.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			n := t.nodes[k]
			if n.tree != nil {
				if err := n.tree.encode(buf); err != nil {
					return err
				}
				continue
			}
			leaf, err := json.Marshal(n.leaf)
			if err != nil {
				return err
			}
			buf.Write(leaf)
		}
	}
	buf.WriteByte('}')
	return nil
}

// UnmarshalJSON reads nested objects keeping document order. Numeric leaves
// are accepted and stored in their literal form.
func (t *JSONTree) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("json tree: expected object, got %v", tok)
	}
	*t = JSONTree{nodes: make(map[string]jsonNode)}
	return t.decodeObject(dec)
}

func (t *JSONTree) decodeObject(dec *json.Decoder) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("json tree: expected key, got %v", tok)
		}
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		switch v := tok.(type) {
		case json.Delim:
			if v != '{' {
				return fmt.Errorf("json tree: %s: unexpected %v", key, v)
			}
			sub := NewJSONTree()
			if err := sub.decodeObject(dec); err != nil {
				return err
			}
			t.SetTree(key, sub)
		case string:
			t.SetLeaf(key, v)
		case json.Number:
			t.SetLeaf(key, v.String())
		case float64:
			t.SetLeaf(key, strconv.FormatFloat(v, 'g', -1, 64))
		default:
			return fmt.Errorf("json tree: %s: unsupported value %v", key, v)
		}
	}
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '}' {
		return errors.New("json tree: unterminated object")
	}
	return nil
}
