package nbt

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
)

// Find walks nested Compound tags from n following a dot-separated path such as
// ".Data.SpawnX". The leading dot denotes n itself and may be omitted; an empty
// path or "." returns n. An absent key, or a segment applied to a node that is
// not a Compound, results in ErrNotFound.
func (n *Node) Find(path string) (*Node, error) {
	rest := strings.TrimPrefix(path, ".")
	if rest == "" {
		return n, nil
	}
	cur := n
	for seg := range strings.SplitSeq(rest, ".") {
		if cur.kind != TagCompound {
			return nil, fmt.Errorf("%w: %s: %q is %v, not a compound", ErrNotFound, path, cur.name, cur.kind)
		}
		child, ok := cur.Child(seg)
		if !ok {
			return nil, fmt.Errorf("%w: %s: no tag %q", ErrNotFound, path, seg)
		}
		cur = child
	}
	return cur, nil
}

// FindInt looks up path as with Find and returns the value of the TAG_Int found.
func (n *Node) FindInt(path string) (int32, error) {
	c, err := n.Find(path)
	if err != nil {
		return 0, err
	}
	return c.AsInt()
}

// FindLong looks up path as with Find and returns the value of the TAG_Long
// found.
func (n *Node) FindLong(path string) (int64, error) {
	c, err := n.Find(path)
	if err != nil {
		return 0, err
	}
	return c.AsLong()
}

// FindByteArray looks up path as with Find and returns the payload of the
// TAG_ByteArray found.
func (n *Node) FindByteArray(path string) ([]byte, error) {
	c, err := n.Find(path)
	if err != nil {
		return nil, err
	}
	return c.AsByteArray()
}

// Equal reports whether a and b are structurally equal trees: same kinds, names,
// payload bits and children in the same order.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.kind != b.kind || a.name != b.name || a.num != b.num {
		return false
	}
	if !bytes.Equal(a.raw, b.raw) || !slices.Equal(a.ints, b.ints) || !slices.Equal(a.longs, b.longs) {
		return false
	}
	if a.kind == TagList && a.elem != b.elem {
		return false
	}
	return slices.EqualFunc(a.children, b.children, Equal)
}
