package nbt

import (
	"fmt"
	"math"
	"slices"
)

// Kind is the type tag that precedes every value in an NBT stream.
type Kind byte

const (
	TagEnd Kind = iota
	TagByte
	TagShort
	TagInt
	TagLong
	TagFloat
	TagDouble
	TagByteArray
	TagString
	TagList
	TagCompound
	TagIntArray
	TagLongArray
)

var kindNames = [...]string{
	TagEnd:       "End",
	TagByte:      "Byte",
	TagShort:     "Short",
	TagInt:       "Int",
	TagLong:      "Long",
	TagFloat:     "Float",
	TagDouble:    "Double",
	TagByteArray: "ByteArray",
	TagString:    "String",
	TagList:      "List",
	TagCompound:  "Compound",
	TagIntArray:  "IntArray",
	TagLongArray: "LongArray",
}

// String ...
func (k Kind) String() string {
	if k.valid() {
		return "TAG_" + kindNames[k]
	}
	return fmt.Sprintf("TAG_Unknown(%d)", byte(k))
}

func (k Kind) valid() bool {
	return k <= TagLongArray
}

// Node is a single tag in an NBT tree. Compound and List nodes own their
// children; a tree is released as a unit once the root is unreachable.
//
// Scalar payloads are kept as raw bits and String payloads as raw bytes so that
// re-encoding a parsed tree reproduces its input exactly.
type Node struct {
	kind     Kind
	name     string
	num      uint64
	raw      []byte
	ints     []int32
	longs    []int64
	elem     Kind
	children []*Node
}

// Byte returns a new TAG_Byte node.
func Byte(name string, v int8) *Node {
	return &Node{kind: TagByte, name: name, num: uint64(uint8(v))}
}

// Short returns a new TAG_Short node.
func Short(name string, v int16) *Node {
	return &Node{kind: TagShort, name: name, num: uint64(uint16(v))}
}

// Int returns a new TAG_Int node.
func Int(name string, v int32) *Node {
	return &Node{kind: TagInt, name: name, num: uint64(uint32(v))}
}

// Long returns a new TAG_Long node.
func Long(name string, v int64) *Node {
	return &Node{kind: TagLong, name: name, num: uint64(v)}
}

// Float returns a new TAG_Float node.
func Float(name string, v float32) *Node {
	return &Node{kind: TagFloat, name: name, num: uint64(math.Float32bits(v))}
}

// Double returns a new TAG_Double node.
func Double(name string, v float64) *Node {
	return &Node{kind: TagDouble, name: name, num: math.Float64bits(v)}
}

// ByteArray returns a new TAG_ByteArray node holding a copy of b.
func ByteArray(name string, b []byte) *Node {
	return &Node{kind: TagByteArray, name: name, raw: slices.Clone(b)}
}

// String returns a new TAG_String node.
func String(name, s string) *Node {
	return &Node{kind: TagString, name: name, raw: []byte(s)}
}

// IntArray returns a new TAG_IntArray node holding a copy of v.
func IntArray(name string, v []int32) *Node {
	return &Node{kind: TagIntArray, name: name, ints: slices.Clone(v)}
}

// LongArray returns a new TAG_LongArray node holding a copy of v.
func LongArray(name string, v []int64) *Node {
	return &Node{kind: TagLongArray, name: name, longs: slices.Clone(v)}
}

// List returns a new TAG_List node with element kind elem. Items lose their
// names, as list elements are unnamed on the wire.
func List(name string, elem Kind, items ...*Node) *Node {
	n := &Node{kind: TagList, name: name, elem: elem, children: make([]*Node, 0, len(items))}
	for _, item := range items {
		item.name = ""
		n.children = append(n.children, item)
	}
	return n
}

// Compound returns a new TAG_Compound node holding children in order.
func Compound(name string, children ...*Node) *Node {
	return &Node{kind: TagCompound, name: name, children: slices.Clone(children)}
}

// Kind returns the tag kind of the node.
func (n *Node) Kind() Kind {
	return n.kind
}

// Name returns the name of the node. List elements and unnamed roots return an
// empty string.
func (n *Node) Name() string {
	return n.name
}

// ElemKind returns the element kind of a TAG_List node.
func (n *Node) ElemKind() (Kind, error) {
	if n.kind != TagList {
		return 0, n.mismatch(TagList)
	}
	return n.elem, nil
}

// Len returns the number of elements held by a List, Compound or array node,
// or the byte length of a String. Scalars have length 0.
func (n *Node) Len() int {
	switch n.kind {
	case TagList, TagCompound:
		return len(n.children)
	case TagByteArray, TagString:
		return len(n.raw)
	case TagIntArray:
		return len(n.ints)
	case TagLongArray:
		return len(n.longs)
	}
	return 0
}

// AsByte returns the value of a TAG_Byte node.
func (n *Node) AsByte() (int8, error) {
	if n.kind != TagByte {
		return 0, n.mismatch(TagByte)
	}
	return int8(uint8(n.num)), nil
}

// AsShort returns the value of a TAG_Short node.
func (n *Node) AsShort() (int16, error) {
	if n.kind != TagShort {
		return 0, n.mismatch(TagShort)
	}
	return int16(uint16(n.num)), nil
}

// AsInt returns the value of a TAG_Int node.
func (n *Node) AsInt() (int32, error) {
	if n.kind != TagInt {
		return 0, n.mismatch(TagInt)
	}
	return int32(uint32(n.num)), nil
}

// AsLong returns the value of a TAG_Long node.
func (n *Node) AsLong() (int64, error) {
	if n.kind != TagLong {
		return 0, n.mismatch(TagLong)
	}
	return int64(n.num), nil
}

// AsFloat returns the value of a TAG_Float node.
func (n *Node) AsFloat() (float32, error) {
	if n.kind != TagFloat {
		return 0, n.mismatch(TagFloat)
	}
	return math.Float32frombits(uint32(n.num)), nil
}

// AsDouble returns the value of a TAG_Double node.
func (n *Node) AsDouble() (float64, error) {
	if n.kind != TagDouble {
		return 0, n.mismatch(TagDouble)
	}
	return math.Float64frombits(n.num), nil
}

// AsByteArray returns the payload of a TAG_ByteArray node. The slice aliases the
// node and must not be retained past the next mutation of the tree.
func (n *Node) AsByteArray() ([]byte, error) {
	if n.kind != TagByteArray {
		return nil, n.mismatch(TagByteArray)
	}
	return n.raw, nil
}

// AsString returns the value of a TAG_String node.
func (n *Node) AsString() (string, error) {
	if n.kind != TagString {
		return "", n.mismatch(TagString)
	}
	return string(n.raw), nil
}

// AsIntArray returns the payload of a TAG_IntArray node.
func (n *Node) AsIntArray() ([]int32, error) {
	if n.kind != TagIntArray {
		return nil, n.mismatch(TagIntArray)
	}
	return n.ints, nil
}

// AsLongArray returns the payload of a TAG_LongArray node.
func (n *Node) AsLongArray() ([]int64, error) {
	if n.kind != TagLongArray {
		return nil, n.mismatch(TagLongArray)
	}
	return n.longs, nil
}

// AsList returns the elements of a TAG_List node.
func (n *Node) AsList() ([]*Node, error) {
	if n.kind != TagList {
		return nil, n.mismatch(TagList)
	}
	return n.children, nil
}

// AsCompound returns the children of a TAG_Compound node in stream order.
func (n *Node) AsCompound() ([]*Node, error) {
	if n.kind != TagCompound {
		return nil, n.mismatch(TagCompound)
	}
	return n.children, nil
}

// Child returns the direct child of a Compound node with the name passed. It
// returns false if n is not a Compound or holds no such child.
func (n *Node) Child(name string) (*Node, bool) {
	if n.kind != TagCompound {
		return nil, false
	}
	for _, c := range n.children {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}

// Set stores child in the Compound n, replacing an existing child with the
// same name in place.
func (n *Node) Set(child *Node) error {
	if n.kind != TagCompound {
		return n.mismatch(TagCompound)
	}
	for i, c := range n.children {
		if c.name == child.name {
			n.children[i] = child
			return nil
		}
	}
	n.children = append(n.children, child)
	return nil
}

// Remove deletes the child with the name passed from the Compound n. It
// reports whether a child was removed.
func (n *Node) Remove(name string) bool {
	if n.kind != TagCompound {
		return false
	}
	for i, c := range n.children {
		if c.name == name {
			n.children = slices.Delete(n.children, i, i+1)
			return true
		}
	}
	return false
}

// Append adds item to the List n. The kind of item must match the element kind
// of the list.
func (n *Node) Append(item *Node) error {
	if n.kind != TagList {
		return n.mismatch(TagList)
	}
	if item.kind != n.elem {
		return fmt.Errorf("%w: list of %v cannot hold %v", ErrTypeMismatch, n.elem, item.kind)
	}
	item.name = ""
	n.children = append(n.children, item)
	return nil
}

func (n *Node) mismatch(want Kind) error {
	if n.name == "" {
		return fmt.Errorf("%w: have %v, want %v", ErrTypeMismatch, n.kind, want)
	}
	return fmt.Errorf("%w: %q is %v, want %v", ErrTypeMismatch, n.name, n.kind, want)
}
