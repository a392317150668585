package nbt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"
)

// maxDepth limits the nesting of List and Compound tags, so that hostile input
// cannot exhaust the stack.
const maxDepth = 512

// Parse decodes a single named root tag from b. Gzip-wrapped input is
// decompressed transparently. Bytes following the root tag are rejected.
func Parse(b []byte) (*Node, error) {
	data, err := Decompress(b)
	if err != nil {
		return nil, err
	}
	d := &decoder{buf: data}
	n, err := d.named()
	if err != nil {
		return nil, err
	}
	if n.kind == TagEnd {
		return nil, fmt.Errorf("%w: root tag is TAG_End", ErrFormat)
	}
	if d.off != len(d.buf) {
		return nil, fmt.Errorf("%w: %d bytes trailing root tag", ErrFormat, len(d.buf)-d.off)
	}
	return n, nil
}

// Decode reads r to completion and parses the result as with Parse.
func Decode(r io.Reader) (*Node, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, &IOError{Op: "read", Path: "stream", Err: err}
	}
	return Parse(b)
}

// Compressed reports if b starts with the gzip magic number.
func Compressed(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

// Decompress returns the gzip-decompressed contents of b, or b itself if it is
// not compressed.
func Decompress(b []byte) ([]byte, error) {
	if !Compressed(b) {
		return b, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip header: %v", ErrFormat, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip stream: %v", ErrFormat, err)
	}
	return data, nil
}

type decoder struct {
	buf   []byte
	off   int
	depth int
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || d.remaining() < n {
		return nil, fmt.Errorf("%w: unexpected end of data at offset %d", ErrFormat, d.off)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) u8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// length reads a signed 32-bit element count and checks that at least size
// bytes per element remain in the buffer.
func (d *decoder) length(size int) (int, error) {
	v, err := d.u32()
	if err != nil {
		return 0, err
	}
	l := int32(v)
	if l < 0 {
		return 0, fmt.Errorf("%w: negative length %d at offset %d", ErrFormat, l, d.off-4)
	}
	if size > 0 && int64(l)*int64(size) > int64(d.remaining()) {
		return 0, fmt.Errorf("%w: length %d exceeds remaining %d bytes", ErrFormat, l, d.remaining())
	}
	return int(l), nil
}

func (d *decoder) str() ([]byte, error) {
	l, err := d.u16()
	if err != nil {
		return nil, err
	}
	b, err := d.take(int(l))
	if err != nil {
		return nil, err
	}
	return bytes.Clone(b), nil
}

func (d *decoder) named() (*Node, error) {
	k, err := d.u8()
	if err != nil {
		return nil, err
	}
	kind := Kind(k)
	if kind == TagEnd {
		return &Node{kind: TagEnd}, nil
	}
	if !kind.valid() {
		return nil, fmt.Errorf("%w: unknown tag kind %d at offset %d", ErrFormat, k, d.off-1)
	}
	name, err := d.str()
	if err != nil {
		return nil, err
	}
	n := &Node{kind: kind, name: string(name)}
	if err := d.payload(n); err != nil {
		return nil, err
	}
	return n, nil
}

func (d *decoder) payload(n *Node) (err error) {
	switch n.kind {
	case TagByte:
		var v uint8
		v, err = d.u8()
		n.num = uint64(v)
	case TagShort:
		var v uint16
		v, err = d.u16()
		n.num = uint64(v)
	case TagInt, TagFloat:
		var v uint32
		v, err = d.u32()
		n.num = uint64(v)
	case TagLong, TagDouble:
		n.num, err = d.u64()
	case TagByteArray:
		var l int
		if l, err = d.length(1); err != nil {
			return err
		}
		var b []byte
		if b, err = d.take(l); err != nil {
			return err
		}
		n.raw = bytes.Clone(b)
	case TagString:
		n.raw, err = d.str()
	case TagIntArray:
		var l int
		if l, err = d.length(4); err != nil {
			return err
		}
		n.ints = make([]int32, l)
		for i := range n.ints {
			v, _ := d.u32()
			n.ints[i] = int32(v)
		}
	case TagLongArray:
		var l int
		if l, err = d.length(8); err != nil {
			return err
		}
		n.longs = make([]int64, l)
		for i := range n.longs {
			v, _ := d.u64()
			n.longs[i] = int64(v)
		}
	case TagList:
		return d.list(n)
	case TagCompound:
		return d.compound(n)
	default:
		return fmt.Errorf("%w: unexpected tag kind %v", ErrFormat, n.kind)
	}
	return err
}

func (d *decoder) enter() error {
	d.depth++
	if d.depth > maxDepth {
		return fmt.Errorf("%w: nesting deeper than %d", ErrFormat, maxDepth)
	}
	return nil
}

func (d *decoder) list(n *Node) error {
	k, err := d.u8()
	if err != nil {
		return err
	}
	elem := Kind(k)
	if !elem.valid() {
		return fmt.Errorf("%w: unknown list element kind %d", ErrFormat, k)
	}
	// Every element kind but End occupies at least one byte.
	l, err := d.length(1)
	if err != nil {
		return err
	}
	if elem == TagEnd && l > 0 {
		return fmt.Errorf("%w: list of TAG_End with length %d", ErrFormat, l)
	}
	if err := d.enter(); err != nil {
		return err
	}
	n.elem = elem
	n.children = make([]*Node, 0, min(l, math.MaxUint16))
	for range l {
		c := &Node{kind: elem}
		if err := d.payload(c); err != nil {
			return err
		}
		n.children = append(n.children, c)
	}
	d.depth--
	return nil
}

func (d *decoder) compound(n *Node) error {
	if err := d.enter(); err != nil {
		return err
	}
	for {
		c, err := d.named()
		if err != nil {
			return err
		}
		if c.kind == TagEnd {
			break
		}
		n.children = append(n.children, c)
	}
	d.depth--
	return nil
}
