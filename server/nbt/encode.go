package nbt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"
)

// Serialize encodes n as an uncompressed NBT stream. For any b accepted by
// Parse without gzip wrapping, Serialize(Parse(b)) reproduces b exactly.
func Serialize(n *Node) ([]byte, error) {
	if n == nil || n.kind == TagEnd {
		return nil, fmt.Errorf("%w: root tag must not be empty", ErrFormat)
	}
	e := &encoder{buf: make([]byte, 0, 256)}
	if err := e.named(n); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// SerializeCompressed encodes n and wraps the result in a gzip stream, which is
// the form NBT takes on disk.
func SerializeCompressed(n *Node) ([]byte, error) {
	data, err := Serialize(n)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w, _ := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return buf.Bytes(), nil
}

// Encode writes n to w as an uncompressed NBT stream.
func Encode(w io.Writer, n *Node) error {
	data, err := Serialize(n)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

type encoder struct {
	buf   []byte
	depth int
}

func (e *encoder) str(b []byte) error {
	if len(b) > math.MaxUint16 {
		return fmt.Errorf("%w: string of %d bytes exceeds %d", ErrFormat, len(b), math.MaxUint16)
	}
	e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(len(b)))
	e.buf = append(e.buf, b...)
	return nil
}

func (e *encoder) length(l int) error {
	if l > math.MaxInt32 {
		return fmt.Errorf("%w: length %d exceeds %d", ErrFormat, l, math.MaxInt32)
	}
	e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(l))
	return nil
}

func (e *encoder) named(n *Node) error {
	if !n.kind.valid() || n.kind == TagEnd {
		return fmt.Errorf("%w: cannot encode %v as a named tag", ErrFormat, n.kind)
	}
	e.buf = append(e.buf, byte(n.kind))
	if err := e.str([]byte(n.name)); err != nil {
		return err
	}
	return e.payload(n)
}

func (e *encoder) payload(n *Node) error {
	switch n.kind {
	case TagByte:
		e.buf = append(e.buf, uint8(n.num))
	case TagShort:
		e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(n.num))
	case TagInt, TagFloat:
		e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(n.num))
	case TagLong, TagDouble:
		e.buf = binary.BigEndian.AppendUint64(e.buf, n.num)
	case TagByteArray:
		if err := e.length(len(n.raw)); err != nil {
			return err
		}
		e.buf = append(e.buf, n.raw...)
	case TagString:
		return e.str(n.raw)
	case TagIntArray:
		if err := e.length(len(n.ints)); err != nil {
			return err
		}
		for _, v := range n.ints {
			e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(v))
		}
	case TagLongArray:
		if err := e.length(len(n.longs)); err != nil {
			return err
		}
		for _, v := range n.longs {
			e.buf = binary.BigEndian.AppendUint64(e.buf, uint64(v))
		}
	case TagList:
		return e.list(n)
	case TagCompound:
		return e.compound(n)
	default:
		return fmt.Errorf("%w: cannot encode %v", ErrFormat, n.kind)
	}
	return nil
}

func (e *encoder) enter() error {
	e.depth++
	if e.depth > maxDepth {
		return fmt.Errorf("%w: nesting deeper than %d", ErrFormat, maxDepth)
	}
	return nil
}

func (e *encoder) list(n *Node) error {
	if !n.elem.valid() {
		return fmt.Errorf("%w: unknown list element kind %d", ErrFormat, byte(n.elem))
	}
	if n.elem == TagEnd && len(n.children) > 0 {
		return fmt.Errorf("%w: list of TAG_End with %d elements", ErrFormat, len(n.children))
	}
	if err := e.enter(); err != nil {
		return err
	}
	e.buf = append(e.buf, byte(n.elem))
	if err := e.length(len(n.children)); err != nil {
		return err
	}
	for i, c := range n.children {
		if c.kind != n.elem {
			return fmt.Errorf("%w: list %q element %d is %v, want %v", ErrFormat, n.name, i, c.kind, n.elem)
		}
		if err := e.payload(c); err != nil {
			return err
		}
	}
	e.depth--
	return nil
}

func (e *encoder) compound(n *Node) error {
	if err := e.enter(); err != nil {
		return err
	}
	for _, c := range n.children {
		if err := e.named(c); err != nil {
			return err
		}
	}
	e.buf = append(e.buf, byte(TagEnd))
	e.depth--
	return nil
}
