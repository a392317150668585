package nbt

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// ReadFile reads and parses the NBT file at path. Filesystem failures are
// returned as *IOError; malformed content wraps ErrFormat.
func ReadFile(path string) (*Node, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	n, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// WriteFile encodes n gzip-compressed and writes it to path, creating parent
// directories as needed. The file is written to a temporary sibling first and
// renamed into place, so readers never observe a partial file.
func WriteFile(path string, n *Node) error {
	data, err := SerializeCompressed(n)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return &IOError{Op: "close", Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// Dump writes a human-readable, indented rendering of the tree n to w. Arrays
// longer than 16 elements are abbreviated.
func Dump(w io.Writer, n *Node) error {
	var sb strings.Builder
	dump(&sb, n, 0)
	_, err := io.WriteString(w, sb.String())
	return err
}

func dump(sb *strings.Builder, n *Node, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(n.kind.String())
	if n.name != "" {
		fmt.Fprintf(sb, "(%q)", n.name)
	}
	sb.WriteString(": ")
	switch n.kind {
	case TagByte:
		v, _ := n.AsByte()
		fmt.Fprintf(sb, "%d\n", v)
	case TagShort:
		v, _ := n.AsShort()
		fmt.Fprintf(sb, "%d\n", v)
	case TagInt:
		v, _ := n.AsInt()
		fmt.Fprintf(sb, "%d\n", v)
	case TagLong:
		v, _ := n.AsLong()
		fmt.Fprintf(sb, "%d\n", v)
	case TagFloat:
		fmt.Fprintf(sb, "%g\n", math.Float32frombits(uint32(n.num)))
	case TagDouble:
		fmt.Fprintf(sb, "%g\n", math.Float64frombits(n.num))
	case TagString:
		fmt.Fprintf(sb, "%q\n", n.raw)
	case TagByteArray:
		fmt.Fprintf(sb, "[%d bytes] %s\n", len(n.raw), abbreviate(n.raw))
	case TagIntArray:
		fmt.Fprintf(sb, "[%d ints] %s\n", len(n.ints), abbreviate(n.ints))
	case TagLongArray:
		fmt.Fprintf(sb, "[%d longs] %s\n", len(n.longs), abbreviate(n.longs))
	case TagList:
		fmt.Fprintf(sb, "%d entries of %v\n", len(n.children), n.elem)
		for _, c := range n.children {
			dump(sb, c, depth+1)
		}
	case TagCompound:
		fmt.Fprintf(sb, "%d entries\n", len(n.children))
		for _, c := range n.children {
			dump(sb, c, depth+1)
		}
	}
}

func abbreviate[T any](s []T) string {
	if len(s) <= 16 {
		return fmt.Sprint(s)
	}
	return strings.TrimSuffix(fmt.Sprint(s[:16]), "]") + " ...]"
}
