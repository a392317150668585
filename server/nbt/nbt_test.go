package nbt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io/fs"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// helloWorld is the canonical "hello world" NBT example: a compound named
// "hello world" holding a single string tag.
func helloWorld() []byte {
	var b []byte
	b = append(b, byte(TagCompound), 0, 11)
	b = append(b, "hello world"...)
	b = append(b, byte(TagString), 0, 4)
	b = append(b, "name"...)
	b = append(b, 0, 9)
	b = append(b, "Bananrama"...)
	return append(b, byte(TagEnd))
}

func fullTree() *Node {
	return Compound("",
		Byte("byte", -5),
		Short("short", math.MinInt16),
		Int("int", 123456789),
		Long("long", math.MaxInt64),
		Float("float", 0.5),
		Double("double", math.Pi),
		ByteArray("bytes", []byte{0, 1, 2, 0xff}),
		String("string", "héllo"),
		List("list", TagInt, Int("", 1), Int("", 2), Int("", 3)),
		List("empty", TagEnd),
		List("nested", TagCompound,
			Compound("", String("id", "a")),
			Compound("", String("id", "b"), List("inner", TagList, List("", TagByte, Byte("", 1)))),
		),
		IntArray("ints", []int32{-1, 0, 1}),
		LongArray("longs", []int64{math.MinInt64, 7}),
		Compound("Data", Int("SpawnX", 10), Int("SpawnY", 64), Int("SpawnZ", -10), Long("Time", 1200)),
	)
}

func gzipped(t *testing.T, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestParseHelloWorld(t *testing.T) {
	t.Parallel()

	n, err := Parse(helloWorld())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if n.Kind() != TagCompound || n.Name() != "hello world" {
		t.Fatalf("Parse returned %v %q, want TAG_Compound \"hello world\"", n.Kind(), n.Name())
	}
	name, err := n.Find(".name")
	if err != nil {
		t.Fatalf("Find(.name) returned error: %v", err)
	}
	if s, _ := name.AsString(); s != "Bananrama" {
		t.Fatalf("name = %q, want %q", s, "Bananrama")
	}
}

func TestSerializeParseIsByteExact(t *testing.T) {
	t.Parallel()

	inputs := map[string][]byte{"hello world": helloWorld()}
	full, err := Serialize(fullTree())
	if err != nil {
		t.Fatalf("Serialize returned error: %v", err)
	}
	inputs["full"] = full

	// A float NaN with a payload and a string that is not valid UTF-8 must
	// both survive unchanged.
	odd := []byte{byte(TagCompound), 0, 0, byte(TagFloat), 0, 1, 'f'}
	odd = binary.BigEndian.AppendUint32(odd, 0x7fa00001)
	odd = append(odd, byte(TagString), 0, 1, 's', 0, 2, 0xc0, 0x80, byte(TagEnd))
	inputs["odd"] = odd

	for name, b := range inputs {
		n, err := Parse(b)
		if err != nil {
			t.Fatalf("%s: Parse returned error: %v", name, err)
		}
		out, err := Serialize(n)
		if err != nil {
			t.Fatalf("%s: Serialize returned error: %v", name, err)
		}
		if !bytes.Equal(out, b) {
			t.Fatalf("%s: Serialize(Parse(b)) differs from b:\n got %x\nwant %x", name, out, b)
		}
	}
}

func TestParseSerializeIsStructurallyEqual(t *testing.T) {
	t.Parallel()

	tree := fullTree()
	b, err := SerializeCompressed(tree)
	if err != nil {
		t.Fatalf("SerializeCompressed returned error: %v", err)
	}
	if !Compressed(b) {
		t.Fatalf("SerializeCompressed output lacks gzip magic")
	}
	got, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if !Equal(got, tree) {
		t.Fatalf("Parse(Serialize(t)) is not equal to t")
	}
}

func TestParseGzip(t *testing.T) {
	t.Parallel()

	raw, err := Parse(helloWorld())
	if err != nil {
		t.Fatalf("Parse raw: %v", err)
	}
	compressed, err := Parse(gzipped(t, helloWorld()))
	if err != nil {
		t.Fatalf("Parse gzip: %v", err)
	}
	if !Equal(raw, compressed) {
		t.Fatalf("gzip input parsed to a different tree")
	}
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	deep := make([]byte, 0, 3*(maxDepth+2))
	for range maxDepth + 1 {
		deep = append(deep, byte(TagCompound), 0, 0)
	}
	for range maxDepth + 1 {
		deep = append(deep, byte(TagEnd))
	}

	hw := helloWorld()
	cases := map[string][]byte{
		"empty":          nil,
		"end root":       {byte(TagEnd)},
		"unknown kind":   {42, 0, 0},
		"truncated":      hw[:len(hw)-4],
		"missing end":    hw[:len(hw)-1],
		"trailing data":  append(append([]byte{}, hw...), 0),
		"negative array": {byte(TagByteArray), 0, 0, 0xff, 0xff, 0xff, 0xff},
		"huge array":     {byte(TagIntArray), 0, 0, 0x7f, 0xff, 0xff, 0xff},
		"end list":       {byte(TagList), 0, 0, byte(TagEnd), 0, 0, 0, 3},
		"bad list kind":  {byte(TagList), 0, 0, 99, 0, 0, 0, 0},
		"bad gzip":       {0x1f, 0x8b, 0, 1, 2},
		"too deep":       deep,
	}
	for name, b := range cases {
		if _, err := Parse(b); !errors.Is(err, ErrFormat) {
			t.Fatalf("%s: Parse returned %v, want ErrFormat", name, err)
		}
	}
}

func TestSerializeInvalidTree(t *testing.T) {
	t.Parallel()

	bad := map[string]*Node{
		"nil":           nil,
		"mixed list":    {kind: TagList, elem: TagInt, children: []*Node{Int("", 1), Byte("", 1)}},
		"long name":     Int(strings.Repeat("x", math.MaxUint16+1), 1),
		"end list body": {kind: TagList, elem: TagEnd, children: []*Node{{kind: TagEnd}}},
	}
	for name, n := range bad {
		if _, err := Serialize(n); !errors.Is(err, ErrFormat) {
			t.Fatalf("%s: Serialize returned %v, want ErrFormat", name, err)
		}
	}
}

func TestFind(t *testing.T) {
	t.Parallel()

	tree := fullTree()
	if x, err := tree.FindInt(".Data.SpawnX"); err != nil || x != 10 {
		t.Fatalf("FindInt(.Data.SpawnX) = %v, %v, want 10, nil", x, err)
	}
	if v, err := tree.FindLong("Data.Time"); err != nil || v != 1200 {
		t.Fatalf("FindLong(Data.Time) = %v, %v, want 1200, nil", v, err)
	}
	if n, err := tree.Find("."); err != nil || n != tree {
		t.Fatalf("Find(.) did not return the root")
	}

	for _, path := range []string{".Data.Missing", ".Missing.SpawnX", ".int.child", ".list.0", ".Data..SpawnX"} {
		if _, err := tree.Find(path); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Find(%q) returned %v, want ErrNotFound", path, err)
		}
	}
}

func TestAccessorTypeMismatch(t *testing.T) {
	t.Parallel()

	n := Int("SpawnX", 3)
	if _, err := n.AsLong(); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("AsLong on TAG_Int returned %v, want ErrTypeMismatch", err)
	}
	if _, err := n.AsByteArray(); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("AsByteArray on TAG_Int returned %v, want ErrTypeMismatch", err)
	}
	if _, err := n.AsCompound(); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("AsCompound on TAG_Int returned %v, want ErrTypeMismatch", err)
	}
	if _, err := fullTree().FindLong(".Data.SpawnX"); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("FindLong on TAG_Int returned %v, want ErrTypeMismatch", err)
	}
	if err := List("l", TagInt).Append(Byte("", 1)); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("Append of mismatching kind returned %v, want ErrTypeMismatch", err)
	}
}

func TestCompoundSetRemove(t *testing.T) {
	t.Parallel()

	c := Compound("", Int("a", 1), Int("b", 2))
	if err := c.Set(Long("a", 5)); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	children, _ := c.AsCompound()
	if len(children) != 2 || children[0].Kind() != TagLong {
		t.Fatalf("Set did not replace child in place: %v", children)
	}
	if !c.Remove("b") || c.Remove("b") {
		t.Fatalf("Remove reported wrong result")
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestReadWriteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "world", "level.dat")
	if err := WriteFile(path, fullTree()); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	n, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile returned error: %v", err)
	}
	if !Equal(n, fullTree()) {
		t.Fatalf("ReadFile returned a different tree")
	}

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.dat"))
	var ioErr *IOError
	if !errors.As(err, &ioErr) || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("ReadFile of missing file returned %v, want *IOError wrapping fs.ErrNotExist", err)
	}
}

func TestDump(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Dump(&buf, fullTree()); err != nil {
		t.Fatalf("Dump returned error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`TAG_Int("SpawnX"): 10`, `TAG_Compound("Data"): 4 entries`, `TAG_ByteArray("bytes"): [4 bytes]`} {
		if !strings.Contains(out, want) {
			t.Fatalf("Dump output lacks %q:\n%s", want, out)
		}
	}
}
