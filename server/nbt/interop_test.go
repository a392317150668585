package nbt

import (
	"testing"

	gnbt "github.com/sandertv/gophertunnel/minecraft/nbt"
)

type interopLevel struct {
	Data struct {
		SpawnX    int32  `nbt:"SpawnX"`
		SpawnY    int32  `nbt:"SpawnY"`
		SpawnZ    int32  `nbt:"SpawnZ"`
		Time      int64  `nbt:"Time"`
		LevelName string `nbt:"LevelName"`
	} `nbt:"Data"`
}

// TestInteropDecode checks that big-endian streams produced by an independent
// encoder parse to the values they were built from.
func TestInteropDecode(t *testing.T) {
	t.Parallel()

	var lvl interopLevel
	lvl.Data.SpawnX, lvl.Data.SpawnY, lvl.Data.SpawnZ = -32, 70, 1025
	lvl.Data.Time = 48000 + 6000
	lvl.Data.LevelName = "world"

	b, err := gnbt.MarshalEncoding(lvl, gnbt.BigEndian)
	if err != nil {
		t.Fatalf("MarshalEncoding returned error: %v", err)
	}
	n, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if x, err := n.FindInt(".Data.SpawnX"); err != nil || x != -32 {
		t.Fatalf("SpawnX = %v, %v, want -32, nil", x, err)
	}
	if z, err := n.FindInt(".Data.SpawnZ"); err != nil || z != 1025 {
		t.Fatalf("SpawnZ = %v, %v, want 1025, nil", z, err)
	}
	if tm, err := n.FindLong(".Data.Time"); err != nil || tm != 54000 {
		t.Fatalf("Time = %v, %v, want 54000, nil", tm, err)
	}
	out, err := Serialize(n)
	if err != nil {
		t.Fatalf("Serialize returned error: %v", err)
	}
	if string(out) != string(b) {
		t.Fatalf("re-encoded stream differs from the independent encoder's output")
	}
}

// TestInteropEncode checks that an independent decoder reads trees produced by
// Serialize.
func TestInteropEncode(t *testing.T) {
	t.Parallel()

	tree := Compound("",
		Compound("Data",
			Int("SpawnX", 8),
			Int("SpawnY", 64),
			Int("SpawnZ", -8),
			Long("Time", 12345),
			String("LevelName", "nether"),
		),
	)
	b, err := Serialize(tree)
	if err != nil {
		t.Fatalf("Serialize returned error: %v", err)
	}
	var lvl interopLevel
	if err := gnbt.UnmarshalEncoding(b, &lvl, gnbt.BigEndian); err != nil {
		t.Fatalf("UnmarshalEncoding returned error: %v", err)
	}
	if lvl.Data.SpawnX != 8 || lvl.Data.SpawnY != 64 || lvl.Data.SpawnZ != -8 || lvl.Data.Time != 12345 || lvl.Data.LevelName != "nether" {
		t.Fatalf("UnmarshalEncoding decoded %+v", lvl.Data)
	}
}
