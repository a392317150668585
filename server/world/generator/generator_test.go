package generator

import (
	"testing"

	"github.com/df-mc/worldcore/server/world"
)

func TestNoiseDeterministic(t *testing.T) {
	t.Parallel()
	for _, dim := range []world.Dimension{world.Overworld, world.Nether, world.Sky} {
		a, b := NewNoise(dim, 42), NewNoise(dim, 42)
		for _, pos := range []world.ChunkPos{{0, 0}, {-3, 7}, {120, -249}} {
			var ca, cb world.Chunk
			if err := a.GenerateChunk(pos, &ca); err != nil {
				t.Fatalf("GenerateChunk returned %v, want nil", err)
			}
			if err := b.GenerateChunk(pos, &cb); err != nil {
				t.Fatalf("GenerateChunk returned %v, want nil", err)
			}
			if !ca.Equal(&cb) {
				t.Fatalf("%v chunk %v generated differently with equal seeds", dim, pos)
			}
		}
	}
}

func TestNoiseSeedsDiffer(t *testing.T) {
	t.Parallel()
	var a, b world.Chunk
	_ = NewNoise(world.Overworld, 1).GenerateChunk(world.ChunkPos{5, 5}, &a)
	_ = NewNoise(world.Overworld, 2).GenerateChunk(world.ChunkPos{5, 5}, &b)
	if a.Equal(&b) {
		t.Fatalf("chunks generated with different seeds are equal")
	}
}

func TestNoiseOverworldColumns(t *testing.T) {
	t.Parallel()
	var c world.Chunk
	g := NewNoise(world.Overworld, 7)
	if err := g.GenerateChunk(world.ChunkPos{-1, 2}, &c); err != nil {
		t.Fatalf("GenerateChunk returned %v, want nil", err)
	}
	for x := range world.ChunkWidth {
		for z := range world.ChunkWidth {
			if id := c.Block(x, 0, z); id != Bedrock {
				t.Fatalf("block at (%d, 0, %d) is %d, want bedrock", x, z, id)
			}
			h := int(c.Height(x, z))
			if h <= g.waterHeight {
				t.Fatalf("column (%d, %d) has height %d below the water surface", x, z, h)
			}
			if h < world.ChunkHeight && c.SkyLightAt(x, h, z) != 15 {
				t.Fatalf("no sky light above column (%d, %d)", x, z)
			}
		}
	}
}

func TestFlat(t *testing.T) {
	t.Parallel()
	var c world.Chunk
	if err := NewFlat(world.Overworld).GenerateChunk(world.ChunkPos{}, &c); err != nil {
		t.Fatalf("GenerateChunk returned %v, want nil", err)
	}
	want := []byte{Bedrock, Dirt, Dirt, Grass, Air}
	for y, id := range want {
		if got := c.Block(3, y, 9); got != id {
			t.Fatalf("block at y %d is %d, want %d", y, got, id)
		}
	}
	if h := c.Height(3, 9); h != 4 {
		t.Fatalf("Height returned %d, want 4", h)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	for name, ok := range map[string]bool{"": true, "flat": true, "Noise": true, "none": true, "amplified": false} {
		_, err := New(name, world.Overworld, 1)
		if (err == nil) != ok {
			t.Fatalf("New(%q) returned %v", name, err)
		}
	}
}

func TestSeed(t *testing.T) {
	t.Parallel()
	if got := Seed("world", 99); got != 99 {
		t.Fatalf("Seed with explicit seed returned %d, want 99", got)
	}
	if Seed("world", 0) == 0 || Seed("world", 0) != Seed("world", 0) {
		t.Fatalf("Seed derived from name is zero or unstable")
	}
	if Seed("world", 0) == Seed("nether", 0) {
		t.Fatalf("Seed derived equal seeds for different names")
	}
}
