package leveldb

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/df-mc/worldcore/server/world"
	"github.com/df-mc/worldcore/server/world/chunkstore"
)

func openTestBackend(t *testing.T, dir string) *Backend {
	t.Helper()
	b, err := Config{
		Log: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Dir: dir,
	}.Open()
	if err != nil {
		t.Fatalf("Open returned %v, want nil", err)
	}
	return b
}

func TestChunkKey(t *testing.T) {
	t.Parallel()
	tests := map[world.ChunkPos]string{
		{0, 0}:     "w/c/0/0",
		{-12, 340}: "w/c/-12/340",
	}
	for pos, want := range tests {
		if got := string(chunkKey("w", pos)); got != want {
			t.Fatalf("chunkKey(%v) returned %v, want %v", pos, got, want)
		}
	}
}

func TestPersistAcrossReopen(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "db")

	c := &world.Chunk{}
	c.SetBlock(15, 127, 15, 3)
	c.RecalculateHeightMap()
	lvl := world.Level{Name: "w", Spawn: world.BlockPos{0, 64, 0}, Time: 6000}

	b := openTestBackend(t, dir)
	if err := b.StoreChunk("w", world.ChunkPos{-1, 5}, c); err != nil {
		t.Fatalf("StoreChunk returned %v, want nil", err)
	}
	if err := b.SaveLevel("w", lvl); err != nil {
		t.Fatalf("SaveLevel returned %v, want nil", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close returned %v, want nil", err)
	}

	b = openTestBackend(t, dir)
	defer b.Close()
	got, err := b.LoadChunk("w", world.ChunkPos{-1, 5})
	if err != nil {
		t.Fatalf("LoadChunk returned %v, want nil", err)
	}
	if !got.Equal(c) {
		t.Fatalf("loaded chunk differs from stored chunk")
	}
	gotLvl, err := b.LoadLevel("w")
	if err != nil || gotLvl != lvl {
		t.Fatalf("LoadLevel returned %+v, %v, want %+v", gotLvl, err, lvl)
	}
	if _, err := b.LoadChunk("other", world.ChunkPos{-1, 5}); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("LoadChunk of other world returned %v, want fs.ErrNotExist", err)
	}
}

func TestStoreFlushesInBatch(t *testing.T) {
	t.Parallel()
	b := openTestBackend(t, filepath.Join(t.TempDir(), "db"))
	s := chunkstore.Config{Log: b.log, Backend: b}.New()
	if err := s.Open("w", world.DefaultExtent(), nil); err != nil {
		t.Fatalf("Open returned %v, want nil", err)
	}
	for x := range int32(4) {
		c := &world.Chunk{}
		c.SetBlock(0, 0, 0, byte(x+1))
		if err := s.Set("w", world.ChunkPos{x, x}, c); err != nil {
			t.Fatalf("Set returned %v, want nil", err)
		}
	}
	if err := s.Flush("w"); err != nil {
		t.Fatalf("Flush returned %v, want nil", err)
	}
	for x := range int32(4) {
		c, err := b.LoadChunk("w", world.ChunkPos{x, x})
		if err != nil {
			t.Fatalf("LoadChunk returned %v, want nil", err)
		}
		if c.Block(0, 0, 0) != byte(x+1) {
			t.Fatalf("chunk %d holds block %d, want %d", x, c.Block(0, 0, 0), x+1)
		}
	}
	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown returned %v, want nil", err)
	}
}
