package nbtfile

import (
	"errors"
	"fmt"

	"github.com/df-mc/worldcore/server/nbt"
	"github.com/df-mc/worldcore/server/world"
)

// EncodeChunk returns the NBT tree of the chunk at pos as stored in a chunk
// file.
func EncodeChunk(pos world.ChunkPos, c *world.Chunk) *nbt.Node {
	return nbt.Compound("",
		nbt.Compound("Level",
			nbt.ByteArray("HeightMap", c.HeightMap[:]),
			nbt.ByteArray("Blocks", c.Blocks[:]),
			nbt.ByteArray("Data", c.Data[:]),
			nbt.ByteArray("BlockLight", c.BlockLight[:]),
			nbt.ByteArray("SkyLight", c.SkyLight[:]),
			nbt.Int("xPos", pos[0]),
			nbt.Int("zPos", pos[1]),
			nbt.Byte("TerrainPopulated", 1),
		),
	)
}

// DecodeChunk reads a chunk from its NBT tree. Every one of the five arrays
// must be present with its exact length; otherwise an error wrapping
// nbt.ErrFormat is returned and no chunk is produced. If the tree records a
// position, it must match pos.
func DecodeChunk(pos world.ChunkPos, n *nbt.Node) (*world.Chunk, error) {
	c := new(world.Chunk)
	arrays := []struct {
		path string
		dst  []byte
	}{
		{".Level.HeightMap", c.HeightMap[:]},
		{".Level.Blocks", c.Blocks[:]},
		{".Level.Data", c.Data[:]},
		{".Level.BlockLight", c.BlockLight[:]},
		{".Level.SkyLight", c.SkyLight[:]},
	}
	for _, a := range arrays {
		b, err := n.FindByteArray(a.path)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %v: %s: %w", nbt.ErrFormat, pos, a.path, err)
		}
		if len(b) != len(a.dst) {
			return nil, fmt.Errorf("%w: chunk %v: %s has length %d, want %d", nbt.ErrFormat, pos, a.path, len(b), len(a.dst))
		}
		copy(a.dst, b)
	}
	for i, path := range [2]string{".Level.xPos", ".Level.zPos"} {
		v, err := n.FindInt(path)
		if errors.Is(err, nbt.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %v: %s: %w", nbt.ErrFormat, pos, path, err)
		}
		if v != pos[i] {
			return nil, fmt.Errorf("%w: chunk %v: stored %s is %d", nbt.ErrFormat, pos, path, v)
		}
	}
	return c, nil
}

// EncodeLevel returns the NBT tree of a level.dat file holding l.
func EncodeLevel(l world.Level) *nbt.Node {
	return nbt.Compound("",
		nbt.Compound("Data",
			nbt.Int("SpawnX", int32(l.Spawn[0])),
			nbt.Int("SpawnY", int32(l.Spawn[1])),
			nbt.Int("SpawnZ", int32(l.Spawn[2])),
			nbt.Long("Time", l.Time),
			nbt.Long("LastPlayed", l.LastPlayed),
			nbt.String("LevelName", l.Name),
		),
	)
}

// DecodeLevel reads a level from the NBT tree of a level.dat file. The spawn
// and time are required; LastPlayed and LevelName are optional.
func DecodeLevel(n *nbt.Node) (world.Level, error) {
	var (
		l     world.Level
		spawn [3]int32
	)
	for i, path := range [3]string{".Data.SpawnX", ".Data.SpawnY", ".Data.SpawnZ"} {
		v, err := n.FindInt(path)
		if err != nil {
			return world.Level{}, fmt.Errorf("level %s: %w", path, err)
		}
		spawn[i] = v
	}
	t, err := n.FindLong(".Data.Time")
	if err != nil {
		return world.Level{}, fmt.Errorf("level .Data.Time: %w", err)
	}
	l.Spawn = world.BlockPos{int(spawn[0]), int(spawn[1]), int(spawn[2])}
	l.Time = t

	if v, err := n.FindLong(".Data.LastPlayed"); err == nil {
		l.LastPlayed = v
	}
	if node, err := n.Find(".Data.LevelName"); err == nil {
		if s, err := node.AsString(); err == nil {
			l.Name = s
		}
	}
	return l, nil
}
