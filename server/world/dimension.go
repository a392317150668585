package world

import (
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// Dimension is the kind of a world. It selects the default generator and is
// reported to clients on join.
type Dimension uint8

const (
	// Overworld is the normal dimension.
	Overworld Dimension = iota
	// Nether is the nether dimension.
	Nether
	// Sky is the sky dimension.
	Sky
)

// String ...
func (d Dimension) String() string {
	switch d {
	case Nether:
		return "nether"
	case Sky:
		return "sky"
	}
	return "overworld"
}

// ParseDimension parses a dimension name as written in configuration files.
func ParseDimension(name string) (Dimension, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "overworld", "normal", "world", "default":
		return Overworld, true
	case "nether", "hell":
		return Nether, true
	case "sky", "end", "the_end":
		return Sky, true
	}
	return 0, false
}

// BlockPos is the position of a block in a world.
type BlockPos [3]int

// X returns the X coordinate of the block position.
func (p BlockPos) X() int { return p[0] }

// Y returns the Y coordinate of the block position.
func (p BlockPos) Y() int { return p[1] }

// Z returns the Z coordinate of the block position.
func (p BlockPos) Z() int { return p[2] }

// Vec3Centre returns the centre of the block as a vector.
func (p BlockPos) Vec3Centre() mgl64.Vec3 {
	return mgl64.Vec3{float64(p[0]) + 0.5, float64(p[1]), float64(p[2]) + 0.5}
}

// ChunkPos returns the position of the chunk holding the block.
func (p BlockPos) ChunkPos() ChunkPos {
	return ChunkPos{int32(p[0] >> 4), int32(p[2] >> 4)}
}

// Level holds the world-wide values kept in durable storage.
type Level struct {
	Name       string
	Spawn      BlockPos
	Time       int64
	LastPlayed int64
}
