// Package generator implements terrain generators for chunks that have no
// stored representation yet.
package generator

import (
	"fmt"
	"strings"

	"github.com/df-mc/worldcore/server/world"
	"github.com/segmentio/fasthash/fnv1a"
)

// Block IDs placed by the generators in this package.
const (
	Air        byte = 0
	Stone      byte = 1
	Grass      byte = 2
	Dirt       byte = 3
	Bedrock    byte = 7
	Water      byte = 9
	Lava       byte = 11
	Sand       byte = 12
	Gravel     byte = 13
	Netherrack byte = 87
	EndStone   byte = 121
)

// Seed returns seed, or a seed derived from the world name if seed is 0, so
// that worlds without a configured seed still generate distinct and stable
// terrain.
func Seed(worldName string, seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return int64(fnv1a.HashString64(worldName))
}

// New returns the generator with the name passed for a world of dimension dim.
// Valid names are "flat", "noise" and "none"; an empty name selects "noise".
func New(name string, dim world.Dimension, seed int64) (world.Generator, error) {
	switch strings.ToLower(name) {
	case "", "noise", "default":
		return NewNoise(dim, seed), nil
	case "flat":
		return NewFlat(dim), nil
	case "none", "void":
		return world.NopGenerator{}, nil
	}
	return nil, fmt.Errorf("unknown generator %q", name)
}

// finish recalculates the height map and sky light of a generated chunk.
func finish(c *world.Chunk) {
	c.RecalculateHeightMap()
	c.RecalculateSkyLight()
}
