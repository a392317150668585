package generator

import (
	"github.com/df-mc/worldcore/server/world"
)

// Flat generates the same column of layers for every chunk.
type Flat struct {
	// Layers holds the block IDs of the column, starting at Y 0.
	Layers []byte
}

// NewFlat returns a Flat generator with the default layers of dim.
func NewFlat(dim world.Dimension) Flat {
	switch dim {
	case world.Nether:
		return Flat{Layers: []byte{Bedrock, Netherrack, Netherrack, Netherrack}}
	case world.Sky:
		return Flat{Layers: []byte{EndStone, EndStone, EndStone}}
	}
	return Flat{Layers: []byte{Bedrock, Dirt, Dirt, Grass}}
}

// GenerateChunk ...
func (f Flat) GenerateChunk(_ world.ChunkPos, c *world.Chunk) error {
	layers := f.Layers
	if len(layers) > world.ChunkHeight {
		layers = layers[:world.ChunkHeight]
	}
	for x := range world.ChunkWidth {
		for z := range world.ChunkWidth {
			for y, id := range layers {
				c.SetBlock(x, y, z, id)
			}
		}
	}
	finish(c)
	return nil
}
