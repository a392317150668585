package world

import "fmt"

const (
	// ChunkWidth is the width and depth of a chunk in blocks.
	ChunkWidth = 16
	// ChunkHeight is the height of a chunk in blocks.
	ChunkHeight = 128

	// HeightMapSize, BlocksSize and NibbleSize are the lengths in bytes of the
	// height map, block ID array and each of the nibble arrays of a Chunk.
	HeightMapSize = ChunkWidth * ChunkWidth
	BlocksSize    = ChunkWidth * ChunkWidth * ChunkHeight
	NibbleSize    = BlocksSize / 2
)

// ChunkPos holds the position of a chunk. The type is provided as a utility
// struct for keeping track of a chunk's position. Chunks do not themselves
// keep track of that. Chunk positions are different from block positions in
// the way that increasing the X/Z by one means increasing the absolute value
// on the X/Z axis in terms of blocks by 16.
type ChunkPos [2]int32

// X returns the X coordinate of the chunk position.
func (p ChunkPos) X() int32 {
	return p[0]
}

// Z returns the Z coordinate of the chunk position.
func (p ChunkPos) Z() int32 {
	return p[1]
}

// String implements fmt.Stringer and returns (x, z).
func (p ChunkPos) String() string {
	return fmt.Sprintf("(%v, %v)", p[0], p[1])
}

// Chunk is a fixed-size 16x128x16 column of terrain. Its five buffers are
// arrays, so copying a Chunk value copies the whole payload as one unit and a
// Chunk can never be partially populated.
//
// Blocks are indexed y + z*128 + x*128*16. Data, BlockLight and SkyLight hold
// one nibble per block, the low nibble first.
type Chunk struct {
	HeightMap  [HeightMapSize]byte
	Blocks     [BlocksSize]byte
	Data       [NibbleSize]byte
	BlockLight [NibbleSize]byte
	SkyLight   [NibbleSize]byte
}

// Clone returns a deep copy of the chunk.
func (c *Chunk) Clone() *Chunk {
	cp := *c
	return &cp
}

// Equal reports if c and o hold byte-identical payloads.
func (c *Chunk) Equal(o *Chunk) bool {
	return *c == *o
}

func blockIndex(x, y, z int) int {
	return y + z*ChunkHeight + x*ChunkHeight*ChunkWidth
}

// Block returns the block ID at the chunk-relative position passed.
func (c *Chunk) Block(x, y, z int) byte {
	return c.Blocks[blockIndex(x, y, z)]
}

// SetBlock sets the block ID at the chunk-relative position passed.
func (c *Chunk) SetBlock(x, y, z int, id byte) {
	c.Blocks[blockIndex(x, y, z)] = id
}

// BlockData returns the metadata nibble of the block at the position passed.
func (c *Chunk) BlockData(x, y, z int) byte {
	return nibble(&c.Data, blockIndex(x, y, z))
}

// SetBlockData sets the metadata nibble of the block at the position passed.
func (c *Chunk) SetBlockData(x, y, z int, v byte) {
	setNibble(&c.Data, blockIndex(x, y, z), v)
}

// BlockLightAt returns the block light level at the position passed.
func (c *Chunk) BlockLightAt(x, y, z int) byte {
	return nibble(&c.BlockLight, blockIndex(x, y, z))
}

// SetBlockLightAt sets the block light level at the position passed.
func (c *Chunk) SetBlockLightAt(x, y, z int, v byte) {
	setNibble(&c.BlockLight, blockIndex(x, y, z), v)
}

// SkyLightAt returns the sky light level at the position passed.
func (c *Chunk) SkyLightAt(x, y, z int) byte {
	return nibble(&c.SkyLight, blockIndex(x, y, z))
}

// SetSkyLightAt sets the sky light level at the position passed.
func (c *Chunk) SetSkyLightAt(x, y, z int, v byte) {
	setNibble(&c.SkyLight, blockIndex(x, y, z), v)
}

// Height returns the height map value of the column at x, z: the lowest Y at
// which sky light is no longer blocked.
func (c *Chunk) Height(x, z int) byte {
	return c.HeightMap[z<<4|x]
}

// RecalculateHeightMap recomputes the height map from the block IDs, treating
// every non-air block as opaque.
func (c *Chunk) RecalculateHeightMap() {
	for x := range ChunkWidth {
		for z := range ChunkWidth {
			h := 0
			for y := ChunkHeight - 1; y >= 0; y-- {
				if c.Block(x, y, z) != 0 {
					h = y + 1
					break
				}
			}
			c.HeightMap[z<<4|x] = byte(h)
		}
	}
}

// RecalculateSkyLight fills sky light from the height map: full light at and
// above the height of each column, none below it.
func (c *Chunk) RecalculateSkyLight() {
	for x := range ChunkWidth {
		for z := range ChunkWidth {
			h := int(c.Height(x, z))
			for y := range ChunkHeight {
				if y >= h {
					c.SetSkyLightAt(x, y, z, 15)
				} else {
					c.SetSkyLightAt(x, y, z, 0)
				}
			}
		}
	}
}

func nibble(arr *[NibbleSize]byte, i int) byte {
	if i&1 == 0 {
		return arr[i>>1] & 0x0f
	}
	return arr[i>>1] >> 4
}

func setNibble(arr *[NibbleSize]byte, i int, v byte) {
	v &= 0x0f
	if i&1 == 0 {
		arr[i>>1] = arr[i>>1]&0xf0 | v
		return
	}
	arr[i>>1] = arr[i>>1]&0x0f | v<<4
}
