package generator

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/df-mc/worldcore/server/world"
)

// SmoothSize is the radius of the kernel used to smooth column heights.
const SmoothSize = 2

var gaussianKernel = [5][5]float64{
	{1.4715177646858, 2.141045714076, 2.4261226388505, 2.141045714076, 1.4715177646858},
	{2.141045714076, 3.1152031322856, 3.5299876103384, 3.1152031322856, 2.141045714076},
	{2.4261226388505, 3.5299876103384, 4, 3.5299876103384, 2.4261226388505},
	{2.141045714076, 3.1152031322856, 3.5299876103384, 3.1152031322856, 2.141045714076},
	{1.4715177646858, 2.141045714076, 2.4261226388505, 2.141045714076, 1.4715177646858},
}

// octave is a single layer of lattice noise.
type octave struct {
	scale     float64
	amplitude float64
}

var octaves = [...]octave{
	{scale: 1.0 / 96, amplitude: 1},
	{scale: 1.0 / 32, amplitude: 0.5},
	{scale: 1.0 / 12, amplitude: 0.2},
}

// Noise generates rolling terrain from hashed lattice noise. Generation only
// depends on the seed and the chunk position, so the same chunk is always
// generated identically.
type Noise struct {
	seed uint64
	dim  world.Dimension

	waterHeight int
	baseHeight  float64
	variation   float64
}

// NewNoise returns a Noise generator for dim using seed.
func NewNoise(dim world.Dimension, seed int64) *Noise {
	n := &Noise{seed: uint64(seed), dim: dim}
	switch dim {
	case world.Nether:
		n.waterHeight, n.baseHeight, n.variation = 31, 36, 14
	case world.Sky:
		n.waterHeight, n.baseHeight, n.variation = 0, 48, 24
	default:
		n.waterHeight, n.baseHeight, n.variation = 62, 64, 18
	}
	return n
}

// GenerateChunk ...
func (n *Noise) GenerateChunk(pos world.ChunkPos, c *world.Chunk) error {
	baseX, baseZ := int64(pos[0])*world.ChunkWidth, int64(pos[1])*world.ChunkWidth

	const size = world.ChunkWidth + SmoothSize*2
	var raw [size][size]float64
	for x := range size {
		for z := range size {
			raw[x][z] = n.height(baseX+int64(x-SmoothSize), baseZ+int64(z-SmoothSize))
		}
	}

	for x := range world.ChunkWidth {
		for z := range world.ChunkWidth {
			var sum, weightSum float64
			for sx := -SmoothSize; sx <= SmoothSize; sx++ {
				for sz := -SmoothSize; sz <= SmoothSize; sz++ {
					weight := gaussianKernel[sx+SmoothSize][sz+SmoothSize]
					sum += raw[x+SmoothSize+sx][z+SmoothSize+sz] * weight
					weightSum += weight
				}
			}
			h := int(math.Round(sum / weightSum))
			h = max(1, min(h, world.ChunkHeight-1))
			n.column(c, x, z, h)
		}
	}
	finish(c)
	return nil
}

// column fills the column at x, z with a surface at height h.
func (n *Noise) column(c *world.Chunk, x, z, h int) {
	switch n.dim {
	case world.Nether:
		for y := range world.ChunkHeight {
			switch {
			case y == 0 || y == world.ChunkHeight-1:
				c.SetBlock(x, y, z, Bedrock)
			case y < h || y >= world.ChunkHeight-1-(h/4):
				c.SetBlock(x, y, z, Netherrack)
			case y <= n.waterHeight:
				c.SetBlock(x, y, z, Lava)
			}
		}
	case world.Sky:
		// Islands float around the base height and leave the void below.
		depth := h - int(n.baseHeight)
		if depth <= 0 {
			return
		}
		for y := int(n.baseHeight) - depth; y < h; y++ {
			c.SetBlock(x, y, z, EndStone)
		}
	default:
		for y := range h {
			switch {
			case y == 0:
				c.SetBlock(x, y, z, Bedrock)
			case y < h-4:
				c.SetBlock(x, y, z, Stone)
			case h <= n.waterHeight+1:
				if y == h-1 && h <= n.waterHeight-6 {
					c.SetBlock(x, y, z, Gravel)
				} else {
					c.SetBlock(x, y, z, Sand)
				}
			case y == h-1:
				c.SetBlock(x, y, z, Grass)
			default:
				c.SetBlock(x, y, z, Dirt)
			}
		}
		for y := h; y <= n.waterHeight; y++ {
			c.SetBlock(x, y, z, Water)
		}
	}
}

// height returns the unsmoothed surface height at the block column x, z.
func (n *Noise) height(x, z int64) float64 {
	var v, total float64
	for i, o := range octaves {
		v += n.lattice(uint64(i), float64(x)*o.scale, float64(z)*o.scale) * o.amplitude
		total += o.amplitude
	}
	return n.baseHeight + v/total*n.variation
}

// lattice returns bilinearly interpolated value noise in [-1, 1] at x, z.
func (n *Noise) lattice(layer uint64, x, z float64) float64 {
	x0, z0 := math.Floor(x), math.Floor(z)
	fx, fz := smooth(x-x0), smooth(z-z0)
	ix, iz := int64(x0), int64(z0)

	v00 := n.value(layer, ix, iz)
	v10 := n.value(layer, ix+1, iz)
	v01 := n.value(layer, ix, iz+1)
	v11 := n.value(layer, ix+1, iz+1)
	return lerp(lerp(v00, v10, fx), lerp(v01, v11, fx), fz)
}

// value hashes a lattice point to a value in [-1, 1].
func (n *Noise) value(layer uint64, x, z int64) float64 {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[0:], n.seed)
	binary.LittleEndian.PutUint64(buf[8:], layer)
	binary.LittleEndian.PutUint64(buf[16:], uint64(x))
	binary.LittleEndian.PutUint64(buf[24:], uint64(z))
	return float64(xxhash.Sum64(buf[:])>>11)/float64(1<<53)*2 - 1
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
