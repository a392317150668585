package world

// Generator produces the terrain of chunks that have no valid stored
// representation. Implementations must be deterministic for a given position
// and safe for concurrent use.
type Generator interface {
	// GenerateChunk fills c, which is zeroed, with the terrain of the chunk at
	// pos.
	GenerateChunk(pos ChunkPos, c *Chunk) error
}

// NopGenerator leaves chunks empty: air with full sky light.
type NopGenerator struct{}

// GenerateChunk ...
func (NopGenerator) GenerateChunk(_ ChunkPos, c *Chunk) error {
	c.RecalculateSkyLight()
	return nil
}
