package chunkstore

import (
	"fmt"
	"io/fs"
	"sync"

	"github.com/df-mc/worldcore/server/world"
)

// MemoryBackend is a Backend that keeps everything in memory. Data is lost
// when the process exits.
type MemoryBackend struct {
	mu     sync.RWMutex
	levels map[string]world.Level
	chunks map[string]map[world.ChunkPos]*world.Chunk
	// writes counts the chunk writes performed.
	writes int
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		levels: make(map[string]world.Level),
		chunks: make(map[string]map[world.ChunkPos]*world.Chunk),
	}
}

// LoadLevel ...
func (m *MemoryBackend) LoadLevel(worldName string) (world.Level, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.levels[worldName]
	if !ok {
		return world.Level{}, fmt.Errorf("level of %s: %w", worldName, fs.ErrNotExist)
	}
	return l, nil
}

// SaveLevel ...
func (m *MemoryBackend) SaveLevel(worldName string, l world.Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[worldName] = l
	return nil
}

// LoadChunk ...
func (m *MemoryBackend) LoadChunk(worldName string, pos world.ChunkPos) (*world.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chunks[worldName][pos]
	if !ok {
		return nil, fmt.Errorf("chunk %v of %s: %w", pos, worldName, fs.ErrNotExist)
	}
	return c.Clone(), nil
}

// StoreChunk ...
func (m *MemoryBackend) StoreChunk(worldName string, pos world.ChunkPos, c *world.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunks, ok := m.chunks[worldName]
	if !ok {
		chunks = make(map[world.ChunkPos]*world.Chunk)
		m.chunks[worldName] = chunks
	}
	chunks[pos] = c.Clone()
	m.writes++
	return nil
}

// Writes returns the number of chunk writes performed so far.
func (m *MemoryBackend) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Close ...
func (m *MemoryBackend) Close() error {
	return nil
}
