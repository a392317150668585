// Package chunkstore implements an in-memory chunk cache per world in front of
// a durable Backend, generating chunks that the Backend cannot provide.
package chunkstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/brentp/intintmap"
	"github.com/df-mc/worldcore/server/world"
)

var (
	// ErrWorldNotOpen is returned for operations on a world that was not opened
	// on the Store or that has been closed.
	ErrWorldNotOpen = errors.New("world not open in chunk store")
	// ErrWorldOpen is returned by Store.Open if the world is already open.
	ErrWorldOpen = errors.New("world already open in chunk store")
)

// Backend is the durable storage behind a Store. Implementations must be safe
// for concurrent use. Missing data is reported with an error wrapping
// fs.ErrNotExist.
type Backend interface {
	// LoadLevel reads the level data of a world.
	LoadLevel(worldName string) (world.Level, error)
	// SaveLevel writes the level data of a world.
	SaveLevel(worldName string, l world.Level) error
	// LoadChunk reads and validates a chunk.
	LoadChunk(worldName string, pos world.ChunkPos) (*world.Chunk, error)
	// StoreChunk writes a chunk. A failed write must leave any previously
	// stored chunk intact.
	StoreChunk(worldName string, pos world.ChunkPos, c *world.Chunk) error
	// Close releases the resources held by the Backend.
	Close() error
}

// BatchBackend is implemented by a Backend that can write several chunks of a
// world at once, storing either all or none of them.
type BatchBackend interface {
	StoreChunks(worldName string, chunks map[world.ChunkPos]*world.Chunk) error
}

// Config holds the settings of a Store.
type Config struct {
	// Log is the Logger used by the Store. If nil, slog.Default() is used.
	Log *slog.Logger
	// Backend is the durable storage of the Store. It must be non-nil.
	Backend Backend
}

// Store caches the chunks of open worlds. Chunks enter and leave the Store as
// copies.
type Store struct {
	conf Config
	log  *slog.Logger

	mu     sync.RWMutex
	worlds map[string]*worldState
}

type worldState struct {
	name   string
	extent world.Extent
	gen    world.Generator

	mu     sync.RWMutex
	chunks map[world.ChunkPos]*world.Chunk
	// dirty holds chunks not yet written. Entries stay dirty until the write
	// of the cached chunk succeeded.
	dirty map[world.ChunkPos]struct{}
	// grid holds the extent indices of chunks generated since the world was
	// opened.
	grid *intintmap.Map

	// flushMu serialises flushes of the world.
	flushMu sync.Mutex
}

// New creates a Store using the fields of conf. New panics if conf.Backend is
// nil.
func (conf Config) New() *Store {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Backend == nil {
		panic("chunkstore: nil backend")
	}
	return &Store{
		conf:   conf,
		log:    conf.Log.With("subsystem", "chunkstore"),
		worlds: make(map[string]*worldState),
	}
}

// Backend returns the Backend of the Store.
func (s *Store) Backend() Backend {
	return s.conf.Backend
}

// Open prepares an empty cache for the world with the name passed. Chunks
// missing from the Backend are generated with gen.
func (s *Store) Open(worldName string, extent world.Extent, gen world.Generator) error {
	if err := extent.Validate(); err != nil {
		return err
	}
	if gen == nil {
		gen = world.NopGenerator{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.worlds[worldName]; ok {
		return fmt.Errorf("%w: %s", ErrWorldOpen, worldName)
	}
	s.worlds[worldName] = &worldState{
		name:   worldName,
		extent: extent,
		gen:    gen,
		chunks: make(map[world.ChunkPos]*world.Chunk),
		dirty:  make(map[world.ChunkPos]struct{}),
		grid:   intintmap.New(1024, 0.6),
	}
	return nil
}

// IsOpen reports if the world with the name passed is open.
func (s *Store) IsOpen(worldName string) bool {
	_, err := s.state(worldName)
	return err == nil
}

func (s *Store) state(worldName string) (*worldState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.worlds[worldName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorldNotOpen, worldName)
	}
	return ws, nil
}

// Get returns a copy of the chunk at pos, loading it if it is not cached.
func (s *Store) Get(worldName string, pos world.ChunkPos) (*world.Chunk, error) {
	ws, err := s.state(worldName)
	if err != nil {
		return nil, err
	}
	if err := ws.extent.Check(pos); err != nil {
		return nil, err
	}
	ws.mu.RLock()
	c, ok := ws.chunks[pos]
	ws.mu.RUnlock()
	if ok {
		return c.Clone(), nil
	}
	return s.load(ws, pos)
}

// Load reads the chunk at pos from the Backend, bypassing the cache lookup
// that Get performs. If the Backend cannot provide a valid chunk, a chunk
// already generated since the world was opened is returned, or a new one is
// generated, cached and marked dirty. The returned chunk is a copy.
func (s *Store) Load(worldName string, pos world.ChunkPos) (*world.Chunk, error) {
	ws, err := s.state(worldName)
	if err != nil {
		return nil, err
	}
	if err := ws.extent.Check(pos); err != nil {
		return nil, err
	}
	return s.load(ws, pos)
}

func (s *Store) load(ws *worldState, pos world.ChunkPos) (*world.Chunk, error) {
	idx, err := ws.extent.Index(pos)
	if err != nil {
		return nil, err
	}
	ws.mu.RLock()
	before := ws.chunks[pos]
	_, wasDirty := ws.dirty[pos]
	ws.mu.RUnlock()

	stored, loadErr := s.conf.Backend.LoadChunk(ws.name, pos)

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if loadErr == nil {
		_, dirty := ws.dirty[pos]
		if c := ws.chunks[pos]; c != nil && (wasDirty || dirty || c != before) {
			// The cache holds a version newer than what the Backend returned.
			return c.Clone(), nil
		}
		ws.chunks[pos] = stored
		return stored.Clone(), nil
	}

	if !errors.Is(loadErr, fs.ErrNotExist) {
		s.log.Warn("load chunk: "+loadErr.Error(), "world", ws.name, "pos", pos)
	}
	_, generated := ws.grid.Get(idx)
	if c, ok := ws.chunks[pos]; ok {
		// Generated earlier in this run, or set before it was ever stored.
		return c.Clone(), nil
	}
	if generated {
		panic(fmt.Sprintf("chunkstore: generated chunk %v of world %s missing from cache", pos, ws.name))
	}

	c := new(world.Chunk)
	if err := ws.gen.GenerateChunk(pos, c); err != nil {
		return nil, fmt.Errorf("generate chunk %v: %w", pos, err)
	}
	ws.grid.Put(idx, 1)
	ws.chunks[pos] = c
	ws.dirty[pos] = struct{}{}
	s.log.Debug("Chunk generated.", "world", ws.name, "pos", pos)
	return c.Clone(), nil
}

// Set replaces the cached chunk at pos with a copy of c and marks it dirty. It
// does not write to the Backend.
func (s *Store) Set(worldName string, pos world.ChunkPos, c *world.Chunk) error {
	ws, err := s.state(worldName)
	if err != nil {
		return err
	}
	if err := ws.extent.Check(pos); err != nil {
		return err
	}
	cp := c.Clone()
	ws.mu.Lock()
	ws.chunks[pos] = cp
	ws.dirty[pos] = struct{}{}
	ws.mu.Unlock()
	return nil
}

// Generated reports if the chunk at pos was generated since the world was
// opened.
func (s *Store) Generated(worldName string, pos world.ChunkPos) bool {
	ws, err := s.state(worldName)
	if err != nil {
		return false
	}
	idx, err := ws.extent.Index(pos)
	if err != nil {
		return false
	}
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	_, ok := ws.grid.Get(idx)
	return ok
}

// Dirty returns the number of chunks of a world not yet written to the
// Backend.
func (s *Store) Dirty(worldName string) int {
	ws, err := s.state(worldName)
	if err != nil {
		return 0
	}
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.dirty)
}

// Flush writes every dirty chunk of a world to the Backend. Chunks that fail
// to be written stay dirty, and the failures are returned joined.
func (s *Store) Flush(worldName string) error {
	ws, err := s.state(worldName)
	if err != nil {
		return err
	}
	return s.flush(ws)
}

func (s *Store) flush(ws *worldState) error {
	ws.flushMu.Lock()
	defer ws.flushMu.Unlock()

	ws.mu.RLock()
	pending := make(map[world.ChunkPos]*world.Chunk, len(ws.dirty))
	for pos := range ws.dirty {
		pending[pos] = ws.chunks[pos]
	}
	ws.mu.RUnlock()
	if len(pending) == 0 {
		return nil
	}

	// Cached chunks are never mutated in place, so they may be read without
	// holding ws.mu.
	written := pending
	var errs []error
	if bb, ok := s.conf.Backend.(BatchBackend); ok {
		if err := bb.StoreChunks(ws.name, pending); err != nil {
			return fmt.Errorf("store %d chunks: %w", len(pending), err)
		}
	} else {
		written = make(map[world.ChunkPos]*world.Chunk, len(pending))
		for pos, c := range pending {
			if err := s.conf.Backend.StoreChunk(ws.name, pos, c); err != nil {
				errs = append(errs, fmt.Errorf("store chunk %v: %w", pos, err))
				continue
			}
			written[pos] = c
		}
	}

	ws.mu.Lock()
	for pos, c := range written {
		// A chunk set during the write stays dirty.
		if ws.chunks[pos] == c {
			delete(ws.dirty, pos)
		}
	}
	ws.mu.Unlock()
	if len(written) > 0 {
		s.log.Debug("Chunks flushed.", "world", ws.name, "count", len(written))
	}
	return errors.Join(errs...)
}

// Close flushes a world and drops its cache and generation grid.
func (s *Store) Close(worldName string) error {
	ws, err := s.state(worldName)
	if err != nil {
		return err
	}
	err = s.flush(ws)

	s.mu.Lock()
	delete(s.worlds, worldName)
	s.mu.Unlock()
	return err
}

// Discard drops the cache and generation grid of a world without writing its
// dirty chunks.
func (s *Store) Discard(worldName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.worlds[worldName]; !ok {
		return fmt.Errorf("%w: %s", ErrWorldNotOpen, worldName)
	}
	delete(s.worlds, worldName)
	return nil
}

// LoadLevel reads the level data of a world from the Backend.
func (s *Store) LoadLevel(worldName string) (world.Level, error) {
	return s.conf.Backend.LoadLevel(worldName)
}

// SaveLevel writes the level data of a world to the Backend.
func (s *Store) SaveLevel(worldName string, l world.Level) error {
	return s.conf.Backend.SaveLevel(worldName, l)
}

// Shutdown closes every open world and then the Backend.
func (s *Store) Shutdown() error {
	s.mu.RLock()
	names := make([]string, 0, len(s.worlds))
	for name := range s.worlds {
		names = append(names, name)
	}
	s.mu.RUnlock()

	var errs []error
	for _, name := range names {
		if err := s.Close(name); err != nil && !errors.Is(err, ErrWorldNotOpen) {
			errs = append(errs, err)
		}
	}
	if err := s.conf.Backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	return errors.Join(errs...)
}
