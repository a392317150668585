// Package nbtfile implements a chunkstore.Backend that keeps every chunk in a
// gzip-compressed NBT file, using the directory layout of Alpha worlds.
package nbtfile

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/df-mc/worldcore/server/nbt"
	"github.com/df-mc/worldcore/server/world"
)

// DefaultRoot is the directory worlds are stored in if no root is configured.
const DefaultRoot = "/usr/share/craftd/worlds"

// Config holds the settings of a Backend.
type Config struct {
	// Log is the Logger used by the Backend. If nil, slog.Default() is used.
	Log *slog.Logger
	// Root is the directory holding one directory per world. If empty,
	// DefaultRoot is used.
	Root string
	// Base is the numeric base, between 2 and 36, that chunk coordinates are
	// written in within file and directory names. If zero, 36 is used.
	Base int
}

// Backend stores worlds as directories of NBT files below a root directory.
type Backend struct {
	conf Config
	log  *slog.Logger
}

// New creates a Backend using the fields of conf.
func (conf Config) New() (*Backend, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Root == "" {
		conf.Root = DefaultRoot
	}
	if conf.Base == 0 {
		conf.Base = 36
	}
	if conf.Base < 2 || conf.Base > 36 {
		return nil, fmt.Errorf("path base %d out of range 2..36", conf.Base)
	}
	return &Backend{conf: conf, log: conf.Log.With("subsystem", "nbtfile")}, nil
}

// Root returns the directory worlds are stored in.
func (b *Backend) Root() string {
	return b.conf.Root
}

// LevelPath returns the path of the level.dat file of a world.
func (b *Backend) LevelPath(worldName string) string {
	return filepath.Join(b.conf.Root, worldName, "level.dat")
}

// ChunkPath returns the path of the file holding the chunk at pos. Chunks are
// spread over directories named after their coordinates modulo 64.
func (b *Backend) ChunkPath(worldName string, pos world.ChunkPos) string {
	x, z := int64(pos[0]), int64(pos[1])
	return filepath.Join(b.conf.Root, worldName,
		b.enc(mod64(x)), b.enc(mod64(z)),
		"c."+b.enc(x)+"."+b.enc(z)+".dat",
	)
}

func (b *Backend) enc(v int64) string {
	return strconv.FormatInt(v, b.conf.Base)
}

func mod64(v int64) int64 {
	return ((v % 64) + 64) % 64
}

// LoadLevel ...
func (b *Backend) LoadLevel(worldName string) (world.Level, error) {
	n, err := nbt.ReadFile(b.LevelPath(worldName))
	if err != nil {
		return world.Level{}, err
	}
	return DecodeLevel(n)
}

// SaveLevel ...
func (b *Backend) SaveLevel(worldName string, l world.Level) error {
	return nbt.WriteFile(b.LevelPath(worldName), EncodeLevel(l))
}

// LoadChunk ...
func (b *Backend) LoadChunk(worldName string, pos world.ChunkPos) (*world.Chunk, error) {
	n, err := nbt.ReadFile(b.ChunkPath(worldName, pos))
	if err != nil {
		return nil, err
	}
	return DecodeChunk(pos, n)
}

// StoreChunk ...
func (b *Backend) StoreChunk(worldName string, pos world.ChunkPos, c *world.Chunk) error {
	return nbt.WriteFile(b.ChunkPath(worldName, pos), EncodeChunk(pos, c))
}

// Close ...
func (b *Backend) Close() error {
	return nil
}
