// Package leveldb implements a chunkstore.Backend that keeps the NBT payloads
// of all worlds in a single LevelDB database.
package leveldb

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/worldcore/server/nbt"
	"github.com/df-mc/worldcore/server/world"
	"github.com/df-mc/worldcore/server/world/nbtfile"
)

// Config holds the settings of a Backend.
type Config struct {
	// Log is the Logger used by the Backend. If nil, slog.Default() is used.
	Log *slog.Logger
	// Dir is the directory of the database. It is created if it does not
	// exist.
	Dir string
}

// Backend stores level data and chunks as gzip-compressed NBT values, keyed
// "<world>/level" and "<world>/c/<x>/<z>".
type Backend struct {
	conf Config
	log  *slog.Logger
	db   *leveldb.DB
}

// Open opens the database in conf.Dir and returns a Backend using it.
func (conf Config) Open() (*Backend, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Dir == "" {
		return nil, errors.New("leveldb: empty database directory")
	}
	if err := os.MkdirAll(conf.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := leveldb.OpenFile(conf.Dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	b := &Backend{conf: conf, log: conf.Log.With("subsystem", "leveldb"), db: db}
	b.log.Debug("Database opened.", "dir", conf.Dir)
	return b, nil
}

func levelKey(worldName string) []byte {
	return []byte(worldName + "/level")
}

func chunkKey(worldName string, pos world.ChunkPos) []byte {
	b := make([]byte, 0, len(worldName)+24)
	b = append(b, worldName...)
	b = append(b, "/c/"...)
	b = strconv.AppendInt(b, int64(pos[0]), 10)
	b = append(b, '/')
	return strconv.AppendInt(b, int64(pos[1]), 10)
}

// get reads and parses the value at key. A missing key is reported with an
// error wrapping fs.ErrNotExist.
func (b *Backend) get(key []byte) (*nbt.Node, error) {
	v, err := b.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("key %s: %w", key, fs.ErrNotExist)
	} else if err != nil {
		return nil, fmt.Errorf("read key %s: %w", key, err)
	}
	n, err := nbt.Parse(v)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", key, err)
	}
	return n, nil
}

func (b *Backend) put(key []byte, n *nbt.Node) error {
	v, err := nbt.SerializeCompressed(n)
	if err != nil {
		return err
	}
	if err := b.db.Put(key, v, nil); err != nil {
		return fmt.Errorf("write key %s: %w", key, err)
	}
	return nil
}

// LoadLevel ...
func (b *Backend) LoadLevel(worldName string) (world.Level, error) {
	n, err := b.get(levelKey(worldName))
	if err != nil {
		return world.Level{}, err
	}
	return nbtfile.DecodeLevel(n)
}

// SaveLevel ...
func (b *Backend) SaveLevel(worldName string, l world.Level) error {
	return b.put(levelKey(worldName), nbtfile.EncodeLevel(l))
}

// LoadChunk ...
func (b *Backend) LoadChunk(worldName string, pos world.ChunkPos) (*world.Chunk, error) {
	n, err := b.get(chunkKey(worldName, pos))
	if err != nil {
		return nil, err
	}
	return nbtfile.DecodeChunk(pos, n)
}

// StoreChunk ...
func (b *Backend) StoreChunk(worldName string, pos world.ChunkPos, c *world.Chunk) error {
	return b.put(chunkKey(worldName, pos), nbtfile.EncodeChunk(pos, c))
}

// StoreChunks writes several chunks of a world in a single batch, so that
// either all or none of them are stored.
func (b *Backend) StoreChunks(worldName string, chunks map[world.ChunkPos]*world.Chunk) error {
	batch := new(leveldb.Batch)
	for pos, c := range chunks {
		v, err := nbt.SerializeCompressed(nbtfile.EncodeChunk(pos, c))
		if err != nil {
			return err
		}
		batch.Put(chunkKey(worldName, pos), v)
	}
	if err := b.db.Write(batch, nil); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

// Close closes the database.
func (b *Backend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	b.log.Debug("Database closed.")
	return nil
}
