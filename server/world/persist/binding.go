// Package persist binds the events of worlds to a chunkstore.Store, loading
// and saving level data and chunks through the Store's Backend.
package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/df-mc/worldcore/server/world"
	"github.com/df-mc/worldcore/server/world/chunkstore"
)

// Config holds the settings of a Binding.
type Config struct {
	// Log is the Logger used by the Binding. If nil, slog.Default() is used.
	Log *slog.Logger
	// Store is the chunk store the Binding loads and saves through. It must be
	// non-nil.
	Store *chunkstore.Store
	// SaveOnClose saves a world when it is destroyed. If false, unsaved
	// changes of a destroyed world are discarded.
	SaveOnClose bool
	// Now returns the current time, stored as the LastPlayed time of saved
	// levels. If nil, time.Now is used.
	Now func() time.Time
}

// Binding handles the events of worlds on behalf of a chunkstore.Store. A
// Binding may serve any number of worlds.
type Binding struct {
	conf Config
	log  *slog.Logger

	mu sync.Mutex
	// observing holds the names of worlds hydrated since the last shutdown.
	observing map[string]struct{}
	// watching holds the worlds currently served.
	watching map[*world.World]struct{}
	unsub    []func()
}

// New creates a Binding using the fields of conf. New panics if conf.Store is
// nil.
func (conf Config) New() *Binding {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Store == nil {
		panic("persist: nil store")
	}
	if conf.Now == nil {
		conf.Now = time.Now
	}
	return &Binding{
		conf:      conf,
		log:       conf.Log.With("subsystem", "persist"),
		observing: make(map[string]struct{}),
		watching:  make(map[*world.World]struct{}),
	}
}

// Store returns the chunk store of the Binding.
func (b *Binding) Store() *chunkstore.Store {
	return b.conf.Store
}

// Register registers the handlers of the Binding for every world event on r.
// Handlers registered earlier on r are removed first.
func (b *Binding) Register(r world.Registrar) {
	b.Unregister()
	unsub := []func(){
		world.Handle(r, b.handleCreated),
		world.Handle(r, b.handleChunkQuery),
		world.Handle(r, b.handleChunkStore),
		world.Handle(r, b.handleSave),
		world.Handle(r, b.handleDestroyed),
		world.Handle(r, b.handleShutdown),
	}
	b.mu.Lock()
	b.unsub = unsub
	b.mu.Unlock()
}

// Unregister removes the handlers registered by Register.
func (b *Binding) Unregister() {
	b.mu.Lock()
	unsub := b.unsub
	b.unsub = nil
	b.mu.Unlock()
	for _, f := range unsub {
		f()
	}
}

// Observed returns the sorted names of the worlds hydrated by the Binding since
// the last server shutdown.
func (b *Binding) Observed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Sorted(maps.Keys(b.observing))
}

// Watched returns the worlds currently served by the Binding.
func (b *Binding) Watched() []*world.World {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Collect(maps.Keys(b.watching))
}

func (b *Binding) handleCreated(e *world.Created) error {
	w := e.World
	if err := b.conf.Store.Open(w.Name(), w.Extent(), w.Generator()); err != nil {
		return fmt.Errorf("open world: %w", err)
	}
	b.mu.Lock()
	b.observing[w.Name()] = struct{}{}
	b.watching[w] = struct{}{}
	b.mu.Unlock()

	l, err := b.conf.Store.LoadLevel(w.Name())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("no level data for world %s: %w", w.Name(), err)
		}
		return fmt.Errorf("load level: %w", err)
	}
	w.SetSpawn(l.Spawn)
	w.SetTime(int(l.Time % world.DayLength))
	b.log.Debug("Level loaded.", "world", w.Name(), "spawn", l.Spawn, "time", l.Time)
	return nil
}

func (b *Binding) handleChunkQuery(e *world.ChunkQuery) error {
	c, err := b.conf.Store.Get(e.World.Name(), e.Pos)
	if err != nil {
		return err
	}
	e.Chunk = c
	return nil
}

func (b *Binding) handleChunkStore(e *world.ChunkStore) error {
	return b.conf.Store.Set(e.World.Name(), e.Pos, e.Chunk)
}

func (b *Binding) handleSave(e *world.Save) error {
	return b.save(e.World)
}

// save writes the level data and the dirty chunks of w.
func (b *Binding) save(w *world.World) error {
	l := world.Level{
		Name:       w.Name(),
		Spawn:      w.Spawn(),
		Time:       int64(w.Time()),
		LastPlayed: b.conf.Now().UnixMilli(),
	}
	var errs []error
	if err := b.conf.Store.SaveLevel(w.Name(), l); err != nil {
		errs = append(errs, fmt.Errorf("save level: %w", err))
	}
	if err := b.conf.Store.Flush(w.Name()); err != nil {
		errs = append(errs, fmt.Errorf("flush chunks: %w", err))
	}
	return errors.Join(errs...)
}

func (b *Binding) handleDestroyed(e *world.Destroyed) error {
	w := e.World
	b.mu.Lock()
	delete(b.watching, w)
	b.mu.Unlock()

	if !b.conf.SaveOnClose {
		return b.conf.Store.Discard(w.Name())
	}
	var errs []error
	if err := b.save(w); err != nil {
		errs = append(errs, err)
	}
	if err := b.conf.Store.Close(w.Name()); err != nil {
		errs = append(errs, fmt.Errorf("close world: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	b.log.Debug("World saved on close.", "world", w.Name())
	return nil
}

func (b *Binding) handleShutdown(*world.ServerShutdown) error {
	b.mu.Lock()
	clear(b.observing)
	clear(b.watching)
	b.mu.Unlock()
	return nil
}
