package world

import (
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/cases"
)

// DayLength is the number of ticks in a full day, after which the time of a
// World wraps to 0.
const DayLength = 24000

// firstEntityID is the first entity ID issued by a World. Lower IDs are
// reserved.
const firstEntityID EntityID = 10

type state int32

const (
	stateUninitialised state = iota
	stateActive
	stateDestroying
	stateGone
)

// World holds the players, entities, time and chunk cache of a single world.
// Loading and saving are delegated to handlers of the events the World
// dispatches on its Bus. All methods are safe for simultaneous calls.
type World struct {
	conf   Config
	log    *slog.Logger
	extent Extent

	state atomic.Int32

	// timeMu guards time only and is never held across a dispatch.
	timeMu sync.Mutex
	time   int

	spawnMu sync.Mutex
	spawn   BlockPos

	// pmu guards players, entities and lastID. Entity ID generation happens
	// under the write side together with insertion.
	pmu      sync.RWMutex
	players  map[string]*Player
	entities map[EntityID]Entity
	lastID   EntityID

	cmu    sync.RWMutex
	chunks map[ChunkPos]*Chunk
	// storeMu serialises SetChunk so that the *ChunkStore dispatch and the
	// cache update happen in the same order for concurrent writers.
	storeMu sync.Mutex
}

// New creates a World using the fields of conf and dispatches a *Created
// event. If a handler of the event fails, the failure is logged and the World
// remains usable with spawn (0, 0, 0) and time 0. An error is only returned for
// an invalid Config.
func (conf Config) New() (*World, error) {
	conf = conf.withDefaults()
	extent := *conf.Extent
	if err := extent.Validate(); err != nil {
		return nil, fmt.Errorf("world %s: %w", conf.Name, err)
	}
	w := &World{
		conf:     conf,
		log:      conf.Log.With("subsystem", "world", "world", conf.Name),
		extent:   extent,
		players:  make(map[string]*Player),
		entities: make(map[EntityID]Entity),
		lastID:   firstEntityID - 1,
		chunks:   make(map[ChunkPos]*Chunk),
	}
	w.state.Store(int32(stateActive))

	if err := conf.Bus.Dispatch(&Created{World: w}); err != nil {
		w.spawnMu.Lock()
		w.spawn = BlockPos{}
		w.spawnMu.Unlock()
		w.SetTime(0)
		w.log.Warn("Could not load world data, using defaults.", "error", err)
	} else {
		w.log.Debug("World loaded.", "spawn", w.Spawn(), "time", w.Time())
	}
	return w, nil
}

// Name returns the unique name of the World.
func (w *World) Name() string {
	return w.conf.Name
}

// Dimension returns the Dimension of the World.
func (w *World) Dimension() Dimension {
	return w.conf.Dim
}

// Extent returns the chunk extent the World may address.
func (w *World) Extent() Extent {
	return w.extent
}

// Generator returns the Generator configured for the World.
func (w *World) Generator() Generator {
	return w.conf.Generator
}

// Active reports if the World is active, that is, created and not yet being
// destroyed.
func (w *World) Active() bool {
	return state(w.state.Load()) == stateActive
}

// Time returns the current time of the World, between 0 and DayLength-1.
func (w *World) Time() int {
	w.timeMu.Lock()
	defer w.timeMu.Unlock()
	return w.time
}

// SetTime sets the time of the World. Values outside of a day are wrapped.
func (w *World) SetTime(t int) {
	t %= DayLength
	if t < 0 {
		t += DayLength
	}
	w.timeMu.Lock()
	w.time = t
	w.timeMu.Unlock()
}

// advanceTime moves the time of the World forward by n ticks and returns the
// new time.
func (w *World) advanceTime(n int) int {
	w.timeMu.Lock()
	defer w.timeMu.Unlock()
	w.time = (w.time + n) % DayLength
	return w.time
}

// Spawn returns the spawn position of the World.
func (w *World) Spawn() BlockPos {
	w.spawnMu.Lock()
	defer w.spawnMu.Unlock()
	return w.spawn
}

// SetSpawn sets the spawn position of the World. Players added afterwards are
// placed at its centre.
func (w *World) SetSpawn(pos BlockPos) {
	w.spawnMu.Lock()
	w.spawn = pos
	w.spawnMu.Unlock()
}

// key returns the registry key of a username.
func (w *World) key(name string) string {
	if w.conf.FoldNames {
		return cases.Fold().String(name)
	}
	return name
}

// AddPlayer adds p to the World and assigns it an entity ID. If the username of
// p is taken, the configured DuplicateNamePolicy either rejects the player with
// ErrUsernameTaken, leaving the World unchanged, or renames it by appending ^1,
// ^2, ... until the name is unique.
func (w *World) AddPlayer(p *Player) error {
	w.pmu.Lock()
	defer w.pmu.Unlock()
	if !w.Active() {
		return ErrClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.w != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyInWorld, p.w.Name())
	}

	name := p.name
	if _, taken := w.players[w.key(name)]; taken {
		if w.conf.DuplicateNames == RejectDuplicates {
			return fmt.Errorf("%w: %s", ErrUsernameTaken, name)
		}
		for i := 1; ; i++ {
			candidate := fmt.Sprintf("%s^%d", p.name, i)
			if _, taken := w.players[w.key(candidate)]; !taken {
				name = candidate
				break
			}
		}
	}

	if p.eid != 0 {
		panic(fmt.Sprintf("world %s: player %s holds entity ID %d outside a world", w.Name(), p.name, p.eid))
	}
	id := w.nextEntityID()
	if _, ok := w.entities[id]; ok {
		panic(fmt.Sprintf("world %s: entity ID %d issued twice", w.Name(), id))
	}
	p.name, p.w, p.eid, p.since = name, w, id, time.Now()
	p.pos = w.Spawn().Vec3Centre()

	w.players[w.key(name)] = p
	w.entities[id] = p
	w.log.Debug("Player added.", "player", name, "id", id)
	return nil
}

// RemovePlayer removes p from the World. It reports false if p was not part of
// the World. The Player is not disconnected and remains owned by the caller.
func (w *World) RemovePlayer(p *Player) bool {
	w.pmu.Lock()
	defer w.pmu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.w != w {
		return false
	}
	w.detach(p)
	return true
}

// detach removes p from both registries. w.pmu and p.mu must be held.
func (w *World) detach(p *Player) {
	if w.players[w.key(p.name)] != p || w.entities[p.eid] != Entity(p) {
		panic(fmt.Sprintf("world %s: player %s not registered under both its name and ID", w.Name(), p.name))
	}
	delete(w.players, w.key(p.name))
	delete(w.entities, p.eid)
	p.w, p.eid = nil, 0
}

// Player looks up a player by its username.
func (w *World) Player(name string) (*Player, bool) {
	w.pmu.RLock()
	defer w.pmu.RUnlock()
	p, ok := w.players[w.key(name)]
	return p, ok
}

// PlayerByID looks up a player by its entity ID.
func (w *World) PlayerByID(id EntityID) (*Player, bool) {
	w.pmu.RLock()
	defer w.pmu.RUnlock()
	p, ok := w.entities[id].(*Player)
	return p, ok
}

// Players returns a snapshot of the players in the World, ordered by entity ID.
func (w *World) Players() []*Player {
	w.pmu.RLock()
	players := slices.Collect(maps.Values(w.players))
	w.pmu.RUnlock()

	slices.SortFunc(players, func(a, b *Player) int {
		return int(a.EntityID()) - int(b.EntityID())
	})
	return players
}

// PlayerCount returns the number of players in the World.
func (w *World) PlayerCount() int {
	w.pmu.RLock()
	defer w.pmu.RUnlock()
	return len(w.players)
}

// GenerateEntityID returns a new entity ID. IDs start at 10 and strictly
// increase; 0 is never returned.
func (w *World) GenerateEntityID() EntityID {
	w.pmu.Lock()
	defer w.pmu.Unlock()
	return w.nextEntityID()
}

// nextEntityID issues the next entity ID. w.pmu must be held for writing.
func (w *World) nextEntityID() EntityID {
	if w.lastID == math.MaxInt32 {
		panic(fmt.Sprintf("world %s: entity IDs exhausted", w.Name()))
	}
	w.lastID++
	return w.lastID
}

// AddEntity adds an entity whose ID was obtained from GenerateEntityID. Adding
// an entity with ID 0, an ID not issued by this World or an ID already in use
// is a programming error and panics. Players must be added with AddPlayer.
func (w *World) AddEntity(e Entity) error {
	if p, ok := e.(*Player); ok {
		return w.AddPlayer(p)
	}
	w.pmu.Lock()
	defer w.pmu.Unlock()
	if !w.Active() {
		return ErrClosed
	}
	id := e.EntityID()
	if id < firstEntityID || id > w.lastID {
		panic(fmt.Sprintf("world %s: entity ID %d was not issued by this world", w.Name(), id))
	}
	if _, ok := w.entities[id]; ok {
		panic(fmt.Sprintf("world %s: entity ID %d already in use", w.Name(), id))
	}
	w.entities[id] = e
	return nil
}

// RemoveEntity removes the entity with the ID passed. Players are removed from
// both registries as with RemovePlayer.
func (w *World) RemoveEntity(id EntityID) bool {
	w.pmu.RLock()
	e, ok := w.entities[id]
	w.pmu.RUnlock()
	if !ok {
		return false
	}
	if p, ok := e.(*Player); ok {
		return w.RemovePlayer(p)
	}
	w.pmu.Lock()
	defer w.pmu.Unlock()
	if w.entities[id] != e {
		return false
	}
	delete(w.entities, id)
	return true
}

// Entity looks up an entity by its ID.
func (w *World) Entity(id EntityID) (Entity, bool) {
	w.pmu.RLock()
	defer w.pmu.RUnlock()
	e, ok := w.entities[id]
	return e, ok
}

// EntityCount returns the number of entities, players included, in the World.
func (w *World) EntityCount() int {
	w.pmu.RLock()
	defer w.pmu.RUnlock()
	return len(w.entities)
}

// Chunk returns a copy of the chunk at pos. Cached chunks are returned
// directly; otherwise a *ChunkQuery is dispatched and its result is cached if
// the query succeeded.
func (w *World) Chunk(pos ChunkPos) (*Chunk, error) {
	if err := w.extent.Check(pos); err != nil {
		return nil, err
	}
	if !w.Active() {
		return nil, ErrClosed
	}
	w.cmu.RLock()
	c, ok := w.chunks[pos]
	if ok {
		c = c.Clone()
	}
	w.cmu.RUnlock()
	if ok {
		return c, nil
	}

	q := &ChunkQuery{World: w, Pos: pos}
	if err := w.conf.Bus.Dispatch(q); err != nil {
		return nil, fmt.Errorf("query chunk %v: %w", pos, err)
	}
	if q.Chunk == nil {
		return nil, fmt.Errorf("query chunk %v: %w", pos, ErrChunkUnavailable)
	}

	w.cmu.Lock()
	defer w.cmu.Unlock()
	if existing, ok := w.chunks[pos]; ok {
		// Another goroutine cached the chunk while it was queried.
		return existing.Clone(), nil
	}
	w.chunks[pos] = q.Chunk
	return q.Chunk.Clone(), nil
}

// SetChunk replaces the chunk at pos with a copy of c. A *ChunkStore event is
// dispatched first; the World's cache is only updated if it succeeds. Calls to
// SetChunk are serialised, so handlers of *ChunkStore must not call it.
func (w *World) SetChunk(pos ChunkPos, c *Chunk) error {
	if err := w.extent.Check(pos); err != nil {
		return err
	}
	cp := c.Clone()

	w.storeMu.Lock()
	defer w.storeMu.Unlock()
	if !w.Active() {
		return ErrClosed
	}
	if err := w.conf.Bus.Dispatch(&ChunkStore{World: w, Pos: pos, Chunk: cp}); err != nil {
		return fmt.Errorf("store chunk %v: %w", pos, err)
	}
	w.cmu.Lock()
	w.chunks[pos] = cp
	w.cmu.Unlock()
	return nil
}

// LoadedChunkCount returns the number of chunks cached by the World.
func (w *World) LoadedChunkCount() int {
	w.cmu.RLock()
	defer w.cmu.RUnlock()
	return len(w.chunks)
}

// Save dispatches a *Save event so that persistence plugins write the World to
// durable storage.
func (w *World) Save() error {
	if !w.Active() {
		return ErrClosed
	}
	if err := w.conf.Bus.Dispatch(&Save{World: w}); err != nil {
		return fmt.Errorf("save world %s: %w", w.Name(), err)
	}
	w.log.Debug("World saved.")
	return nil
}

// BroadcastMessage sends a chat message to every connected player and returns
// the number of players it was delivered to.
func (w *World) BroadcastMessage(msg string) int {
	return w.broadcast(func(c Conn) error { return c.WriteMessage(msg) })
}

// BroadcastBuffer sends a pre-encoded buffer to every connected player and
// returns the number of players it was delivered to.
func (w *World) BroadcastBuffer(b []byte) int {
	return w.broadcast(func(c Conn) error { return c.WriteBuffer(b) })
}

// broadcast runs send for every player in a snapshot of the registry. No
// world lock is held while sending; each send holds only the status lock of
// its own player.
func (w *World) broadcast(send func(Conn) error) int {
	delivered := 0
	for _, p := range w.Players() {
		if !p.Connected() {
			continue
		}
		if err := p.send(send, w.conf.SendTimeout); err != nil {
			w.log.Debug("broadcast: "+err.Error(), "player", p.Name())
			continue
		}
		delivered++
	}
	return delivered
}

// Destroy dispatches a *Destroyed event, disconnects every remaining player
// and releases the players, entities and chunks held by the World. Subsequent
// calls return ErrClosed. The error of the event dispatch is returned after
// the World has been torn down regardless.
func (w *World) Destroy() error {
	if !w.state.CompareAndSwap(int32(stateActive), int32(stateDestroying)) {
		return ErrClosed
	}
	err := w.conf.Bus.Dispatch(&Destroyed{World: w})
	if err != nil {
		w.log.Error("destroy world: " + err.Error())
		err = fmt.Errorf("destroy world %s: %w", w.Name(), err)
	}

	w.pmu.Lock()
	players := slices.Collect(maps.Values(w.players))
	for _, p := range players {
		p.mu.Lock()
		w.detach(p)
		p.mu.Unlock()
	}
	clear(w.entities)
	w.pmu.Unlock()

	for _, p := range players {
		if dErr := p.Disconnect("World closed."); dErr != nil {
			w.log.Debug("disconnect player: "+dErr.Error(), "player", p.Name())
		}
	}

	w.cmu.Lock()
	clear(w.chunks)
	w.cmu.Unlock()

	w.state.Store(int32(stateGone))
	w.log.Debug("World destroyed.", "players", len(players))
	return err
}
