package world

import (
	"log/slog"

	"github.com/df-mc/worldcore/server/event"
)

// EventKind identifies one of the events dispatched on a Bus.
type EventKind uint8

const (
	// EventWorldCreated is dispatched once a World became active, so that a
	// persistence plugin may hydrate its spawn and time.
	EventWorldCreated EventKind = iota
	// EventChunkQuery is dispatched when a chunk is not cached by the World.
	EventChunkQuery
	// EventChunkStore is dispatched when a chunk is replaced.
	EventChunkStore
	// EventWorldSave is dispatched to persist a World.
	EventWorldSave
	// EventWorldDestroyed is dispatched when a World is being destroyed.
	EventWorldDestroyed
	// EventServerShutdown is dispatched once after all worlds are destroyed.
	EventServerShutdown
)

// String ...
func (k EventKind) String() string {
	switch k {
	case EventWorldCreated:
		return "world-created"
	case EventChunkQuery:
		return "chunk-query"
	case EventChunkStore:
		return "chunk-store"
	case EventWorldSave:
		return "world-save"
	case EventWorldDestroyed:
		return "world-destroyed"
	case EventServerShutdown:
		return "server-shutdown"
	}
	return "unknown"
}

// Event is one of the event variants in this package: *Created, *ChunkQuery,
// *ChunkStore, *Save, *Destroyed or *ServerShutdown.
type Event interface {
	Kind() EventKind
	event()
}

// Bus is the event bus worlds dispatch their events on.
type Bus = event.Bus[EventKind, Event]

// Handler handles an Event dispatched on a Bus.
type Handler = event.Handler[Event]

// NewBus returns an empty Bus.
func NewBus(log *slog.Logger) *Bus {
	return event.New[EventKind, Event](log)
}

// Registrar registers handlers on a Bus on behalf of a single owner. It is
// implemented by *event.Scope[EventKind, Event].
type Registrar interface {
	On(kind EventKind, h Handler) func()
}

// Handle registers fn for the event variant E on r and returns a function that
// removes the registration. E must be one of the pointer event types of this
// package, such as *ChunkQuery.
func Handle[E Event](r Registrar, fn func(E) error) func() {
	var zero E
	return r.On(zero.Kind(), func(ev Event) error {
		e, ok := ev.(E)
		if !ok {
			return nil
		}
		return fn(e)
	})
}

// Created is dispatched after a World was created. Handlers may set its spawn
// and time. A returned error is logged and the World keeps its defaults.
type Created struct {
	World *World
}

// ChunkQuery asks handlers for the chunk at Pos. A handler that resolves the
// chunk sets Chunk; the World takes ownership of it.
type ChunkQuery struct {
	World *World
	Pos   ChunkPos
	Chunk *Chunk
}

// ChunkStore passes a replaced chunk to handlers. Chunk is owned by the World
// and must be copied if retained.
type ChunkStore struct {
	World *World
	Pos   ChunkPos
	Chunk *Chunk
}

// Save asks handlers to persist World durably.
type Save struct {
	World *World
}

// Destroyed is dispatched while World is being destroyed, before its players
// are disconnected.
type Destroyed struct {
	World *World
}

// ServerShutdown is dispatched once the server destroyed all of its worlds.
type ServerShutdown struct{}

func (*Created) Kind() EventKind        { return EventWorldCreated }
func (*ChunkQuery) Kind() EventKind     { return EventChunkQuery }
func (*ChunkStore) Kind() EventKind     { return EventChunkStore }
func (*Save) Kind() EventKind           { return EventWorldSave }
func (*Destroyed) Kind() EventKind      { return EventWorldDestroyed }
func (*ServerShutdown) Kind() EventKind { return EventServerShutdown }

func (*Created) event()        {}
func (*ChunkQuery) event()     {}
func (*ChunkStore) event()     {}
func (*Save) event()           {}
func (*Destroyed) event()      {}
func (*ServerShutdown) event() {}
