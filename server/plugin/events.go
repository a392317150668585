package plugin

import (
	"github.com/df-mc/worldcore/server/world"
)

// PluginEvents exposes registration helpers for subscribing to the world
// events of the server. Handlers are owned by the plugin: they are removed when
// it is disabled, and a handler that panics disables the plugin.
type PluginEvents[S any, C any] struct {
	api *API[S, C]
}

func (pe *PluginEvents[S, C]) registrar() world.Registrar {
	return pe.api.manager.bus.Scope(pe.api.Name())
}

// On registers h for every event of the kind passed. The returned function
// removes the handler when called.
func (pe *PluginEvents[S, C]) On(kind world.EventKind, h world.Handler) func() {
	if pe == nil || h == nil {
		return func() {}
	}
	return pe.registrar().On(kind, h)
}

// OnCreated registers a handler for *world.Created events.
func (pe *PluginEvents[S, C]) OnCreated(fn func(*world.Created) error) func() {
	return onTyped(pe, fn)
}

// OnChunkQuery registers a handler for *world.ChunkQuery events.
func (pe *PluginEvents[S, C]) OnChunkQuery(fn func(*world.ChunkQuery) error) func() {
	return onTyped(pe, fn)
}

// OnChunkStore registers a handler for *world.ChunkStore events.
func (pe *PluginEvents[S, C]) OnChunkStore(fn func(*world.ChunkStore) error) func() {
	return onTyped(pe, fn)
}

// OnSave registers a handler for *world.Save events.
func (pe *PluginEvents[S, C]) OnSave(fn func(*world.Save) error) func() {
	return onTyped(pe, fn)
}

// OnDestroyed registers a handler for *world.Destroyed events.
func (pe *PluginEvents[S, C]) OnDestroyed(fn func(*world.Destroyed) error) func() {
	return onTyped(pe, fn)
}

// OnShutdown registers a handler for the *world.ServerShutdown event.
func (pe *PluginEvents[S, C]) OnShutdown(fn func(*world.ServerShutdown) error) func() {
	return onTyped(pe, fn)
}

// Registrar returns a world.Registrar registering handlers on behalf of the
// plugin, for use with world.Handle or packages that register a set of
// handlers at once.
func (pe *PluginEvents[S, C]) Registrar() world.Registrar {
	return pe.registrar()
}

// Clear removes all handlers previously registered by the plugin.
func (pe *PluginEvents[S, C]) Clear() {
	if pe == nil {
		return
	}
	pe.api.manager.bus.Clear(pe.api.Name())
}

func onTyped[S any, C any, E world.Event](pe *PluginEvents[S, C], fn func(E) error) func() {
	if pe == nil || fn == nil {
		return func() {}
	}
	return world.Handle(pe.registrar(), fn)
}
