package plugin

import (
	"log/slog"
	"time"

	"github.com/df-mc/worldcore/server/world"
)

// Host exposes the subset of server functionality required by the plugin
// manager and APIs.
type Host[S any, C any] interface {
	// Instance returns the underlying server value.
	Instance() S
	// Config returns a snapshot of the server configuration.
	Config() C
	// Logger returns the logger used for structured diagnostics.
	Logger() *slog.Logger
	// StartTime reports the time the server was started.
	StartTime() time.Time
	// Bus returns the event bus shared by all worlds of the server.
	Bus() *world.Bus
	// World looks up a world by its name.
	World(name string) (*world.World, bool)
	// DefaultWorld returns the world players join by default.
	DefaultWorld() *world.World
	// Worlds returns every world managed by the server.
	Worlds() []*world.World
	// PlayerCount returns the number of players across all worlds.
	PlayerCount() int
	// Submit queues a job on the server's worker pool.
	Submit(job func()) error
	// Close shuts the underlying server down.
	Close() error
}
