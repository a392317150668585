package plugin

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/df-mc/worldcore/server/world"
)

// API is the handle through which a plugin reaches the server. Every plugin
// gets its own API; it stays usable after the plugin was disabled, but its
// Context is cancelled by then.
type API[S any, C any] struct {
	manager *Manager[S, C]
	host    Host[S, C]
	ctx     context.Context

	mu      sync.RWMutex
	name    string
	dataDir string
}

func newAPI[S any, C any](manager *Manager[S, C], host Host[S, C], name string, ctx context.Context) *API[S, C] {
	return &API[S, C]{manager: manager, host: host, ctx: ctx, name: name, dataDir: manager.paths.dataDir(name)}
}

func (api *API[S, C]) setName(name string) {
	api.mu.Lock()
	api.name = name
	api.mu.Unlock()
}

func (api *API[S, C]) setDataDirectory(dir string) {
	api.mu.Lock()
	api.dataDir = filepath.Clean(dir)
	api.mu.Unlock()
}

// Name returns the name the plugin is registered under.
func (api *API[S, C]) Name() string {
	api.mu.RLock()
	defer api.mu.RUnlock()
	return api.name
}

// Context returns a context cancelled once the plugin is disabled.
func (api *API[S, C]) Context() context.Context {
	return api.ctx
}

// DataDirectory returns the directory the plugin may keep its files in.
func (api *API[S, C]) DataDirectory() string {
	api.mu.RLock()
	defer api.mu.RUnlock()
	return api.dataDir
}

var errDataPath = errors.New("data path must be relative and within the data directory")

// dataPath joins name onto the data directory, rejecting paths that leave it.
func (api *API[S, C]) dataPath(name string) (string, error) {
	dir := api.DataDirectory()
	if name == "" || filepath.IsAbs(name) {
		return "", errDataPath
	}
	path := filepath.Join(dir, name)
	if rel, err := filepath.Rel(dir, path); err != nil || escapes(rel) {
		return "", errDataPath
	}
	return path, nil
}

// EnsureDataSubdir creates the directory name within the data directory and
// returns its path. An empty name creates the data directory itself.
func (api *API[S, C]) EnsureDataSubdir(name string) (string, error) {
	path := api.DataDirectory()
	if name != "" {
		var err error
		if path, err = api.dataPath(name); err != nil {
			return "", err
		}
	}
	return path, os.MkdirAll(path, 0o755)
}

// OpenDataFile opens the file name within the data directory as os.OpenFile
// does, creating its parent directories first. A zero perm means 0644.
func (api *API[S, C]) OpenDataFile(name string, flag int, perm fs.FileMode) (*os.File, error) {
	path, err := api.dataPath(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if perm == 0 {
		perm = 0o644
	}
	return os.OpenFile(path, flag, perm)
}

// guard runs fn, disabling the plugin if fn panics.
func (api *API[S, C]) guard(fn func()) {
	name := api.Name()
	defer func() {
		if r := recover(); r != nil {
			api.manager.panicked(name, r)
		}
	}()
	fn()
}

// Go runs fn on a new goroutine with the Context of the plugin. A panic in fn
// disables the plugin.
func (api *API[S, C]) Go(fn func(context.Context)) {
	if fn == nil {
		return
	}
	go api.guard(func() { fn(api.ctx) })
}

// Submit queues job on the job queue of the server. A panic in job disables the
// plugin.
func (api *API[S, C]) Submit(job func()) error {
	if job == nil {
		return nil
	}
	return api.host.Submit(func() { api.guard(job) })
}

// Server returns the server the plugin runs in.
func (api *API[S, C]) Server() S { return api.host.Instance() }

// Config returns the configuration of the server.
func (api *API[S, C]) Config() C { return api.host.Config() }

// StartTime returns the time the server was started.
func (api *API[S, C]) StartTime() time.Time { return api.host.StartTime() }

// Logger returns the server logger with the plugin name attached.
func (api *API[S, C]) Logger() *slog.Logger {
	log := api.host.Logger()
	if log == nil {
		log = slog.Default()
	}
	return log.With("plugin", api.Name())
}

// World looks up a world by its name.
func (api *API[S, C]) World(name string) (*world.World, bool) { return api.host.World(name) }

// DefaultWorld returns the world players join by default.
func (api *API[S, C]) DefaultWorld() *world.World { return api.host.DefaultWorld() }

// Worlds returns the worlds of the server.
func (api *API[S, C]) Worlds() []*world.World { return api.host.Worlds() }

// PlayerCount returns the number of players in all worlds.
func (api *API[S, C]) PlayerCount() int { return api.host.PlayerCount() }

// PlayerSummaries returns metadata snapshots for all players in all worlds.
func (api *API[S, C]) PlayerSummaries() []PlayerSummary {
	var out []PlayerSummary
	for _, w := range api.host.Worlds() {
		for _, p := range w.Players() {
			out = append(out, Summarise(p))
		}
	}
	return out
}

// PlayerSummary returns metadata for a player by its username, searching every
// world.
func (api *API[S, C]) PlayerSummary(name string) (PlayerSummary, bool) {
	for _, w := range api.host.Worlds() {
		if p, ok := w.Player(name); ok {
			return Summarise(p), true
		}
	}
	return PlayerSummary{}, false
}

// MessagePlayer sends a chat message to the player with the username passed.
// It reports false if no such player is online or the message could not be
// delivered.
func (api *API[S, C]) MessagePlayer(name, message string) bool {
	for _, w := range api.host.Worlds() {
		if p, ok := w.Player(name); ok {
			return p.Message(message) == nil
		}
	}
	return false
}

// Broadcast sends a chat message to the players of every world and returns the
// number of players it was delivered to.
func (api *API[S, C]) Broadcast(message string) int {
	n := 0
	for _, w := range api.host.Worlds() {
		n += w.BroadcastMessage(message)
	}
	return n
}

// DisconnectPlayer disconnects the player with the username passed, showing
// reason.
func (api *API[S, C]) DisconnectPlayer(name, reason string) bool {
	for _, w := range api.host.Worlds() {
		if p, ok := w.Player(name); ok {
			w.RemovePlayer(p)
			_ = p.Disconnect(reason)
			return true
		}
	}
	return false
}

// CloseServer starts a graceful shutdown of the server.
func (api *API[S, C]) CloseServer() error { return api.host.Close() }

// Plugins returns the loaded plugins in load order.
func (api *API[S, C]) Plugins() []Info { return api.manager.Infos() }

// Plugin looks up another loaded plugin by its name.
func (api *API[S, C]) Plugin(name string) (Plugin, bool) { return api.manager.Plugin(name) }

// EnablePlugin enables the plugin file at path.
func (api *API[S, C]) EnablePlugin(path string) (Info, error) { return api.manager.Enable(path) }

// DisablePlugin disables the plugin with the name passed.
func (api *API[S, C]) DisablePlugin(name string) (Info, error) { return api.manager.Disable(name) }

// ReloadPlugin disables and enables the plugin with the name passed.
func (api *API[S, C]) ReloadPlugin(name string) (Info, error) { return api.manager.Reload(name) }

// PluginsEnabled reports if plugin files are loaded.
func (api *API[S, C]) PluginsEnabled() bool { return api.manager.Enabled() }

// PluginDirectory returns the directory holding plugin files.
func (api *API[S, C]) PluginDirectory() string { return api.manager.Directory() }

// PluginDataRoot returns the parent of all plugin data directories.
func (api *API[S, C]) PluginDataRoot() string { return api.manager.DataRoot() }

// ResolvePluginPath resolves a relative path against the plugin directory.
func (api *API[S, C]) ResolvePluginPath(path string) string { return api.manager.ResolvePath(path) }

// Events returns helpers registering world event handlers owned by the plugin.
func (api *API[S, C]) Events() *PluginEvents[S, C] {
	return &PluginEvents[S, C]{api: api}
}
