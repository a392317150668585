package plugin

import "errors"

// Plugin is an extension handling world events for the server. The
// persistence backends are plugins built into the binary; others are loaded
// from Go plugin files.
type Plugin interface {
	// Name returns the name the plugin is known by. Names are compared
	// ignoring case and must be unique among the loaded plugins.
	Name() string
	// Close releases the resources of the plugin. It is called once, when
	// the plugin is disabled or the server shuts down.
	Close() error
}

// VersionedPlugin is a Plugin reporting its version.
type VersionedPlugin interface {
	Version() string
}

// PluginFactory creates a Plugin. Plugin files export one under one of the
// names InitPlugin, Init, NewPlugin or New. Handlers the factory registers are
// live as soon as it returns.
type PluginFactory[S any, C any] func(api *API[S, C]) (Plugin, error)

// Info describes a loaded plugin.
type Info struct {
	Name    string
	Version string
	// Path is the plugin file, or empty for a built-in plugin.
	Path    string
	Builtin bool
}

var (
	// ErrDisabled is returned by Manager.Enable if plugin files are disabled.
	ErrDisabled = errors.New("plugin files disabled")
	// ErrAlreadyLoaded is returned by Manager.Enable for a file already
	// loaded.
	ErrAlreadyLoaded = errors.New("plugin already loaded")
	// ErrNameConflict is returned if a loaded plugin has the same name.
	ErrNameConflict = errors.New("plugin name already registered")
	// ErrNotFound is returned for the name of a plugin that is not loaded.
	ErrNotFound = errors.New("plugin not found")
)
