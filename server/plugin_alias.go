package server

import "github.com/df-mc/worldcore/server/plugin"

type (
	Plugin          = plugin.Plugin
	VersionedPlugin = plugin.VersionedPlugin
	PluginFactory   = plugin.PluginFactory[*Server, Config]
	PluginInfo      = plugin.Info
	PluginAPI       = plugin.API[*Server, Config]
)

var (
	ErrPluginsDisabled     = plugin.ErrDisabled
	ErrPluginAlreadyLoaded = plugin.ErrAlreadyLoaded
	ErrPluginNameConflict  = plugin.ErrNameConflict
	ErrPluginNotFound      = plugin.ErrNotFound
)

// RegisterPlugin enables a plugin compiled into the binary. Worlds created
// before the plugin was registered do not receive a *world.Created event for
// it.
func (srv *Server) RegisterPlugin(name string, factory PluginFactory) (PluginInfo, error) {
	if srv.closed.Load() {
		return PluginInfo{}, ErrClosed
	}
	return srv.plugins.Register(name, factory)
}
