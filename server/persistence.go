package server

import (
	"fmt"
	"path/filepath"

	"github.com/df-mc/worldcore/server/world/chunkstore"
	"github.com/df-mc/worldcore/server/world/leveldb"
	"github.com/df-mc/worldcore/server/world/nbtfile"
	"github.com/df-mc/worldcore/server/world/persist"
)

// persistencePlugin is the built-in plugin loading and saving worlds through a
// chunk store.
type persistencePlugin struct {
	name    string
	binding *persist.Binding
}

// Name ...
func (p *persistencePlugin) Name() string { return p.name }

// Version ...
func (p *persistencePlugin) Version() string { return "1.0.0" }

// Close removes the handlers of the plugin and closes the worlds still open in
// its store together with the backend.
func (p *persistencePlugin) Close() error {
	p.binding.Unregister()
	return p.binding.Store().Shutdown()
}

// Binding returns the persistence binding of the plugin.
func (p *persistencePlugin) Binding() *persist.Binding {
	return p.binding
}

// persistenceFactory returns the name and factory of the built-in persistence
// plugin selected by conf. ok is false if persistence is disabled.
func persistenceFactory(conf PersistenceConfig) (name string, factory PluginFactory, ok bool) {
	backend := conf.Backend
	if backend == "" {
		backend = BackendNBT
	}
	if backend == BackendNone {
		return "", nil, false
	}
	name = "persistence." + backend
	return name, func(api *PluginAPI) (Plugin, error) {
		log := api.Logger()
		var (
			b   chunkstore.Backend
			err error
		)
		switch backend {
		case BackendNBT:
			b, err = nbtfile.Config{Log: log, Root: conf.Path, Base: conf.PathBase}.New()
		case BackendLevelDB:
			b, err = leveldb.Config{Log: log, Dir: levelDBDir(conf.Path)}.Open()
		case BackendMemory:
			b = chunkstore.NewMemoryBackend()
		default:
			err = fmt.Errorf("unknown backend %q", backend)
		}
		if err != nil {
			return nil, fmt.Errorf("open %s backend: %w", backend, err)
		}
		binding := persist.Config{
			Log:         log,
			Store:       chunkstore.Config{Log: log, Backend: b}.New(),
			SaveOnClose: conf.SaveOnClose,
		}.New()
		binding.Register(api.Events().Registrar())
		return &persistencePlugin{name: name, binding: binding}, nil
	}, true
}

// levelDBDir returns the database directory of BackendLevelDB below the worlds
// root.
func levelDBDir(root string) string {
	if root == "" {
		root = nbtfile.DefaultRoot
	}
	return filepath.Join(root, "db")
}

// Persistence returns the binding of the built-in persistence plugin, or false
// if persistence is disabled.
func (srv *Server) Persistence() (*persist.Binding, bool) {
	p, ok := srv.plugins.Plugin(srv.persistenceName)
	if !ok {
		return nil, false
	}
	pp, ok := p.(*persistencePlugin)
	if !ok {
		return nil, false
	}
	return pp.binding, true
}
