package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	goplugin "plugin"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"github.com/df-mc/worldcore/server/world"
)

// factorySymbols are the exported names looked up in a plugin file, in order.
var factorySymbols = []string{"InitPlugin", "Init", "NewPlugin", "New"}

type instance[S any, C any] struct {
	Info
	plugin Plugin
	api    *API[S, C]
	cancel context.CancelFunc
	// factory is kept for built-in plugins so that they may be reloaded.
	factory PluginFactory[S, C]
}

// Manager owns the lifecycle of the plugins of a server. Every event handler a
// plugin registers through its API is owned by that plugin on the world bus of
// the host: the handlers are removed when the plugin is disabled, and a
// handler that panics disables the plugin.
type Manager[S any, C any] struct {
	host       Host[S, C]
	cfg        Config
	paths      layout
	log        *slog.Logger
	runtimeLog *slog.Logger
	bus        *world.Bus

	once   sync.Once
	mu     sync.RWMutex
	loaded []*instance[S, C]
}

// NewManager returns a Manager for the host passed. A nil Bus of the host is
// replaced with a private one.
func NewManager[S any, C any](host Host[S, C], cfg Config) *Manager[S, C] {
	cfg.Files = slices.Clone(cfg.Files)
	log := host.Logger()
	if log == nil {
		log = slog.Default()
	}
	m := &Manager[S, C]{
		host:       host,
		cfg:        cfg,
		paths:      newLayout(cfg),
		log:        log,
		runtimeLog: log.With("subsystem", "plugin.runtime"),
		bus:        host.Bus(),
	}
	if m.bus == nil {
		m.bus = world.NewBus(log)
	}
	m.bus.OnPanic(m.panicked)
	return m
}

// Enabled reports if plugin files are loaded.
func (m *Manager[S, C]) Enabled() bool { return m.cfg.Enabled }

// Directory returns the directory holding plugin files.
func (m *Manager[S, C]) Directory() string { return m.paths.dir }

// DataRoot returns the parent directory of the plugin data directories.
func (m *Manager[S, C]) DataRoot() string { return m.paths.data }

// ResolvePath resolves a relative path against Directory.
func (m *Manager[S, C]) ResolvePath(path string) string { return m.paths.resolve(path) }

// Bus returns the bus plugin handlers are registered on.
func (m *Manager[S, C]) Bus() *world.Bus { return m.bus }

// LoadConfigured enables the plugin files named by the Config. Only the first
// call has an effect.
func (m *Manager[S, C]) LoadConfigured() {
	m.once.Do(m.loadConfigured)
}

// Infos returns the plugins loaded in load order.
func (m *Manager[S, C]) Infos() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]Info, len(m.loaded))
	for i, inst := range m.loaded {
		infos[i] = inst.Info
	}
	return infos
}

// Plugin looks up a loaded plugin by its name, ignoring case.
func (m *Manager[S, C]) Plugin(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.index(name); i >= 0 {
		return m.loaded[i].plugin, true
	}
	return nil, false
}

// index returns the position of the plugin named name in m.loaded, or -1. m.mu
// must be held.
func (m *Manager[S, C]) index(name string) int {
	return slices.IndexFunc(m.loaded, func(inst *instance[S, C]) bool {
		return strings.EqualFold(inst.Name, name)
	})
}

// Register enables a plugin compiled into the binary, whether or not plugin
// files are enabled. name is used until the plugin reports its own name.
func (m *Manager[S, C]) Register(name string, factory PluginFactory[S, C]) (Info, error) {
	if factory == nil {
		return Info{}, fmt.Errorf("register plugin %s: nil factory", name)
	}
	if strings.TrimSpace(name) == "" {
		name = "plugin"
	}
	inst, err := m.start(name, factory, "Register")
	if err != nil {
		return Info{}, err
	}
	inst.Builtin, inst.factory = true, factory
	if err := m.add(inst); err != nil {
		return Info{}, err
	}
	m.logEnabled(inst, "")
	return inst.Info, nil
}

// Enable opens the plugin file at path and enables the plugin returned by its
// factory.
func (m *Manager[S, C]) Enable(path string) (Info, error) {
	if !m.cfg.Enabled {
		return Info{}, ErrDisabled
	}
	if err := os.MkdirAll(m.paths.dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("prepare plugin directory: %w", err)
	}
	path = m.paths.resolve(path)

	m.mu.RLock()
	i := slices.IndexFunc(m.loaded, func(inst *instance[S, C]) bool { return !inst.Builtin && inst.Path == path })
	if i >= 0 {
		info := m.loaded[i].Info
		m.mu.RUnlock()
		return info, ErrAlreadyLoaded
	}
	m.mu.RUnlock()

	mod, err := goplugin.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open plugin: %w", err)
	}
	factory, symbol, err := lookupFactory[S, C](mod)
	if err != nil {
		return Info{}, fmt.Errorf("locate plugin factory: %w", err)
	}
	inst, err := m.start(baseName(path), factory, symbol)
	if err != nil {
		return Info{}, err
	}
	inst.Path = path
	if err := m.add(inst); err != nil {
		return Info{}, err
	}
	m.logEnabled(inst, symbol)
	return inst.Info, nil
}

// start runs factory with a new API. Handlers registered by a factory that
// fails are removed again.
func (m *Manager[S, C]) start(name string, factory PluginFactory[S, C], symbol string) (inst *instance[S, C], err error) {
	ctx, cancel := context.WithCancel(context.Background())
	api := newAPI(m, m.host, name, ctx)
	if err := os.MkdirAll(api.DataDirectory(), 0o755); err != nil {
		cancel()
		return nil, fmt.Errorf("create plugin data directory: %w", err)
	}
	defer func() {
		if err != nil {
			cancel()
			m.bus.Clear(api.Name())
		}
	}()

	p, err := m.initialise(factory, api)
	switch {
	case err != nil:
		return nil, fmt.Errorf("initialise plugin via %s: %w", symbol, err)
	case p == nil:
		return nil, fmt.Errorf("initialise plugin via %s: factory returned nil", symbol)
	}

	if own := p.Name(); own != "" && own != name {
		m.bus.Rename(name, own)
		api.setName(own)
		if err := m.paths.moveData(api.DataDirectory(), m.paths.dataDir(own)); err != nil {
			m.runtimeLog.Error("move plugin data: "+err.Error(), "plugin", own)
		} else {
			api.setDataDirectory(m.paths.dataDir(own))
		}
	}
	inst = &instance[S, C]{Info: Info{Name: api.Name()}, plugin: p, api: api, cancel: cancel}
	if v, ok := p.(VersionedPlugin); ok {
		inst.Version = v.Version()
	}
	return inst, nil
}

// initialise calls factory, turning a panic into an error.
func (m *Manager[S, C]) initialise(factory PluginFactory[S, C], api *API[S, C]) (p Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("factory panicked: %v", r)
		}
	}()
	return factory(api)
}

// add appends inst to the loaded plugins. If its name is taken, inst is closed
// and ErrNameConflict is returned.
func (m *Manager[S, C]) add(inst *instance[S, C]) error {
	m.mu.Lock()
	if m.index(inst.Name) < 0 {
		m.loaded = append(m.loaded, inst)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	inst.cancel()
	if err := inst.plugin.Close(); err != nil {
		m.log.Error("close conflicting plugin: "+err.Error(), "name", inst.Name)
	}
	return fmt.Errorf("%w: %s", ErrNameConflict, inst.Name)
}

func (m *Manager[S, C]) logEnabled(inst *instance[S, C], symbol string) {
	attrs := []any{"name", inst.Name}
	if inst.Version != "" {
		attrs = append(attrs, "version", inst.Version)
	}
	if inst.Builtin {
		attrs = append(attrs, "builtin", true)
	} else {
		attrs = append(attrs, "path", inst.Path, "symbol", symbol)
	}
	m.log.Info("Plugin enabled.", attrs...)
}

// stop removes the handlers of inst and closes it.
func (m *Manager[S, C]) stop(inst *instance[S, C]) error {
	m.bus.Clear(inst.Name)
	if err := inst.plugin.Close(); err != nil {
		return err
	}
	inst.cancel()
	m.log.Info("Plugin disabled.", "name", inst.Name)
	return nil
}

// Disable disables the plugin with the name passed, ignoring case. If closing
// the plugin fails, it stays loaded without its handlers.
func (m *Manager[S, C]) Disable(name string) (Info, error) {
	m.mu.Lock()
	i := m.index(name)
	if i < 0 {
		m.mu.Unlock()
		return Info{}, ErrNotFound
	}
	inst := m.loaded[i]
	m.loaded = slices.Delete(m.loaded, i, i+1)
	m.mu.Unlock()

	if err := m.stop(inst); err != nil {
		m.mu.Lock()
		m.loaded = slices.Insert(m.loaded, min(i, len(m.loaded)), inst)
		m.mu.Unlock()
		return Info{}, fmt.Errorf("close plugin: %w", err)
	}
	return inst.Info, nil
}

// Reload disables the plugin with the name passed and enables it again from
// its file or factory.
func (m *Manager[S, C]) Reload(name string) (Info, error) {
	var factory PluginFactory[S, C]
	m.mu.RLock()
	if i := m.index(name); i >= 0 {
		factory = m.loaded[i].factory
	}
	m.mu.RUnlock()

	info, err := m.Disable(name)
	if err != nil {
		return Info{}, err
	}
	if info.Builtin {
		info, err = m.Register(info.Name, factory)
	} else {
		info, err = m.Enable(info.Path)
	}
	if err != nil {
		return Info{}, err
	}
	m.log.Info("Plugin reloaded.", "name", info.Name)
	return info, nil
}

// DisableAll disables the loaded plugins in reverse load order and returns them
// in the order they were disabled. It stops at the first plugin that fails to
// close.
func (m *Manager[S, C]) DisableAll() ([]Info, error) {
	infos := m.Infos()
	disabled := make([]Info, 0, len(infos))
	for _, info := range slices.Backward(infos) {
		if _, err := m.Disable(info.Name); err != nil {
			return disabled, err
		}
		disabled = append(disabled, info)
	}
	return disabled, nil
}

// Shutdown disables every plugin in reverse load order. Close errors are
// logged and do not stop the shutdown.
func (m *Manager[S, C]) Shutdown() {
	m.mu.Lock()
	loaded := m.loaded
	m.loaded = nil
	m.mu.Unlock()

	for _, inst := range slices.Backward(loaded) {
		if err := m.stop(inst); err != nil {
			inst.cancel()
			m.log.Error("disable plugin: "+err.Error(), "name", inst.Name)
		}
	}
}

func (m *Manager[S, C]) loadConfigured() {
	if !m.cfg.Enabled {
		m.log.Debug("Plugin files disabled.")
		return
	}
	if err := os.MkdirAll(m.paths.dir, 0o755); err != nil {
		m.log.Error("create plugin directory: "+err.Error(), "dir", m.paths.dir)
		return
	}
	var paths []string
	if m.cfg.Autoload {
		files, err := m.paths.pluginFiles()
		if err != nil {
			m.log.Error("read plugin directory: "+err.Error(), "dir", m.paths.dir)
		}
		paths = files
	}
	for _, f := range m.cfg.Files {
		paths = append(paths, m.paths.resolve(f))
	}
	slices.Sort(paths)
	paths = slices.Compact(paths)
	if len(paths) == 0 {
		m.log.Debug("No plugin files found.", "dir", m.paths.dir)
		return
	}
	for _, path := range paths {
		if _, err := m.Enable(path); err != nil {
			m.log.Error("enable plugin: "+err.Error(), "path", path)
		}
	}
}

// panicked disables the plugin owning a handler or job that panicked. The
// plugin is disabled on a new goroutine, as panicked may run on a goroutine
// that holds locks of the plugin.
func (m *Manager[S, C]) panicked(name string, reason any) {
	if name == "" {
		name = "plugin"
	}
	m.bus.Clear(name)
	m.runtimeLog.Error("Plugin panicked.", "plugin", name, "panic", reason, "stack", string(debug.Stack()))
	go func() {
		if _, err := m.Disable(name); err != nil {
			if !errors.Is(err, ErrNotFound) {
				m.runtimeLog.Error("disable panicked plugin: "+err.Error(), "plugin", name)
			}
			return
		}
		m.runtimeLog.Warn("Plugin disabled after panic.", "plugin", name)
	}()
}

var errNoSymbol = errors.New("symbol not found")

// lookupFactory returns the first factory exported by mod under one of the
// factorySymbols.
func lookupFactory[S any, C any](mod *goplugin.Plugin) (PluginFactory[S, C], string, error) {
	for _, symbol := range factorySymbols {
		factory, err := factoryOf[S, C](mod, symbol)
		if errors.Is(err, errNoSymbol) {
			continue
		}
		return factory, symbol, err
	}
	return nil, "", fmt.Errorf("none of %s exported", strings.Join(factorySymbols, ", "))
}

func factoryOf[S any, C any](mod *goplugin.Plugin, symbol string) (PluginFactory[S, C], error) {
	sym, err := mod.Lookup(symbol)
	if err != nil {
		return nil, errNoSymbol
	}
	switch fn := sym.(type) {
	case func(*API[S, C]) (Plugin, error):
		return fn, nil
	case *func(*API[S, C]) (Plugin, error):
		return *fn, nil
	case PluginFactory[S, C]:
		return fn, nil
	case *PluginFactory[S, C]:
		return *fn, nil
	}
	return nil, fmt.Errorf("symbol %s has incompatible type %T", symbol, sym)
}
