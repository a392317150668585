package plugin

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/df-mc/worldcore/server/world"
)

type testServer struct{}
type testConfig struct{}

type testHost struct {
	bus *world.Bus
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (testHost) Instance() testServer              { return testServer{} }
func (testHost) Config() testConfig                { return testConfig{} }
func (testHost) Logger() *slog.Logger              { return testLogger() }
func (testHost) StartTime() time.Time              { return time.Time{} }
func (h testHost) Bus() *world.Bus                 { return h.bus }
func (testHost) World(string) (*world.World, bool) { return nil, false }
func (testHost) DefaultWorld() *world.World        { return nil }
func (testHost) Worlds() []*world.World            { return nil }
func (testHost) PlayerCount() int                  { return 0 }
func (testHost) Submit(job func()) error           { job(); return nil }
func (testHost) Close() error                      { return nil }

func newTestManager(cfg Config) *Manager[testServer, testConfig] {
	if cfg.Directory == "" {
		cfg.Directory = os.TempDir()
	}
	return NewManager[testServer, testConfig](testHost{bus: world.NewBus(testLogger())}, cfg)
}

type closingPlugin struct {
	name string
	err  error

	mu     sync.Mutex
	closed bool
	order  *[]string
}

func (p *closingPlugin) Name() string { return p.name }

func (p *closingPlugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if !p.closed && p.order != nil {
		*p.order = append(*p.order, p.name)
	}
	p.closed = true
	return nil
}

func (p *closingPlugin) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func factoryFor(p Plugin, register func(api *API[testServer, testConfig])) PluginFactory[testServer, testConfig] {
	return func(api *API[testServer, testConfig]) (Plugin, error) {
		if register != nil {
			register(api)
		}
		return p, nil
	}
}

func TestManagerRegisterBuiltin(t *testing.T) {
	t.Parallel()
	manager := newTestManager(Config{Directory: t.TempDir()})

	p := &closingPlugin{name: "persistence.nbt"}
	info, err := manager.Register("nbt", factoryFor(p, func(api *API[testServer, testConfig]) {
		api.Events().OnSave(func(*world.Save) error { return nil })
		api.Events().OnCreated(func(*world.Created) error { return nil })
	}))
	if err != nil {
		t.Fatalf("Register returned %v, want nil", err)
	}
	if info.Name != "persistence.nbt" || !info.Builtin || info.Path != "" {
		t.Fatalf("Register returned %+v", info)
	}
	if n := manager.Bus().Len(world.EventWorldSave); n != 1 {
		t.Fatalf("%d save handlers registered, want 1", n)
	}
	if got, ok := manager.Plugin("PERSISTENCE.NBT"); !ok || got != p {
		t.Fatalf("Plugin lookup failed")
	}

	if _, err := manager.Register("nbt", factoryFor(&closingPlugin{name: "persistence.nbt"}, nil)); !errors.Is(err, ErrNameConflict) {
		t.Fatalf("second Register returned %v, want ErrNameConflict", err)
	}

	if _, err := manager.Disable("persistence.nbt"); err != nil {
		t.Fatalf("Disable returned %v, want nil", err)
	}
	if !p.Closed() {
		t.Fatalf("plugin not closed on Disable")
	}
	if n := manager.Bus().Len(world.EventWorldSave) + manager.Bus().Len(world.EventWorldCreated); n != 0 {
		t.Fatalf("%d handlers left after Disable, want 0", n)
	}
}

func TestManagerRegisterFailingFactory(t *testing.T) {
	t.Parallel()
	manager := newTestManager(Config{Directory: t.TempDir()})

	_, err := manager.Register("broken", func(api *API[testServer, testConfig]) (Plugin, error) {
		api.Events().OnSave(func(*world.Save) error { return nil })
		return nil, errors.New("no backend")
	})
	if err == nil {
		t.Fatalf("Register returned nil, want error")
	}
	if n := manager.Bus().Len(world.EventWorldSave); n != 0 {
		t.Fatalf("%d handlers left by failing factory, want 0", n)
	}
	if _, err := manager.Register("nil", factoryFor(nil, nil)); err == nil {
		t.Fatalf("Register with nil plugin returned nil, want error")
	}
	if len(manager.Infos()) != 0 {
		t.Fatalf("failed plugins were added")
	}
}

func TestManagerEnableDisabled(t *testing.T) {
	t.Parallel()
	manager := newTestManager(Config{Enabled: false})
	if _, err := manager.Enable("demo.so"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Enable returned %v, want ErrDisabled", err)
	}
}

func TestManagerDisableAll(t *testing.T) {
	t.Parallel()
	manager := newTestManager(Config{Directory: t.TempDir()})

	first := &closingPlugin{name: "first"}
	second := &closingPlugin{name: "second"}
	for _, p := range []*closingPlugin{first, second} {
		if _, err := manager.Register(p.name, factoryFor(p, nil)); err != nil {
			t.Fatalf("Register returned %v, want nil", err)
		}
	}

	infos, err := manager.DisableAll()
	if err != nil {
		t.Fatalf("DisableAll() error = %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("DisableAll() returned %d infos, want 2", len(infos))
	}
	if infos[0].Name != "second" || infos[1].Name != "first" {
		t.Fatalf("DisableAll() order = %v", infos)
	}
	if !first.Closed() || !second.Closed() {
		t.Fatalf("plugins were not closed")
	}
	if got := manager.Infos(); len(got) != 0 {
		t.Fatalf("DisableAll() left %d plugins loaded", len(got))
	}
}

func TestManagerDisableCloseError(t *testing.T) {
	t.Parallel()
	manager := newTestManager(Config{Directory: t.TempDir()})

	p := &closingPlugin{name: "stubborn", err: errors.New("busy")}
	if _, err := manager.Register(p.name, factoryFor(p, nil)); err != nil {
		t.Fatalf("Register returned %v, want nil", err)
	}
	if _, err := manager.Disable("stubborn"); err == nil {
		t.Fatalf("Disable returned nil, want error")
	}
	if _, ok := manager.Plugin("stubborn"); !ok {
		t.Fatalf("plugin removed although Close failed")
	}
	if _, err := manager.Disable("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Disable of unknown plugin returned %v, want ErrNotFound", err)
	}
}

func TestManagerShutdownOrder(t *testing.T) {
	t.Parallel()
	manager := newTestManager(Config{Directory: t.TempDir()})

	var order []string
	for _, name := range []string{"a", "b", "c"} {
		p := &closingPlugin{name: name, order: &order}
		if _, err := manager.Register(name, factoryFor(p, nil)); err != nil {
			t.Fatalf("Register returned %v, want nil", err)
		}
	}
	manager.Shutdown()
	if !slices.Equal(order, []string{"c", "b", "a"}) {
		t.Fatalf("plugins closed in order %v, want [c b a]", order)
	}
}

func TestManagerReloadBuiltin(t *testing.T) {
	t.Parallel()
	manager := newTestManager(Config{Directory: t.TempDir()})

	var created int
	factory := func(api *API[testServer, testConfig]) (Plugin, error) {
		created++
		api.Events().OnSave(func(*world.Save) error { return nil })
		return &closingPlugin{name: "reloadable"}, nil
	}
	if _, err := manager.Register("reloadable", factory); err != nil {
		t.Fatalf("Register returned %v, want nil", err)
	}
	info, err := manager.Reload("reloadable")
	if err != nil {
		t.Fatalf("Reload returned %v, want nil", err)
	}
	if !info.Builtin || created != 2 {
		t.Fatalf("Reload returned %+v after %d factory calls", info, created)
	}
	if n := manager.Bus().Len(world.EventWorldSave); n != 1 {
		t.Fatalf("%d save handlers after reload, want 1", n)
	}
}

func TestManagerHandlerPanicDisablesPlugin(t *testing.T) {
	t.Parallel()
	manager := newTestManager(Config{Directory: t.TempDir()})

	p := &closingPlugin{name: "panic"}
	_, err := manager.Register("panic", factoryFor(p, func(api *API[testServer, testConfig]) {
		api.Events().OnSave(func(*world.Save) error { panic("boom") })
	}))
	if err != nil {
		t.Fatalf("Register returned %v, want nil", err)
	}

	if err := manager.Bus().Dispatch(&world.Save{}); err == nil {
		t.Fatalf("Dispatch returned nil, want handler panic error")
	}
	if n := manager.Bus().Len(world.EventWorldSave); n != 0 {
		t.Fatalf("%d handlers left after panic, want 0", n)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(manager.Infos()) != 0 || !p.Closed() {
		if time.Now().After(deadline) {
			t.Fatalf("plugin was not removed after panic")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAPISubmitPanicDisablesPlugin(t *testing.T) {
	t.Parallel()
	manager := newTestManager(Config{Directory: t.TempDir()})

	var api *API[testServer, testConfig]
	p := &closingPlugin{name: "worker"}
	if _, err := manager.Register("worker", factoryFor(p, func(a *API[testServer, testConfig]) { api = a })); err != nil {
		t.Fatalf("Register returned %v, want nil", err)
	}
	if err := api.Submit(func() { panic("boom") }); err != nil {
		t.Fatalf("Submit returned %v, want nil", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !p.Closed() {
		if time.Now().After(deadline) {
			t.Fatalf("plugin was not disabled after panicking job")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Ensure compile-time conformance for the test host.
var _ Host[testServer, testConfig] = testHost{}
