// Package server runs a set of worlds together with the job queue, time loop,
// persistence and plugins around them.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/df-mc/worldcore/server/internal/workqueue"
	"github.com/df-mc/worldcore/server/plugin"
	"github.com/df-mc/worldcore/server/world"
	"github.com/df-mc/worldcore/server/world/generator"
)

var (
	// ErrClosed is returned when using a Server that has been closed.
	ErrClosed = errors.New("server closed")
	// ErrNotAllowed is returned by Server.Join when the Allower refused the
	// player.
	ErrNotAllowed = errors.New("player not allowed")
	// ErrServerFull is returned by Server.Join when MaxPlayers players are
	// online.
	ErrServerFull = errors.New("server full")
	// ErrUnknownWorld is returned when a world name does not match any world
	// of the Server.
	ErrUnknownWorld = errors.New("unknown world")
)

// Server manages the worlds of a process. Its worlds are created by
// Config.New; the time loop is started by Server.Start.
type Server struct {
	conf Config
	log  *slog.Logger

	started atomic.Pointer[time.Time]
	closed  atomic.Bool
	done    chan struct{}

	bus     *world.Bus
	queue   *workqueue.Queue
	ticker  *world.Ticker
	plugins *plugin.Manager[*Server, Config]

	persistenceName string

	ctx        context.Context
	cancel     context.CancelFunc
	tickerDone chan struct{}

	wmu    sync.RWMutex
	worlds []*world.World
}

// New creates a Server using the fields of conf. The built-in persistence
// plugin and the configured plugin files are enabled before the worlds are
// created, so that they may load the worlds' data.
func (conf Config) New() (*Server, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Name == "" {
		conf.Name = "craftd"
	}
	if conf.Allower == nil {
		conf.Allower = allower{}
	}
	if len(conf.Worlds) == 0 {
		conf.Worlds = []WorldConfig{{Name: "world", Dimension: world.Overworld}}
	}
	conf.Worlds = slices.Clone(conf.Worlds)

	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		conf:       conf,
		log:        conf.Log,
		done:       make(chan struct{}),
		bus:        world.NewBus(conf.Log),
		ctx:        ctx,
		cancel:     cancel,
		tickerDone: make(chan struct{}),
	}
	srv.queue = workqueue.Config{Log: conf.Log, Workers: conf.Workers}.New()
	srv.ticker = world.TickerConfig{
		Log:           conf.Log,
		Interval:      conf.TickInterval,
		AutosaveTicks: conf.Persistence.AutosaveTicks,
		Worlds:        srv.Worlds,
		Submit:        srv.queue.Submit,
	}.New()
	srv.plugins = plugin.NewManager[*Server, Config](newPluginHost(srv), conf.Plugins)

	if name, factory, ok := persistenceFactory(conf.Persistence); ok {
		if _, err := srv.plugins.Register(name, factory); err != nil {
			srv.queue.Close()
			return nil, fmt.Errorf("enable persistence: %w", err)
		}
		srv.persistenceName = name
	} else {
		srv.log.Warn("Persistence disabled, world data will not be saved.")
	}
	srv.plugins.LoadConfigured()

	for _, wc := range conf.Worlds {
		if err := srv.createWorld(wc); err != nil {
			srv.abort()
			return nil, err
		}
	}
	return srv, nil
}

// createWorld creates and registers the world described by wc.
func (srv *Server) createWorld(wc WorldConfig) error {
	if _, ok := srv.World(wc.Name); ok {
		return fmt.Errorf("create world %s: duplicate name", wc.Name)
	}
	gen := wc.Generator
	if gen == nil {
		gen = generator.NewNoise(wc.Dimension, generator.Seed(wc.Name, 0))
	}
	w, err := world.Config{
		Log:            srv.log,
		Name:           wc.Name,
		Dim:            wc.Dimension,
		Bus:            srv.bus,
		Generator:      gen,
		Extent:         wc.Extent,
		DuplicateNames: srv.conf.DuplicateNames,
		FoldNames:      srv.conf.FoldNames,
		SendTimeout:    srv.conf.SendTimeout,
	}.New()
	if err != nil {
		return fmt.Errorf("create world: %w", err)
	}
	srv.wmu.Lock()
	srv.worlds = append(srv.worlds, w)
	srv.wmu.Unlock()
	srv.log.Info("World created.", "world", w.Name(), "dimension", w.Dimension())
	return nil
}

// abort tears down a Server whose construction failed.
func (srv *Server) abort() {
	srv.closed.Store(true)
	srv.cancel()
	srv.queue.Close()
	for _, w := range srv.Worlds() {
		_ = w.Destroy()
	}
	srv.plugins.Shutdown()
	close(srv.done)
}

// Start starts the time loop of the Server. Start has no effect if the Server
// was already started or closed.
func (srv *Server) Start() {
	if srv.closed.Load() {
		return
	}
	t := time.Now()
	if !srv.started.CompareAndSwap(nil, &t) {
		return
	}
	go func() {
		defer close(srv.tickerDone)
		srv.ticker.Run(srv.ctx)
	}()
	srv.log.Info("Server started.", "name", srv.conf.Name, "worlds", len(srv.Worlds()))
}

// StartTime returns the time the Server was started, or the zero time if it
// was not started.
func (srv *Server) StartTime() time.Time {
	if t := srv.started.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// Name returns the name of the Server.
func (srv *Server) Name() string {
	return srv.conf.Name
}

// World returns the world with the name passed.
func (srv *Server) World(name string) (*world.World, bool) {
	srv.wmu.RLock()
	defer srv.wmu.RUnlock()
	for _, w := range srv.worlds {
		if w.Name() == name {
			return w, true
		}
	}
	return nil, false
}

// DefaultWorld returns the world players join if no world is specified.
func (srv *Server) DefaultWorld() *world.World {
	srv.wmu.RLock()
	defer srv.wmu.RUnlock()
	if len(srv.worlds) == 0 {
		return nil
	}
	return srv.worlds[0]
}

// Worlds returns the worlds of the Server in configuration order.
func (srv *Server) Worlds() []*world.World {
	srv.wmu.RLock()
	defer srv.wmu.RUnlock()
	return slices.Clone(srv.worlds)
}

// Bus returns the event bus the worlds of the Server dispatch on.
func (srv *Server) Bus() *world.Bus {
	return srv.bus
}

// Ticker returns the time loop of the Server.
func (srv *Server) Ticker() *world.Ticker {
	return srv.ticker
}

// Plugins returns the plugin manager of the Server.
func (srv *Server) Plugins() *plugin.Manager[*Server, Config] {
	return srv.plugins
}

// PlayerCount returns the number of players in all worlds.
func (srv *Server) PlayerCount() int {
	n := 0
	for _, w := range srv.Worlds() {
		n += w.PlayerCount()
	}
	return n
}

// MaxPlayerCount returns the maximum amount of players, or 0 if unlimited.
func (srv *Server) MaxPlayerCount() int {
	return srv.conf.MaxPlayers
}

// Submit queues job on the job queue of the Server.
func (srv *Server) Submit(job func()) error {
	if err := srv.queue.Submit(job); err != nil {
		return ErrClosed
	}
	return nil
}

// Join adds a player named name with the connection passed to the world with
// the name worldName, or to the default world if worldName is empty. The join
// runs on the job queue; Join blocks until it completed or ctx is done. The
// name of the returned player may differ from name under the rename policy.
func (srv *Server) Join(ctx context.Context, worldName, name string, conn world.Conn) (*world.Player, error) {
	w := srv.DefaultWorld()
	if worldName != "" {
		var ok bool
		if w, ok = srv.World(worldName); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownWorld, worldName)
		}
	}
	if reason, ok := srv.conf.Allower.Allow(name); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAllowed, reason)
	}

	type result struct {
		p   *world.Player
		err error
	}
	res := make(chan result, 1)
	err := srv.Submit(func() {
		if limit := srv.conf.MaxPlayers; limit > 0 && srv.PlayerCount() >= limit {
			res <- result{err: ErrServerFull}
			return
		}
		p := world.NewPlayer(name, conn)
		if err := w.AddPlayer(p); err != nil {
			res <- result{err: err}
			return
		}
		res <- result{p: p}
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-res:
		if r.err != nil {
			return nil, fmt.Errorf("join %s: %w", w.Name(), r.err)
		}
		srv.log.Info("Player joined.", "name", r.p.Name(), "world", w.Name(), "entity", r.p.EntityID())
		return r.p, nil
	case <-ctx.Done():
		// The join may still complete; remove the player once it does.
		go func() {
			if r := <-res; r.p != nil {
				w.RemovePlayer(r.p)
			}
		}()
		return nil, ctx.Err()
	}
}

// Leave removes p from its world.
func (srv *Server) Leave(p *world.Player) bool {
	w := p.World()
	if w == nil {
		return false
	}
	if !w.RemovePlayer(p) {
		return false
	}
	srv.log.Info("Player left.", "name", p.Name(), "world", w.Name())
	return true
}

// Save saves every world of the Server and returns the errors of all saves
// that failed.
func (srv *Server) Save() error {
	var errs []error
	for _, w := range srv.Worlds() {
		if err := w.Save(); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", w.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Done returns a channel closed once the Server has been closed.
func (srv *Server) Done() <-chan struct{} {
	return srv.done
}

// CloseOnProgramEnd closes the server right before the program ends, so that
// all data of the server are saved properly.
func (srv *Server) CloseOnProgramEnd() {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-c:
			if err := srv.Close(); err != nil {
				srv.log.Error("close server: " + err.Error())
			}
		case <-srv.done:
		}
		signal.Stop(c)
	}()
}

// Close shuts the Server down. The job queue stops accepting jobs and drains,
// the time loop stops, every world is destroyed, a *world.ServerShutdown event
// is dispatched and finally the plugins are disabled in reverse load order.
// Close returns the errors of destroying the worlds. Calling Close more than
// once has no effect.
func (srv *Server) Close() error {
	if !srv.closed.CompareAndSwap(false, true) {
		return nil
	}
	srv.log.Info("Server closing...")

	srv.queue.Close()
	srv.cancel()
	if srv.started.Load() != nil {
		<-srv.tickerDone
	}

	var errs []error
	for _, w := range srv.Worlds() {
		srv.log.Debug("Closing world...", "world", w.Name())
		if err := w.Destroy(); err != nil && !errors.Is(err, world.ErrClosed) {
			errs = append(errs, fmt.Errorf("destroy %s: %w", w.Name(), err))
		}
	}
	if err := srv.bus.Dispatch(&world.ServerShutdown{}); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	srv.plugins.Shutdown()

	close(srv.done)
	srv.log.Info("Server closed.")
	return errors.Join(errs...)
}
