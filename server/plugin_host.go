package server

import (
	"log/slog"
	"time"

	"github.com/df-mc/worldcore/server/plugin"
	"github.com/df-mc/worldcore/server/world"
)

type pluginHost struct {
	srv *Server
}

func newPluginHost(srv *Server) plugin.Host[*Server, Config] {
	return pluginHost{srv: srv}
}

func (h pluginHost) Instance() *Server {
	return h.srv
}

func (h pluginHost) Config() Config {
	return h.srv.conf
}

func (h pluginHost) Logger() *slog.Logger {
	return h.srv.conf.Log
}

func (h pluginHost) StartTime() time.Time {
	return h.srv.StartTime()
}

func (h pluginHost) Bus() *world.Bus {
	return h.srv.bus
}

func (h pluginHost) World(name string) (*world.World, bool) {
	return h.srv.World(name)
}

func (h pluginHost) DefaultWorld() *world.World {
	return h.srv.DefaultWorld()
}

func (h pluginHost) Worlds() []*world.World {
	return h.srv.Worlds()
}

func (h pluginHost) PlayerCount() int {
	return h.srv.PlayerCount()
}

func (h pluginHost) Submit(job func()) error {
	return h.srv.Submit(job)
}

// Close closes the server on a separate goroutine: plugins may request a
// shutdown from a job, and Close waits for the job queue to drain.
func (h pluginHost) Close() error {
	if h.srv.closed.Load() {
		return ErrClosed
	}
	go func() {
		if err := h.srv.Close(); err != nil {
			h.srv.log.Error("close server: " + err.Error())
		}
	}()
	return nil
}

var _ plugin.Host[*Server, Config] = pluginHost{}
