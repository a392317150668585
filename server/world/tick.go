package world

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

const (
	tpsSampleSize       = 20
	tpsWarningThreshold = 19.0
)

// TickerConfig holds the settings of a Ticker.
type TickerConfig struct {
	// Log is the Logger used for TPS warnings and autosave failures. If nil,
	// slog.Default() is used.
	Log *slog.Logger
	// Interval is the duration of a single tick. If zero, a tick lasts 50ms.
	Interval time.Duration
	// AutosaveTicks is the number of ticks between automatic saves of every
	// world. Zero disables autosaving.
	AutosaveTicks int64
	// Worlds returns the worlds to advance on every tick.
	Worlds func() []*World
	// Submit runs autosave jobs off the tick goroutine, for example on a worker
	// pool. If nil or if Submit fails, the save runs on the tick goroutine.
	Submit func(job func()) error
}

// Ticker advances the time of a set of worlds at a fixed interval and triggers
// periodic saves.
type Ticker struct {
	conf TickerConfig
	log  *slog.Logger
	tick atomic.Int64
	tps  atomic.Uint64
}

// New returns a Ticker using the fields of conf.
func (conf TickerConfig) New() *Ticker {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Interval <= 0 {
		conf.Interval = time.Second / 20
	}
	if conf.Worlds == nil {
		conf.Worlds = func() []*World { return nil }
	}
	return &Ticker{conf: conf, log: conf.Log.With("subsystem", "timeloop")}
}

// CurrentTick returns the number of ticks performed so far.
func (t *Ticker) CurrentTick() int64 {
	return t.tick.Load()
}

// TPS returns the average ticks per second over the last tpsSampleSize ticks,
// or 0 if no samples have been recorded yet.
func (t *Ticker) TPS() float64 {
	return math.Float64frombits(t.tps.Load())
}

// Run ticks until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) {
	tc := time.NewTicker(t.conf.Interval)
	defer tc.Stop()
	lastTick := time.Now()
	var (
		durationSum time.Duration
		ticksCount  int
		warned      bool
	)
	for {
		select {
		case <-tc.C:
			tickStart := time.Now()
			duration := tickStart.Sub(lastTick)
			lastTick = tickStart
			if duration > 0 {
				durationSum += duration
				ticksCount++
				if ticksCount >= tpsSampleSize {
					tps := 1.0 / (durationSum / time.Duration(ticksCount)).Seconds()
					t.tps.Store(math.Float64bits(tps))
					if tps < tpsWarningThreshold {
						if !warned {
							t.log.Warn("TPS dropped below threshold.", "tps", tps)
							warned = true
						}
					} else {
						warned = false
					}
					durationSum, ticksCount = 0, 0
				}
			}
			t.Tick()
		case <-ctx.Done():
			return
		}
	}
}

// Tick performs a single tick: the time of every active world advances by one
// and, every AutosaveTicks ticks, every active world is saved.
func (t *Ticker) Tick() {
	tick := t.tick.Add(1)
	autosave := t.conf.AutosaveTicks > 0 && tick%t.conf.AutosaveTicks == 0
	for _, w := range t.conf.Worlds() {
		if !w.Active() {
			continue
		}
		w.advanceTime(1)
		if autosave {
			t.save(w)
		}
	}
}

func (t *Ticker) save(w *World) {
	job := func() {
		if err := w.Save(); err != nil {
			t.log.Error("autosave: "+err.Error(), "world", w.Name())
		}
	}
	if t.conf.Submit != nil {
		if err := t.conf.Submit(job); err == nil {
			return
		}
	}
	job()
}
