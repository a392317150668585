package world

import (
	"log/slog"
	"time"
)

// DuplicateNamePolicy controls how a World handles a player joining with a
// username already in use.
type DuplicateNamePolicy uint8

const (
	// RejectDuplicates refuses the join with ErrUsernameTaken.
	RejectDuplicates DuplicateNamePolicy = iota
	// RenameDuplicates appends ^1, ^2, ... to the username until it is unique.
	RenameDuplicates
)

// Config may be used to create a new World. It holds the settings of the
// world section matching its name.
type Config struct {
	// Log is the Logger used by the World. If nil, Log is set to
	// slog.Default().
	Log *slog.Logger
	// Name is the unique name of the World. If empty, "world" is used.
	Name string
	// Dim is the Dimension of the World.
	Dim Dimension
	// Bus is the event bus the World dispatches its events on. If nil, a Bus
	// without handlers is created, leaving the World without persistence.
	Bus *Bus
	// Generator produces terrain for chunks missing from storage. It is read
	// by persistence plugins. If nil, NopGenerator is used.
	Generator Generator
	// Extent bounds the chunk positions the World may address. If nil,
	// DefaultExtent is used.
	Extent *Extent
	// DuplicateNames is the policy applied to joining players whose username
	// is already in use.
	DuplicateNames DuplicateNamePolicy
	// FoldNames makes username comparisons case-insensitive.
	FoldNames bool
	// SendTimeout bounds a single send to a player during a broadcast. Zero
	// leaves sends unbounded.
	SendTimeout time.Duration
}

func (conf Config) withDefaults() Config {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Name == "" {
		conf.Name = "world"
	}
	if conf.Bus == nil {
		conf.Bus = NewBus(conf.Log)
	}
	if conf.Generator == nil {
		conf.Generator = NopGenerator{}
	}
	if conf.Extent == nil {
		ext := DefaultExtent()
		conf.Extent = &ext
	}
	return conf
}
