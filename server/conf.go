package server

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/df-mc/worldcore/server/plugin"
	"github.com/df-mc/worldcore/server/world"
	"github.com/df-mc/worldcore/server/world/generator"
	"github.com/df-mc/worldcore/server/world/nbtfile"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// Persistence backends accepted by PersistenceConfig.Backend.
const (
	BackendNBT     = "nbt"
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
	BackendNone    = "none"
)

// Config contains options for starting a Server.
type Config struct {
	// Log is the Logger to use for logging information. If nil, Log is set to
	// slog.Default().
	Log *slog.Logger
	// Name is the name of the server.
	Name string
	// Worlds holds the worlds created when the Server starts. The first world
	// is the default world players join. If empty, a single overworld named
	// "world" is created.
	Worlds []WorldConfig
	// DuplicateNames is the policy applied to a player joining a world with a
	// username already in use there.
	DuplicateNames world.DuplicateNamePolicy
	// FoldNames makes username comparisons case-insensitive.
	FoldNames bool
	// SendTimeout bounds a single send to a player during a broadcast. Zero
	// leaves sends unbounded.
	SendTimeout time.Duration
	// MaxPlayers is the maximum amount of players allowed across all worlds.
	// Zero allows any amount.
	MaxPlayers int
	// Allower may be used to specify what players can join the server and what
	// players cannot. If nil, every player is allowed.
	Allower Allower
	// Persistence controls the built-in persistence plugin.
	Persistence PersistenceConfig
	// Workers is the number of workers of the job queue that runs joins and
	// saves. If zero or negative, 2 workers are started.
	Workers int
	// TickInterval is the duration of a single tick of the time loop. If zero,
	// 20 ticks run every second.
	TickInterval time.Duration
	// Plugins holds the settings of the plugin loader.
	Plugins plugin.Config
}

// WorldConfig holds the settings of a single world of a Server.
type WorldConfig struct {
	// Name is the unique name of the world.
	Name string
	// Dimension is the dimension of the world.
	Dimension world.Dimension
	// Generator generates chunks that were never stored. If nil, the noise
	// generator of the dimension is used, seeded from Name.
	Generator world.Generator
	// Extent bounds the chunks of the world. If nil, world.DefaultExtent is
	// used.
	Extent *world.Extent
}

// PersistenceConfig holds the settings of the built-in persistence plugin.
type PersistenceConfig struct {
	// Backend is one of BackendNBT, BackendLevelDB, BackendMemory or
	// BackendNone. If empty, BackendNBT is used.
	Backend string
	// Path is the directory worlds are stored in. BackendLevelDB keeps its
	// database in the db directory below it. If empty, nbtfile.DefaultRoot is
	// used.
	Path string
	// PathBase is the numeric base of the chunk paths of BackendNBT. If zero,
	// base 36 is used.
	PathBase int
	// SaveOnClose saves a world when it is destroyed.
	SaveOnClose bool
	// AutosaveTicks is the number of ticks between saves of every world. Zero
	// disables autosaving.
	AutosaveTicks int64
}

// UserConfig is the user configuration of a server. It may be serialised as
// TOML or YAML and can be converted to a Config by calling UserConfig.Config().
type UserConfig struct {
	Server struct {
		// Name is the name of the server as it shows up in logs and plugins.
		Name string `toml:"name" yaml:"name"`
		// Workers is the number of workers running joins and saves.
		Workers int `toml:"workers" yaml:"workers"`
		// TicksPerSecond is the rate of the time loop.
		TicksPerSecond int `toml:"ticksPerSecond" yaml:"ticksPerSecond"`
	} `toml:"server" yaml:"server"`
	Players struct {
		// MaxCount is the maximum amount of players allowed to join the server
		// at the same time. If set to 0, any amount of players may join.
		MaxCount int `toml:"maxCount" yaml:"maxCount"`
		// Standard refuses a player joining with a username already in use. If
		// false, the username is suffixed with ^1, ^2 and so on instead.
		Standard bool `toml:"standard" yaml:"standard"`
		// FoldCase compares usernames case-insensitively.
		FoldCase bool `toml:"foldCase" yaml:"foldCase"`
		// SendTimeout bounds a single send to a player, for example "250ms".
		// Empty leaves sends unbounded.
		SendTimeout string `toml:"sendTimeout" yaml:"sendTimeout"`
		// Whitelist controls if only the players listed in WhitelistFile may
		// join.
		Whitelist bool `toml:"whitelist" yaml:"whitelist"`
		// WhitelistFile is the path to the TOML file that stores whitelisted
		// player names.
		WhitelistFile string `toml:"whitelistFile" yaml:"whitelistFile"`
	} `toml:"players" yaml:"players"`
	Persistence struct {
		// Path is the directory worlds are stored in.
		Path string `toml:"path" yaml:"path"`
		// PathBase is the numeric base used to encode chunk coordinates in file
		// names, between 2 and 36.
		PathBase int `toml:"pathBase" yaml:"pathBase"`
		// Backend is the storage backend: "nbt", "leveldb", "memory" or "none".
		Backend string `toml:"backend" yaml:"backend"`
		// AutosaveTicks is the number of ticks between saves of every world. 0
		// disables autosaving.
		AutosaveTicks int64 `toml:"autosaveTicks" yaml:"autosaveTicks"`
		// SaveOnClose saves worlds when the server shuts down.
		SaveOnClose bool `toml:"saveOnClose" yaml:"saveOnClose"`
	} `toml:"persistence" yaml:"persistence"`
	Map struct {
		// MinX, MinZ, MaxX and MaxZ are the inclusive chunk bounds of every
		// world.
		MinX int32 `toml:"minX" yaml:"minX"`
		MinZ int32 `toml:"minZ" yaml:"minZ"`
		MaxX int32 `toml:"maxX" yaml:"maxX"`
		MaxZ int32 `toml:"maxZ" yaml:"maxZ"`
	} `toml:"map" yaml:"map"`
	// Worlds lists the worlds of the server. The first world is the default.
	Worlds  []UserWorld `toml:"worlds" yaml:"worlds"`
	Plugins struct {
		// Enabled controls if plugin files are loaded.
		Enabled bool `toml:"enabled" yaml:"enabled"`
		// Directory is the directory searched for plugin files.
		Directory string `toml:"directory" yaml:"directory"`
		// DataDirectory is the directory plugin data is stored in.
		DataDirectory string `toml:"dataDirectory" yaml:"dataDirectory"`
		// Autoload loads every .so file in Directory.
		Autoload bool `toml:"autoload" yaml:"autoload"`
		// Files lists additional plugin files to load.
		Files []string `toml:"files" yaml:"files"`
	} `toml:"plugins" yaml:"plugins"`
}

// UserWorld is the user configuration of a single world.
type UserWorld struct {
	// Name is the unique name of the world.
	Name string `toml:"name" yaml:"name"`
	// Dimension is "normal", "nether" or "sky".
	Dimension string `toml:"dimension" yaml:"dimension"`
	// Generator is "noise", "flat" or "none".
	Generator string `toml:"generator" yaml:"generator"`
	// Seed seeds the generator. 0 derives a seed from the world name.
	Seed int64 `toml:"seed" yaml:"seed"`
}

// DefaultConfig returns a configuration with the default values filled out.
func DefaultConfig() UserConfig {
	c := UserConfig{}
	c.Server.Name = "craftd"
	c.Server.Workers = 2
	c.Server.TicksPerSecond = 20
	c.Players.Standard = false
	c.Players.SendTimeout = "250ms"
	c.Players.WhitelistFile = "whitelist.toml"
	c.Persistence.Path = nbtfile.DefaultRoot
	c.Persistence.PathBase = 36
	c.Persistence.Backend = BackendNBT
	c.Persistence.AutosaveTicks = 6000
	c.Persistence.SaveOnClose = true
	ext := world.DefaultExtent()
	c.Map.MinX, c.Map.MinZ = ext.Min.X(), ext.Min.Z()
	c.Map.MaxX, c.Map.MaxZ = ext.Max.X(), ext.Max.Z()
	c.Worlds = []UserWorld{{Name: "world", Dimension: "normal", Generator: "noise"}}
	c.Plugins.Directory = "plugins"
	c.Plugins.Autoload = true
	return c
}

// LoadUserConfig reads the configuration at path, starting from DefaultConfig.
// Paths ending in .yaml or .yml are decoded as YAML, others as TOML. If no file
// exists at path, the default configuration is written to it.
func LoadUserConfig(path string) (UserConfig, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		data, err = marshalConfig(path, c)
		if err != nil {
			return c, fmt.Errorf("encode default config: %w", err)
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return c, fmt.Errorf("create config directory: %w", err)
			}
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return c, fmt.Errorf("create default config: %w", err)
		}
		return c, nil
	} else if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	if isYAML(path) {
		err = yaml.Unmarshal(data, &c)
	} else {
		err = toml.Unmarshal(data, &c)
	}
	if err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

func marshalConfig(path string, c UserConfig) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(c)
	}
	return toml.Marshal(c)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Config converts a UserConfig to a Config, so that it may be used for creating
// a Server. An error is returned if a value is out of range or a world section
// is invalid.
func (uc UserConfig) Config(log *slog.Logger) (Config, error) {
	conf := Config{
		Log:        log,
		Name:       uc.Server.Name,
		FoldNames:  uc.Players.FoldCase,
		MaxPlayers: uc.Players.MaxCount,
		Workers:    uc.Server.Workers,
		Persistence: PersistenceConfig{
			Backend:       strings.ToLower(strings.TrimSpace(uc.Persistence.Backend)),
			Path:          uc.Persistence.Path,
			PathBase:      uc.Persistence.PathBase,
			SaveOnClose:   uc.Persistence.SaveOnClose,
			AutosaveTicks: uc.Persistence.AutosaveTicks,
		},
		Plugins: plugin.Config{
			Enabled:       uc.Plugins.Enabled,
			Directory:     uc.Plugins.Directory,
			DataDirectory: uc.Plugins.DataDirectory,
			Autoload:      uc.Plugins.Autoload,
			Files:         uc.Plugins.Files,
		},
	}
	if uc.Players.Standard {
		conf.DuplicateNames = world.RejectDuplicates
	} else {
		conf.DuplicateNames = world.RenameDuplicates
	}
	if s := strings.TrimSpace(uc.Players.SendTimeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			return conf, fmt.Errorf("players.sendTimeout: invalid duration %q", s)
		}
		conf.SendTimeout = d
	}
	if tps := uc.Server.TicksPerSecond; tps < 0 || tps > 1000 {
		return conf, fmt.Errorf("server.ticksPerSecond: %d out of range 0..1000", tps)
	} else if tps > 0 {
		conf.TickInterval = time.Second / time.Duration(tps)
	}
	if b := conf.Persistence.PathBase; b != 0 && (b < 2 || b > 36) {
		return conf, fmt.Errorf("persistence.pathBase: %d out of range 2..36", b)
	}
	switch conf.Persistence.Backend {
	case "", BackendNBT, BackendLevelDB, BackendMemory, BackendNone:
	default:
		return conf, fmt.Errorf("persistence.backend: unknown backend %q", conf.Persistence.Backend)
	}
	if conf.Persistence.AutosaveTicks < 0 {
		return conf, fmt.Errorf("persistence.autosaveTicks: negative interval %d", conf.Persistence.AutosaveTicks)
	}

	extent := world.Extent{
		Min: world.ChunkPos{uc.Map.MinX, uc.Map.MinZ},
		Max: world.ChunkPos{uc.Map.MaxX, uc.Map.MaxZ},
	}
	if err := extent.Validate(); err != nil {
		return conf, fmt.Errorf("map: %w", err)
	}
	if len(uc.Worlds) == 0 {
		return conf, errors.New("worlds: at least one world must be configured")
	}
	seen := make(map[string]struct{}, len(uc.Worlds))
	for i, w := range uc.Worlds {
		name := strings.TrimSpace(w.Name)
		if name == "" {
			return conf, fmt.Errorf("worlds[%d]: empty name", i)
		}
		if _, ok := seen[name]; ok {
			return conf, fmt.Errorf("worlds[%d]: duplicate world %s", i, name)
		}
		seen[name] = struct{}{}

		dim, ok := world.ParseDimension(w.Dimension)
		if !ok {
			return conf, fmt.Errorf("worlds[%d]: unknown dimension %q", i, w.Dimension)
		}
		gen, err := generator.New(w.Generator, dim, generator.Seed(name, w.Seed))
		if err != nil {
			return conf, fmt.Errorf("worlds[%d]: %w", i, err)
		}
		ext := extent
		conf.Worlds = append(conf.Worlds, WorldConfig{Name: name, Dimension: dim, Generator: gen, Extent: &ext})
	}

	if uc.Players.Whitelist {
		file := strings.TrimSpace(uc.Players.WhitelistFile)
		if file == "" {
			file = "whitelist.toml"
		}
		wl, err := LoadWhitelist(file)
		if err != nil {
			return conf, fmt.Errorf("load whitelist: %w", err)
		}
		wl.SetEnabled(true)
		conf.Allower = wl
	}
	return conf, nil
}
