package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/df-mc/worldcore/server/plugin"
	"github.com/df-mc/worldcore/server/world"
	"github.com/df-mc/worldcore/server/world/generator"
)

func pluginConfig(dir string) plugin.Config {
	return plugin.Config{Directory: filepath.Join(dir, "plugins")}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	conf, err := DefaultConfig().Config(testLogger())
	if err != nil {
		t.Fatalf("Config returned %v, want nil", err)
	}
	if conf.Persistence.Backend != BackendNBT || conf.Persistence.PathBase != 36 {
		t.Fatalf("persistence config %+v, want nbt backend with base 36", conf.Persistence)
	}
	if len(conf.Worlds) != 1 || conf.Worlds[0].Name != "world" || conf.Worlds[0].Dimension != world.Overworld {
		t.Fatalf("worlds %+v, want a single overworld", conf.Worlds)
	}
	if _, ok := conf.Worlds[0].Generator.(*generator.Noise); !ok {
		t.Fatalf("default generator is %T, want *generator.Noise", conf.Worlds[0].Generator)
	}
	if ext := conf.Worlds[0].Extent; ext == nil || *ext != world.DefaultExtent() {
		t.Fatalf("extent %v, want the default extent", ext)
	}
	if conf.DuplicateNames != world.RenameDuplicates {
		t.Fatalf("default duplicate name policy rejects")
	}
	if conf.SendTimeout != 250*time.Millisecond || conf.TickInterval != 50*time.Millisecond {
		t.Fatalf("send timeout %v and tick interval %v", conf.SendTimeout, conf.TickInterval)
	}
}

func TestUserConfigInvalid(t *testing.T) {
	t.Parallel()
	cases := map[string]func(uc *UserConfig){
		"pathBase low":     func(uc *UserConfig) { uc.Persistence.PathBase = 1 },
		"pathBase high":    func(uc *UserConfig) { uc.Persistence.PathBase = 37 },
		"backend":          func(uc *UserConfig) { uc.Persistence.Backend = "sqlite" },
		"autosave":         func(uc *UserConfig) { uc.Persistence.AutosaveTicks = -1 },
		"extent":           func(uc *UserConfig) { uc.Map.MinX, uc.Map.MaxX = 10, -10 },
		"no worlds":        func(uc *UserConfig) { uc.Worlds = nil },
		"empty world name": func(uc *UserConfig) { uc.Worlds = []UserWorld{{Name: " "}} },
		"duplicate world":  func(uc *UserConfig) { uc.Worlds = append(uc.Worlds, UserWorld{Name: "world"}) },
		"dimension":        func(uc *UserConfig) { uc.Worlds[0].Dimension = "moon" },
		"generator":        func(uc *UserConfig) { uc.Worlds[0].Generator = "amplified" },
		"send timeout":     func(uc *UserConfig) { uc.Players.SendTimeout = "soon" },
		"ticks per second": func(uc *UserConfig) { uc.Server.TicksPerSecond = -1 },
	}
	for name, mutate := range cases {
		uc := DefaultConfig()
		mutate(&uc)
		if _, err := uc.Config(testLogger()); err == nil {
			t.Fatalf("Config with invalid %s returned nil, want error", name)
		}
	}
}

func TestUserConfigPolicy(t *testing.T) {
	t.Parallel()
	uc := DefaultConfig()
	uc.Players.Standard = true
	uc.Players.FoldCase = true
	conf, err := uc.Config(testLogger())
	if err != nil {
		t.Fatalf("Config returned %v, want nil", err)
	}
	if conf.DuplicateNames != world.RejectDuplicates || !conf.FoldNames {
		t.Fatalf("players.standard did not select the reject policy")
	}
}

func TestLoadUserConfigWritesDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.toml")

	uc, err := LoadUserConfig(path)
	if err != nil {
		t.Fatalf("LoadUserConfig returned %v, want nil", err)
	}
	if uc.Persistence.Path != DefaultConfig().Persistence.Path {
		t.Fatalf("persistence path %q, want the default", uc.Persistence.Path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if !strings.Contains(string(data), "pathBase") {
		t.Fatalf("written config lacks persistence.pathBase:\n%s", data)
	}

	again, err := LoadUserConfig(path)
	if err != nil {
		t.Fatalf("LoadUserConfig of written defaults returned %v, want nil", err)
	}
	if again.Persistence.PathBase != 36 || again.Server.Name != "craftd" || len(again.Worlds) != 1 || again.Worlds[0].Name != "world" {
		t.Fatalf("written defaults read back as %+v", again)
	}
}

func TestLoadUserConfigTOML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.toml")
	doc := `
[persistence]
  backend = "leveldb"
  pathBase = 16

[[worlds]]
  name = "main"
  dimension = "normal"
  generator = "flat"

[[worlds]]
  name = "under"
  dimension = "nether"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile returned %v", err)
	}
	uc, err := LoadUserConfig(path)
	if err != nil {
		t.Fatalf("LoadUserConfig returned %v, want nil", err)
	}
	conf, err := uc.Config(testLogger())
	if err != nil {
		t.Fatalf("Config returned %v, want nil", err)
	}
	if conf.Persistence.Backend != BackendLevelDB || conf.Persistence.PathBase != 16 {
		t.Fatalf("persistence config %+v", conf.Persistence)
	}
	if !conf.Persistence.SaveOnClose {
		t.Fatalf("default saveOnClose lost while decoding")
	}
	if len(conf.Worlds) != 2 || conf.Worlds[0].Name != "main" || conf.Worlds[1].Dimension != world.Nether {
		t.Fatalf("worlds %+v", conf.Worlds)
	}
	if _, ok := conf.Worlds[0].Generator.(generator.Flat); !ok {
		t.Fatalf("generator of main is %T, want generator.Flat", conf.Worlds[0].Generator)
	}
}

func TestLoadUserConfigYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
server:
  name: yamlcraft
players:
  standard: true
persistence:
  backend: memory
worlds:
  - name: islands
    dimension: sky
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile returned %v", err)
	}
	uc, err := LoadUserConfig(path)
	if err != nil {
		t.Fatalf("LoadUserConfig returned %v, want nil", err)
	}
	if uc.Server.Name != "yamlcraft" || !uc.Players.Standard || uc.Persistence.PathBase != 36 {
		t.Fatalf("decoded config %+v", uc)
	}
	conf, err := uc.Config(testLogger())
	if err != nil {
		t.Fatalf("Config returned %v, want nil", err)
	}
	if len(conf.Worlds) != 1 || conf.Worlds[0].Dimension != world.Sky {
		t.Fatalf("worlds %+v, want a single sky world", conf.Worlds)
	}
}
