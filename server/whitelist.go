package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pelletier/go-toml"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// Allower decides which players may join the server.
type Allower interface {
	// Allow reports if the player with the name passed may join. If not, the
	// join fails with ErrNotAllowed and the reason returned.
	Allow(name string) (reason string, allowed bool)
}

// allower allows every player.
type allower struct{}

func (allower) Allow(string) (string, bool) { return "", true }

var (
	// ErrWhitelistUnavailable is returned by the methods of a nil *Whitelist.
	ErrWhitelistUnavailable = errors.New("whitelist is not configured")
	// ErrWhitelistInvalidName is returned for an empty player name.
	ErrWhitelistInvalidName = errors.New("invalid player name")
)

const notWhitelisted = "You are not whitelisted on this server."

// Whitelist is an Allower admitting only the players it lists while enabled.
// Names are matched ignoring case. The list is stored in a TOML file, or a
// YAML file if its path ends in .yaml or .yml.
type Whitelist struct {
	path    string
	enabled atomic.Bool

	mu sync.RWMutex
	// players maps the folded name onto the name as it was added.
	players map[string]string
}

type whitelistFile struct {
	Players []string `toml:"players" yaml:"players"`
}

// LoadWhitelist reads the whitelist file at path. A missing file is created
// with an empty list. The returned Whitelist is disabled.
func LoadWhitelist(path string) (*Whitelist, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("whitelist path must not be empty")
	}
	w := &Whitelist{path: path}
	if err := w.Reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// Enabled reports if the whitelist is enforced.
func (w *Whitelist) Enabled() bool {
	return w != nil && w.enabled.Load()
}

// SetEnabled enforces the whitelist or stops enforcing it.
func (w *Whitelist) SetEnabled(enabled bool) {
	if w != nil {
		w.enabled.Store(enabled)
	}
}

// Allow ...
func (w *Whitelist) Allow(name string) (string, bool) {
	if !w.Enabled() {
		return "", true
	}
	key, ok := whitelistKey(name)
	if ok {
		w.mu.RLock()
		_, ok = w.players[key]
		w.mu.RUnlock()
	}
	if !ok {
		return notWhitelisted, false
	}
	return "", true
}

// Add adds name to the whitelist and reports if it was not yet listed.
func (w *Whitelist) Add(name string) (bool, error) {
	return w.update(name, func(players map[string]string, key string) bool {
		if _, ok := players[key]; ok {
			return false
		}
		players[key] = strings.TrimSpace(name)
		return true
	})
}

// Remove removes name from the whitelist and reports if it was listed.
func (w *Whitelist) Remove(name string) (bool, error) {
	return w.update(name, func(players map[string]string, key string) bool {
		if _, ok := players[key]; !ok {
			return false
		}
		delete(players, key)
		return true
	})
}

// update applies change to a copy of the players and writes the result to the
// file if change reported a modification. The Whitelist is only changed if the
// write succeeds.
func (w *Whitelist) update(name string, change func(players map[string]string, key string) bool) (bool, error) {
	if w == nil {
		return false, ErrWhitelistUnavailable
	}
	key, ok := whitelistKey(name)
	if !ok {
		return false, ErrWhitelistInvalidName
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	players := make(map[string]string, len(w.players)+1)
	for k, v := range w.players {
		players[k] = v
	}
	if !change(players, key) {
		return false, nil
	}
	if err := w.write(players); err != nil {
		return false, err
	}
	w.players = players
	return true, nil
}

// Players returns the listed names sorted ignoring case.
func (w *Whitelist) Players() []string {
	if w == nil {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return sortedNames(w.players)
}

// Reload replaces the listed players with those in the whitelist file.
func (w *Whitelist) Reload() error {
	if w == nil {
		return ErrWhitelistUnavailable
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	b, err := os.ReadFile(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		w.players = map[string]string{}
		return w.write(w.players)
	} else if err != nil {
		return fmt.Errorf("read whitelist: %w", err)
	}
	var f whitelistFile
	if isYAML(w.path) {
		err = yaml.Unmarshal(b, &f)
	} else {
		err = toml.Unmarshal(b, &f)
	}
	if err != nil {
		return fmt.Errorf("decode whitelist %s: %w", w.path, err)
	}
	w.players = make(map[string]string, len(f.Players))
	for _, name := range f.Players {
		if key, ok := whitelistKey(name); ok {
			w.players[key] = strings.TrimSpace(name)
		}
	}
	return nil
}

// write stores players in the whitelist file, replacing it atomically.
func (w *Whitelist) write(players map[string]string) error {
	f := whitelistFile{Players: sortedNames(players)}
	var (
		b   []byte
		err error
	)
	if isYAML(w.path) {
		b, err = yaml.Marshal(f)
	} else {
		b, err = toml.Marshal(f)
	}
	if err != nil {
		return fmt.Errorf("encode whitelist: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create whitelist directory: %w", err)
	}
	tmp := filepath.Join(dir, "."+filepath.Base(w.path)+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write whitelist: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write whitelist: %w", err)
	}
	return nil
}

func whitelistKey(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	return cases.Fold().String(name), true
}

func sortedNames(players map[string]string) []string {
	names := make([]string, 0, len(players))
	for _, name := range players {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if c := strings.Compare(cases.Fold().String(a), cases.Fold().String(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return names
}

var _ Allower = (*Whitelist)(nil)
