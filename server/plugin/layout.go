package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// layout resolves where plugin files and plugin data live on disk.
type layout struct {
	dir  string
	data string
}

func newLayout(cfg Config) layout {
	dir := filepath.Clean(cfg.Directory)
	if cfg.Directory == "" {
		dir = "plugins"
	}
	data := cfg.DataDirectory
	switch {
	case data == "":
		data = filepath.Join(dir, "data")
	case !filepath.IsAbs(data):
		data = filepath.Join(dir, data)
	}
	return layout{dir: dir, data: filepath.Clean(data)}
}

// resolve returns path relative to the plugin directory unless it is absolute
// or already points into it, such as "plugins/demo.so".
func (l layout) resolve(path string) string {
	if path == "" {
		return ""
	}
	path = filepath.Clean(path)
	if filepath.IsAbs(path) || path == l.dir {
		return path
	}
	if rel, err := filepath.Rel(l.dir, path); err == nil && !escapes(rel) {
		return path
	}
	return filepath.Join(l.dir, path)
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// dataDir returns the data directory of the plugin with the name passed.
func (l layout) dataDir(name string) string {
	return filepath.Join(l.data, dataDirName(name))
}

// moveData moves the data directory from to the directory to. A missing source
// results in an empty target.
func (l layout) moveData(from, to string) error {
	switch {
	case from == to:
		return nil
	case to == "":
		return errors.New("empty target data directory")
	}
	if from != "" {
		info, err := os.Stat(from)
		switch {
		case err == nil && !info.IsDir():
			return fmt.Errorf("%s is not a directory", from)
		case err == nil:
			if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
				return err
			}
			return os.Rename(from, to)
		case !errors.Is(err, os.ErrNotExist):
			return err
		}
	}
	return os.MkdirAll(to, 0o755)
}

// pluginFiles lists the .so files in the plugin directory.
func (l layout) pluginFiles() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".so") {
			files = append(files, filepath.Join(l.dir, e.Name()))
		}
	}
	return files, nil
}

// baseName returns the file name of path without its extension, used as the
// name of a plugin until it reports its own.
func baseName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "plugin"
	}
	return base
}

// dataDirName maps a plugin name onto a lower-case directory name made of
// letters, digits, '-', '_' and '.'.
func dataDirName(name string) string {
	s := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '-'
	}, strings.ToLower(strings.TrimSpace(name)))
	if s = strings.Trim(s, "-_."); s == "" {
		return "plugin"
	}
	return s
}
