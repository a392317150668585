package plugin

// Config configures which plugin files a Manager loads and where plugins keep
// their data. Built-in plugins registered with Manager.Register are not
// affected by it.
type Config struct {
	// Enabled turns on loading of plugin files.
	Enabled bool
	// Directory holds plugin files. Relative entries of Files are resolved
	// against it. It defaults to "plugins".
	Directory string
	// DataDirectory is the parent of the per-plugin data directories. It
	// defaults to Directory/data; a relative value is taken relative to
	// Directory.
	DataDirectory string
	// Autoload loads every .so file found in Directory on start.
	Autoload bool
	// Files lists plugin files loaded on start in addition to the autoloaded
	// ones.
	Files []string
}
