package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the lexshelf home directory.
	DefaultDirName = ".lexshelf"

	// MediaDirName is the subdirectory for generated covers and narration.
	MediaDirName = "media"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// DatabaseFileName is the default SQLite database file.
	DatabaseFileName = "lexshelf.db"

	// LockFileName guards against two servers sharing one home directory.
	LockFileName = "server.lock"
)

// Dir represents the lexshelf home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.lexshelf).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// MediaPath returns the root of the local object store.
func (d *Dir) MediaPath() string {
	return filepath.Join(d.path, MediaDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// DatabasePath returns the path to the default SQLite database.
func (d *Dir) DatabasePath() string {
	return filepath.Join(d.path, DatabaseFileName)
}

// LockPath returns the path of the server lock file.
func (d *Dir) LockPath() string {
	return filepath.Join(d.path, LockFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Create media directory (this also creates the parent)
	if err := os.MkdirAll(d.MediaPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create media directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
