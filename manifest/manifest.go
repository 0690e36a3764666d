// Package manifest handles dacite.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a dacite.toml project configuration.
type Manifest struct {
	Package      Package               `toml:"package"`
	VM           VMConfig              `toml:"vm"`
	Cache        CacheConfig           `toml:"cache"`
	Dependencies map[string]Dependency `toml:"dependencies"`

	// Dir is the directory containing the dacite.toml file (set at load time).
	Dir string `toml:"-"`
}

// Package contains project metadata.
type Package struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Entry   string `toml:"entry"`
}

// VMConfig configures execution.
type VMConfig struct {
	StackSize int `toml:"stack-size"`
}

// CacheConfig configures the compiled-program cache.
type CacheConfig struct {
	Enabled *bool  `toml:"enabled"`
	Path    string `toml:"path"`
}

// Dependency represents a single project dependency. Exactly one of Git or
// Path identifies the source.
type Dependency struct {
	Git  string `toml:"git"`
	Tag  string `toml:"tag"`
	Path string `toml:"path"`
}

// CacheEnabled reports whether the cache is on. It defaults to on when the
// manifest does not say otherwise.
func (m *Manifest) CacheEnabled() bool {
	if m.Cache.Enabled == nil {
		return true
	}
	return *m.Cache.Enabled
}

// Load parses a dacite.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "dacite.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Package.Entry == "" {
		m.Package.Entry = "main.dcs"
	}

	if m.Package.Name == "" {
		return nil, fmt.Errorf("%s: package name is required", path)
	}
	if m.VM.StackSize != 0 && m.VM.StackSize < 16 {
		return nil, fmt.Errorf("%s: vm stack-size %d is below the 16-byte minimum", path, m.VM.StackSize)
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a dacite.toml file, then loads
// and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "dacite.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// EntryPath returns the absolute path of the entry source file.
func (m *Manifest) EntryPath() string {
	return filepath.Join(m.Dir, m.Package.Entry)
}

// DepsDir returns the path to the .dacite/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".dacite", "deps")
}

// LockFilePath returns the path to .dacite/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".dacite", "lock.toml")
}

// CachePath returns the configured cache database path, or "" when the
// default location should be used. Relative paths resolve against the
// manifest directory.
func (m *Manifest) CachePath() string {
	if m.Cache.Path == "" {
		return ""
	}
	if filepath.IsAbs(m.Cache.Path) {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}
