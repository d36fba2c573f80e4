// Package config manages rpg's ops-facing configuration: the main
// TOML config, the JSON update-scheduling policy, and JSON user
// preferences, each loaded and saved independently.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/gitrustux/rustica/pkg/layout"
	"github.com/gitrustux/rustica/pkg/rpgerrors"
)

const (
	// DefaultPath is where the main TOML config lives.
	DefaultPath = layout.ConfigDir + "/config.toml"
	// DefaultUpdateConfigPath is where the JSON update-scheduling policy lives.
	DefaultUpdateConfigPath = layout.ConfigDir + "/update-config.json"
	// DefaultUserPrefsPath is where JSON user preferences live.
	DefaultUserPrefsPath = layout.ConfigDir + "/user-prefs.json"
)

// Config is rpg's main on-disk configuration.
type Config struct {
	Repositories         []string      `toml:"repositories"`
	AutoUpdatesEnabled    bool          `toml:"auto_updates_enabled"`
	UpdateCheckInterval   time.Duration `toml:"-"`
	UpdateCheckIntervalHours int        `toml:"update_check_interval_hours"`
	MaxBandwidth         uint64        `toml:"max_bandwidth"`
	VerifySignatures     bool          `toml:"verify_signatures"`
	TrustKey             string        `toml:"trust_key,omitempty"`
	CacheDir             string        `toml:"cache_dir"`
	MetadataDir          string        `toml:"metadata_dir"`
	StateDir             string        `toml:"state_dir"`
}

// Default returns the configuration used when no config.toml exists yet.
func Default() *Config {
	return &Config{
		AutoUpdatesEnabled:       false,
		UpdateCheckInterval:      24 * time.Hour,
		UpdateCheckIntervalHours: 24,
		MaxBandwidth:             0,
		VerifySignatures:         true,
		CacheDir:                 layout.CacheDir,
		MetadataDir:              layout.MetaDir,
		StateDir:                 layout.StateDir,
	}
}

// LoadConfig reads the main config from its default path. A missing file is
// an error: unlike UpdateConfig/UserPreferences, the main config is
// required.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultPath)
}

// LoadConfigFrom reads the main config from an explicit path.
func LoadConfigFrom(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Io, err, "reading config %s", path)
	}
	if c.UpdateCheckIntervalHours == 0 {
		c.UpdateCheckIntervalHours = 24
	}
	c.UpdateCheckInterval = time.Duration(c.UpdateCheckIntervalHours) * time.Hour
	if c.CacheDir == "" {
		c.CacheDir = layout.CacheDir
	}
	if c.MetadataDir == "" {
		c.MetadataDir = layout.MetaDir
	}
	if c.StateDir == "" {
		c.StateDir = layout.StateDir
	}
	return &c, nil
}

// Save writes the config to its default path.
func (c *Config) Save() error { return c.SaveTo(DefaultPath) }

// SaveTo writes the config to an explicit path.
func (c *Config) SaveTo(path string) error {
	c.UpdateCheckIntervalHours = int(c.UpdateCheckInterval.Hours())
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return rpgerrors.Wrap(rpgerrors.Io, err, "creating %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return rpgerrors.Wrap(rpgerrors.Io, err, "writing config %s", path)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return rpgerrors.Wrap(rpgerrors.Serialization, err, "encoding config %s", path)
	}
	return nil
}

// AddRepository appends a repository URL, deduped.
func (c *Config) AddRepository(url string) {
	for _, existing := range c.Repositories {
		if existing == url {
			return
		}
	}
	c.Repositories = append(c.Repositories, url)
}

// RemoveRepository removes a repository URL, if present.
func (c *Config) RemoveRepository(url string) {
	var filtered []string
	for _, existing := range c.Repositories {
		if existing != url {
			filtered = append(filtered, existing)
		}
	}
	c.Repositories = filtered
}

// VerifySignaturesEnabled reports whether signature verification is
// mandatory under this config.
func (c *Config) VerifySignaturesEnabled() bool { return c.VerifySignatures }
