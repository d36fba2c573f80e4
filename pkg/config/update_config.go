package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gitrustux/rustica/pkg/rpgerrors"
)

// UpdateConfig controls when and how automatic updates may run. A missing
// file is not an error: DefaultUpdateConfig is used instead.
type UpdateConfig struct {
	LiveUpdatesEnabled  bool    `json:"live_updates_enabled"`
	PauseOnHighLoad     bool    `json:"pause_on_high_load"`
	MaxCPUUsage         uint8   `json:"max_cpu_usage"`
	NotifyBeforeInstall bool    `json:"notify_before_install"`
	PreferredTime       *string `json:"preferred_time,omitempty"`
	AutoApplyNonKernel  bool    `json:"auto_apply_non_kernel"`
}

// DefaultUpdateConfig is used when no update-config.json exists yet.
func DefaultUpdateConfig() *UpdateConfig {
	return &UpdateConfig{
		LiveUpdatesEnabled:  true,
		PauseOnHighLoad:     true,
		MaxCPUUsage:         50,
		NotifyBeforeInstall: true,
		AutoApplyNonKernel:  false,
	}
}

// LoadUpdateConfig reads update-config.json from its default path, falling
// back to DefaultUpdateConfig if the file does not exist.
func LoadUpdateConfig() (*UpdateConfig, error) {
	return LoadUpdateConfigFrom(DefaultUpdateConfigPath)
}

// LoadUpdateConfigFrom reads update-config.json from an explicit path.
func LoadUpdateConfigFrom(path string) (*UpdateConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultUpdateConfig(), nil
	}
	if err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Io, err, "reading update config %s", path)
	}
	var uc UpdateConfig
	if err := json.Unmarshal(data, &uc); err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Serialization, err, "parsing update config %s", path)
	}
	return &uc, nil
}

// Save writes the update config to its default path.
func (u *UpdateConfig) Save() error { return u.SaveTo(DefaultUpdateConfigPath) }

// SaveTo writes the update config to an explicit path.
func (u *UpdateConfig) SaveTo(path string) error {
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return rpgerrors.Wrap(rpgerrors.Serialization, err, "encoding update config")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return rpgerrors.Wrap(rpgerrors.Io, err, "creating %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return rpgerrors.Wrap(rpgerrors.Io, err, "writing update config %s", path)
	}
	return nil
}

// ShouldPause reports whether an in-progress or scheduled update should
// pause given the current CPU usage percentage.
func (u *UpdateConfig) ShouldPause(currentCPUUsage uint8) bool {
	return u.PauseOnHighLoad && currentCPUUsage > u.MaxCPUUsage
}
