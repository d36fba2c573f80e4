package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gitrustux/rustica/pkg/rpgerrors"
)

// UserPreferences are the opt-in/notification preferences an interactive
// session (the CLI, a future daemon) consults before acting without asking.
// A missing file is not an error: DefaultUserPreferences is used instead.
type UserPreferences struct {
	LiveUpdatesOptIn  bool    `json:"live_updates_opt_in"`
	ShowNotifications bool    `json:"show_notifications"`
	MaxBandwidthMbps  *uint32 `json:"max_bandwidth_mbps,omitempty"`
	WifiOnly          bool    `json:"wifi_only"`
}

// DefaultUserPreferences is used when no user-prefs.json exists yet.
func DefaultUserPreferences() *UserPreferences {
	return &UserPreferences{
		LiveUpdatesOptIn:  false,
		ShowNotifications: true,
		WifiOnly:          false,
	}
}

// LoadUserPreferences reads user-prefs.json from its default path, falling
// back to DefaultUserPreferences if the file does not exist.
func LoadUserPreferences() (*UserPreferences, error) {
	return LoadUserPreferencesFrom(DefaultUserPrefsPath)
}

// LoadUserPreferencesFrom reads user-prefs.json from an explicit path.
func LoadUserPreferencesFrom(path string) (*UserPreferences, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultUserPreferences(), nil
	}
	if err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Io, err, "reading user preferences %s", path)
	}
	var up UserPreferences
	if err := json.Unmarshal(data, &up); err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Serialization, err, "parsing user preferences %s", path)
	}
	return &up, nil
}

// Save writes user preferences to their default path.
func (u *UserPreferences) Save() error { return u.SaveTo(DefaultUserPrefsPath) }

// SaveTo writes user preferences to an explicit path.
func (u *UserPreferences) SaveTo(path string) error {
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return rpgerrors.Wrap(rpgerrors.Serialization, err, "encoding user preferences")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return rpgerrors.Wrap(rpgerrors.Io, err, "creating %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return rpgerrors.Wrap(rpgerrors.Io, err, "writing user preferences %s", path)
	}
	return nil
}
