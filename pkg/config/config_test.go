package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrustux/rustica/pkg/config"
)

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	c := config.Default()
	c.AddRepository("https://mirror.example/apps")
	c.AddRepository("https://mirror.example/apps") // deduped
	c.TrustKey = "dGVzdGtleQ=="

	require.NoError(t, c.SaveTo(path))

	reloaded, err := config.LoadConfigFrom(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://mirror.example/apps"}, reloaded.Repositories)
	assert.True(t, reloaded.VerifySignatures)
	assert.Equal(t, c.UpdateCheckInterval, reloaded.UpdateCheckInterval)
	assert.Equal(t, "dGVzdGtleQ==", reloaded.TrustKey)
}

func TestRemoveRepository(t *testing.T) {
	c := config.Default()
	c.AddRepository("a")
	c.AddRepository("b")
	c.RemoveRepository("a")
	assert.Equal(t, []string{"b"}, c.Repositories)
}

func TestLoadUpdateConfigMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update-config.json")
	uc, err := config.LoadUpdateConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultUpdateConfig(), uc)
}

func TestUpdateConfigShouldPause(t *testing.T) {
	uc := config.DefaultUpdateConfig()
	assert.False(t, uc.ShouldPause(40))
	assert.True(t, uc.ShouldPause(90))

	uc.PauseOnHighLoad = false
	assert.False(t, uc.ShouldPause(90))
}

func TestLoadUserPreferencesMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user-prefs.json")
	up, err := config.LoadUserPreferencesFrom(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultUserPreferences(), up)
}

func TestUserPreferencesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user-prefs.json")
	up := config.DefaultUserPreferences()
	up.LiveUpdatesOptIn = true
	mbps := uint32(10)
	up.MaxBandwidthMbps = &mbps

	require.NoError(t, up.SaveTo(path))

	reloaded, err := config.LoadUserPreferencesFrom(path)
	require.NoError(t, err)
	assert.True(t, reloaded.LiveUpdatesOptIn)
	require.NotNil(t, reloaded.MaxBandwidthMbps)
	assert.EqualValues(t, 10, *reloaded.MaxBandwidthMbps)
}
