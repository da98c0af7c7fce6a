package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "./sessions.db", cfg.Store.Path)
	assert.Equal(t, 24*time.Hour, cfg.Store.StaleAfter)
	assert.Nil(t, cfg.GameDefaults("artillery"))
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	dir := t.TempDir()
	raw := `{
		"logLevel": "debug",
		"server": { "addr": ":9999" },
		"store": { "path": "/tmp/games.db", "staleAfter": "48h" },
		"games": {
			"artillery": { "round_turns": 20, "sudden_death": "water_rise" }
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gamehost.cfg.json"), []byte(raw), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	// Unset keys keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/games.db", cfg.Store.Path)
	assert.Equal(t, 48*time.Hour, cfg.Store.StaleAfter)

	tuning := cfg.GameDefaults("artillery")
	require.NotNil(t, tuning)
	assert.Equal(t, "water_rise", tuning["sudden_death"])
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gamehost.cfg.json"), []byte("{nope"), 0644))

	_, err := Load(dir)
	require.Error(t, err)
}
