package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "podcastle.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	// File should have been created with defaults
	_, err = os.Stat(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:1930", cfg.Server.Address)
	assert.Equal(t, 5*time.Second, time.Duration(cfg.Poller.Interval))
	assert.Equal(t, 10*time.Second, time.Duration(cfg.Poller.MarkerTTL))
	assert.Equal(t, 80, cfg.Playback.Volume)
}

func TestLoad_MergesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "podcastle.yaml")

	content := `
poller:
  interval: 2s
backend:
  base_url: https://pods.example.com/api/v1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Overridden values
	assert.Equal(t, 2*time.Second, time.Duration(cfg.Poller.Interval))
	assert.Equal(t, "https://pods.example.com/api/v1", cfg.Backend.BaseURL)
	// Defaults preserved for unset keys
	assert.Equal(t, 10*time.Second, time.Duration(cfg.Poller.MarkerTTL))
	assert.Equal(t, "./data/podcastle.db", cfg.DB.Path)
}

func TestLoad_TokenFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "podcastle.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  token: \"\"\n"), 0o644))

	t.Setenv("PODCASTLE_TOKEN", "env-token")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Auth.Token)
}
