package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverlaysDefaults(t *testing.T) {
	in := `
api:
  base_url: https://fleet.example.com/api
sync:
  drain_interval: 10s
`
	cfg, err := Load(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, "https://fleet.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Sync.DrainInterval)

	// Untouched fields keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Sync.RefreshInterval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEmptyInputYieldsDefaults(t *testing.T) {
	cfg, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileMissingYieldsDefaults(t *testing.T) {
	cfg, err := LoadFile("does-not-exist.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(strings.NewReader("api: ["))
	assert.Error(t, err)
}
