package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "./data/billdrop.db", cfg.DatabasePath)
	assert.Equal(t, 12*time.Hour, cfg.SweepInterval)
	assert.Equal(t, 40, cfg.SweepLookbackDays)
	assert.Equal(t, int64(500), cfg.SweepMaxResults)
	assert.Equal(t, 60*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.GoogleEnabled())
	assert.False(t, cfg.ZohoEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("SWEEP_INTERVAL", "1h")
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.True(t, cfg.GoogleEnabled())
}

func TestLoad_RequiresSessionSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsShortSessionSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "too-short")

	_, err := Load()
	assert.Error(t, err)
}
