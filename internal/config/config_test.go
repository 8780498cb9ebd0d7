package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 365, cfg.InitialLookbackDays)
	assert.Equal(t, 90, cfg.SyncChunkDays)
	assert.Equal(t, 1000, cfg.DaySyncLimit)
	assert.Equal(t, 180, cfg.YesterdayRefreshMinutes)
	assert.NotEmpty(t, cfg.DatabasePath)
}

func TestLoad_CredentialAliases(t *testing.T) {
	t.Setenv("TOPSTEPX_API_BASE_URL", "https://gateway.example.com")
	t.Setenv("PROJECTX_USER_NAME", "trader1")
	t.Setenv("PX_API_KEY", "key-123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://gateway.example.com", cfg.ProjectXBaseURL)
	assert.Equal(t, "trader1", cfg.ProjectXUsername)
	assert.Equal(t, "key-123", cfg.ProjectXAPIKey)
	assert.Empty(t, cfg.MissingCredentials())
}

func TestLoad_AliasPrecedence(t *testing.T) {
	t.Setenv("PROJECTX_API_BASE_URL", "https://primary.example.com")
	t.Setenv("TOPSTEP_API_BASE_URL", "https://fallback.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://primary.example.com", cfg.ProjectXBaseURL)
}

func TestMissingCredentials(t *testing.T) {
	cfg := &Config{ProjectXUsername: "trader1"}
	assert.Equal(t, []string{"PROJECTX_API_BASE_URL", "PROJECTX_API_KEY"}, cfg.MissingCredentials())
}

func TestLoad_NonPositiveTuningFallsBack(t *testing.T) {
	t.Setenv("PROJECTX_SYNC_CHUNK_DAYS", "0")
	t.Setenv("PROJECTX_INITIAL_LOOKBACK_DAYS", "-5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90, cfg.SyncChunkDays)
	assert.Equal(t, 365, cfg.InitialLookbackDays)
}
