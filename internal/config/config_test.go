package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BREWSYNC_SERVER_URL", "BREWSYNC_USER_ID", "BREWSYNC_ALLOW_ANONYMOUS",
		"BREWSYNC_STATE_DB", "BREWSYNC_REQUEST_TIMEOUT", "BREWSYNC_HEALTH_PATH",
		"BREWSYNC_RETRY_ATTEMPTS", "BREWSYNC_RETRY_BACKOFF", "BREWSYNC_RETENTION_DAYS",
		"BREWSYNC_LIST_PAGE_SIZE", "BREWSYNC_FORCE_OFFLINE", "BREWSYNC_ENVIRONMENT",
		"BREWSYNC_CONFIG_FILE",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("BREWSYNC_SERVER_URL", "http://localhost:8080")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
	assert.Empty(t, cfg.UserID)
	assert.False(t, cfg.AllowAnonymous)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "/health", cfg.HealthPath)
	assert.Equal(t, uint64(3), cfg.RetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, 100, cfg.ListPageSize)
	assert.False(t, cfg.ForceOffline)
	assert.Equal(t, "development", cfg.Environment)
	assert.NotEmpty(t, cfg.StateDBPath)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BREWSYNC_SERVER_URL", "https://api.example.com")
	t.Setenv("BREWSYNC_USER_ID", "user-7")
	t.Setenv("BREWSYNC_STATE_DB", "/tmp/brewsync-test.db")
	t.Setenv("BREWSYNC_REQUEST_TIMEOUT", "3s")
	t.Setenv("BREWSYNC_RETENTION_DAYS", "7")
	t.Setenv("BREWSYNC_ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "user-7", cfg.UserID)
	assert.Equal(t, "/tmp/brewsync-test.db", cfg.StateDBPath)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 7, cfg.RetentionDays)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_MissingServerURLFails(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BREWSYNC_SERVER_URL")
}

func TestLoad_InvalidRetentionFails(t *testing.T) {
	clearEnv(t)
	t.Setenv("BREWSYNC_SERVER_URL", "http://localhost:8080")
	t.Setenv("BREWSYNC_RETENTION_DAYS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BREWSYNC_RETENTION_DAYS")
}

func TestLoad_YAMLFileThenEnvWins(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: http://yaml-host\nretention_days: 14\nlist_page_size: 25\n"), 0o600))

	t.Setenv("BREWSYNC_CONFIG_FILE", path)
	t.Setenv("BREWSYNC_SERVER_URL", "http://env-host")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://env-host", cfg.ServerURL, "environment overrides the file")
	assert.Equal(t, 14, cfg.RetentionDays, "file fills values the environment leaves unset")
	assert.Equal(t, 25, cfg.ListPageSize)
}

func TestLoad_MissingConfigFileFails(t *testing.T) {
	clearEnv(t)
	t.Setenv("BREWSYNC_SERVER_URL", "http://localhost:8080")
	t.Setenv("BREWSYNC_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}
