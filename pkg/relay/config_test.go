package relay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courier.toml")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	// The file was written and carries the defaults.
	_, err = os.Stat(path)
	require.NoError(t, err)

	cfg := config.ToServerConfig()
	assert.Equal(t, 8484, cfg.HTTPPort)
	assert.Equal(t, 9090, cfg.MetricsPort)
	assert.Equal(t, 30, cfg.SweepIntervalSeconds)
}

func TestLoadConfigParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courier.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
http_port = 9999
database_path = "/tmp/test.db"

[limits]
sweep_interval_seconds = 5
`), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	cfg := config.ToServerConfig()
	assert.Equal(t, 9999, cfg.HTTPPort)
	assert.Equal(t, "/tmp/test.db", cfg.DatabasePath)
	assert.Equal(t, 5, cfg.SweepIntervalSeconds)
	// Unset values fall back to defaults.
	assert.Equal(t, 9090, cfg.MetricsPort)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COURIER_SERVER_HTTP_PORT", "7777")
	t.Setenv("COURIER_LIMITS_SWEEP_INTERVAL_SECONDS", "10")

	config, err := LoadConfig(filepath.Join(t.TempDir(), "courier.toml"))
	require.NoError(t, err)

	cfg := config.ToServerConfig()
	assert.Equal(t, 7777, cfg.HTTPPort)
	assert.Equal(t, 10, cfg.SweepIntervalSeconds)
}

func TestLoadConfigRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courier.toml")
	require.NoError(t, os.WriteFile(path, []byte("not [valid toml"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
