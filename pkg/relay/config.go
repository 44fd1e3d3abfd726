package relay

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ServerConfig holds the relay's runtime configuration.
type ServerConfig struct {
	HTTPPort             int    // Public WebSocket endpoint port
	MetricsPort          int    // Internal /metrics + /health port
	DatabasePath         string // SQLite database file
	SweepIntervalSeconds int    // Liveness sweep interval
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:             8484,
		MetricsPort:          9090,
		DatabasePath:         "~/.courier/courier.db",
		SweepIntervalSeconds: 30,
	}
}

// SweepInterval returns the liveness sweep interval as a duration.
func (c ServerConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// TOMLConfig represents the structure of the relay config file.
type TOMLConfig struct {
	Server ServerSection `toml:"server"`
	Limits LimitsSection `toml:"limits"`
}

type ServerSection struct {
	HTTPPort     int    `toml:"http_port"`
	MetricsPort  int    `toml:"metrics_port"`
	DatabasePath string `toml:"database_path"`
}

type LimitsSection struct {
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
}

// LoadConfig loads configuration from a TOML file, creates a default file
// if none exists, and applies environment variable overrides.
func LoadConfig(path string) (TOMLConfig, error) {
	path, err := expandHome(path)
	if err != nil {
		return TOMLConfig{}, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// First run: write a documented default file. If that fails (read-only
		// filesystem), run on defaults anyway.
		if err := writeDefaultConfig(path); err != nil {
			errorLog.Printf("Could not write default config to %s: %v", path, err)
		}
		return applyEnvOverrides(defaultTOMLConfig()), nil
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return applyEnvOverrides(config), nil
}

func defaultTOMLConfig() TOMLConfig {
	defaults := DefaultConfig()
	return TOMLConfig{
		Server: ServerSection{
			HTTPPort:     defaults.HTTPPort,
			MetricsPort:  defaults.MetricsPort,
			DatabasePath: defaults.DatabasePath,
		},
		Limits: LimitsSection{
			SweepIntervalSeconds: defaults.SweepIntervalSeconds,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
// Variables follow the pattern COURIER_SECTION_KEY, e.g.
// COURIER_SERVER_HTTP_PORT=9000.
func applyEnvOverrides(config TOMLConfig) TOMLConfig {
	if val := os.Getenv("COURIER_SERVER_HTTP_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.HTTPPort = port
		}
	}
	if val := os.Getenv("COURIER_SERVER_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.MetricsPort = port
		}
	}
	if val := os.Getenv("COURIER_SERVER_DATABASE_PATH"); val != "" {
		config.Server.DatabasePath = val
	}
	if val := os.Getenv("COURIER_LIMITS_SWEEP_INTERVAL_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			config.Limits.SweepIntervalSeconds = seconds
		}
	}
	return config
}

// ToServerConfig converts the file representation to a ServerConfig,
// filling gaps with defaults.
func (c *TOMLConfig) ToServerConfig() ServerConfig {
	cfg := DefaultConfig()

	if c.Server.HTTPPort != 0 {
		cfg.HTTPPort = c.Server.HTTPPort
	}
	if c.Server.MetricsPort != 0 {
		cfg.MetricsPort = c.Server.MetricsPort
	}
	if strings.TrimSpace(c.Server.DatabasePath) != "" {
		cfg.DatabasePath = c.Server.DatabasePath
	}
	if c.Limits.SweepIntervalSeconds != 0 {
		cfg.SweepIntervalSeconds = c.Limits.SweepIntervalSeconds
	}

	return cfg
}

// GetDatabasePath returns the database path with ~ expanded.
func (c *TOMLConfig) GetDatabasePath() (string, error) {
	return expandHome(c.Server.DatabasePath)
}

func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}
	return path, nil
}

// writeDefaultConfig writes a documented default config file.
func writeDefaultConfig(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := `# Courier Relay Configuration
# This file was auto-generated with default values.
# Restart the relay for changes to take effect.
#
# Environment variables can override these settings:
# COURIER_SECTION_KEY (e.g., COURIER_SERVER_HTTP_PORT=9000)

[server]
# Port for the public WebSocket endpoint (/ws). Terminate TLS in front.
http_port = 8484

# Port for the internal metrics server (/metrics, /health).
# Never expose this publicly.
metrics_port = 9090

# Path to the SQLite database file.
database_path = "~/.courier/courier.db"

[limits]
# Liveness sweep interval in seconds. Transports that fail to acknowledge
# one sweep are closed on the next.
sweep_interval_seconds = 30
`

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
