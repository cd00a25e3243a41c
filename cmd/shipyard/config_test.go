package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "./data/shipyard.db", cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "none", cfg.Registry.Type)
	assert.False(t, cfg.Secrets.AWS.Enabled)
	assert.Equal(t, "shipyard", cfg.Secrets.AWS.Prefix)
	assert.Equal(t, 5*time.Second, cfg.Worker.Interval)
	assert.Equal(t, 30*time.Minute, cfg.Worker.RunTimeout)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "./data/workspaces", cfg.Workspace.WorkDir)
	assert.Equal(t, ".", cfg.Workspace.EnvDir)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  read_timeout: 60s
  write_timeout: 60s
  shutdown_timeout: 15s

database:
  dsn: "/tmp/test.db"

log:
  level: "debug"
  format: "text"

registry:
  type: "static"
  server: "registry.example.com"
  username: "ci"
  password: "hunter2"

worker:
  interval: 10s
  run_timeout: 1h
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "static", cfg.Registry.Type)
	assert.Equal(t, "registry.example.com", cfg.Registry.Server)
	assert.Equal(t, 10*time.Second, cfg.Worker.Interval)
	assert.Equal(t, time.Hour, cfg.Worker.RunTimeout)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("SHIPYARD_SERVER_HOST", "192.168.1.1")
	t.Setenv("SHIPYARD_SERVER_PORT", "3000")
	t.Setenv("SHIPYARD_DATABASE_DSN", "/custom/path.db")
	t.Setenv("SHIPYARD_LOG_LEVEL", "warn")
	t.Setenv("SHIPYARD_SECRETS_MASTER_KEY", "super-secret")
	t.Setenv("SHIPYARD_PLATFORM_DO_TOKEN", "dop_v1_abc")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "super-secret", cfg.Secrets.MasterKey)
	assert.Equal(t, "dop_v1_abc", cfg.Platform.DOToken)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err) // Should not error, just use defaults

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_JSONFormat(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}

	logger := SetupLogger(cfg)
	assert.NotNil(t, logger)
}

func TestSetupLogger_TextFormat(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}

	logger := SetupLogger(cfg)
	assert.NotNil(t, logger)
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{
			Level:  "invalid",
			Format: "json",
		},
	}

	// Should fall back to info level, not panic
	logger := SetupLogger(cfg)
	assert.NotNil(t, logger)
}

func TestSetupLogger_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "error"} {
		cfg := &Config{
			Log: LogConfig{
				Level:  level,
				Format: "json",
			},
		}

		logger := SetupLogger(cfg)
		assert.NotNil(t, logger, "level %s", level)
	}
}

// =============================================================================
// Config Validation Tests
// =============================================================================

func TestConfig_Address(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
	}

	assert.Equal(t, "localhost:8080", cfg.Server.Address())
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"SHIPYARD_SERVER_HOST",
		"SHIPYARD_SERVER_PORT",
		"SHIPYARD_DATABASE_DSN",
		"SHIPYARD_LOG_LEVEL",
		"SHIPYARD_LOG_FORMAT",
		"SHIPYARD_SECRETS_MASTER_KEY",
		"SHIPYARD_PLATFORM_DO_TOKEN",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}
