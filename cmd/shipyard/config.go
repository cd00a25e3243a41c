package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Docker    DockerConfig    `mapstructure:"docker"`
	Log       LogConfig       `mapstructure:"log"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Platform  PlatformConfig  `mapstructure:"platform"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RegistryConfig holds image registry configuration.
type RegistryConfig struct {
	// Type selects the registry provider.
	// "none" - no registry credentials, pushes use the anonymous auth (local registries)
	// "static" - fixed server/username/password credentials
	// "ecr" - AWS Elastic Container Registry with token refresh
	Type     string `mapstructure:"type"`
	Server   string `mapstructure:"server"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// Region is the AWS region for the ecr provider.
	Region string `mapstructure:"region"`
}

// SecretsConfig holds secret backend configuration.
type SecretsConfig struct {
	// MasterKey encrypts values held by the local backend.
	// Set via SHIPYARD_SECRETS_MASTER_KEY environment variable.
	MasterKey string `mapstructure:"master_key"`

	AWS AWSSecretsConfig `mapstructure:"aws"`
}

// AWSSecretsConfig holds AWS Secrets Manager backend configuration.
type AWSSecretsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Region  string `mapstructure:"region"`
	Prefix  string `mapstructure:"prefix"`
}

// PlatformConfig holds deploy target configuration.
type PlatformConfig struct {
	// HTTPEndpoint is the base URL of a generic deploy webhook receiver.
	// Empty disables the http target.
	HTTPEndpoint string `mapstructure:"http_endpoint"`
	HTTPToken    string `mapstructure:"http_token"`

	// DOToken is the DigitalOcean API token for the digitalocean target.
	// Empty disables the digitalocean target.
	DOToken string `mapstructure:"do_token"`
}

// WorkerConfig holds run execution worker configuration.
type WorkerConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	// Enabled requires a bearer token on /api/v1 routes.
	// While no tokens exist yet, requests pass through so the
	// first token can be minted over the API.
	Enabled bool `mapstructure:"enabled"`
}

// WorkspaceConfig holds filesystem layout configuration.
type WorkspaceConfig struct {
	// WorkDir is the base directory for per-app build contexts.
	WorkDir string `mapstructure:"work_dir"`

	// EnvDir is the base directory for resolving compose env_file paths.
	EnvDir string `mapstructure:"env_dir"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "./data/shipyard.db")
	v.SetDefault("docker.host", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Registry defaults: no credentials, suitable for a local registry.
	v.SetDefault("registry.type", "none")
	v.SetDefault("registry.server", "")
	v.SetDefault("registry.username", "")
	v.SetDefault("registry.password", "")
	v.SetDefault("registry.region", "")

	// Secrets defaults: local backend only, key set via environment.
	v.SetDefault("secrets.master_key", "")
	v.SetDefault("secrets.aws.enabled", false)
	v.SetDefault("secrets.aws.region", "")
	v.SetDefault("secrets.aws.prefix", "shipyard")

	// Platform defaults: no remote targets configured.
	v.SetDefault("platform.http_endpoint", "")
	v.SetDefault("platform.http_token", "")
	v.SetDefault("platform.do_token", "")

	// Worker defaults
	v.SetDefault("worker.interval", "5s")
	v.SetDefault("worker.run_timeout", "30m")

	// Auth defaults
	v.SetDefault("auth.enabled", true)

	// Workspace defaults
	v.SetDefault("workspace.work_dir", "./data/workspaces")
	v.SetDefault("workspace.env_dir", ".")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("SHIPYARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
