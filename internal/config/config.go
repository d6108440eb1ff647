// Package config provides configuration management for FieldClone.
// Settings are loaded from environment variables with the FIELDCLONE_
// prefix, with an optional YAML file layered underneath (env vars win).
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the FieldClone service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Backup   BackupConfig   `yaml:"backup"`
	Security SecurityConfig `yaml:"security"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)
	Port int    `yaml:"port"` // Server port (default: 6380)
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // Storage engine: sqlite, postgres (default: sqlite)
	DataPath    string `yaml:"data_path"`    // Path to data directory (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // Postgres DSN when engine is postgres
}

// BackupConfig contains backup and retention configuration.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`        // Enable pre-clone backups (default: true)
	RetentionDays int    `yaml:"retention_days"` // Delete backups older than this (default: 30, 0 disables)
	MaxCount      int    `yaml:"max_count"`      // Keep at most this many backups (default: 50, 0 disables)
	FailurePolicy string `yaml:"failure_policy"` // abort or proceed on backup failure (default: abort)
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	Mode     string `yaml:"mode"`      // Security mode: development, production (default: development)
	APIToken string `yaml:"api_token"` // Bearer token required in production mode
}

// LimitsConfig contains API rate limiting settings.
type LimitsConfig struct {
	RequestsPerSec float64 `yaml:"requests_per_sec"` // Sustained per-actor request rate (default: 10)
	Burst          int     `yaml:"burst"`            // Per-actor burst size (default: 20)
}

// LoadConfig loads configuration from environment variables with
// sensible defaults.
func LoadConfig() (*Config, error) {
	return buildBaseConfig(), nil
}

// LoadConfigFromFile loads a YAML config file, then applies
// environment variable overrides on top of it.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg := buildBaseConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	// Env vars take precedence over the file.
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}

	switch c.Backup.FailurePolicy {
	case "abort", "proceed":
	default:
		return fmt.Errorf("config: unknown backup failure policy %q", c.Backup.FailurePolicy)
	}

	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres engine requires a DSN")
	}

	return nil
}

// buildBaseConfig constructs a Config from environment variables and
// defaults.
func buildBaseConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 6380,
		},
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		Backup: BackupConfig{
			Enabled:       true,
			RetentionDays: 30,
			MaxCount:      50,
			FailurePolicy: "abort",
		},
		Security: SecurityConfig{
			Mode: "development",
		},
		Limits: LimitsConfig{
			RequestsPerSec: 10,
			Burst:          20,
		},
	}
	applyEnvOverrides(cfg)
	return cfg
}

// applyEnvOverrides replaces config values that have a FIELDCLONE_ env
// var set.
func applyEnvOverrides(cfg *Config) {
	cfg.Server.Host = getEnv("FIELDCLONE_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("FIELDCLONE_PORT", cfg.Server.Port)

	cfg.Storage.Engine = getEnv("FIELDCLONE_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.DataPath = getEnv("FIELDCLONE_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("FIELDCLONE_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.Backup.Enabled = getEnvBool("FIELDCLONE_BACKUP_ENABLED", cfg.Backup.Enabled)
	cfg.Backup.RetentionDays = getEnvInt("FIELDCLONE_BACKUP_RETENTION_DAYS", cfg.Backup.RetentionDays)
	cfg.Backup.MaxCount = getEnvInt("FIELDCLONE_BACKUP_MAX_COUNT", cfg.Backup.MaxCount)
	cfg.Backup.FailurePolicy = getEnv("FIELDCLONE_BACKUP_FAILURE_POLICY", cfg.Backup.FailurePolicy)

	cfg.Security.Mode = getEnv("FIELDCLONE_SECURITY_MODE", cfg.Security.Mode)
	cfg.Security.APIToken = getEnv("FIELDCLONE_API_TOKEN", cfg.Security.APIToken)

	cfg.Limits.RequestsPerSec = getEnvFloat("FIELDCLONE_REQUESTS_PER_SEC", cfg.Limits.RequestsPerSec)
	cfg.Limits.Burst = getEnvInt("FIELDCLONE_BURST", cfg.Limits.Burst)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a
// default value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a
// default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a
// default value. It recognizes "true", "1", "yes" and "false", "0",
// "no" in any case.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
