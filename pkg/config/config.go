// Package config provides environment-based configuration for the client core.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the client core.
type Config struct {
	// API configuration
	APIBaseURL     string        `yaml:"api_base_url"`
	AppVersion     string        `yaml:"app_version"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Connectivity probe
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// Credential storage
	Storage StorageConfig `yaml:"storage"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// StorageConfig holds credential storage configuration.
type StorageConfig struct {
	// Path is the location of the fallback SQLite credential database.
	Path string `yaml:"path"`
	// EncryptionKey is an externally supplied encryption key. When set it must
	// be at least 32 characters; shorter keys are rejected by Validate.
	EncryptionKey string `yaml:"encryption_key"`
}

// Load reads configuration from environment variables. If AH_CONFIG_FILE is
// set, the named YAML file is loaded first and environment variables override
// its values.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("AH_CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration without validating required fields.
// Useful for testing.
func LoadWithDefaults() *Config {
	cfg := defaults()
	applyEnv(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		APIBaseURL:     "",
		AppVersion:     "0.0.0-dev",
		RequestTimeout: 30 * time.Second,
		ProbeTimeout:   2 * time.Second,
		Storage: StorageConfig{
			Path: defaultStoragePath(),
		},
		LogLevel: "info",
		LogJSON:  true,
	}
}

func applyEnv(cfg *Config) {
	cfg.APIBaseURL = getEnv("AH_API_BASE_URL", cfg.APIBaseURL)
	cfg.AppVersion = getEnv("AH_APP_VERSION", cfg.AppVersion)
	cfg.RequestTimeout = getDurationEnv("AH_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.ProbeTimeout = getDurationEnv("AH_PROBE_TIMEOUT", cfg.ProbeTimeout)
	cfg.Storage.Path = getEnv("AH_STORAGE_PATH", cfg.Storage.Path)
	cfg.Storage.EncryptionKey = getEnv("AH_ENCRYPTION_KEY", cfg.Storage.EncryptionKey)
	cfg.LogLevel = getEnv("AH_LOG_LEVEL", cfg.LogLevel)
	cfg.LogJSON = getBoolEnv("AH_LOG_JSON", cfg.LogJSON)
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("AH_API_BASE_URL is required")
	}
	if key := c.Storage.EncryptionKey; key != "" && len(key) < 32 {
		return fmt.Errorf("AH_ENCRYPTION_KEY must be at least 32 characters")
	}
	return nil
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "credentials.db"
	}
	return dir + "/accessible-healthcare/credentials.db"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
