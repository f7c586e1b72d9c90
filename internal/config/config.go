package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all environment-based configuration for brewsync.
type Config struct {
	// Base URL of the recipe API server.
	ServerURL string `env:"BREWSYNC_SERVER_URL" yaml:"server_url"`

	// User identity that scopes all persisted state. Empty means
	// anonymous device scope; mutations then fail with an
	// authentication-required error unless AllowAnonymous is set.
	UserID string `env:"BREWSYNC_USER_ID" yaml:"user_id"`

	// AllowAnonymous lets the engine fall back to a device-local scope
	// when no user id is configured.
	AllowAnonymous bool `env:"BREWSYNC_ALLOW_ANONYMOUS" envDefault:"false" yaml:"allow_anonymous"`

	// Path to the bbolt state database. Defaults to
	// ~/.brewsync/state.db when empty.
	StateDBPath string `env:"BREWSYNC_STATE_DB" yaml:"state_db"`

	// Per-request timeout for server calls.
	RequestTimeout time.Duration `env:"BREWSYNC_REQUEST_TIMEOUT" envDefault:"15s" yaml:"request_timeout"`

	// Health endpoint path probed by the connectivity oracle.
	HealthPath string `env:"BREWSYNC_HEALTH_PATH" envDefault:"/health" yaml:"health_path"`

	// Maximum retry attempts per network call.
	RetryAttempts uint64 `env:"BREWSYNC_RETRY_ATTEMPTS" envDefault:"3" yaml:"retry_attempts"`

	// Initial backoff between retries; doubles per attempt.
	RetryBackoff time.Duration `env:"BREWSYNC_RETRY_BACKOFF" envDefault:"500ms" yaml:"retry_backoff"`

	// Days a resolved tombstone may linger before garbage collection.
	RetentionDays int `env:"BREWSYNC_RETENTION_DAYS" envDefault:"30" yaml:"retention_days"`

	// Page size used for full listings from the server.
	ListPageSize int `env:"BREWSYNC_LIST_PAGE_SIZE" envDefault:"100" yaml:"list_page_size"`

	// ForceOffline pins the connectivity oracle to offline. Useful for
	// testing the offline path against a live configuration.
	ForceOffline bool `env:"BREWSYNC_FORCE_OFFLINE" envDefault:"false" yaml:"force_offline"`

	// Environment controls log format.
	Environment string `env:"BREWSYNC_ENVIRONMENT" envDefault:"development" yaml:"environment"`
}

// Load reads configuration from the environment. It first attempts to
// load a .env file if present, then layers an optional YAML file named
// by BREWSYNC_CONFIG_FILE over the built-in defaults, with explicitly
// set env vars winning over both.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if path := os.Getenv("BREWSYNC_CONFIG_FILE"); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}

		// Re-apply env vars without their defaults so values that were
		// actually set in the environment win back over the file.
		opts := env.Options{DefaultValueTagName: "envNoDefault"}
		if err := env.ParseWithOptions(cfg, opts); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if cfg.StateDBPath == "" {
		path, err := defaultDBPath()
		if err != nil {
			return nil, err
		}

		cfg.StateDBPath = path
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func (c *Config) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("BREWSYNC_SERVER_URL is required")
	}

	if c.RetentionDays <= 0 {
		return fmt.Errorf("BREWSYNC_RETENTION_DAYS must be positive")
	}

	if c.ListPageSize <= 0 {
		return fmt.Errorf("BREWSYNC_LIST_PAGE_SIZE must be positive")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func defaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".brewsync", "state.db"), nil
}
