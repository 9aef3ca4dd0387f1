package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LocalConfig holds configuration for the local daemon
type LocalConfig struct {
	Daemon  DaemonConfig  `yaml:"daemon"`
	Catalog CatalogConfig `yaml:"catalog"`
	Cache   CacheConfig   `yaml:"cache"`
	Factory FactoryConfig `yaml:"factory"`
	Scoring ScoringConfig `yaml:"scoring"`
	Storage StorageConfig `yaml:"storage"`
	Queue   QueueConfig   `yaml:"queue"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port      int    `yaml:"port"`
	Bind      string `yaml:"bind"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text or json
	Metrics   bool   `yaml:"metrics"`
}

// CatalogConfig selects where concepts come from. An empty Path uses the
// embedded catalog; PostgresURL takes precedence over both.
type CatalogConfig struct {
	Path        string           `yaml:"path,omitempty"`
	Watch       bool             `yaml:"watch"`
	Debounce    time.Duration    `yaml:"debounce"`
	PostgresURL string           `yaml:"-"` // CODA_POSTGRES_URL only
	Resilience  ResilienceConfig `yaml:"resilience"`
}

// ResilienceConfig tunes the wrapper around a remote catalog
type ResilienceConfig struct {
	Enabled       bool          `yaml:"enabled"`
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	RatePerSecond int           `yaml:"rate_per_second"`
}

// CacheConfig holds exercise cache settings
type CacheConfig struct {
	MaxSize         int           `yaml:"max_size"`
	MaxAge          time.Duration `yaml:"max_age"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// FactoryConfig holds generator factory settings
type FactoryConfig struct {
	CacheEnabled    bool   `yaml:"cache_enabled"`
	MaxCacheSize    int    `yaml:"max_cache_size"`
	DefaultStrategy string `yaml:"default_strategy"`
}

// ScoringConfig holds defaults applied to generation requests
type ScoringConfig struct {
	TextThreshold float64 `yaml:"text_threshold"`
	OptionCount   int     `yaml:"option_count"`
	// Seed fixes the random source; zero seeds from the clock
	Seed uint64 `yaml:"seed"`
}

// StorageConfig selects persistence backends
type StorageConfig struct {
	// Backend is sqlite or local
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path,omitempty"`
	LocalDir   string `yaml:"local_dir,omitempty"`
	// ExerciseRetention is how long sqlite keeps generated exercises; zero keeps them
	ExerciseRetention time.Duration `yaml:"exercise_retention"`

	RedisAddr string        `yaml:"redis_addr,omitempty"`
	RedisDB   int           `yaml:"redis_db"`
	RedisTTL  time.Duration `yaml:"redis_ttl"`
	// RedisPassword is loaded from secrets.yaml
	RedisPassword string `yaml:"-"`
}

// QueueConfig holds RabbitMQ settings. An empty URL disables the queue.
type QueueConfig struct {
	URL      string        `yaml:"-"` // secrets.yaml or CODA_RABBITMQ_URL
	Workers  int           `yaml:"workers"`
	Prefetch int           `yaml:"prefetch"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SecretsConfig holds credentials loaded from secrets.yaml
type SecretsConfig struct {
	PostgresURL   string `yaml:"postgres_url,omitempty"`
	RabbitMQURL   string `yaml:"rabbitmq_url,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
}

// Storage backends
const (
	BackendSQLite = "sqlite"
	BackendLocal  = "local"
)

// CodaDir returns the path to ~/.coda
func CodaDir() (string, error) {
	if dir := os.Getenv("CODA_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".coda"), nil
}

// EnsureCodaDir creates ~/.coda and subdirectories if they don't exist
func EnsureCodaDir() (string, error) {
	dir, err := CodaDir()
	if err != nil {
		return "", err
	}

	for _, subdir := range []string{"", "logs", "data", "codas"} {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns defaults for local mode
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:      7433,
			Bind:      "127.0.0.1",
			LogLevel:  "info",
			LogFormat: "text",
			Metrics:   true,
		},
		Catalog: CatalogConfig{
			Watch:    true,
			Debounce: 250 * time.Millisecond,
			Resilience: ResilienceConfig{
				Enabled:       true,
				MaxAttempts:   3,
				InitialDelay:  100 * time.Millisecond,
				MaxConcurrent: 16,
				RatePerSecond: 100,
			},
		},
		Cache: CacheConfig{
			MaxSize:         100,
			MaxAge:          time.Hour,
			CleanupInterval: 5 * time.Minute,
		},
		Factory: FactoryConfig{
			CacheEnabled:    true,
			MaxCacheSize:    50,
			DefaultStrategy: "highest-priority",
		},
		Scoring: ScoringConfig{
			TextThreshold: 0.7,
			OptionCount:   4,
		},
		Storage: StorageConfig{
			Backend:           BackendSQLite,
			ExerciseRetention: 7 * 24 * time.Hour,
			RedisTTL:          24 * time.Hour,
		},
		Queue: QueueConfig{
			Workers:  3,
			Prefetch: 1,
			Timeout:  10 * time.Second,
		},
	}
}

// LoadLocalConfig loads ~/.coda/config.yaml over the defaults
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := CodaDir()
	if err != nil {
		return nil, err
	}
	return LoadLocalConfigFrom(dir)
}

// LoadLocalConfigFrom loads config.yaml and secrets.yaml from dir
func LoadLocalConfigFrom(dir string) (*LocalConfig, error) {
	cfg := DefaultLocalConfig()

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadSecrets(dir, cfg); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	cfg.resolvePaths(dir)
	return cfg, nil
}

// resolvePaths places unset storage paths under dir
func (c *LocalConfig) resolvePaths(dir string) {
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(dir, "data", "coda.db")
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = filepath.Join(dir, "codas")
	}
}

func loadSecrets(dir string, cfg *LocalConfig) error {
	data, err := os.ReadFile(filepath.Join(dir, "secrets.yaml"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read secrets: %w", err)
	}

	var secrets SecretsConfig
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("parse secrets: %w", err)
	}

	cfg.Catalog.PostgresURL = secrets.PostgresURL
	cfg.Queue.URL = secrets.RabbitMQURL
	cfg.Storage.RedisPassword = secrets.RedisPassword
	return nil
}

// SaveLocalConfig writes cfg to ~/.coda/config.yaml
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsureCodaDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SaveSecrets writes credentials to ~/.coda/secrets.yaml, readable only by
// the owner
func SaveSecrets(secrets SecretsConfig) error {
	dir, err := EnsureCodaDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), data, 0600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}
	return nil
}
