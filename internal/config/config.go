package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Load reads ~/.coda/config.yaml, applies environment overrides and
// validates the result
func Load() (*LocalConfig, error) {
	cfg, err := LoadLocalConfig()
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from CODA_* environment variables
func (c *LocalConfig) ApplyEnv() {
	c.Daemon.Port = getEnvInt("CODA_PORT", c.Daemon.Port)
	c.Daemon.Bind = getEnv("CODA_BIND", c.Daemon.Bind)
	c.Daemon.LogLevel = getEnv("CODA_LOG_LEVEL", c.Daemon.LogLevel)
	c.Daemon.LogFormat = getEnv("CODA_LOG_FORMAT", c.Daemon.LogFormat)

	c.Catalog.Path = getEnv("CODA_CATALOG", c.Catalog.Path)
	c.Catalog.Watch = getEnvBool("CODA_CATALOG_WATCH", c.Catalog.Watch)
	c.Catalog.PostgresURL = getEnv("CODA_POSTGRES_URL", c.Catalog.PostgresURL)

	c.Cache.MaxSize = getEnvInt("CODA_CACHE_SIZE", c.Cache.MaxSize)
	c.Cache.MaxAge = getEnvDuration("CODA_CACHE_MAX_AGE", c.Cache.MaxAge)

	c.Scoring.TextThreshold = getEnvFloat("CODA_TEXT_THRESHOLD", c.Scoring.TextThreshold)

	c.Storage.Backend = getEnv("CODA_STORAGE", c.Storage.Backend)
	c.Storage.SQLitePath = getEnv("CODA_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.RedisAddr = getEnv("CODA_REDIS_ADDR", c.Storage.RedisAddr)

	c.Queue.URL = getEnv("CODA_RABBITMQ_URL", c.Queue.URL)
	c.Queue.Workers = getEnvInt("CODA_QUEUE_WORKERS", c.Queue.Workers)
}

// Validate reports every invalid setting
func (c *LocalConfig) Validate() error {
	var errs []error
	if c.Daemon.Port <= 0 || c.Daemon.Port > 65535 {
		errs = append(errs, fmt.Errorf("daemon.port %d out of range", c.Daemon.Port))
	}
	switch strings.ToLower(c.Daemon.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("daemon.log_level %q unknown", c.Daemon.LogLevel))
	}
	switch c.Daemon.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("daemon.log_format %q unknown", c.Daemon.LogFormat))
	}
	if c.Cache.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("cache.max_size must be positive"))
	}
	if c.Cache.MaxAge <= 0 {
		errs = append(errs, fmt.Errorf("cache.max_age must be positive"))
	}
	if t := c.Scoring.TextThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("scoring.text_threshold %v outside [0,1]", t))
	}
	if c.Scoring.OptionCount < 0 {
		errs = append(errs, fmt.Errorf("scoring.option_count must not be negative"))
	}
	if c.Storage.ExerciseRetention < 0 {
		errs = append(errs, fmt.Errorf("storage.exercise_retention must not be negative"))
	}
	switch c.Storage.Backend {
	case BackendSQLite, BackendLocal:
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q unknown", c.Storage.Backend))
	}
	return errors.Join(errs...)
}

// Addr is the daemon listen address
func (c *LocalConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Daemon.Bind, c.Daemon.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
