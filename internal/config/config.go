package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for dataset-validator
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Datasets DatasetsConfig
	Engine   EngineConfig
	Cleanup  CleanupConfig
	Auth     AuthConfig
	LogLevel string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// DatabaseConfig holds PostgreSQL configuration. An empty DSN keeps runs in memory.
type DatabaseConfig struct {
	DSN           string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	MigrationsDir string
	AutoMigrate   bool
}

// RedisConfig holds Redis configuration for the findings cache
type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	CacheTTL time.Duration
}

// DatasetsConfig holds the bundled dataset directory
type DatasetsConfig struct {
	Dir string
}

// EngineConfig holds validation engine configuration
type EngineConfig struct {
	Parallel   bool
	MaxWorkers int
}

// CleanupConfig holds cleanup worker configuration
type CleanupConfig struct {
	Interval  time.Duration
	Retention time.Duration
}

// AuthConfig holds API key authentication configuration
type AuthConfig struct {
	Enabled bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			MaxBodyBytes:   int64(getEnvAsInt("SERVER_MAX_BODY_BYTES", 16<<20)),
		},
		Database: DatabaseConfig{
			DSN:           getEnv("DATABASE_DSN", ""),
			MaxOpenConns:  getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 2),
			MaxLifetime:   getEnvAsDuration("DATABASE_MAX_LIFETIME", 30*time.Minute),
			MigrationsDir: getEnv("DATABASE_MIGRATIONS_DIR", "./migrations"),
			AutoMigrate:   getEnvAsBool("DATABASE_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: getEnvAsDuration("REDIS_CACHE_TTL", time.Hour),
		},
		Datasets: DatasetsConfig{
			Dir: getEnv("DATASETS_DIR", "./datasets"),
		},
		Engine: EngineConfig{
			Parallel:   getEnvAsBool("ENGINE_PARALLEL", false),
			MaxWorkers: getEnvAsInt("ENGINE_MAX_WORKERS", 0),
		},
		Cleanup: CleanupConfig{
			Interval:  getEnvAsDuration("CLEANUP_INTERVAL", time.Hour),
			Retention: getEnvAsDuration("CLEANUP_RETENTION", 30*24*time.Hour),
		},
		Auth: AuthConfig{
			Enabled: getEnvAsBool("AUTH_ENABLED", true),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("invalid max body size: %d", c.Server.MaxBodyBytes)
	}

	// API keys live in the api_clients table
	if c.Auth.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required when auth is enabled")
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}

	if c.Cleanup.Interval <= 0 {
		return fmt.Errorf("invalid cleanup interval: %s", c.Cleanup.Interval)
	}

	if c.Cleanup.Retention <= 0 {
		return fmt.Errorf("invalid run retention: %s", c.Cleanup.Retention)
	}

	if c.Engine.MaxWorkers < 0 {
		return fmt.Errorf("invalid engine max workers: %d", c.Engine.MaxWorkers)
	}

	return nil
}

// Addr returns the HTTP listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
