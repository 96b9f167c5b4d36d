package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Log      LogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int
}

// DatabaseConfig selects the SQL backend. DSN is a file path for sqlite3 and a
// connection string for postgres.
type DatabaseConfig struct {
	Driver string
	DSN    string
}

// RedisConfig enables the shared per-contract lock when Addr is set.
type RedisConfig struct {
	Addr    string
	LockTTL time.Duration
}

// JWTConfig holds JWT configuration. An empty secret disables token checks.
type JWTConfig struct {
	Secret string
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

// Load reads a .env file if present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	ttlSeconds, err := strconv.Atoi(getEnv("REDIS_LOCK_TTL_SECONDS", "10"))
	if err != nil || ttlSeconds <= 0 {
		return nil, fmt.Errorf("invalid REDIS_LOCK_TTL_SECONDS %q", os.Getenv("REDIS_LOCK_TTL_SECONDS"))
	}

	driver := getEnv("DB_DRIVER", "sqlite3")
	if driver != "sqlite3" && driver != "postgres" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	return &Config{
		Server: ServerConfig{
			Port: port,
		},
		Database: DatabaseConfig{
			Driver: driver,
			DSN:    getEnv("DB_DSN", "lotledger.db"),
		},
		Redis: RedisConfig{
			Addr:    getEnv("REDIS_ADDR", ""),
			LockTTL: time.Duration(ttlSeconds) * time.Second,
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}, nil
}

// NewLogger builds the process logger from the log settings.
func (c LogConfig) NewLogger() (*logrus.Logger, error) {
	log := logrus.New()
	switch c.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unsupported LOG_FORMAT %q", c.Format)
	}

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)
	return log, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
