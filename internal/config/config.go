package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for the application.
type Config struct {
	Port            string
	DatabaseURL     string
	RedisURL        string
	BusTopic        string
	SourceQueueSize int
	MigrationsDir   string
}

// Load reads configuration from environment variables. REDIS_URL is
// optional: without it the bridge runs on the in-process bus and events
// only reach subscribers connected to this instance.
func Load() (*Config, error) {
	port := getEnv("PORT", "8080")
	dbURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")
	busTopic := getEnv("BUS_TOPIC", "realtime.changes")
	queueSize := getEnvInt("SOURCE_QUEUE_SIZE", 256)
	migrationsDir := getEnv("MIGRATIONS_DIR", "migrations")

	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if queueSize <= 0 {
		return nil, fmt.Errorf("SOURCE_QUEUE_SIZE must be positive")
	}

	return &Config{
		Port:            port,
		DatabaseURL:     dbURL,
		RedisURL:        redisURL,
		BusTopic:        busTopic,
		SourceQueueSize: queueSize,
		MigrationsDir:   migrationsDir,
	}, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
