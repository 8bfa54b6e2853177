package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds runtime configuration for the incidentd server.
type Config struct {
	Environment       string
	Addr              string
	DatabaseURL       string
	MigrationsDir     string
	SeedCount         int
	SimulatorEnabled  bool
	SimulatorInterval time.Duration

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int

	LogDebug bool
}

// Load constructs a Config from environment variables. An empty DATABASE_URL
// selects the in-memory store.
func Load() Config {
	return Config{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":4000"),
		DatabaseURL:        GetString("DATABASE_URL", ""),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		SeedCount:          GetInt("INCIDENT_SEED_COUNT", 2000),
		SimulatorEnabled:   GetBool("SIMULATOR_ENABLED", true),
		SimulatorInterval:  time.Duration(GetInt("SIMULATOR_INTERVAL_SECONDS", 10)) * time.Second,
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		LogDebug:           GetBool("LOG_DEBUG", false),
	}
}

// GetString retrieves an environment variable or returns a fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt retrieves an environment variable as integer or returns fallback.
func GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetBool retrieves an environment variable as bool or returns fallback.
func GetBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}
