// Package config loads server configuration from the environment, with an
// optional .env file for development.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string
	StorageDir string
	LogLevel   string

	// MaxItemsPerSession caps non-pinned content per session; pinned items
	// are exempt and capped separately by MaxPinnedPerSession.
	MaxItemsPerSession  int
	MaxPinnedPerSession int
	JoinPageSize        int
	LargeFileThreshold  int64

	CleanupInterval time.Duration
	SessionTimeout  time.Duration
}

func Load() Config {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("No", envFile, "file found, using environment")
	}

	return Config{
		ListenAddr:          getEnv("VAULTDROP_LISTEN_ADDR", ":8080"),
		StorageDir:          getEnv("VAULTDROP_STORAGE_DIR", "./data"),
		LogLevel:            getEnv("VAULTDROP_LOG_LEVEL", "info"),
		MaxItemsPerSession:  getEnvInt("VAULTDROP_MAX_ITEMS_PER_SESSION", 20),
		MaxPinnedPerSession: getEnvInt("VAULTDROP_MAX_PINNED_PER_SESSION", 10),
		JoinPageSize:        getEnvInt("VAULTDROP_JOIN_PAGE_SIZE", 5),
		LargeFileThreshold:  getEnvInt64("VAULTDROP_LARGE_FILE_THRESHOLD", 10<<20),
		CleanupInterval:     getEnvDuration("VAULTDROP_CLEANUP_INTERVAL", 5*time.Minute),
		SessionTimeout:      getEnvDuration("VAULTDROP_SESSION_TIMEOUT", 10*time.Minute),
	}
}

// Gets the env by key or fallbacks
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Invalid value for %s: %q, using %d", key, value, fallback)
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
		log.Printf("Invalid value for %s: %q, using %d", key, value, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid value for %s: %q, using %s", key, value, fallback)
	}
	return fallback
}
