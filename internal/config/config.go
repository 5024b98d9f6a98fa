package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all client configuration.
type Config struct {
	BaseURL     string
	HTTPTimeout time.Duration
	LogLevel    string
	LogFormat   string
	// StateFile is where tokens and identity are persisted between runs.
	StateFile string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // Ignore error — .env is optional

	return &Config{
		BaseURL:     getEnv("API_BASE_URL", "http://localhost:8000/api/"),
		HTTPTimeout: time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 15)) * time.Second,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "pretty"),
		StateFile:   getEnv("STATE_FILE", defaultStateFile()),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// defaultStateFile resolves to ~/.exstem/session.json, falling back to the
// working directory when the home dir cannot be determined.
func defaultStateFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".exstem-session.json"
	}
	return filepath.Join(home, ".exstem", "session.json")
}
