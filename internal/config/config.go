package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port    int
	DevMode bool

	DatabasePath string
	CacheDir     string

	TranscriptAPIURL string
	TranscriptAPIKey string
	LLMServiceURL    string

	// Bulk job engine tuning
	JobConcurrency  int // parallel executors per job
	MaxAttempts     int // attempts per item before it is recorded as failed
	ItemTimeoutSecs int // per remote call
	QuarterLookback int // default fallback search window

	ChunkCapacity int // entries per cache chunk

	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:    getEnvAsInt("PORT", 8080),
		DevMode: getEnvAsBool("DEV_MODE", false),

		DatabasePath: getEnv("DATABASE_PATH", "./data/callsift.db"),
		CacheDir:     getEnv("CACHE_DIR", "./data/transcript-cache"),

		TranscriptAPIURL: getEnv("TRANSCRIPT_API_URL", "https://api.earningsfeed.io/v1"),
		TranscriptAPIKey: getEnv("TRANSCRIPT_API_KEY", ""),
		LLMServiceURL:    getEnv("LLM_SERVICE_URL", "http://localhost:9100"),

		JobConcurrency:  getEnvAsInt("JOB_CONCURRENCY", 3),
		MaxAttempts:     getEnvAsInt("JOB_MAX_ATTEMPTS", 3),
		ItemTimeoutSecs: getEnvAsInt("JOB_ITEM_TIMEOUT_SECS", 60),
		QuarterLookback: getEnvAsInt("QUARTER_LOOKBACK", 4),

		ChunkCapacity: getEnvAsInt("CHUNK_CAPACITY", 200),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("CACHE_DIR is required")
	}
	if c.JobConcurrency < 1 {
		return fmt.Errorf("JOB_CONCURRENCY must be at least 1")
	}
	if c.ChunkCapacity < 1 {
		return fmt.Errorf("CHUNK_CAPACITY must be at least 1")
	}

	// Note: TRANSCRIPT_API_KEY optional, the public tier works without one

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
