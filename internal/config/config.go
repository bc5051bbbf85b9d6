package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings shared by the CLI and the HTTP service.
type Config struct {
	Environment string
	Port        string

	// Audio
	SampleRate      int
	MaxPatternDepth int
	SampleTimeout   time.Duration
	MaxRenderLength time.Duration

	// Observability
	LogLevel  string
	SentryDSN string // Sentry DSN for error tracking
}

func Load() *Config {
	return &Config{
		Environment:     getEnv("AXML_ENV", "development"),
		Port:            getEnv("AXML_PORT", "8080"),
		SampleRate:      getEnvInt("AXML_SAMPLE_RATE", 44100),
		MaxPatternDepth: getEnvInt("AXML_MAX_PATTERN_DEPTH", 32),
		SampleTimeout:   getEnvDuration("AXML_SAMPLE_TIMEOUT", 30*time.Second),
		MaxRenderLength: getEnvDuration("AXML_MAX_RENDER_LENGTH", 10*time.Minute),
		LogLevel:        getEnv("AXML_LOG_LEVEL", "info"),
		SentryDSN:       getEnv("SENTRY_DSN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

// IsProduction returns true when running with AXML_ENV=production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Level maps LogLevel to a slog level, defaulting to info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
