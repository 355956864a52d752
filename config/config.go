// Package config provides configuration for the stage server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the stage server configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Live stream settings
	KeepAliveInterval time.Duration

	// Rate limits, counted per fixed window
	RateWindow       time.Duration
	EventRateLimit   int
	CommentRateLimit int
	LikeRateLimit    int

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:          getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:       getEnv("DATABASE_URL", "file:stage.db?cache=shared&mode=rwc"),
		KeepAliveInterval: time.Duration(getEnvInt("KEEP_ALIVE_MS", 15000)) * time.Millisecond,
		RateWindow:        time.Duration(getEnvInt("RATE_WINDOW_MS", 60000)) * time.Millisecond,
		EventRateLimit:    getEnvInt("EVENT_RATE_LIMIT", 240),
		CommentRateLimit:  getEnvInt("COMMENT_RATE_LIMIT", 8),
		LikeRateLimit:     getEnvInt("LIKE_RATE_LIMIT", 30),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
