// Package config provides environment configuration for the chat portal.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Remote chat service
	BackendURL     string
	RequestTimeout time.Duration

	// Stub server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Rate limiting (stub server)
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Idle conversation auto-end (stub server). A zero or negative window
	// disables the sweep.
	IdleEndWindow     time.Duration
	IdleSweepInterval time.Duration

	// Local LLM passthrough (stub server)
	LMStudioURL  string
	OpenAIAPIKey string

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Remote service
		BackendURL:     getEnv("BACKEND_URL", "http://localhost:8000"),
		RequestTimeout: getDurationEnv("REQUEST_TIMEOUT", 30*time.Second),

		// Stub server
		ServerPort:         getEnv("PORT", "8000"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Idle auto-end
		IdleEndWindow:     getDurationEnv("IDLE_END_WINDOW", 10*time.Minute),
		IdleSweepInterval: getDurationEnv("IDLE_SWEEP_INTERVAL", time.Minute),

		// Local LLM
		LMStudioURL:  getEnv("LM_STUDIO_URL", ""),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
