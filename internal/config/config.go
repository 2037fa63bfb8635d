// Package config provides configuration for steward.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the steward server configuration.
type Config struct {
	// Server settings
	HTTPPort     int
	InternalPort int

	// Persistence
	DBPath string

	// Policy; empty means the built-in default policy.
	PolicyPath string

	// Engine and stream limits
	MaxConcurrentRuns    int
	MaxStreamConnections int
	EventLogCapacity     int
	HeartbeatInterval    time.Duration

	// Run defaults applied when a manifest leaves them unset
	DefaultTimeoutSeconds float64
	DefaultMaxOutputBytes int

	// Root directory holding tool checkouts
	ToolsDir string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		HTTPPort:              getEnvInt("STEWARD_HTTP_PORT", 8080),
		InternalPort:          getEnvInt("STEWARD_INTERNAL_PORT", 8081),
		DBPath:                getEnv("STEWARD_DB_PATH", "steward.db"),
		PolicyPath:            getEnv("STEWARD_POLICY_PATH", ""),
		MaxConcurrentRuns:     getEnvInt("STEWARD_MAX_CONCURRENT_RUNS", 4),
		MaxStreamConnections:  getEnvInt("STEWARD_MAX_STREAM_CONNECTIONS", 5),
		EventLogCapacity:      getEnvInt("STEWARD_EVENT_LOG_CAPACITY", 500),
		HeartbeatInterval:     time.Duration(getEnvInt("STEWARD_HEARTBEAT_SECONDS", 30)) * time.Second,
		DefaultTimeoutSeconds: getEnvFloat("STEWARD_DEFAULT_TIMEOUT_SECONDS", 300),
		DefaultMaxOutputBytes: getEnvInt("STEWARD_DEFAULT_MAX_OUTPUT_BYTES", 1<<20),
		ToolsDir:              getEnv("STEWARD_TOOLS_DIR", "tools"),
		LogLevel:              getEnv("STEWARD_LOG_LEVEL", "info"),
	}
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

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}
