// Package config provides configuration management for the application
package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	// LogFormat is "json" (production) or "console" (development)
	LogFormat    string
	TemplatesDir string
	StaticDir    string
	// SweepSchedule is the cron spec for unmounting views of expired sessions
	SweepSchedule string
}

// RoomAPIConfig holds configuration for the room API client
type RoomAPIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RedisConfig holds Redis/Valkey configuration for the session store
type RedisConfig struct {
	Enabled bool
	// URI is prioritized if provided, otherwise individual connection parameters are used
	URI       string
	Host      string
	Port      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	// SessionTTL is how long an idle session keeps its view state (0 means no expiration)
	SessionTTL time.Duration
}

// GetServerConfig loads server configuration from environment variables
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Port:          getEnv("PORT", "8080"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		TemplatesDir:  getEnv("TEMPLATES_DIR", "./internal/web/templates"),
		StaticDir:     getEnv("STATIC_DIR", "./internal/web/static"),
		SweepSchedule: getEnv("SESSION_SWEEP_SCHEDULE", "@every 1m"),
	}
}

// GetRoomAPIConfig loads room API configuration from environment variables
func GetRoomAPIConfig() RoomAPIConfig {
	timeoutSeconds := getEnvInt("ROOM_API_TIMEOUT_SECONDS", 10)

	return RoomAPIConfig{
		BaseURL: strings.TrimRight(getEnv("ROOM_API_BASE_URL", "http://localhost:8000/api"), "/"),
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	}
}

// GetRedisConfig loads Redis/Valkey configuration from environment variables
func GetRedisConfig() RedisConfig {
	// Session TTL in minutes, default 30 minutes of inactivity
	ttlMinutes := getEnvInt("SESSION_TTL_MINUTES", 30)

	return RedisConfig{
		Enabled:    getEnvBool("REDIS_ENABLED", false),
		URI:        getEnv("REDIS_URI_MYROOMS", ""),
		Host:       getEnv("REDIS_HOST_MYROOMS", getEnv("REDIS_ADDRESS", "localhost")),
		Port:       getEnv("REDIS_PORT_MYROOMS", "6379"),
		Username:   getEnv("REDIS_USERNAME_MYROOMS", ""),
		Password:   getEnv("REDIS_PASSWORD_MYROOMS", getEnv("REDIS_PASSWORD", "")),
		DB:         getEnvInt("REDIS_DB", 0),
		KeyPrefix:  getEnv("REDIS_KEY_PREFIX", "myrooms:"),
		SessionTTL: time.Duration(ttlMinutes) * time.Minute,
	}
}

// IsValid checks that the room API base URL is an absolute http(s) URL
func (c RoomAPIConfig) IsValid() bool {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool retrieves a boolean environment variable
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvInt retrieves a non-negative integer environment variable
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	i, err := strconv.Atoi(value)
	if err != nil || i < 0 {
		return defaultValue
	}
	return i
}
