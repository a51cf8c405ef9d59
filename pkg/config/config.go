package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	FirebaseProject string
	Environment     string
	RedisURL        string
	UserID          string

	RemoteOpTimeout     time.Duration
	MessageCacheMaxAge  time.Duration
	ListCacheMaxAge     time.Duration
	SelectionLockWindow time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		FirebaseProject: getEnv("FIREBASE_PROJECT_ID", ""),
		Environment:     getEnv("ENVIRONMENT", "development"),
		RedisURL:        getEnv("REDIS_URL", ""),
		UserID:          getEnv("DMSYNC_USER_ID", ""),

		RemoteOpTimeout:     getEnvAsDuration("REMOTE_OP_TIMEOUT_SECONDS", 10*time.Second),
		MessageCacheMaxAge:  getEnvAsDuration("MESSAGE_CACHE_MAX_AGE_SECONDS", 5*time.Minute),
		ListCacheMaxAge:     getEnvAsDuration("LIST_CACHE_MAX_AGE_SECONDS", 10*time.Minute),
		SelectionLockWindow: getEnvAsDuration("SELECTION_LOCK_WINDOW_SECONDS", time.Second),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return time.Duration(intValue) * time.Second
		}
	}
	return defaultValue
}
