// Package config loads relay configuration from the environment.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the relay's runtime settings.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string

	// RoomTTL is the absolute room age ceiling enforced by the janitor.
	RoomTTL time.Duration

	// SweepPeriod is how often the janitor runs.
	SweepPeriod time.Duration

	// LogLevel is a logrus level name.
	LogLevel string
}

// Load reads configuration from the environment, with an optional .env
// file. Missing or unparsable values fall back to defaults.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		logrus.Debug("loaded .env file")
	}

	return Config{
		Addr:        getEnv("RELAY_ADDR", ":8080"),
		RoomTTL:     getDuration("RELAY_ROOM_TTL", time.Hour),
		SweepPeriod: getDuration("RELAY_SWEEP_PERIOD", time.Minute),
		LogLevel:    getEnv("RELAY_LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		logrus.WithField("key", key).Warnf("invalid duration %q, using %s", val, defaultVal)
		return defaultVal
	}
	return d
}
