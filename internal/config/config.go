// Package config loads runtime configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds everything the turn-processing core needs at startup.
// DatabaseURL and RedisAddr are optional; leaving them empty disables the
// corresponding collaborator.
type Config struct {
	EngineBin     string
	EngineArgs    []string
	EngineTimeout time.Duration

	RulesetName string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	LogLevel logrus.Level
}

// Load reads .env (if present) and the environment. Only the engine binary
// is required.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may be fully set already.
	_ = godotenv.Load()

	c := &Config{
		EngineBin:     os.Getenv("TANKGAME_ENGINE_BIN"),
		EngineTimeout: 5 * time.Second,
		RulesetName:   envOr("TANKGAME_RULESET", "default-v3"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		LogLevel:      logrus.InfoLevel,
	}

	if c.EngineBin == "" {
		return nil, fmt.Errorf("config: TANKGAME_ENGINE_BIN is required")
	}
	if args := os.Getenv("TANKGAME_ENGINE_ARGS"); args != "" {
		c.EngineArgs = strings.Fields(args)
	}
	if raw := os.Getenv("TANKGAME_ENGINE_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("config: TANKGAME_ENGINE_TIMEOUT: %w", err)
		}
		c.EngineTimeout = d
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		level, err := logrus.ParseLevel(raw)
		if err != nil {
			return nil, fmt.Errorf("config: LOG_LEVEL: %w", err)
		}
		c.LogLevel = level
	}

	return c, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
