package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Settings of the process, read from MOREL_* environment variables
type Settings struct {
	LogRoot  string `env:"MOREL_LOG_ROOT" envDefault:"./logging_policy"`
	LogLevel string `env:"MOREL_LOG_LEVEL" envDefault:"info"`
}

// LoadSettings reads a .env file in the working directory when present,
// then the environment.
func LoadSettings() (*Settings, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &s, nil
}

func (s *Settings) Level() slog.Level {
	switch strings.ToLower(s.LogLevel) {
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
