package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config is the process environment. The run itself is described by the
// file at RunConfig, see LoadRun.
type Config struct {
	Env      string `env:"ENV"       envDefault:"local" validate:"required,oneof=local staging production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"  validate:"oneof=debug info warn error"`

	RunConfig string `env:"RUN_CONFIG,required" validate:"required"`
	OutputDir string `env:"OUTPUT_DIR" envDefault:"output" validate:"required"`

	PanelPort   string `env:"PANEL_PORT"   envDefault:"8080"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	PollIntervalSec int `env:"POLL_INTERVAL_SEC" envDefault:"10" validate:"min=1,max=60"`
	StartDelaySec   int `env:"START_DELAY_SEC"   envDefault:"5"  validate:"min=0,max=600"`

	// Optional event sink; empty disables it.
	DatabaseURL string `env:"DATABASE_URL"`

	ResendAPIKey string   `env:"RESEND_API_KEY"`
	ResendFrom   string   `env:"RESEND_FROM"`
	NotifyTo     []string `env:"NOTIFY_TO" envSeparator:"," validate:"dive,email"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if len(cfg.NotifyTo) > 0 && cfg.Env != "local" && (cfg.ResendAPIKey == "" || cfg.ResendFrom == "") {
		return nil, errors.New("invalid config: RESEND_API_KEY and RESEND_FROM are required when NOTIFY_TO is set")
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// StartDelay is the delay before step 0 of a start_immediately interval run.
func (c *Config) StartDelay() time.Duration {
	return time.Duration(c.StartDelaySec) * time.Second
}
