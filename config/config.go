// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

type Environment string

const (
	EnvLocal      Environment = "local"
	EnvDev        Environment = "dev"
	EnvProduction Environment = "production"
)

type Config struct {
	App struct {
		Env      Environment `env:"APP_ENV" envDefault:"local"`
		Timezone string      `env:"APP_TIMEZONE" envDefault:"America/Sao_Paulo"`
	}

	HTTP struct {
		Port               string   `env:"HTTP_PORT" envDefault:"8080"`
		CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	}

	DB struct {
		Path string `env:"DB_PATH" envDefault:"./data/gestao.db"`
	}

	Log struct {
		Level string `env:"LOG_LEVEL" envDefault:"info"`
	}

	Auth struct {
		JWTSecret string        `env:"AUTH_JWT_SECRET"`
		TokenTTL  time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"12h"`
	}

	Cache struct {
		Enabled   bool `env:"CACHE_ENABLED" envDefault:"true"`
		SlotsSize int  `env:"CACHE_SLOTS_SIZE" envDefault:"1000"`
	}

	Ledger struct {
		TransactionListLimit int           `env:"TRANSACTION_LIST_LIMIT" envDefault:"100"`
		ReconcileInterval    time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1h"`
	}
}

// Load parses the environment and checks values the services cannot default.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.App.Env = Environment(strings.ToLower(string(cfg.App.Env)))
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	if cfg.Cache.SlotsSize <= 0 {
		cfg.Cache.Enabled = false
	}
	if cfg.Ledger.TransactionListLimit <= 0 || cfg.Ledger.TransactionListLimit > 1000 {
		return nil, fmt.Errorf("TRANSACTION_LIST_LIMIT must be between 1 and 1000, got %d", cfg.Ledger.TransactionListLimit)
	}
	return cfg, nil
}

// Location resolves APP_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}

func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}
