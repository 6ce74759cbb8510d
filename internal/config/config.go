// Package config loads application settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime settings. Every field can be set through the
// environment; camel-cased names map to upper snake case (DATABASE_URL,
// FMP_API_KEY, ...).
type Config struct {
	DatabaseURL     string        `envconfig:"DATABASE_URL"`
	FMPAPIKey       string        `envconfig:"FMP_API_KEY"`
	CoinGeckoAPIKey string        `envconfig:"COINGECKO_API_KEY"`
	AlertWebhookURL string        `envconfig:"ALERT_WEBHOOK_URL"`
	CronSecret      string        `envconfig:"CRON_SECRET"`
	ListenAddr      string        `envconfig:"LISTEN_ADDR" default:":8080"`
	FetchDelay      time.Duration `envconfig:"FETCH_DELAY" default:"500ms"`
	FetchTimeout    time.Duration `envconfig:"FETCH_TIMEOUT" default:"5m"`
}

// Load reads configuration from a .env file (if present) and the process
// environment. Environment variables win over the file.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	return &cfg, nil
}
