package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Server
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	BaseURL    string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/billdrop.db"`

	// Sessions
	SessionSecret string `env:"SESSION_SECRET,required"`

	// Google OAuth
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	// Zoho OAuth
	ZohoClientID     string `env:"ZOHO_CLIENT_ID"`
	ZohoClientSecret string `env:"ZOHO_CLIENT_SECRET"`
	ZohoAuthURL      string `env:"ZOHO_AUTHORIZE_URL" envDefault:"https://accounts.zoho.com/oauth/v2/auth"`
	ZohoTokenURL     string `env:"ZOHO_ACCESS_TOKEN_URL" envDefault:"https://accounts.zoho.com/oauth/v2/token"`

	// Sweep
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"12h"`
	SweepLookbackDays int           `env:"SWEEP_LOOKBACK_DAYS" envDefault:"40"`
	SweepMaxResults   int64         `env:"SWEEP_MAX_RESULTS" envDefault:"500"`
	ProviderTimeout   time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"60s"`

	// Healthcheck ping around each sweep (optional)
	HealthcheckURL string `env:"HEALTHCHECK_URL"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// GoogleEnabled returns true if Google OAuth credentials are configured
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// ZohoEnabled returns true if Zoho OAuth credentials are configured
func (c *Config) ZohoEnabled() bool {
	return c.ZohoClientID != "" && c.ZohoClientSecret != ""
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 32 bytes, got %d", len(cfg.SessionSecret))
	}

	return cfg, nil
}
