package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	DBPath      string `envconfig:"DB_PATH" default:"therapy-booking.db"`

	// API
	AdminAPIKey      string        `envconfig:"ADMIN_API_KEY"`
	SessionJWTSecret string        `envconfig:"SESSION_JWT_SECRET"`
	SessionTTL       time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	RateLimitRPS     int           `envconfig:"RATE_LIMIT_RPS" default:"50"`
	RateLimitBurst   int           `envconfig:"RATE_LIMIT_BURST" default:"100"`
	CORSOrigins      string        `envconfig:"CORS_ORIGINS"`

	// Translations
	DefaultLocale string `envconfig:"DEFAULT_LOCALE" default:"en"`
	MessagesDir   string `envconfig:"MESSAGES_DIR"` // overrides the embedded catalogs when set

	// Analytics (empty endpoint logs events locally only)
	AnalyticsEndpoint  string        `envconfig:"ANALYTICS_ENDPOINT"`
	AnalyticsWorkers   int           `envconfig:"ANALYTICS_WORKERS" default:"2"`
	AnalyticsQueueSize int           `envconfig:"ANALYTICS_QUEUE_SIZE" default:"1024"`
	AnalyticsTimeout   time.Duration `envconfig:"ANALYTICS_TIMEOUT" default:"5s"`
	AnalyticsReplay    time.Duration `envconfig:"ANALYTICS_REPLAY_INTERVAL" default:"1m"`

	// Scheduling widget
	SimplybookCompany string        `envconfig:"SIMPLYBOOK_COMPANY" default:"bloomtherapy"`
	SimplybookTheme   string        `envconfig:"SIMPLYBOOK_THEME" default:"minimal"`
	WidgetSessionTTL  time.Duration `envconfig:"WIDGET_SESSION_TTL" default:"30m"`

	// Partner access resolution cache
	SelectorCacheSize int           `envconfig:"SELECTOR_CACHE_SIZE" default:"10000"`
	SelectorCacheTTL  time.Duration `envconfig:"SELECTOR_CACHE_TTL" default:"10m"`
}

// AnalyticsEnabled returns true if events are forwarded to a collector.
func (c *Config) AnalyticsEnabled() bool {
	return c.AnalyticsEndpoint != ""
}

// SessionsEnabled returns true if user session tokens can be issued and verified.
func (c *Config) SessionsEnabled() bool {
	return c.SessionJWTSecret != ""
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if !c.IsDevelopment() && c.SessionJWTSecret != "" && len(c.SessionJWTSecret) < 32 {
		return fmt.Errorf("SESSION_JWT_SECRET must be at least 32 bytes outside development")
	}
	if c.AnalyticsWorkers < 1 {
		return fmt.Errorf("ANALYTICS_WORKERS must be positive, got %d", c.AnalyticsWorkers)
	}
	if c.AnalyticsQueueSize < 1 {
		return fmt.Errorf("ANALYTICS_QUEUE_SIZE must be positive, got %d", c.AnalyticsQueueSize)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadWithPrefix("")
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %q: %w", prefix, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
