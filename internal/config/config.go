package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	ShopifyAPIKey     string `env:"SHOPIFY_API_KEY,required" validate:"required"`
	ShopifyAPISecret  string `env:"SHOPIFY_API_SECRET,required" validate:"required"`
	ShopifyAPIVersion string `env:"SHOPIFY_API_VERSION" envDefault:"2024-01" validate:"required"`
	ShopifyScopes     string `env:"SHOPIFY_SCOPES" envDefault:"read_orders,write_orders,read_products,read_customers"`

	BaseURL string `env:"BASE_URL,required" validate:"required,url"`

	MaventaClientID     string `env:"MAVENTA_CLIENT_ID"`
	MaventaClientSecret string `env:"MAVENTA_CLIENT_SECRET"`
	MaventaTestMode     bool   `env:"MAVENTA_TEST_MODE" envDefault:"true"`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	EmailFrom    string `env:"EMAIL_FROM" validate:"omitempty,email"`
	NotifyEmail  string `env:"NOTIFY_EMAIL" validate:"omitempty,email"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`

	EncryptionKey string `env:"ENCRYPTION_KEY,required" validate:"required,len=32"`

	SentryDSN string `env:"SENTRY_DSN"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	hasMaventaClientID := strings.TrimSpace(c.MaventaClientID) != ""
	hasMaventaClientSecret := strings.TrimSpace(c.MaventaClientSecret) != ""
	if hasMaventaClientID != hasMaventaClientSecret {
		return fmt.Errorf("MAVENTA_CLIENT_ID and MAVENTA_CLIENT_SECRET must be set together")
	}

	hasResendKey := strings.TrimSpace(c.ResendAPIKey) != ""
	hasEmailFrom := strings.TrimSpace(c.EmailFrom) != ""
	if hasResendKey != hasEmailFrom {
		return fmt.Errorf("RESEND_API_KEY and EMAIL_FROM must be set together")
	}

	baseURL := strings.TrimSpace(c.BaseURL)
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("BASE_URL must be a valid absolute URL")
	}
	if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("BASE_URL must use https outside local development")
	}

	return nil
}

// Scopes returns the configured OAuth scopes as a list.
func (c *Config) Scopes() []string {
	parts := strings.Split(c.ShopifyScopes, ",")
	scopes := make([]string, 0, len(parts))
	for _, part := range parts {
		if scope := strings.TrimSpace(part); scope != "" {
			scopes = append(scopes, scope)
		}
	}
	return scopes
}

// RedirectURI is the OAuth callback this app registers with Shopify.
func (c *Config) RedirectURI() string {
	return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/") + "/shopify/callback"
}

// WebhookURL is the address webhook subscriptions point at.
func (c *Config) WebhookURL() string {
	return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/") + "/webhooks/shopify"
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
