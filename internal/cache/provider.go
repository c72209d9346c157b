package cache

// Package cache provides keyed short-lived storage for webhook delivery
// idempotency and OAuth state tokens.

import (
	"context"
	"fmt"
	"time"
)

// Provider is the storage contract. GetDelete must consume the key
// atomically so that two racing reads can succeed at most once.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	GetDelete(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

// WebhookKey builds the idempotency key for a webhook delivery.
func WebhookKey(source, deliveryID string) string {
	return fmt.Sprintf("webhook:%s:%s", source, deliveryID)
}

// OAuthStateKey builds the key an install-flow state token is stored under.
func OAuthStateKey(shop string) string {
	return fmt.Sprintf("oauth_state:%s", shop)
}
