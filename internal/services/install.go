package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/invoicehubapp/invoicehub/internal/cache"
	"github.com/invoicehubapp/invoicehub/internal/crypto"
	"github.com/invoicehubapp/invoicehub/internal/logging"
	"github.com/invoicehubapp/invoicehub/internal/models"
	"github.com/invoicehubapp/invoicehub/internal/observability"
	"github.com/invoicehubapp/invoicehub/internal/shopify"
)

const oauthStateTTL = 10 * time.Minute

// Installation defaults applied to a fresh tenant. Merchants can change them
// afterwards through the settings API.
const (
	defaultInvoicePrefix   = "SHOP"
	defaultPaymentTermDays = 30
	defaultVATRate         = 24.0
)

type installTenantStore interface {
	Upsert(ctx context.Context, tenant *models.Tenant) (*models.Tenant, error)
}

// webhookRegistrar subscribes a freshly installed shop to webhook topics.
type webhookRegistrar interface {
	RegisterWebhooks(ctx context.Context, callbackURL string, topics []string) []shopify.WebhookRegistrationResult
}

// registrarFactory builds a registrar for a shop once its access token is
// known. Injected so tests can observe registration without HTTP.
type registrarFactory func(shop, accessToken string) webhookRegistrar

// InstallService drives the Shopify OAuth installation handshake: issuing
// the authorization redirect, consuming the callback, persisting the tenant,
// and subscribing it to webhooks.
type InstallService struct {
	tenantStore  installTenantStore
	cache        cache.Provider
	oauth        shopify.OAuthConfig
	webhookURL   string
	newRegistrar registrarFactory
	httpClient   *http.Client
	logger       *slog.Logger
}

func NewInstallService(tenantStore installTenantStore, cacheProvider cache.Provider, oauth shopify.OAuthConfig, webhookURL string, newRegistrar registrarFactory, httpClient *http.Client, logger *slog.Logger) (*InstallService, error) {
	if tenantStore == nil {
		return nil, fmt.Errorf("install service: tenant store is required")
	}
	if cacheProvider == nil {
		return nil, fmt.Errorf("install service: cache provider is required")
	}
	if oauth.APIKey == "" || oauth.APISecret == "" {
		return nil, fmt.Errorf("install service: oauth credentials are required")
	}
	if httpClient == nil {
		httpClient = observability.NewHTTPClient(10 * time.Second)
	}

	return &InstallService{
		tenantStore:  tenantStore,
		cache:        cacheProvider,
		oauth:        oauth,
		webhookURL:   webhookURL,
		newRegistrar: newRegistrar,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

func (s *InstallService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// StartInstall validates the shop domain, stores a single-use state token,
// and returns the authorization URL to redirect the merchant to.
func (s *InstallService) StartInstall(ctx context.Context, shop string) (string, error) {
	if s == nil {
		return "", ErrInstallUnavailable
	}

	shop = strings.ToLower(strings.TrimSpace(shop))
	if err := shopify.ValidateShopDomain(shop); err != nil {
		return "", err
	}

	state, err := crypto.GenerateSecret(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}

	if err := s.cache.Set(ctx, cache.OAuthStateKey(shop), state, oauthStateTTL); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}

	meter := observability.MeterFromContext(ctx)
	meter.Count("install.started", 1, sentry.WithAttributes(attribute.String("shop", shop)))

	return s.oauth.AuthorizeURL(shop, state), nil
}

// CompleteInstall consumes the OAuth callback: the state token is checked
// and burned in one step, the code is exchanged for a permanent token, the
// tenant is upserted, and webhook subscriptions are registered. Webhook
// registration failures are reported per topic but do not fail the install.
func (s *InstallService) CompleteInstall(ctx context.Context, shop, code, state string) (*models.Tenant, error) {
	if s == nil {
		return nil, ErrInstallUnavailable
	}

	span := sentry.StartSpan(
		ctx,
		"service.install.complete",
		sentry.WithOpName("service.install"),
		sentry.WithDescription("CompleteInstall"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	recordFailed := func(reason string) {
		meter.Count("install.failed", 1, sentry.WithAttributes(attribute.String("reason", reason)))
	}

	shop = strings.ToLower(strings.TrimSpace(shop))
	if err := shopify.ValidateShopDomain(shop); err != nil {
		recordFailed("invalid_shop_domain")
		span.Status = sentry.SpanStatusInvalidArgument
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		recordFailed("missing_code")
		return nil, fmt.Errorf("%w: authorization code is required", ErrValidationFailed)
	}

	// The stored state is consumed atomically: a replayed callback finds
	// nothing and is rejected.
	stored, err := s.cache.GetDelete(ctx, cache.OAuthStateKey(shop))
	if err != nil || stored == "" || stored != state {
		recordFailed("state_mismatch")
		span.Status = sentry.SpanStatusPermissionDenied
		return nil, ErrOAuthStateMismatch
	}

	token, err := s.oauth.ExchangeCode(ctx, s.httpClient, shop, code)
	if err != nil {
		recordFailed("token_exchange")
		return nil, err
	}

	webhookSecret, err := crypto.GenerateSecret(32)
	if err != nil {
		recordFailed("secret_generation")
		return nil, fmt.Errorf("failed to generate webhook secret: %w", err)
	}

	tenant, err := s.tenantStore.Upsert(ctx, &models.Tenant{
		ShopDomain:      shop,
		AccessToken:     token.AccessToken,
		Scopes:          token.Scope,
		WebhookSecret:   webhookSecret,
		SyncOrders:      true,
		SyncCustomers:   true,
		SyncProducts:    false,
		InvoicePrefix:   defaultInvoicePrefix,
		PaymentTermDays: defaultPaymentTermDays,
		DefaultVATRate:  defaultVATRate,
	})
	if err != nil {
		recordFailed("persist_tenant")
		return nil, fmt.Errorf("failed to persist tenant: %w", err)
	}

	registrar := s.registrarFor(shop, token.AccessToken)
	results := registrar.RegisterWebhooks(ctx, s.webhookURL, shopify.SubscriptionTopics())
	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
			logger.Warn("webhook subscription failed", "shop", shop, "topic", result.Topic, "error", result.Err)
		}
	}
	meter.Count("install.completed", 1, sentry.WithAttributes(
		attribute.String("shop", shop),
		attribute.Int("webhooks_failed", failed),
	))

	logger.Info("shop installed", "shop", shop, "webhooks_registered", len(results)-failed, "webhooks_failed", failed)
	span.Status = sentry.SpanStatusOK
	return tenant, nil
}

func (s *InstallService) registrarFor(shop, accessToken string) webhookRegistrar {
	if s.newRegistrar != nil {
		return s.newRegistrar(shop, accessToken)
	}
	return shopify.NewAdminClient(shop, accessToken, s.oauth.APIVersion, s.httpClient, s.logger)
}
