package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"

	"github.com/invoicehubapp/invoicehub/internal/cache"
	"github.com/invoicehubapp/invoicehub/internal/config"
	"github.com/invoicehubapp/invoicehub/internal/crypto"
	"github.com/invoicehubapp/invoicehub/internal/db"
	"github.com/invoicehubapp/invoicehub/internal/email"
	"github.com/invoicehubapp/invoicehub/internal/handlers"
	"github.com/invoicehubapp/invoicehub/internal/logging"
	"github.com/invoicehubapp/invoicehub/internal/maventa"
	"github.com/invoicehubapp/invoicehub/internal/services"
	"github.com/invoicehubapp/invoicehub/internal/shopify"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	Handlers      *handlers.Handlers
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled, err := initSentry(cfg)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, sentryEnabled)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	tenantStore, err := db.NewTenantStore(database, encryptor)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize tenant store: %w", err)
	}
	companyStore := db.NewCompanyStore(database)
	invoiceStore := db.NewInvoiceStore(database)
	notificationStore := db.NewNotificationStore(database)
	auditStore := db.NewAuditStore(database)

	var emailProvider email.Provider
	if cfg.ResendAPIKey != "" {
		emailProvider = email.NewResendProvider(cfg.ResendAPIKey, cfg.EmailFrom)
	}
	renderer, err := email.NewRenderer()
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize email templates: %w", err)
	}

	notifier, err := services.NewNotifier(notificationStore, emailProvider, renderer, cfg.NotifyEmail, logger.With("component", "notifier"))
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize notifier: %w", err)
	}

	oauth := shopify.OAuthConfig{
		APIKey:      cfg.ShopifyAPIKey,
		APISecret:   cfg.ShopifyAPISecret,
		Scopes:      cfg.Scopes(),
		RedirectURI: cfg.RedirectURI(),
		APIVersion:  cfg.ShopifyAPIVersion,
	}
	installService, err := services.NewInstallService(tenantStore, cacheProvider, oauth, cfg.WebhookURL(), nil, nil, logger.With("component", "install_service"))
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize install service: %w", err)
	}

	syncOpts := services.SyncServiceOptions{
		TenantStore:       tenantStore,
		CompanyStore:      companyStore,
		InvoiceStore:      invoiceStore,
		Notifier:          notifier,
		NotFound:          db.ErrNotFound,
		InvalidTransition: db.ErrInvalidStatusTransition,
		Logger:            logger.With("component", "sync_service"),
	}
	if cfg.MaventaClientID != "" {
		syncOpts.EInvoicer = maventa.NewClient(cfg.MaventaClientID, cfg.MaventaClientSecret, cfg.MaventaTestMode, logger.With("component", "maventa_client"))
	}
	syncService, err := services.NewSyncService(syncOpts)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize sync service: %w", err)
	}

	redactionService, err := services.NewRedactionService(tenantStore, companyStore, auditStore, notifier, db.ErrNotFound, logger.With("component", "redaction_service"))
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize redaction service: %w", err)
	}

	h, err := handlers.New(handlers.Dependencies{
		Config:            cfg,
		DB:                database,
		TenantStore:       tenantStore,
		NotificationStore: notificationStore,
		CacheProvider:     cacheProvider,
		InstallService:    installService,
		SyncService:       syncService,
		RedactionService:  redactionService,
		StoreNotFound:     db.ErrNotFound,
		Logger:            logger,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            database,
		CacheProvider: cacheProvider,
		Handlers:      h,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
	sentry.Flush(2 * time.Second)
}

func initSentry(cfg *config.Config) (bool, error) {
	if strings.TrimSpace(cfg.SentryDSN) == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		EnableTracing:    true,
		TracesSampleRate: 0.1,
		EnableLogs:       true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return true, nil
}

func newLogger(cfg *config.Config, sentryEnabled bool) *slog.Logger {
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel})
	}

	if sentryEnabled {
		sentryHandler := sentryslog.Option{
			EventLevel: []slog.Level{slog.LevelError},
			LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelInfo},
		}.NewSentryHandler(context.Background())
		handler = logging.MultiHandler(handler, sentryHandler)
	}

	return slog.New(handler)
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
