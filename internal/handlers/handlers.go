package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoicehubapp/invoicehub/internal/cache"
	"github.com/invoicehubapp/invoicehub/internal/config"
	"github.com/invoicehubapp/invoicehub/internal/logging"
	"github.com/invoicehubapp/invoicehub/internal/models"
	"github.com/invoicehubapp/invoicehub/internal/shopify"
)

const maxWebhookBodyBytes = 1 << 20 // 1 MB

type tenantStore interface {
	GetByShop(ctx context.Context, shopDomain string) (*models.Tenant, error)
	UpdateSettings(ctx context.Context, shopDomain string, patch models.TenantSettingsPatch) (*models.Tenant, error)
}

type notificationStore interface {
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, tenantID, notificationID uuid.UUID) error
}

type orderSyncService interface {
	HandleOrderEvent(ctx context.Context, tenant *models.Tenant, topic string, order *shopify.Order) error
	HandleAppUninstalled(ctx context.Context, tenant *models.Tenant) error
}

type privacyService interface {
	HandleDataRequest(ctx context.Context, tenant *models.Tenant, payload *shopify.GDPRPayload) error
	HandleCustomerRedact(ctx context.Context, tenant *models.Tenant, payload *shopify.GDPRPayload) error
	HandleShopRedact(ctx context.Context, shopDomain string) error
}

type installer interface {
	StartInstall(ctx context.Context, shop string) (string, error)
	CompleteInstall(ctx context.Context, shop, code, state string) (*models.Tenant, error)
}

// Handlers provides the HTTP surface: the webhook gateway, the OAuth install
// flow, and the embedded-app settings API.
type Handlers struct {
	config            *config.Config
	db                *pgxpool.Pool
	tenantStore       tenantStore
	notificationStore notificationStore
	cacheProvider     cache.Provider
	installService    installer
	syncService       orderSyncService
	redactionService  privacyService
	storeNotFound     error
	logger            *slog.Logger
}

type Dependencies struct {
	Config            *config.Config
	DB                *pgxpool.Pool
	TenantStore       tenantStore
	NotificationStore notificationStore
	CacheProvider     cache.Provider
	InstallService    installer
	SyncService       orderSyncService
	RedactionService  privacyService

	// Sentinel the stores return for missing rows, matched with errors.Is.
	StoreNotFound error

	Logger *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.TenantStore == nil {
		return nil, fmt.Errorf("handlers dependencies: tenantStore is required")
	}
	if deps.NotificationStore == nil {
		return nil, fmt.Errorf("handlers dependencies: notificationStore is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.InstallService == nil {
		return nil, fmt.Errorf("handlers dependencies: installService is required")
	}
	if deps.SyncService == nil {
		return nil, fmt.Errorf("handlers dependencies: syncService is required")
	}
	if deps.RedactionService == nil {
		return nil, fmt.Errorf("handlers dependencies: redactionService is required")
	}
	if deps.StoreNotFound == nil {
		return nil, fmt.Errorf("handlers dependencies: storeNotFound sentinel is required")
	}

	return &Handlers{
		config:            deps.Config,
		db:                deps.DB,
		tenantStore:       deps.TenantStore,
		notificationStore: deps.NotificationStore,
		cacheProvider:     deps.CacheProvider,
		installService:    deps.InstallService,
		syncService:       deps.SyncService,
		redactionService:  deps.RedactionService,
		storeNotFound:     deps.StoreNotFound,
		logger:            logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			logger.Error("database health check failed", "error", err)
			http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
			return
		}
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(r.Context(), w, http.StatusOK, map[string]string{
		"name":   "invoicehub",
		"status": "ok",
	})
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

func (h *Handlers) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.loggerFromContext(ctx).Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	h.writeJSON(ctx, w, status, map[string]string{"error": message})
}
