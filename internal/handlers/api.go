package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/invoicehubapp/invoicehub/internal/models"
	"github.com/invoicehubapp/invoicehub/internal/shopify"
)

type tenantContextKey struct{}

// RequireSessionToken authenticates embedded-app API calls with the App
// Bridge session token from the Authorization header. The verified shop's
// tenant is loaded into the request context.
func (h *Handlers) RequireSessionToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := h.loggerFromContext(ctx)

		header := strings.TrimSpace(r.Header.Get("Authorization"))
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			h.writeError(ctx, w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := shopify.VerifySessionToken(strings.TrimSpace(token), h.config.ShopifyAPIKey, h.config.ShopifyAPISecret)
		if err != nil {
			logger.Warn("session token verification failed", "error", err)
			h.writeError(ctx, w, http.StatusUnauthorized, "invalid session token")
			return
		}

		tenant, err := h.tenantStore.GetByShop(ctx, claims.Shop())
		if err != nil {
			if errors.Is(err, h.storeNotFound) {
				h.writeError(ctx, w, http.StatusUnauthorized, "shop is not installed")
				return
			}
			logger.Error("tenant lookup failed", "shop", claims.Shop(), "error", err)
			h.writeError(ctx, w, http.StatusInternalServerError, "internal error")
			return
		}
		if !tenant.IsActive() {
			h.writeError(ctx, w, http.StatusUnauthorized, "shop is not installed")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, tenantContextKey{}, tenant)))
	})
}

func tenantFromContext(ctx context.Context) *models.Tenant {
	tenant, _ := ctx.Value(tenantContextKey{}).(*models.Tenant)
	return tenant
}

func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFromContext(ctx)
	if tenant == nil {
		h.writeError(ctx, w, http.StatusUnauthorized, "not authenticated")
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, tenant)
}

func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	tenant := tenantFromContext(ctx)
	if tenant == nil {
		h.writeError(ctx, w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var patch models.TenantSettingsPatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&patch); err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateSettingsPatch(patch); err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.tenantStore.UpdateSettings(ctx, tenant.ShopDomain, patch)
	if err != nil {
		logger.Error("failed to update settings", "shop", tenant.ShopDomain, "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "failed to update settings")
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, updated)
}

func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	tenant := tenantFromContext(ctx)
	if tenant == nil {
		h.writeError(ctx, w, http.StatusUnauthorized, "not authenticated")
		return
	}

	notifications, err := h.notificationStore.ListByTenant(ctx, tenant.ID, 50)
	if err != nil {
		logger.Error("failed to list notifications", "shop", tenant.ShopDomain, "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"notifications": notifications})
}

func (h *Handlers) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	tenant := tenantFromContext(ctx)
	if tenant == nil {
		h.writeError(ctx, w, http.StatusUnauthorized, "not authenticated")
		return
	}

	notificationID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid notification id")
		return
	}

	if err := h.notificationStore.MarkRead(ctx, tenant.ID, notificationID); err != nil {
		if errors.Is(err, h.storeNotFound) {
			h.writeError(ctx, w, http.StatusNotFound, "notification not found")
			return
		}
		logger.Error("failed to mark notification read", "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "failed to mark notification read")
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]bool{"read": true})
}

func validateSettingsPatch(patch models.TenantSettingsPatch) error {
	if patch.InvoicePrefix != nil && strings.TrimSpace(*patch.InvoicePrefix) == "" {
		return errors.New("invoice_prefix must not be empty")
	}
	if patch.PaymentTermDays != nil && (*patch.PaymentTermDays < 1 || *patch.PaymentTermDays > 365) {
		return errors.New("payment_term_days must be between 1 and 365")
	}
	if patch.DefaultVATRate != nil && (*patch.DefaultVATRate < 0 || *patch.DefaultVATRate > 100) {
		return errors.New("default_vat_rate must be between 0 and 100")
	}
	return nil
}
