package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/invoicehubapp/invoicehub/internal/services"
	"github.com/invoicehubapp/invoicehub/internal/shopify"
)

// ShopifyInstall starts the OAuth handshake: ?shop=demo.myshopify.com is
// validated and the merchant is redirected to the authorization screen.
func (h *Handlers) ShopifyInstall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	shop := strings.TrimSpace(r.URL.Query().Get("shop"))
	authURL, err := h.installService.StartInstall(ctx, shop)
	if err != nil {
		if errors.Is(err, shopify.ErrInvalidShopDomain) {
			h.writeError(ctx, w, http.StatusBadRequest, "invalid shop domain")
			return
		}
		logger.Error("failed to start install", "shop", shop, "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "failed to start installation")
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// ShopifyCallback finishes the OAuth handshake. The state token is single
// use, so a replayed or forged callback gets 403.
func (h *Handlers) ShopifyCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	query := r.URL.Query()
	shop := strings.TrimSpace(query.Get("shop"))
	code := strings.TrimSpace(query.Get("code"))
	state := strings.TrimSpace(query.Get("state"))

	tenant, err := h.installService.CompleteInstall(ctx, shop, code, state)
	if err != nil {
		switch {
		case errors.Is(err, shopify.ErrInvalidShopDomain), errors.Is(err, services.ErrValidationFailed):
			h.writeError(ctx, w, http.StatusBadRequest, "invalid callback parameters")
		case errors.Is(err, services.ErrOAuthStateMismatch):
			logger.Warn("oauth state mismatch", "shop", shop)
			h.writeError(ctx, w, http.StatusForbidden, "oauth state mismatch")
		case errors.Is(err, shopify.ErrTokenExchangeFailed):
			logger.Error("token exchange failed", "shop", shop, "error", err)
			h.writeError(ctx, w, http.StatusBadGateway, "token exchange failed")
		default:
			logger.Error("failed to complete install", "shop", shop, "error", err)
			h.writeError(ctx, w, http.StatusInternalServerError, "installation failed")
		}
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]any{
		"installed": true,
		"shop":      tenant.ShopDomain,
	})
}
