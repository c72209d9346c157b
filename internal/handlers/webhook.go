package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/invoicehubapp/invoicehub/internal/cache"
	"github.com/invoicehubapp/invoicehub/internal/models"
	"github.com/invoicehubapp/invoicehub/internal/observability"
	"github.com/invoicehubapp/invoicehub/internal/services"
	"github.com/invoicehubapp/invoicehub/internal/shopify"
)

const webhookDedupTTL = 24 * time.Hour

type webhookResponse struct {
	Success bool   `json:"success"`
	Topic   string `json:"topic"`
	Shop    string `json:"shop"`
}

// ShopifyWebhook is the single entry point for all subscribed topics. The
// HMAC signature is verified against the tenant's own secret before any
// payload byte is interpreted, and duplicate deliveries are absorbed via the
// delivery-id cache.
//
// Only infrastructure faults return 5xx; situations that a redelivery cannot
// fix (unknown shop, malformed payload) are acknowledged with 200 so Shopify
// stops retrying them.
func (h *Handlers) ShopifyWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	delivery, err := shopify.ReadWebhookDelivery(r)
	if err != nil {
		meter.Count("webhook.rejected", 1, sentry.WithAttributes(attribute.String("reason", "missing_headers")))
		logger.Warn("webhook rejected", "error", err)
		http.Error(w, "Invalid webhook", http.StatusBadRequest)
		return
	}

	logger = logger.With("shop", delivery.ShopDomain, "topic", delivery.Topic, "delivery_id", delivery.DeliveryID)
	meter.SetAttributes(
		attribute.String("shop", delivery.ShopDomain),
		attribute.String("webhook.topic", delivery.Topic),
	)

	tenant, err := h.tenantStore.GetByShop(ctx, delivery.ShopDomain)
	if err != nil {
		if errors.Is(err, h.storeNotFound) {
			meter.Count("webhook.rejected", 1, sentry.WithAttributes(attribute.String("reason", "unknown_shop")))
			logger.Warn("webhook from unknown shop")
			h.writeJSON(ctx, w, http.StatusOK, webhookResponse{Success: false, Topic: delivery.Topic, Shop: delivery.ShopDomain})
			return
		}
		logger.Error("tenant lookup failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if err := shopify.ValidateWebhookSignature(delivery.Payload, delivery.Signature, tenant.WebhookSecret); err != nil {
		meter.Count("webhook.rejected", 1, sentry.WithAttributes(attribute.String("reason", "invalid_signature")))
		logger.Warn("webhook signature verification failed")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	cacheKey := cache.WebhookKey("shopify", delivery.DeliveryID)
	if delivery.DeliveryID != "" {
		if _, err := h.cacheProvider.Get(ctx, cacheKey); err == nil {
			meter.Count("webhook.duplicate", 1)
			logger.Info("webhook already processed")
			h.writeJSON(ctx, w, http.StatusOK, webhookResponse{Success: true, Topic: delivery.Topic, Shop: delivery.ShopDomain})
			return
		}
	}

	processErr := h.routeWebhook(r, tenant, delivery)

	switch {
	case processErr == nil:
		if delivery.DeliveryID != "" {
			if err := h.cacheProvider.Set(ctx, cacheKey, "processed", webhookDedupTTL); err != nil {
				logger.Error("failed to mark webhook as processed in cache", "error", err)
			}
		}
		meter.Count("webhook.processed", 1)
		h.writeJSON(ctx, w, http.StatusOK, webhookResponse{Success: true, Topic: delivery.Topic, Shop: delivery.ShopDomain})

	case errors.Is(processErr, services.ErrValidationFailed),
		errors.Is(processErr, services.ErrTenantInactive):
		// Redelivering the same payload cannot succeed; acknowledge it.
		meter.Count("webhook.discarded", 1)
		logger.Warn("webhook discarded", "error", processErr)
		h.writeJSON(ctx, w, http.StatusOK, webhookResponse{Success: false, Topic: delivery.Topic, Shop: delivery.ShopDomain})

	default:
		meter.Count("webhook.failed", 1)
		logger.Error("failed to process webhook", "error", processErr)
		http.Error(w, "Processing failed", http.StatusInternalServerError)
	}
}

func (h *Handlers) routeWebhook(r *http.Request, tenant *models.Tenant, delivery *shopify.WebhookDelivery) error {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	switch delivery.Topic {
	case shopify.TopicOrdersCreate, shopify.TopicOrdersUpdated, shopify.TopicOrdersPaid:
		var order shopify.Order
		if err := json.Unmarshal(delivery.Payload, &order); err != nil {
			return errors.Join(services.ErrValidationFailed, err)
		}
		return h.syncService.HandleOrderEvent(ctx, tenant, delivery.Topic, &order)

	case shopify.TopicAppUninstalled:
		return h.syncService.HandleAppUninstalled(ctx, tenant)

	case shopify.TopicCustomersDataRequest:
		payload, err := parseGDPRPayload(delivery.Payload)
		if err != nil {
			return err
		}
		return h.redactionService.HandleDataRequest(ctx, tenant, payload)

	case shopify.TopicCustomersRedact:
		payload, err := parseGDPRPayload(delivery.Payload)
		if err != nil {
			return err
		}
		return h.redactionService.HandleCustomerRedact(ctx, tenant, payload)

	case shopify.TopicShopRedact:
		return h.redactionService.HandleShopRedact(ctx, delivery.ShopDomain)

	default:
		logger.Info("unhandled webhook topic", "topic", delivery.Topic)
		return nil
	}
}

func parseGDPRPayload(body []byte) (*shopify.GDPRPayload, error) {
	var payload shopify.GDPRPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Join(services.ErrValidationFailed, err)
	}
	return &payload, nil
}
