package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/invoicehubapp/invoicehub/internal/services"
	"github.com/invoicehubapp/invoicehub/internal/shopify"
)

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func webhookRequest(topic, shop, deliveryID, secret string, payload []byte) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewReader(payload))
	r.Header.Set(shopify.HeaderTopic, topic)
	r.Header.Set(shopify.HeaderShopDomain, shop)
	r.Header.Set(shopify.HeaderHmac, signPayload(secret, payload))
	if deliveryID != "" {
		r.Header.Set(shopify.HeaderWebhookID, deliveryID)
	}
	return r
}

func decodeWebhookResponse(t *testing.T, w *httptest.ResponseRecorder) webhookResponse {
	t.Helper()
	var resp webhookResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func orderPayload(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":               5001,
		"order_number":     1001,
		"name":             "#1001",
		"currency":         "EUR",
		"financial_status": "pending",
		"created_at":       "2024-01-15T10:30:00+02:00",
		"customer": map[string]any{
			"id":         9001,
			"email":      "john@example.com",
			"first_name": "John",
			"last_name":  "Doe",
		},
		"line_items": []map[string]any{
			{"id": 11, "title": "Widget", "quantity": 2, "price": "100.00"},
		},
	})
	if err != nil {
		t.Fatalf("failed to marshal order: %v", err)
	}
	return payload
}

func TestShopifyWebhookRejectsMissingHeaders(t *testing.T) {
	t.Parallel()

	fixture := newHandlerFixture(t, testTenant())

	r := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewReader([]byte("{}")))
	w := httptest.NewRecorder()
	fixture.handlers.ShopifyWebhook(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestShopifyWebhookAcksUnknownShop(t *testing.T) {
	t.Parallel()

	fixture := newHandlerFixture(t) // no tenants registered

	payload := orderPayload(t)
	r := webhookRequest(shopify.TopicOrdersCreate, "stranger.myshopify.com", "d-1", "whatever", payload)
	w := httptest.NewRecorder()
	fixture.handlers.ShopifyWebhook(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	resp := decodeWebhookResponse(t, w)
	if resp.Success {
		t.Error("expected success=false for unknown shop")
	}
	if len(fixture.sync.orderEvents) != 0 {
		t.Errorf("expected no order events, got %v", fixture.sync.orderEvents)
	}
}

func TestShopifyWebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()

	tenant := testTenant()
	fixture := newHandlerFixture(t, tenant)

	payload := orderPayload(t)
	r := webhookRequest(shopify.TopicOrdersCreate, tenant.ShopDomain, "d-1", "wrong-secret", payload)
	w := httptest.NewRecorder()
	fixture.handlers.ShopifyWebhook(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
	if len(fixture.sync.orderEvents) != 0 {
		t.Errorf("expected no order events, got %v", fixture.sync.orderEvents)
	}
}

func TestShopifyWebhookProcessesOrder(t *testing.T) {
	t.Parallel()

	tenant := testTenant()
	fixture := newHandlerFixture(t, tenant)

	payload := orderPayload(t)
	r := webhookRequest(shopify.TopicOrdersCreate, tenant.ShopDomain, "d-1", tenant.WebhookSecret, payload)
	w := httptest.NewRecorder()
	fixture.handlers.ShopifyWebhook(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeWebhookResponse(t, w)
	if !resp.Success {
		t.Error("expected success=true")
	}
	if resp.Topic != shopify.TopicOrdersCreate || resp.Shop != tenant.ShopDomain {
		t.Errorf("unexpected response envelope: %+v", resp)
	}
	if len(fixture.sync.orderEvents) != 1 || fixture.sync.orderEvents[0] != "orders/create:5001" {
		t.Errorf("expected one orders/create event for order 5001, got %v", fixture.sync.orderEvents)
	}
}

func TestShopifyWebhookDeduplicatesDeliveries(t *testing.T) {
	t.Parallel()

	tenant := testTenant()
	fixture := newHandlerFixture(t, tenant)

	payload := orderPayload(t)
	for i := 0; i < 3; i++ {
		r := webhookRequest(shopify.TopicOrdersCreate, tenant.ShopDomain, "d-42", tenant.WebhookSecret, payload)
		w := httptest.NewRecorder()
		fixture.handlers.ShopifyWebhook(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected status 200, got %d", i, w.Code)
		}
		if resp := decodeWebhookResponse(t, w); !resp.Success {
			t.Fatalf("delivery %d: expected success=true", i)
		}
	}

	if len(fixture.sync.orderEvents) != 1 {
		t.Errorf("expected exactly one processed event, got %v", fixture.sync.orderEvents)
	}
}

func TestShopifyWebhookAcksMalformedPayload(t *testing.T) {
	t.Parallel()

	tenant := testTenant()
	fixture := newHandlerFixture(t, tenant)

	payload := []byte("this is not json")
	r := webhookRequest(shopify.TopicOrdersCreate, tenant.ShopDomain, "d-1", tenant.WebhookSecret, payload)
	w := httptest.NewRecorder()
	fixture.handlers.ShopifyWebhook(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if resp := decodeWebhookResponse(t, w); resp.Success {
		t.Error("expected success=false for malformed payload")
	}
}

func TestShopifyWebhookReturns500OnProcessingError(t *testing.T) {
	t.Parallel()

	tenant := testTenant()
	fixture := newHandlerFixture(t, tenant)
	fixture.sync.err = errors.New("database unavailable")

	payload := orderPayload(t)
	r := webhookRequest(shopify.TopicOrdersCreate, tenant.ShopDomain, "d-1", tenant.WebhookSecret, payload)
	w := httptest.NewRecorder()
	fixture.handlers.ShopifyWebhook(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestShopifyWebhookAcksDiscardableErrors(t *testing.T) {
	t.Parallel()

	tenant := testTenant()
	fixture := newHandlerFixture(t, tenant)
	fixture.sync.err = services.ErrValidationFailed

	payload := orderPayload(t)
	r := webhookRequest(shopify.TopicOrdersCreate, tenant.ShopDomain, "d-1", tenant.WebhookSecret, payload)
	w := httptest.NewRecorder()
	fixture.handlers.ShopifyWebhook(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if resp := decodeWebhookResponse(t, w); resp.Success {
		t.Error("expected success=false for discarded webhook")
	}
}

func TestShopifyWebhookRoutesUninstall(t *testing.T) {
	t.Parallel()

	tenant := testTenant()
	fixture := newHandlerFixture(t, tenant)

	payload := []byte(`{}`)
	r := webhookRequest(shopify.TopicAppUninstalled, tenant.ShopDomain, "d-1", tenant.WebhookSecret, payload)
	w := httptest.NewRecorder()
	fixture.handlers.ShopifyWebhook(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if len(fixture.sync.uninstalls) != 1 || fixture.sync.uninstalls[0] != tenant.ShopDomain {
		t.Errorf("expected uninstall for %s, got %v", tenant.ShopDomain, fixture.sync.uninstalls)
	}
}

func TestShopifyWebhookRoutesGDPRTopics(t *testing.T) {
	t.Parallel()

	tenant := testTenant()
	fixture := newHandlerFixture(t, tenant)

	payload := []byte(`{"shop_domain":"demo.myshopify.com","customer":{"id":9001,"email":"john@example.com"}}`)
	for _, topic := range []string{
		shopify.TopicCustomersDataRequest,
		shopify.TopicCustomersRedact,
		shopify.TopicShopRedact,
	} {
		r := webhookRequest(topic, tenant.ShopDomain, "", tenant.WebhookSecret, payload)
		w := httptest.NewRecorder()
		fixture.handlers.ShopifyWebhook(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("topic %s: expected status 200, got %d", topic, w.Code)
		}
	}

	want := []string{
		"data_request:" + tenant.ShopDomain,
		"customer_redact:" + tenant.ShopDomain,
		"shop_redact:" + tenant.ShopDomain,
	}
	if len(fixture.privacy.requests) != len(want) {
		t.Fatalf("expected %d privacy calls, got %v", len(want), fixture.privacy.requests)
	}
	for i, expected := range want {
		if fixture.privacy.requests[i] != expected {
			t.Errorf("privacy call %d: expected %q, got %q", i, expected, fixture.privacy.requests[i])
		}
	}
}

func TestShopifyWebhookIgnoresUnknownTopic(t *testing.T) {
	t.Parallel()

	tenant := testTenant()
	fixture := newHandlerFixture(t, tenant)

	r := webhookRequest("products/create", tenant.ShopDomain, "d-1", tenant.WebhookSecret, []byte(`{}`))
	w := httptest.NewRecorder()
	fixture.handlers.ShopifyWebhook(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if resp := decodeWebhookResponse(t, w); !resp.Success {
		t.Error("expected unknown topics to be acknowledged")
	}
	if len(fixture.sync.orderEvents) != 0 {
		t.Errorf("expected no order events, got %v", fixture.sync.orderEvents)
	}
}
