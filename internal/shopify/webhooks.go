package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Headers Shopify sets on every webhook delivery.
const (
	HeaderTopic      = "X-Shopify-Topic"
	HeaderHmac       = "X-Shopify-Hmac-SHA256"
	HeaderShopDomain = "X-Shopify-Shop-Domain"
	HeaderWebhookID  = "X-Shopify-Webhook-Id"
)

var (
	ErrMissingHeaders   = errors.New("missing required webhook headers")
	ErrInvalidSignature = errors.New("webhook signature verification failed")
)

// WebhookDelivery is one inbound webhook call after header extraction and
// body capture, before any signature check.
type WebhookDelivery struct {
	Topic      string
	ShopDomain string
	DeliveryID string
	Signature  string
	Payload    []byte
}

// ReadWebhookDelivery extracts the delivery metadata and raw body from an
// inbound request. It fails with ErrMissingHeaders when any of the topic,
// signature, or shop-domain headers is absent. Signature verification is a
// separate step because the secret is looked up per tenant.
func ReadWebhookDelivery(r *http.Request) (*WebhookDelivery, error) {
	topic := strings.TrimSpace(r.Header.Get(HeaderTopic))
	signature := strings.TrimSpace(r.Header.Get(HeaderHmac))
	shop := strings.TrimSpace(r.Header.Get(HeaderShopDomain))

	if topic == "" || signature == "" || shop == "" {
		return nil, ErrMissingHeaders
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	return &WebhookDelivery{
		Topic:      topic,
		ShopDomain: shop,
		DeliveryID: strings.TrimSpace(r.Header.Get(HeaderWebhookID)),
		Signature:  signature,
		Payload:    payload,
	}, nil
}

// ValidateWebhookSignature recomputes the HMAC-SHA256 of the raw payload
// with the tenant's webhook secret and compares it in constant time against
// the base64 signature Shopify supplied.
func ValidateWebhookSignature(payload []byte, signature, secret string) error {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}

	return nil
}
