package shopify

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestReadWebhookDelivery(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"id":5001}`)

	t.Run("extracts metadata and body", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewReader(payload))
		r.Header.Set(HeaderTopic, "orders/create")
		r.Header.Set(HeaderHmac, "c2lnbmF0dXJl")
		r.Header.Set(HeaderShopDomain, "demo.myshopify.com")
		r.Header.Set(HeaderWebhookID, "d-1")

		delivery, err := ReadWebhookDelivery(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if delivery.Topic != "orders/create" || delivery.ShopDomain != "demo.myshopify.com" || delivery.DeliveryID != "d-1" {
			t.Errorf("unexpected delivery metadata: %+v", delivery)
		}
		if !bytes.Equal(delivery.Payload, payload) {
			t.Errorf("payload not captured: %q", delivery.Payload)
		}
	})

	t.Run("rejects missing headers", func(t *testing.T) {
		t.Parallel()

		headers := []struct {
			name string
			omit string
		}{
			{"no topic", HeaderTopic},
			{"no signature", HeaderHmac},
			{"no shop domain", HeaderShopDomain},
		}
		for _, tt := range headers {
			r := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewReader(payload))
			r.Header.Set(HeaderTopic, "orders/create")
			r.Header.Set(HeaderHmac, "c2ln")
			r.Header.Set(HeaderShopDomain, "demo.myshopify.com")
			r.Header.Del(tt.omit)

			if _, err := ReadWebhookDelivery(r); !errors.Is(err, ErrMissingHeaders) {
				t.Errorf("%s: expected ErrMissingHeaders, got %v", tt.name, err)
			}
		}
	})
}

func TestValidateWebhookSignature(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"id":5001,"order_number":1001}`)
	secret := "webhook-secret"

	if err := ValidateWebhookSignature(payload, sign(secret, payload), secret); err != nil {
		t.Errorf("expected valid signature, got %v", err)
	}

	if err := ValidateWebhookSignature(payload, sign("wrong-secret", payload), secret); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature for wrong secret, got %v", err)
	}

	tampered := []byte(`{"id":5001,"order_number":9999}`)
	if err := ValidateWebhookSignature(tampered, sign(secret, payload), secret); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature for tampered payload, got %v", err)
	}

	if err := ValidateWebhookSignature(payload, "not base64 at all", secret); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature for garbage signature, got %v", err)
	}
}
