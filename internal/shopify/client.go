package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultAPIVersion = "2024-01"

// AdminClient issues authenticated calls against a single shop's Admin API.
type AdminClient struct {
	shop        string
	accessToken string
	apiVersion  string
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewAdminClient(shop, accessToken, apiVersion string, httpClient *http.Client, logger *slog.Logger) *AdminClient {
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &AdminClient{
		shop:        shop,
		accessToken: accessToken,
		apiVersion:  apiVersion,
		httpClient:  httpClient,
		logger:      logger,
	}
}

type webhookSubscription struct {
	Topic   string `json:"topic"`
	Address string `json:"address"`
	Format  string `json:"format"`
}

// WebhookRegistrationResult is the outcome for one topic of a registration
// batch. The caller decides what to do with failures; nothing is swallowed
// silently inside the client.
type WebhookRegistrationResult struct {
	Topic string
	Err   error
}

// RegisterWebhooks subscribes the shop to every topic, addressed at the
// given callback URL. Each topic is attempted independently and the full
// per-topic result list is returned; one failed subscription never aborts
// the rest of the batch.
func (c *AdminClient) RegisterWebhooks(ctx context.Context, callbackURL string, topics []string) []WebhookRegistrationResult {
	results := make([]WebhookRegistrationResult, 0, len(topics))
	for _, topic := range topics {
		err := c.createWebhook(ctx, webhookSubscription{
			Topic:   topic,
			Address: callbackURL,
			Format:  "json",
		})
		if err != nil && c.logger != nil {
			c.logger.Warn("failed to register webhook", "shop", c.shop, "topic", topic, "error", err)
		}
		results = append(results, WebhookRegistrationResult{Topic: topic, Err: err})
	}
	return results
}

func (c *AdminClient) createWebhook(ctx context.Context, sub webhookSubscription) error {
	body, err := json.Marshal(map[string]webhookSubscription{"webhook": sub})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("https://%s/admin/api/%s/webhooks.json", c.shop, c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook registration request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook registration returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return nil
}
