// Package maventa talks to the Maventa e-invoicing network.
package maventa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/invoicehubapp/invoicehub/internal/observability"
)

const (
	productionBaseURL = "https://api.maventa.com/v1"
	testBaseURL       = "https://api-test.maventa.com/v1"

	userAgent = "InvoiceHub/1.0"
)

var ErrRequestFailed = errors.New("maventa request failed")

// Client is an authenticated Maventa API client. Tokens are acquired via the
// client_credentials grant and refreshed transparently by the token source.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(clientID, clientSecret string, testMode bool, logger *slog.Logger) *Client {
	baseURL := productionBaseURL
	if testMode {
		baseURL = testBaseURL
	}

	creds := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + "/oauth/token",
		Scopes:       []string{"eui"},
	}

	httpClient := creds.Client(context.Background())
	httpClient.Transport = observability.WrapRoundTripper(httpClient.Transport)
	httpClient.Timeout = 30 * time.Second

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// CreateInvoice registers an invoice on the network without sending it.
func (c *Client) CreateInvoice(ctx context.Context, invoice *Invoice) (*Invoice, error) {
	var created Invoice
	if err := c.do(ctx, http.MethodPost, "/invoices", invoice, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// SendInvoice dispatches a previously created invoice for delivery.
func (c *Client) SendInvoice(ctx context.Context, invoiceUUID string) (*Invoice, error) {
	var sent Invoice
	if err := c.do(ctx, http.MethodPost, "/invoices/"+invoiceUUID+"/send", nil, &sent); err != nil {
		return nil, err
	}
	return &sent, nil
}

// CreateCompany registers an invoice recipient on the network. Maventa
// deduplicates companies by business id, so repeating the call is harmless.
func (c *Client) CreateCompany(ctx context.Context, company *Company) (*Company, error) {
	var created Company
	if err := c.do(ctx, http.MethodPost, "/companies", company, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrRequestFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(payload, &apiErr) == nil {
			if apiErr.Error.Message != "" {
				return fmt.Errorf("%w: %s %s: %s (%s)", ErrRequestFailed, method, path, apiErr.Error.Message, apiErr.Error.Code)
			}
			if apiErr.Message != "" {
				return fmt.Errorf("%w: %s %s: %s", ErrRequestFailed, method, path, apiErr.Message)
			}
		}
		return fmt.Errorf("%w: %s %s: HTTP %d", ErrRequestFailed, method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrRequestFailed, err)
	}
	return nil
}
