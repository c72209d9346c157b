package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidShopDomain   = errors.New("invalid shop domain")
	ErrTokenExchangeFailed = errors.New("failed to exchange authorization code")
)

// shopDomainPattern allow-lists the *.myshopify.com domains the OAuth flow
// will talk to. Anything else is rejected before a URL is built.
var shopDomainPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*\.myshopify\.com$`)

func ValidateShopDomain(shop string) error {
	if !shopDomainPattern.MatchString(shop) {
		return fmt.Errorf("%w: %s", ErrInvalidShopDomain, shop)
	}
	return nil
}

// OAuthConfig holds the app credentials used for the installation handshake.
type OAuthConfig struct {
	APIKey      string
	APISecret   string
	Scopes      []string
	RedirectURI string
	APIVersion  string
}

// AuthorizeURL builds the Shopify authorization URL for the given shop and
// anti-forgery state token. The shop must already be validated.
func (c OAuthConfig) AuthorizeURL(shop, state string) string {
	params := url.Values{}
	params.Set("client_id", c.APIKey)
	params.Set("scope", strings.Join(c.Scopes, ","))
	params.Set("redirect_uri", c.RedirectURI)
	params.Set("state", state)

	return fmt.Sprintf("https://%s/admin/oauth/authorize?%s", shop, params.Encode())
}

// AccessToken is the result of a successful code exchange.
type AccessToken struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
}

// ExchangeCode redeems an authorization code for a permanent access token at
// the shop's token endpoint. Provider errors are wrapped in
// ErrTokenExchangeFailed with the upstream message preserved.
func (c OAuthConfig) ExchangeCode(ctx context.Context, client *http.Client, shop, code string) (*AccessToken, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	body, err := json.Marshal(map[string]string{
		"client_id":     c.APIKey,
		"client_secret": c.APISecret,
		"code":          code,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}

	endpoint := fmt.Sprintf("https://%s/admin/oauth/access_token", shop)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrTokenExchangeFailed, strings.TrimSpace(string(respBody)))
	}

	var token AccessToken
	if err := json.Unmarshal(respBody, &token); err != nil {
		return nil, fmt.Errorf("%w: invalid token response: %v", ErrTokenExchangeFailed, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token in response", ErrTokenExchangeFailed)
	}

	return &token, nil
}
