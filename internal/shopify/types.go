// Package shopify provides the typed wire surface toward the Shopify Admin
// API: webhook payload shapes, signature validation, the OAuth handshake,
// and webhook subscription management.
package shopify

import "encoding/json"

// Webhook topics this app subscribes to at install time.
const (
	TopicOrdersCreate         = "orders/create"
	TopicOrdersUpdated        = "orders/updated"
	TopicOrdersPaid           = "orders/paid"
	TopicAppUninstalled       = "app/uninstalled"
	TopicCustomersDataRequest = "customers/data_request"
	TopicCustomersRedact      = "customers/redact"
	TopicShopRedact           = "shop/redact"
)

func SubscriptionTopics() []string {
	return []string{
		TopicOrdersCreate,
		TopicOrdersUpdated,
		TopicOrdersPaid,
		TopicAppUninstalled,
		TopicCustomersDataRequest,
		TopicCustomersRedact,
		TopicShopRedact,
	}
}

// Order is the immutable order snapshot delivered on orders/* webhooks.
// The same order id may arrive several times (create, updated, paid).
type Order struct {
	ID              json.Number `json:"id"`
	Name            string      `json:"name"`
	OrderNumber     json.Number `json:"order_number"`
	Email           string      `json:"email"`
	CreatedAt       string      `json:"created_at"`
	UpdatedAt       string      `json:"updated_at"`
	Currency        string      `json:"currency"`
	SubtotalPrice   string      `json:"subtotal_price"`
	TotalTax        string      `json:"total_tax"`
	TotalPrice      string      `json:"total_price"`
	FinancialStatus string      `json:"financial_status"`
	Note            string      `json:"note"`
	Customer        *Customer   `json:"customer"`
	LineItems       []LineItem  `json:"line_items"`
}

type Customer struct {
	ID             json.Number `json:"id"`
	Email          string      `json:"email"`
	FirstName      string      `json:"first_name"`
	LastName       string      `json:"last_name"`
	Phone          string      `json:"phone"`
	DefaultAddress *Address    `json:"default_address"`
}

type Address struct {
	Company  string `json:"company"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `json:"city"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
	Phone    string `json:"phone"`
}

type LineItem struct {
	ID       json.Number `json:"id"`
	Title    string      `json:"title"`
	Quantity float64     `json:"quantity"`
	Price    string      `json:"price"`
	SKU      string      `json:"sku"`
	TaxLines []TaxLine   `json:"tax_lines"`
}

// TaxLine carries the rate as a fraction (0.24 for 24% VAT).
type TaxLine struct {
	Title string  `json:"title"`
	Price string  `json:"price"`
	Rate  float64 `json:"rate"`
}

// GDPRPayload is the body of the three mandatory privacy webhooks.
type GDPRPayload struct {
	ShopID          json.Number   `json:"shop_id"`
	ShopDomain      string        `json:"shop_domain"`
	Customer        *GDPRCustomer `json:"customer"`
	OrdersRequested []json.Number `json:"orders_requested"`
	DataRequest     *struct {
		ID json.Number `json:"id"`
	} `json:"data_request"`
}

type GDPRCustomer struct {
	ID    json.Number `json:"id"`
	Email string      `json:"email"`
	Phone string      `json:"phone"`
}
