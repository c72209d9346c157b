package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the per-shop synchronization session: the OAuth credential,
// the enabled sync flags, and the invoicing defaults applied when orders
// are translated. There is exactly one active tenant per shop domain.
type Tenant struct {
	ID               uuid.UUID `json:"id"`
	ShopDomain       string    `json:"shop_domain"`
	AccessToken      string    `json:"-"`
	Scopes           string    `json:"scopes"`
	WebhookSecret    string    `json:"-"`
	SyncOrders       bool      `json:"sync_orders"`
	SyncCustomers    bool      `json:"sync_customers"`
	SyncProducts     bool      `json:"sync_products"`
	InvoicePrefix    string    `json:"invoice_prefix"`
	PaymentTermDays  int       `json:"payment_term_days"`
	DefaultVATRate   float64   `json:"default_vat_rate"`
	Active           bool      `json:"active"`
	LastOrderSync    time.Time `json:"last_order_sync"`
	LastCustomerSync time.Time `json:"last_customer_sync"`
	LastProductSync  time.Time `json:"last_product_sync"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (t *Tenant) IsActive() bool {
	return t != nil && t.Active
}

// SyncKind names a timestamp slot on the tenant row.
type SyncKind string

const (
	SyncKindOrders    SyncKind = "orders"
	SyncKindCustomers SyncKind = "customers"
	SyncKindProducts  SyncKind = "products"
)

// TenantSettingsPatch carries the fields the settings API may change.
// Nil pointers leave the stored value untouched.
type TenantSettingsPatch struct {
	SyncOrders      *bool    `json:"sync_orders"`
	SyncCustomers   *bool    `json:"sync_customers"`
	SyncProducts    *bool    `json:"sync_products"`
	InvoicePrefix   *string  `json:"invoice_prefix"`
	PaymentTermDays *int     `json:"payment_term_days"`
	DefaultVATRate  *float64 `json:"default_vat_rate"`
}
