package models

import (
	"time"

	"github.com/google/uuid"
)

// Company is a business partner derived from a storefront buyer. One row
// per (tenant, shopify customer id); repeat orders from the same buyer
// update the contact fields in place.
type Company struct {
	ID                uuid.UUID `json:"id"`
	TenantID          uuid.UUID `json:"tenant_id"`
	Name              string    `json:"name"`
	BusinessID        string    `json:"business_id"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone"`
	Address           Address   `json:"address"`
	ShopifyCustomerID string    `json:"shopify_customer_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}
