package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationInvoiceCreated     NotificationType = "INVOICE_CREATED"
	NotificationInvoicePaid        NotificationType = "INVOICE_PAID"
	NotificationAppUninstalled     NotificationType = "APP_UNINSTALLED"
	NotificationGDPRDataRequest    NotificationType = "GDPR_DATA_REQUEST"
	NotificationGDPRCustomerRedact NotificationType = "GDPR_CUSTOMER_REDACT"
	NotificationGDPRTenantRedact   NotificationType = "GDPR_SHOP_REDACT"
)

// Notification is a fire-and-forget record of a synchronization outcome,
// surfaced by the dashboard collaborator. Rows are written once; the only
// later mutation is the read flag.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	TenantID  uuid.UUID        `json:"tenant_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      map[string]any   `json:"data,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}
