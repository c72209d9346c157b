package models

import (
	"time"

	"github.com/google/uuid"
)

type InvoiceStatus string

const (
	StatusDraft     InvoiceStatus = "draft"
	StatusSent      InvoiceStatus = "sent"
	StatusDelivered InvoiceStatus = "delivered"
	StatusPaid      InvoiceStatus = "paid"
	StatusCancelled InvoiceStatus = "cancelled"
)

// statusRank orders the lifecycle lattice draft < sent < delivered < paid.
// Cancelled sits outside the rank: it is terminal but not "greater" than paid.
var statusRank = map[InvoiceStatus]int{
	StatusDraft:     0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusPaid:      3,
}

// CanTransition reports whether an invoice may move from one status to
// another. Transitions only ever go forward: terminal states (paid,
// cancelled) never regress, cancellation is reachable from any non-terminal
// state, and a paid event overrides everything else, cancelled included.
// Repeating the current status is a no-op, not an error, so duplicate
// webhook deliveries stay idempotent.
func CanTransition(from, to InvoiceStatus) bool {
	if from == to {
		return false
	}
	if to == StatusPaid {
		_, known := statusRank[from]
		return known || from == StatusCancelled
	}
	if from == StatusPaid || from == StatusCancelled {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

type InvoiceDirection string

const (
	DirectionOutgoing InvoiceDirection = "outgoing"
	DirectionIncoming InvoiceDirection = "incoming"
)

type Invoice struct {
	ID             uuid.UUID        `json:"id"`
	TenantID       uuid.UUID        `json:"tenant_id"`
	InvoiceNumber  string           `json:"invoice_number"`
	Status         InvoiceStatus    `json:"status"`
	Direction      InvoiceDirection `json:"direction"`
	RecipientID    uuid.UUID        `json:"recipient_id"`
	IssueDate      time.Time        `json:"issue_date"`
	DueDate        time.Time        `json:"due_date"`
	Subtotal       float64          `json:"subtotal"`
	VATAmount      float64          `json:"vat_amount"`
	Total          float64          `json:"total"`
	Currency       string           `json:"currency"`
	Notes          string           `json:"notes"`
	ShopifyOrderID string           `json:"shopify_order_id"`
	Items          []InvoiceItem    `json:"items,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// InvoiceItem is one billed line. Items are written once with the invoice
// and never updated independently of it.
type InvoiceItem struct {
	ID          uuid.UUID `json:"id"`
	InvoiceID   uuid.UUID `json:"invoice_id"`
	Description string    `json:"description"`
	Quantity    float64   `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	VATRate     float64   `json:"vat_rate"`
	Total       float64   `json:"total"`
	SortOrder   int       `json:"sort_order"`
}
