package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoicehubapp/invoicehub/internal/models"
)

// ErrInvalidStatusTransition is returned when an invoice status update would
// move backwards through the lifecycle or out of a terminal state.
var ErrInvalidStatusTransition = errors.New("invalid invoice status transition")

// InvoiceStore persists invoices and their line items.
type InvoiceStore struct {
	pool *pgxpool.Pool
}

func NewInvoiceStore(pool *pgxpool.Pool) *InvoiceStore {
	return &InvoiceStore{pool: pool}
}

const invoiceColumns = `
	id, tenant_id, invoice_number, status, direction, recipient_id,
	issue_date, due_date, subtotal, vat_amount, total, currency, notes,
	shopify_order_id, created_at, updated_at`

func (s *InvoiceStore) GetByShopifyOrderID(ctx context.Context, tenantID uuid.UUID, shopifyOrderID string) (*models.Invoice, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+invoiceColumns+` FROM invoices WHERE tenant_id = $1 AND shopify_order_id = $2`,
		tenantID, shopifyOrderID)

	invoice, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := s.listItems(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	invoice.Items = items
	return invoice, nil
}

// CreateWithItems inserts an invoice and its items in one transaction. The
// unique key on (tenant_id, shopify_order_id) makes creation idempotent: when
// a row already exists for the order, the existing invoice is returned and
// created is false.
func (s *InvoiceStore) CreateWithItems(ctx context.Context, invoice *models.Invoice) (_ *models.Invoice, created bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO invoices (
			tenant_id, invoice_number, status, direction, recipient_id,
			issue_date, due_date, subtotal, vat_amount, total, currency, notes,
			shopify_order_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (tenant_id, shopify_order_id) DO NOTHING
		RETURNING`+invoiceColumns,
		invoice.TenantID,
		invoice.InvoiceNumber,
		invoice.Status,
		invoice.Direction,
		invoice.RecipientID,
		invoice.IssueDate,
		invoice.DueDate,
		invoice.Subtotal,
		invoice.VATAmount,
		invoice.Total,
		invoice.Currency,
		invoice.Notes,
		invoice.ShopifyOrderID,
	)

	inserted, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race or duplicate delivery: hand back the existing row.
		existing, err := s.GetByShopifyOrderID(ctx, invoice.TenantID, invoice.ShopifyOrderID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	for i, item := range invoice.Items {
		_, err := tx.Exec(ctx, `
			INSERT INTO invoice_items (invoice_id, description, quantity, unit_price, vat_rate, total, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			inserted.ID, item.Description, item.Quantity, item.UnitPrice, item.VATRate, item.Total, i)
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert invoice item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}

	items, err := s.listItems(ctx, inserted.ID)
	if err != nil {
		return nil, false, err
	}
	inserted.Items = items
	return inserted, true, nil
}

// TransitionStatus moves an invoice forward through the lifecycle. The
// transition rules are enforced in the UPDATE itself so concurrent webhook
// deliveries cannot interleave a regression: a paid event wins from any
// state, everything else only moves forward and never leaves a terminal
// state. Re-applying the current status is a successful no-op.
func (s *InvoiceStore) TransitionStatus(ctx context.Context, tenantID uuid.UUID, shopifyOrderID string, to models.InvoiceStatus) (*models.Invoice, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE invoices SET
			status     = $3,
			updated_at = now()
		WHERE tenant_id = $1 AND shopify_order_id = $2
		  AND status <> $3
		  AND ($3 = 'paid' OR
		       (status NOT IN ('paid', 'cancelled') AND
		        ($3 = 'cancelled' OR
		         CASE status WHEN 'draft' THEN 0 WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 ELSE 3 END <
		         CASE $3::text WHEN 'draft' THEN 0 WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 ELSE 3 END)))
		RETURNING`+invoiceColumns,
		tenantID, shopifyOrderID, to)

	invoice, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Nothing updated: either the invoice is missing or the transition
		// was refused. Distinguish a no-op repeat from a real violation.
		current, err := s.GetByShopifyOrderID(ctx, tenantID, shopifyOrderID)
		if err != nil {
			return nil, err
		}
		if current.Status == to {
			return current, nil
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, to)
	}
	return invoice, err
}

func (s *InvoiceStore) listItems(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, invoice_id, description, quantity, unit_price, vat_rate, total, sort_order
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY sort_order`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.InvoiceItem
	for rows.Next() {
		var item models.InvoiceItem
		err := rows.Scan(
			&item.ID,
			&item.InvoiceID,
			&item.Description,
			&item.Quantity,
			&item.UnitPrice,
			&item.VATRate,
			&item.Total,
			&item.SortOrder,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	var invoice models.Invoice
	err := row.Scan(
		&invoice.ID,
		&invoice.TenantID,
		&invoice.InvoiceNumber,
		&invoice.Status,
		&invoice.Direction,
		&invoice.RecipientID,
		&invoice.IssueDate,
		&invoice.DueDate,
		&invoice.Subtotal,
		&invoice.VATAmount,
		&invoice.Total,
		&invoice.Currency,
		&invoice.Notes,
		&invoice.ShopifyOrderID,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}
