package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoicehubapp/invoicehub/internal/models"
)

// CompanyStore persists invoice recipients, one row per Shopify customer per
// tenant.
type CompanyStore struct {
	pool *pgxpool.Pool
}

func NewCompanyStore(pool *pgxpool.Pool) *CompanyStore {
	return &CompanyStore{pool: pool}
}

const companyColumns = `
	id, tenant_id, name, business_id, email, phone, address,
	shopify_customer_id, created_at, updated_at`

// UpsertByShopifyCustomerID creates or refreshes a recipient. Keyed on
// (tenant_id, shopify_customer_id) so repeated webhook deliveries converge on
// a single row with the latest contact details.
func (s *CompanyStore) UpsertByShopifyCustomerID(ctx context.Context, company *models.Company) (*models.Company, error) {
	addressJSON, err := json.Marshal(company.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal address: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO companies (tenant_id, name, business_id, email, phone, address, shopify_customer_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, shopify_customer_id) DO UPDATE SET
			name       = EXCLUDED.name,
			email      = EXCLUDED.email,
			phone      = EXCLUDED.phone,
			address    = EXCLUDED.address,
			updated_at = now()
		RETURNING`+companyColumns,
		company.TenantID,
		company.Name,
		nullText(company.BusinessID),
		nullText(company.Email),
		nullText(company.Phone),
		addressJSON,
		company.ShopifyCustomerID,
	)

	return scanCompany(row)
}

func (s *CompanyStore) GetByShopifyCustomerID(ctx context.Context, tenantID uuid.UUID, shopifyCustomerID string) (*models.Company, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+companyColumns+` FROM companies WHERE tenant_id = $1 AND shopify_customer_id = $2`,
		tenantID, shopifyCustomerID)

	company, err := scanCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return company, err
}

// Redact anonymizes a recipient in place and returns the pre-redaction state
// so the caller can record what was removed. Redacting a missing or already
// anonymized recipient returns ErrNotFound.
func (s *CompanyStore) Redact(ctx context.Context, tenantID uuid.UUID, shopifyCustomerID string) (*models.Company, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT`+companyColumns+` FROM companies
		 WHERE tenant_id = $1 AND shopify_customer_id = $2 FOR UPDATE`,
		tenantID, shopifyCustomerID)

	before, err := scanCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE companies SET
			name       = 'REDACTED',
			email      = NULL,
			phone      = NULL,
			address    = '{}'::jsonb,
			updated_at = now()
		WHERE id = $1`, before.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return before, nil
}

func scanCompany(row pgx.Row) (*models.Company, error) {
	var (
		company     models.Company
		businessID  pgtype.Text
		email       pgtype.Text
		phone       pgtype.Text
		addressJSON []byte
	)

	err := row.Scan(
		&company.ID,
		&company.TenantID,
		&company.Name,
		&businessID,
		&email,
		&phone,
		&addressJSON,
		&company.ShopifyCustomerID,
		&company.CreatedAt,
		&company.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	company.BusinessID = businessID.String
	company.Email = email.String
	company.Phone = phone.String
	if len(addressJSON) > 0 {
		if err := json.Unmarshal(addressJSON, &company.Address); err != nil {
			return nil, fmt.Errorf("failed to unmarshal address: %w", err)
		}
	}

	return &company, nil
}
