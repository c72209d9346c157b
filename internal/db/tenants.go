package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoicehubapp/invoicehub/internal/crypto"
	"github.com/invoicehubapp/invoicehub/internal/models"
)

// TenantStore persists the per-shop sync sessions. Access tokens are
// encrypted before they hit the database and decrypted on the way out.
type TenantStore struct {
	pool   *pgxpool.Pool
	crypto crypto.Encryptor
}

func NewTenantStore(pool *pgxpool.Pool, encryptor crypto.Encryptor) (*TenantStore, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}

	return &TenantStore{
		pool:   pool,
		crypto: encryptor,
	}, nil
}

const tenantColumns = `
	id, shop_domain, access_token, scopes, webhook_secret,
	sync_orders, sync_customers, sync_products,
	invoice_prefix, payment_term_days, default_vat_rate, active,
	last_order_sync, last_customer_sync, last_product_sync,
	created_at, updated_at`

func (s *TenantStore) GetByShop(ctx context.Context, shopDomain string) (*models.Tenant, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+tenantColumns+` FROM tenants WHERE shop_domain = $1`, shopDomain)

	tenant, err := s.scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

// Upsert installs or reinstalls a tenant. Keyed on shop_domain so a repeat
// install refreshes the credential and re-enables the session instead of
// creating a second row.
func (s *TenantStore) Upsert(ctx context.Context, tenant *models.Tenant) (*models.Tenant, error) {
	encryptedToken, err := s.encryptToken(tenant.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO tenants (
			shop_domain, access_token, scopes, webhook_secret,
			sync_orders, sync_customers, sync_products,
			invoice_prefix, payment_term_days, default_vat_rate, active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE)
		ON CONFLICT (shop_domain) DO UPDATE SET
			access_token      = EXCLUDED.access_token,
			scopes            = EXCLUDED.scopes,
			webhook_secret    = EXCLUDED.webhook_secret,
			sync_orders       = EXCLUDED.sync_orders,
			sync_customers    = EXCLUDED.sync_customers,
			sync_products     = EXCLUDED.sync_products,
			active            = TRUE,
			updated_at        = now()
		RETURNING`+tenantColumns,
		tenant.ShopDomain,
		encryptedToken,
		tenant.Scopes,
		nullText(tenant.WebhookSecret),
		tenant.SyncOrders,
		tenant.SyncCustomers,
		tenant.SyncProducts,
		tenant.InvoicePrefix,
		tenant.PaymentTermDays,
		tenant.DefaultVATRate,
	)

	return s.scanTenant(row)
}

func (s *TenantStore) UpdateSettings(ctx context.Context, shopDomain string, patch models.TenantSettingsPatch) (*models.Tenant, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE tenants SET
			sync_orders       = COALESCE($2, sync_orders),
			sync_customers    = COALESCE($3, sync_customers),
			sync_products     = COALESCE($4, sync_products),
			invoice_prefix    = COALESCE($5, invoice_prefix),
			payment_term_days = COALESCE($6, payment_term_days),
			default_vat_rate  = COALESCE($7, default_vat_rate),
			updated_at        = now()
		WHERE shop_domain = $1
		RETURNING`+tenantColumns,
		shopDomain,
		patch.SyncOrders,
		patch.SyncCustomers,
		patch.SyncProducts,
		patch.InvoicePrefix,
		patch.PaymentTermDays,
		patch.DefaultVATRate,
	)

	tenant, err := s.scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tenant, err
}

func (s *TenantStore) RecordLastSync(ctx context.Context, shopDomain string, kind models.SyncKind, at time.Time) error {
	var column string
	switch kind {
	case models.SyncKindOrders:
		column = "last_order_sync"
	case models.SyncKindCustomers:
		column = "last_customer_sync"
	case models.SyncKindProducts:
		column = "last_product_sync"
	default:
		return fmt.Errorf("unknown sync kind: %s", kind)
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE tenants SET `+column+` = $2, updated_at = now() WHERE shop_domain = $1`,
		shopDomain, at)
	return err
}

// Deactivate marks the session inactive and drops the credential. Used on
// app/uninstalled; sync settings are kept so a reinstall picks them up.
func (s *TenantStore) Deactivate(ctx context.Context, shopDomain string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tenants SET
			access_token = NULL,
			active       = FALSE,
			updated_at   = now()
		WHERE shop_domain = $1`, shopDomain)
	return err
}

// Redact fully disables a tenant for a shop/redact request: sync flags off,
// credential and webhook secret nulled, session inactive. Redacting an
// already-redacted tenant is a successful no-op.
func (s *TenantStore) Redact(ctx context.Context, shopDomain string) (*models.Tenant, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE tenants SET
			access_token   = NULL,
			webhook_secret = NULL,
			sync_orders    = FALSE,
			sync_customers = FALSE,
			sync_products  = FALSE,
			active         = FALSE,
			updated_at     = now()
		WHERE shop_domain = $1
		RETURNING`+tenantColumns, shopDomain)

	tenant, err := s.scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tenant, err
}

func (s *TenantStore) scanTenant(row pgx.Row) (*models.Tenant, error) {
	var (
		tenant           models.Tenant
		accessToken      pgtype.Text
		webhookSecret    pgtype.Text
		lastOrderSync    pgtype.Timestamptz
		lastCustomerSync pgtype.Timestamptz
		lastProductSync  pgtype.Timestamptz
	)

	err := row.Scan(
		&tenant.ID,
		&tenant.ShopDomain,
		&accessToken,
		&tenant.Scopes,
		&webhookSecret,
		&tenant.SyncOrders,
		&tenant.SyncCustomers,
		&tenant.SyncProducts,
		&tenant.InvoicePrefix,
		&tenant.PaymentTermDays,
		&tenant.DefaultVATRate,
		&tenant.Active,
		&lastOrderSync,
		&lastCustomerSync,
		&lastProductSync,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if accessToken.Valid && accessToken.String != "" {
		decrypted, err := s.crypto.Decrypt(accessToken.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt access token: %w", err)
		}
		tenant.AccessToken = decrypted
	}
	if webhookSecret.Valid {
		tenant.WebhookSecret = webhookSecret.String
	}
	if lastOrderSync.Valid {
		tenant.LastOrderSync = lastOrderSync.Time
	}
	if lastCustomerSync.Valid {
		tenant.LastCustomerSync = lastCustomerSync.Time
	}
	if lastProductSync.Valid {
		tenant.LastProductSync = lastProductSync.Time
	}

	return &tenant, nil
}

func (s *TenantStore) encryptToken(token string) (pgtype.Text, error) {
	if token == "" {
		return pgtype.Text{}, nil
	}
	encrypted, err := s.crypto.Encrypt(token)
	if err != nil {
		return pgtype.Text{}, err
	}
	return pgtype.Text{String: encrypted, Valid: true}, nil
}

func nullText(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}
