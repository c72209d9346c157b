package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/invoicehubapp/invoicehub/internal/logging"
	"github.com/invoicehubapp/invoicehub/internal/models"
	"github.com/invoicehubapp/invoicehub/internal/observability"
	"github.com/invoicehubapp/invoicehub/internal/shopify"
)

type redactTenantStore interface {
	Redact(ctx context.Context, shopDomain string) (*models.Tenant, error)
}

type redactCompanyStore interface {
	Redact(ctx context.Context, tenantID uuid.UUID, shopifyCustomerID string) (*models.Company, error)
}

type auditStore interface {
	Append(ctx context.Context, tenantID uuid.UUID, action, entity, entityID string, oldData, newData any) error
}

// RedactionService implements the mandatory privacy webhooks: customer data
// requests, customer redaction, and shop redaction. Every handled request
// leaves an audit trail, and redaction is idempotent so redelivered webhooks
// succeed without re-removing anything.
type RedactionService struct {
	tenantStore  redactTenantStore
	companyStore redactCompanyStore
	audit        auditStore
	notifier     *Notifier
	notFound     error
	logger       *slog.Logger
}

func NewRedactionService(tenantStore redactTenantStore, companyStore redactCompanyStore, audit auditStore, notifier *Notifier, notFound error, logger *slog.Logger) (*RedactionService, error) {
	if tenantStore == nil || companyStore == nil || audit == nil {
		return nil, fmt.Errorf("redaction service: stores are required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("redaction service: notifier is required")
	}
	if notFound == nil {
		return nil, fmt.Errorf("redaction service: store sentinel is required")
	}

	return &RedactionService{
		tenantStore:  tenantStore,
		companyStore: companyStore,
		audit:        audit,
		notifier:     notifier,
		notFound:     notFound,
		logger:       logger,
	}, nil
}

func (s *RedactionService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// HandleDataRequest records that a merchant must be given a customer's
// data. The app holds no data beyond what the feed exposes, so the request
// is acknowledged, audited, and surfaced as a notification.
func (s *RedactionService) HandleDataRequest(ctx context.Context, tenant *models.Tenant, payload *shopify.GDPRPayload) error {
	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	customerID := ""
	if payload.Customer != nil {
		customerID = payload.Customer.ID.String()
	}

	if err := s.audit.Append(ctx, tenant.ID, "gdpr.data_request", "customer", customerID, nil, payload); err != nil {
		meter.Count("gdpr.data_request.failed", 1)
		return fmt.Errorf("failed to audit data request: %w", err)
	}

	meter.Count("gdpr.data_request.processed", 1, sentry.WithAttributes(attribute.String("shop", tenant.ShopDomain)))
	logger.Info("customer data request recorded", "shop", tenant.ShopDomain, "customer_id", customerID)
	s.notifier.GDPREvent(ctx, tenant, models.NotificationGDPRDataRequest,
		fmt.Sprintf("Data request received for customer %s", customerID),
		map[string]any{"customer_id": customerID})
	return nil
}

// HandleCustomerRedact anonymizes the stored company for the customer named
// in the payload. A customer that was never stored, or was already redacted,
// is a successful no-op.
func (s *RedactionService) HandleCustomerRedact(ctx context.Context, tenant *models.Tenant, payload *shopify.GDPRPayload) error {
	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	if payload.Customer == nil || payload.Customer.ID.String() == "" {
		meter.Count("gdpr.customer_redact.failed", 1, sentry.WithAttributes(attribute.String("reason", "missing_customer")))
		return fmt.Errorf("%w: customer id is required", ErrValidationFailed)
	}
	customerID := payload.Customer.ID.String()

	before, err := s.companyStore.Redact(ctx, tenant.ID, customerID)
	if errors.Is(err, s.notFound) {
		logger.Info("customer redact: nothing stored", "shop", tenant.ShopDomain, "customer_id", customerID)
		meter.Count("gdpr.customer_redact.noop", 1)
		return nil
	}
	if err != nil {
		meter.Count("gdpr.customer_redact.failed", 1)
		return fmt.Errorf("failed to redact company: %w", err)
	}

	if err := s.audit.Append(ctx, tenant.ID, "gdpr.customer_redact", "company", before.ID.String(), before, nil); err != nil {
		logger.Error("failed to audit customer redaction", "error", err)
	}

	meter.Count("gdpr.customer_redact.processed", 1, sentry.WithAttributes(attribute.String("shop", tenant.ShopDomain)))
	logger.Info("customer redacted", "shop", tenant.ShopDomain, "customer_id", customerID)
	s.notifier.GDPREvent(ctx, tenant, models.NotificationGDPRCustomerRedact,
		fmt.Sprintf("Customer %s redacted", customerID),
		map[string]any{"customer_id": customerID})
	return nil
}

// HandleShopRedact wipes the tenant's credentials and disables all syncing
// 48 hours after uninstall. Redacting an unknown or already redacted shop is
// a successful no-op.
func (s *RedactionService) HandleShopRedact(ctx context.Context, shopDomain string) error {
	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	tenant, err := s.tenantStore.Redact(ctx, shopDomain)
	if errors.Is(err, s.notFound) {
		logger.Info("shop redact: tenant not found", "shop", shopDomain)
		meter.Count("gdpr.shop_redact.noop", 1)
		return nil
	}
	if err != nil {
		meter.Count("gdpr.shop_redact.failed", 1)
		return fmt.Errorf("failed to redact tenant: %w", err)
	}

	if err := s.audit.Append(ctx, tenant.ID, "gdpr.shop_redact", "tenant", tenant.ID.String(), nil, nil); err != nil {
		logger.Error("failed to audit shop redaction", "error", err)
	}

	meter.Count("gdpr.shop_redact.processed", 1, sentry.WithAttributes(attribute.String("shop", shopDomain)))
	logger.Info("shop redacted", "shop", shopDomain)
	s.notifier.GDPREvent(ctx, tenant, models.NotificationGDPRTenantRedact,
		fmt.Sprintf("Shop %s redacted", shopDomain), nil)
	return nil
}
