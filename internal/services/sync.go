package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/invoicehubapp/invoicehub/internal/logging"
	"github.com/invoicehubapp/invoicehub/internal/maventa"
	"github.com/invoicehubapp/invoicehub/internal/models"
	"github.com/invoicehubapp/invoicehub/internal/observability"
	"github.com/invoicehubapp/invoicehub/internal/shopify"
)

type syncTenantStore interface {
	RecordLastSync(ctx context.Context, shopDomain string, kind models.SyncKind, at time.Time) error
	Deactivate(ctx context.Context, shopDomain string) error
}

type syncCompanyStore interface {
	UpsertByShopifyCustomerID(ctx context.Context, company *models.Company) (*models.Company, error)
}

type syncInvoiceStore interface {
	GetByShopifyOrderID(ctx context.Context, tenantID uuid.UUID, shopifyOrderID string) (*models.Invoice, error)
	CreateWithItems(ctx context.Context, invoice *models.Invoice) (*models.Invoice, bool, error)
	TransitionStatus(ctx context.Context, tenantID uuid.UUID, shopifyOrderID string, to models.InvoiceStatus) (*models.Invoice, error)
}

// eInvoicer dispatches a finished invoice onto the e-invoicing network.
type eInvoicer interface {
	CreateCompany(ctx context.Context, company *maventa.Company) (*maventa.Company, error)
	CreateInvoice(ctx context.Context, invoice *maventa.Invoice) (*maventa.Invoice, error)
	SendInvoice(ctx context.Context, invoiceUUID string) (*maventa.Invoice, error)
}

// SyncService translates storefront order events into invoices. Translation
// is idempotent end to end: replayed order events converge on the same
// invoice row and the same status.
type SyncService struct {
	tenantStore  syncTenantStore
	companyStore syncCompanyStore
	invoiceStore syncInvoiceStore
	notifier     *Notifier
	einvoicer    eInvoicer
	notFound     error
	invalidMove  error
	now          func() time.Time
	logger       *slog.Logger
}

type SyncServiceOptions struct {
	TenantStore  syncTenantStore
	CompanyStore syncCompanyStore
	InvoiceStore syncInvoiceStore
	Notifier     *Notifier
	EInvoicer    eInvoicer

	// Sentinels of the backing store, matched with errors.Is. Kept
	// injectable so fakes can use their own error values.
	NotFound          error
	InvalidTransition error

	Now    func() time.Time
	Logger *slog.Logger
}

func NewSyncService(opts SyncServiceOptions) (*SyncService, error) {
	if opts.TenantStore == nil {
		return nil, fmt.Errorf("sync service: tenant store is required")
	}
	if opts.CompanyStore == nil {
		return nil, fmt.Errorf("sync service: company store is required")
	}
	if opts.InvoiceStore == nil {
		return nil, fmt.Errorf("sync service: invoice store is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("sync service: notifier is required")
	}
	if opts.NotFound == nil || opts.InvalidTransition == nil {
		return nil, fmt.Errorf("sync service: store sentinels are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &SyncService{
		tenantStore:  opts.TenantStore,
		companyStore: opts.CompanyStore,
		invoiceStore: opts.InvoiceStore,
		notifier:     opts.Notifier,
		einvoicer:    opts.EInvoicer,
		notFound:     opts.NotFound,
		invalidMove:  opts.InvalidTransition,
		now:          opts.Now,
		logger:       opts.Logger,
	}, nil
}

func (s *SyncService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// HandleOrderEvent processes one orders/* webhook for a tenant. Create
// events produce an invoice, update and paid events move an existing one
// through its lifecycle. Duplicate deliveries are no-ops.
func (s *SyncService) HandleOrderEvent(ctx context.Context, tenant *models.Tenant, topic string, order *shopify.Order) error {
	span := sentry.StartSpan(
		ctx,
		"service.sync.handle_order_event",
		sentry.WithOpName("service.sync"),
		sentry.WithDescription("HandleOrderEvent"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(
		attribute.String("shop", tenant.ShopDomain),
		attribute.String("webhook.topic", topic),
	)
	meter.Count("sync.order.received", 1)
	recordFailed := func(reason string) {
		meter.Count("sync.order.failed", 1, sentry.WithAttributes(attribute.String("reason", reason)))
	}

	if !tenant.IsActive() {
		recordFailed("tenant_inactive")
		return ErrTenantInactive
	}
	if !tenant.SyncOrders {
		logger.Debug("order sync disabled, skipping", "shop", tenant.ShopDomain)
		meter.Count("sync.order.skipped", 1, sentry.WithAttributes(attribute.String("reason", "sync_disabled")))
		return nil
	}
	if order == nil || order.ID.String() == "" {
		recordFailed("missing_order_id")
		span.Status = sentry.SpanStatusInvalidArgument
		return fmt.Errorf("%w: order id is required", ErrValidationFailed)
	}

	orderID := order.ID.String()
	desired := models.StatusDraft
	if topic == shopify.TopicOrdersPaid || strings.EqualFold(order.FinancialStatus, "paid") {
		desired = models.StatusPaid
	}

	existing, err := s.invoiceStore.GetByShopifyOrderID(ctx, tenant.ID, orderID)
	if err != nil && !errors.Is(err, s.notFound) {
		recordFailed("lookup")
		return fmt.Errorf("failed to look up invoice: %w", err)
	}
	if err == nil {
		return s.advanceExisting(ctx, tenant, existing, desired, meter)
	}

	if order.Customer == nil {
		recordFailed("missing_customer")
		span.Status = sentry.SpanStatusInvalidArgument
		return fmt.Errorf("%w: order %s has no customer", ErrValidationFailed, orderID)
	}

	recipient, err := s.companyStore.UpsertByShopifyCustomerID(ctx, companyFromCustomer(tenant, order.Customer))
	if err != nil {
		recordFailed("company_upsert")
		return fmt.Errorf("failed to upsert company: %w", err)
	}
	if tenant.SyncCustomers {
		if err := s.tenantStore.RecordLastSync(ctx, tenant.ShopDomain, models.SyncKindCustomers, s.now()); err != nil {
			logger.Warn("failed to record customer sync time", "error", err)
		}
	}

	invoice := s.buildInvoice(tenant, order, recipient, desired)
	created, wasCreated, err := s.invoiceStore.CreateWithItems(ctx, invoice)
	if err != nil {
		recordFailed("invoice_create")
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	if !wasCreated {
		// Duplicate delivery raced us past the earlier lookup.
		return s.advanceExisting(ctx, tenant, created, desired, meter)
	}

	meter.Count("sync.invoice.created", 1)
	logger.Info("invoice created",
		"shop", tenant.ShopDomain,
		"invoice_number", created.InvoiceNumber,
		"shopify_order_id", created.ShopifyOrderID,
		"status", created.Status,
		"total", created.Total,
	)
	s.notifier.InvoiceCreated(ctx, tenant, created, recipient)

	s.dispatchEInvoice(ctx, tenant, created, recipient)

	if err := s.tenantStore.RecordLastSync(ctx, tenant.ShopDomain, models.SyncKindOrders, s.now()); err != nil {
		logger.Warn("failed to record order sync time", "error", err)
	}
	span.Status = sentry.SpanStatusOK
	return nil
}

// HandleAppUninstalled deactivates the tenant and drops its credential. The
// tenant row and its invoices are kept until a shop/redact webhook arrives.
func (s *SyncService) HandleAppUninstalled(ctx context.Context, tenant *models.Tenant) error {
	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	if err := s.tenantStore.Deactivate(ctx, tenant.ShopDomain); err != nil {
		meter.Count("sync.uninstall.failed", 1)
		return fmt.Errorf("failed to deactivate tenant: %w", err)
	}

	meter.Count("sync.uninstall.processed", 1, sentry.WithAttributes(attribute.String("shop", tenant.ShopDomain)))
	logger.Info("app uninstalled", "shop", tenant.ShopDomain)
	s.notifier.AppUninstalled(ctx, tenant)
	return nil
}

func (s *SyncService) advanceExisting(ctx context.Context, tenant *models.Tenant, invoice *models.Invoice, desired models.InvoiceStatus, meter sentry.Meter) error {
	logger := s.loggerFromContext(ctx)

	if desired != models.StatusPaid || invoice.Status == models.StatusPaid {
		// Nothing to change for this event.
		meter.Count("sync.order.noop", 1)
		return nil
	}

	updated, err := s.invoiceStore.TransitionStatus(ctx, tenant.ID, invoice.ShopifyOrderID, models.StatusPaid)
	if err != nil {
		if errors.Is(err, s.invalidMove) {
			meter.Count("sync.order.failed", 1, sentry.WithAttributes(attribute.String("reason", "invalid_transition")))
			return err
		}
		return fmt.Errorf("failed to transition invoice status: %w", err)
	}

	meter.Count("sync.invoice.paid", 1)
	logger.Info("invoice paid", "shop", tenant.ShopDomain, "invoice_number", updated.InvoiceNumber)
	s.notifier.InvoicePaid(ctx, tenant, updated)

	if err := s.tenantStore.RecordLastSync(ctx, tenant.ShopDomain, models.SyncKindOrders, s.now()); err != nil {
		logger.Warn("failed to record order sync time", "error", err)
	}
	return nil
}

// dispatchEInvoice pushes a freshly created draft onto the e-invoicing
// network and advances it to sent. Network failures are logged and counted
// but never fail the webhook; the invoice stays in draft for a later retry.
func (s *SyncService) dispatchEInvoice(ctx context.Context, tenant *models.Tenant, invoice *models.Invoice, recipient *models.Company) {
	if s.einvoicer == nil || invoice.Status != models.StatusDraft {
		return
	}

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	// Recipients are deduplicated on the network side, so a repeated
	// registration is safe and a failed one only degrades delivery lookup.
	if _, err := s.einvoicer.CreateCompany(ctx, maventa.ConvertCompany(recipient)); err != nil {
		logger.Warn("failed to register e-invoice recipient", "company", recipient.Name, "error", err)
	}

	wire, err := s.einvoicer.CreateInvoice(ctx, maventa.ConvertInvoice(invoice, recipient))
	if err != nil {
		meter.Count("sync.einvoice.failed", 1, sentry.WithAttributes(attribute.String("reason", "create")))
		logger.Warn("failed to create e-invoice", "invoice_number", invoice.InvoiceNumber, "error", err)
		return
	}
	sent, err := s.einvoicer.SendInvoice(ctx, wire.UUID)
	if err != nil {
		meter.Count("sync.einvoice.failed", 1, sentry.WithAttributes(attribute.String("reason", "send")))
		logger.Warn("failed to send e-invoice", "invoice_number", invoice.InvoiceNumber, "error", err)
		return
	}

	status := maventa.ConvertStatus(sent.Status)
	if status == models.StatusDraft {
		// The network accepted the invoice even if it reported no status yet.
		status = models.StatusSent
	}
	if _, err := s.invoiceStore.TransitionStatus(ctx, tenant.ID, invoice.ShopifyOrderID, status); err != nil {
		logger.Warn("failed to mark invoice sent", "invoice_number", invoice.InvoiceNumber, "error", err)
		return
	}
	meter.Count("sync.einvoice.sent", 1)
	logger.Info("e-invoice sent", "invoice_number", invoice.InvoiceNumber)
}

func (s *SyncService) buildInvoice(tenant *models.Tenant, order *shopify.Order, recipient *models.Company, status models.InvoiceStatus) *models.Invoice {
	issueDate := parseOrderTime(order.CreatedAt, s.now())
	items := make([]models.InvoiceItem, 0, len(order.LineItems))

	var subtotal, vatAmount float64
	for _, line := range order.LineItems {
		price := parsePrice(line.Price)
		vatRate := lineVATRate(line, tenant.DefaultVATRate)
		net := line.Quantity * price

		subtotal += net
		vatAmount += net * vatRate / 100

		items = append(items, models.InvoiceItem{
			Description: line.Title,
			Quantity:    line.Quantity,
			UnitPrice:   price,
			VATRate:     vatRate,
			Total:       net * (1 + vatRate/100),
		})
	}

	currency := order.Currency
	if currency == "" {
		currency = "EUR"
	}

	return &models.Invoice{
		TenantID:       tenant.ID,
		InvoiceNumber:  invoiceNumber(tenant.InvoicePrefix, order),
		Status:         status,
		Direction:      models.DirectionOutgoing,
		RecipientID:    recipient.ID,
		IssueDate:      issueDate,
		DueDate:        issueDate.AddDate(0, 0, tenant.PaymentTermDays),
		Subtotal:       subtotal,
		VATAmount:      vatAmount,
		Total:          subtotal + vatAmount,
		Currency:       currency,
		Notes:          order.Note,
		ShopifyOrderID: order.ID.String(),
		Items:          items,
	}
}

func companyFromCustomer(tenant *models.Tenant, customer *shopify.Customer) *models.Company {
	company := &models.Company{
		TenantID:          tenant.ID,
		Name:              customerName(customer),
		Email:             customer.Email,
		Phone:             customer.Phone,
		ShopifyCustomerID: customer.ID.String(),
	}
	if addr := customer.DefaultAddress; addr != nil {
		street := addr.Address1
		if addr.Address2 != "" {
			street += ", " + addr.Address2
		}
		company.Address = models.Address{
			Street:     street,
			City:       addr.City,
			PostalCode: addr.Zip,
			Country:    addr.Country,
		}
		if company.Phone == "" {
			company.Phone = addr.Phone
		}
		if addr.Company != "" {
			company.Name = addr.Company
		}
	}
	return company
}

func customerName(customer *shopify.Customer) string {
	name := strings.TrimSpace(strings.TrimSpace(customer.FirstName) + " " + strings.TrimSpace(customer.LastName))
	if name != "" {
		return name
	}
	if customer.Email != "" {
		return customer.Email
	}
	return "Customer " + customer.ID.String()
}

func invoiceNumber(prefix string, order *shopify.Order) string {
	number := order.OrderNumber.String()
	if number == "" {
		number = strings.TrimPrefix(order.Name, "#")
	}
	if number == "" {
		number = order.ID.String()
	}
	return prefix + "-" + number
}

// lineVATRate derives the item VAT percentage from the first tax line, which
// Shopify reports as a fraction. Lines without tax info fall back to the
// tenant default.
func lineVATRate(line shopify.LineItem, fallback float64) float64 {
	if len(line.TaxLines) > 0 {
		return line.TaxLines[0].Rate * 100
	}
	return fallback
}

func parsePrice(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return parsed
}

func parseOrderTime(value string, fallback time.Time) time.Time {
	if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(value)); err == nil {
		return parsed.Truncate(24 * time.Hour)
	}
	return fallback.Truncate(24 * time.Hour)
}
