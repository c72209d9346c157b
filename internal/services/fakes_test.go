package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/invoicehubapp/invoicehub/internal/maventa"
	"github.com/invoicehubapp/invoicehub/internal/models"
	"github.com/invoicehubapp/invoicehub/internal/shopify"
)

var (
	errFakeNotFound          = errors.New("fake: not found")
	errFakeInvalidTransition = errors.New("fake: invalid status transition")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTenantStore struct {
	mu          sync.Mutex
	tenants     map[string]*models.Tenant
	lastSync    map[models.SyncKind]time.Time
	deactivated []string
}

func newFakeTenantStore() *fakeTenantStore {
	return &fakeTenantStore{
		tenants:  map[string]*models.Tenant{},
		lastSync: map[models.SyncKind]time.Time{},
	}
}

func (f *fakeTenantStore) Upsert(_ context.Context, tenant *models.Tenant) (*models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := *tenant
	if existing, ok := f.tenants[tenant.ShopDomain]; ok {
		stored.ID = existing.ID
	} else {
		stored.ID = uuid.New()
	}
	stored.Active = true
	f.tenants[tenant.ShopDomain] = &stored
	return &stored, nil
}

func (f *fakeTenantStore) RecordLastSync(_ context.Context, _ string, kind models.SyncKind, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSync[kind] = at
	return nil
}

func (f *fakeTenantStore) Deactivate(_ context.Context, shopDomain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, shopDomain)
	if tenant, ok := f.tenants[shopDomain]; ok {
		tenant.Active = false
		tenant.AccessToken = ""
	}
	return nil
}

func (f *fakeTenantStore) Redact(_ context.Context, shopDomain string) (*models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tenant, ok := f.tenants[shopDomain]
	if !ok {
		return nil, errFakeNotFound
	}
	tenant.Active = false
	tenant.AccessToken = ""
	tenant.WebhookSecret = ""
	tenant.SyncOrders = false
	tenant.SyncCustomers = false
	tenant.SyncProducts = false
	return tenant, nil
}

type fakeCompanyStore struct {
	mu        sync.Mutex
	companies map[string]*models.Company
	redacted  []string
}

func newFakeCompanyStore() *fakeCompanyStore {
	return &fakeCompanyStore{companies: map[string]*models.Company{}}
}

func (f *fakeCompanyStore) UpsertByShopifyCustomerID(_ context.Context, company *models.Company) (*models.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := *company
	if existing, ok := f.companies[company.ShopifyCustomerID]; ok {
		stored.ID = existing.ID
	} else {
		stored.ID = uuid.New()
	}
	f.companies[company.ShopifyCustomerID] = &stored
	return &stored, nil
}

func (f *fakeCompanyStore) Redact(_ context.Context, _ uuid.UUID, shopifyCustomerID string) (*models.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	company, ok := f.companies[shopifyCustomerID]
	if !ok {
		return nil, errFakeNotFound
	}
	before := *company
	delete(f.companies, shopifyCustomerID)
	f.redacted = append(f.redacted, shopifyCustomerID)
	return &before, nil
}

type fakeInvoiceStore struct {
	mu       sync.Mutex
	invoices map[string]*models.Invoice
}

func newFakeInvoiceStore() *fakeInvoiceStore {
	return &fakeInvoiceStore{invoices: map[string]*models.Invoice{}}
}

func (f *fakeInvoiceStore) GetByShopifyOrderID(_ context.Context, _ uuid.UUID, shopifyOrderID string) (*models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	invoice, ok := f.invoices[shopifyOrderID]
	if !ok {
		return nil, errFakeNotFound
	}
	copied := *invoice
	return &copied, nil
}

func (f *fakeInvoiceStore) CreateWithItems(_ context.Context, invoice *models.Invoice) (*models.Invoice, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.invoices[invoice.ShopifyOrderID]; ok {
		copied := *existing
		return &copied, false, nil
	}

	stored := *invoice
	stored.ID = uuid.New()
	f.invoices[invoice.ShopifyOrderID] = &stored
	copied := stored
	return &copied, true, nil
}

func (f *fakeInvoiceStore) TransitionStatus(_ context.Context, _ uuid.UUID, shopifyOrderID string, to models.InvoiceStatus) (*models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	invoice, ok := f.invoices[shopifyOrderID]
	if !ok {
		return nil, errFakeNotFound
	}
	if invoice.Status == to {
		copied := *invoice
		return &copied, nil
	}
	if !models.CanTransition(invoice.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", errFakeInvalidTransition, invoice.Status, to)
	}
	invoice.Status = to
	copied := *invoice
	return &copied, nil
}

type fakeNotificationStore struct {
	mu      sync.Mutex
	created []*models.Notification
}

func (f *fakeNotificationStore) Create(_ context.Context, notification *models.Notification) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *notification
	stored.ID = uuid.New()
	f.created = append(f.created, &stored)
	return &stored, nil
}

func (f *fakeNotificationStore) byType(kind models.NotificationType) []*models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*models.Notification
	for _, n := range f.created {
		if n.Type == kind {
			matched = append(matched, n)
		}
	}
	return matched
}

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []string
}

func (f *fakeAuditStore) Append(_ context.Context, _ uuid.UUID, action, entity, entityID string, _, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, action+":"+entity+":"+entityID)
	return nil
}

type fakeEInvoicer struct {
	mu        sync.Mutex
	companies []*maventa.Company
	created   []*maventa.Invoice
	sent      []string
	createErr error
}

func (f *fakeEInvoicer) CreateCompany(_ context.Context, company *maventa.Company) (*maventa.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.companies = append(f.companies, company)
	return company, nil
}

func (f *fakeEInvoicer) CreateInvoice(_ context.Context, invoice *maventa.Invoice) (*maventa.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	copied := *invoice
	copied.UUID = uuid.NewString()
	f.created = append(f.created, &copied)
	return &copied, nil
}

func (f *fakeEInvoicer) SendInvoice(_ context.Context, invoiceUUID string) (*maventa.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, invoiceUUID)
	return &maventa.Invoice{UUID: invoiceUUID, Status: maventa.WireStatusSent}, nil
}

type fakeRegistrar struct {
	mu          sync.Mutex
	callbackURL string
	topics      []string
}

func (f *fakeRegistrar) RegisterWebhooks(_ context.Context, callbackURL string, topics []string) []shopify.WebhookRegistrationResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbackURL = callbackURL
	f.topics = append([]string{}, topics...)
	results := make([]shopify.WebhookRegistrationResult, 0, len(topics))
	for _, topic := range topics {
		results = append(results, shopify.WebhookRegistrationResult{Topic: topic})
	}
	return results
}

func testNotifier(store *fakeNotificationStore) *Notifier {
	notifier, err := NewNotifier(store, nil, nil, "", testLogger())
	if err != nil {
		panic(err)
	}
	return notifier
}

func testTenant() *models.Tenant {
	return &models.Tenant{
		ID:              uuid.New(),
		ShopDomain:      "demo.myshopify.com",
		SyncOrders:      true,
		SyncCustomers:   true,
		InvoicePrefix:   "SHOP",
		PaymentTermDays: 30,
		DefaultVATRate:  24,
		Active:          true,
	}
}
