package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/invoicehubapp/invoicehub/internal/cache"
	"github.com/invoicehubapp/invoicehub/internal/config"
	"github.com/invoicehubapp/invoicehub/internal/models"
	"github.com/invoicehubapp/invoicehub/internal/shopify"
)

var errTestNotFound = errors.New("test: not found")

type fakeTenantStore struct {
	mu      sync.Mutex
	tenants map[string]*models.Tenant
}

func newFakeTenantStore(tenants ...*models.Tenant) *fakeTenantStore {
	store := &fakeTenantStore{tenants: map[string]*models.Tenant{}}
	for _, tenant := range tenants {
		store.tenants[tenant.ShopDomain] = tenant
	}
	return store
}

func (f *fakeTenantStore) GetByShop(_ context.Context, shopDomain string) (*models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tenant, ok := f.tenants[shopDomain]
	if !ok {
		return nil, errTestNotFound
	}
	copied := *tenant
	return &copied, nil
}

func (f *fakeTenantStore) UpdateSettings(_ context.Context, shopDomain string, patch models.TenantSettingsPatch) (*models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tenant, ok := f.tenants[shopDomain]
	if !ok {
		return nil, errTestNotFound
	}
	if patch.SyncOrders != nil {
		tenant.SyncOrders = *patch.SyncOrders
	}
	if patch.InvoicePrefix != nil {
		tenant.InvoicePrefix = *patch.InvoicePrefix
	}
	if patch.PaymentTermDays != nil {
		tenant.PaymentTermDays = *patch.PaymentTermDays
	}
	if patch.DefaultVATRate != nil {
		tenant.DefaultVATRate = *patch.DefaultVATRate
	}
	copied := *tenant
	return &copied, nil
}

type fakeNotificationStore struct {
	mu            sync.Mutex
	notifications map[uuid.UUID]*models.Notification
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{notifications: map[uuid.UUID]*models.Notification{}}
}

func (f *fakeNotificationStore) ListByTenant(_ context.Context, tenantID uuid.UUID, _ int) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var listed []models.Notification
	for _, n := range f.notifications {
		if n.TenantID == tenantID {
			listed = append(listed, *n)
		}
	}
	return listed, nil
}

func (f *fakeNotificationStore) MarkRead(_ context.Context, tenantID, notificationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[notificationID]
	if !ok || n.TenantID != tenantID {
		return errTestNotFound
	}
	n.Read = true
	return nil
}

type fakeSyncService struct {
	mu          sync.Mutex
	orderEvents []string
	uninstalls  []string
	err         error
}

func (f *fakeSyncService) HandleOrderEvent(_ context.Context, tenant *models.Tenant, topic string, order *shopify.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.orderEvents = append(f.orderEvents, topic+":"+order.ID.String())
	return nil
}

func (f *fakeSyncService) HandleAppUninstalled(_ context.Context, tenant *models.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.uninstalls = append(f.uninstalls, tenant.ShopDomain)
	return nil
}

type fakePrivacyService struct {
	mu       sync.Mutex
	requests []string
}

func (f *fakePrivacyService) HandleDataRequest(_ context.Context, tenant *models.Tenant, _ *shopify.GDPRPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, "data_request:"+tenant.ShopDomain)
	return nil
}

func (f *fakePrivacyService) HandleCustomerRedact(_ context.Context, tenant *models.Tenant, _ *shopify.GDPRPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, "customer_redact:"+tenant.ShopDomain)
	return nil
}

func (f *fakePrivacyService) HandleShopRedact(_ context.Context, shopDomain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, "shop_redact:"+shopDomain)
	return nil
}

type fakeInstaller struct {
	startErr    error
	completeErr error
	authURL     string
	tenant      *models.Tenant
}

func (f *fakeInstaller) StartInstall(_ context.Context, shop string) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.authURL, nil
}

func (f *fakeInstaller) CompleteInstall(_ context.Context, shop, code, state string) (*models.Tenant, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return f.tenant, nil
}

type handlerFixture struct {
	handlers      *Handlers
	tenantStore   *fakeTenantStore
	notifications *fakeNotificationStore
	sync          *fakeSyncService
	privacy       *fakePrivacyService
	installer     *fakeInstaller
	cacheProvider cache.Provider
}

func newHandlerFixture(t *testing.T, tenants ...*models.Tenant) *handlerFixture {
	t.Helper()

	cacheProvider, err := cache.NewMemoryProvider()
	if err != nil {
		t.Fatalf("failed to build cache: %v", err)
	}
	t.Cleanup(func() { cacheProvider.Close() })

	fixture := &handlerFixture{
		tenantStore:   newFakeTenantStore(tenants...),
		notifications: newFakeNotificationStore(),
		sync:          &fakeSyncService{},
		privacy:       &fakePrivacyService{},
		installer:     &fakeInstaller{authURL: "https://demo.myshopify.com/admin/oauth/authorize?state=abc"},
		cacheProvider: cacheProvider,
	}

	h, err := New(Dependencies{
		Config: &config.Config{
			ShopifyAPIKey:    "test-api-key",
			ShopifyAPISecret: "test-api-secret",
			BaseURL:          "https://app.example.com",
		},
		TenantStore:       fixture.tenantStore,
		NotificationStore: fixture.notifications,
		CacheProvider:     cacheProvider,
		InstallService:    fixture.installer,
		SyncService:       fixture.sync,
		RedactionService:  fixture.privacy,
		StoreNotFound:     errTestNotFound,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("failed to build handlers: %v", err)
	}
	fixture.handlers = h
	return fixture
}

func testTenant() *models.Tenant {
	return &models.Tenant{
		ID:              uuid.New(),
		ShopDomain:      "demo.myshopify.com",
		WebhookSecret:   "test-webhook-secret",
		SyncOrders:      true,
		SyncCustomers:   true,
		InvoicePrefix:   "SHOP",
		PaymentTermDays: 30,
		DefaultVATRate:  24,
		Active:          true,
	}
}
