package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/invoicehubapp/invoicehub/internal/email"
	"github.com/invoicehubapp/invoicehub/internal/logging"
	"github.com/invoicehubapp/invoicehub/internal/models"
)

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) (*models.Notification, error)
}

// Notifier records sync outcomes in the notification feed and, when an email
// provider is configured, mails a copy to the operations address. Email
// delivery is best-effort: a send failure never fails the triggering sync.
type Notifier struct {
	store    notificationStore
	provider email.Provider
	renderer *email.Renderer
	to       string
	logger   *slog.Logger
}

func NewNotifier(store notificationStore, provider email.Provider, renderer *email.Renderer, to string, logger *slog.Logger) (*Notifier, error) {
	if store == nil {
		return nil, fmt.Errorf("notifier: notification store is required")
	}
	return &Notifier{
		store:    store,
		provider: provider,
		renderer: renderer,
		to:       to,
		logger:   logger,
	}, nil
}

func (n *Notifier) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, n.logger)
}

func (n *Notifier) InvoiceCreated(ctx context.Context, tenant *models.Tenant, invoice *models.Invoice, recipient *models.Company) {
	n.record(ctx, &models.Notification{
		TenantID: tenant.ID,
		Type:     models.NotificationInvoiceCreated,
		Title:    "Invoice created",
		Message:  fmt.Sprintf("Invoice %s created for order %s", invoice.InvoiceNumber, invoice.ShopifyOrderID),
		Data: map[string]any{
			"invoice_number":   invoice.InvoiceNumber,
			"shopify_order_id": invoice.ShopifyOrderID,
			"total":            invoice.Total,
			"currency":         invoice.Currency,
		},
	})

	if n.provider == nil || n.renderer == nil || n.to == "" {
		return
	}
	msg, err := n.renderer.RenderInvoiceCreated(n.to, invoiceEmailInfo(tenant, invoice, recipient))
	if err != nil {
		n.loggerFromContext(ctx).Warn("failed to render invoice email", "error", err)
		return
	}
	if err := n.provider.SendEmail(ctx, msg); err != nil {
		n.loggerFromContext(ctx).Warn("failed to send invoice email", "error", err)
	}
}

func (n *Notifier) InvoicePaid(ctx context.Context, tenant *models.Tenant, invoice *models.Invoice) {
	n.record(ctx, &models.Notification{
		TenantID: tenant.ID,
		Type:     models.NotificationInvoicePaid,
		Title:    "Invoice paid",
		Message:  fmt.Sprintf("Invoice %s has been paid", invoice.InvoiceNumber),
		Data: map[string]any{
			"invoice_number":   invoice.InvoiceNumber,
			"shopify_order_id": invoice.ShopifyOrderID,
		},
	})

	if n.provider == nil || n.renderer == nil || n.to == "" {
		return
	}
	msg, err := n.renderer.RenderInvoicePaid(n.to, invoiceEmailInfo(tenant, invoice, nil))
	if err != nil {
		n.loggerFromContext(ctx).Warn("failed to render invoice email", "error", err)
		return
	}
	if err := n.provider.SendEmail(ctx, msg); err != nil {
		n.loggerFromContext(ctx).Warn("failed to send invoice email", "error", err)
	}
}

func (n *Notifier) AppUninstalled(ctx context.Context, tenant *models.Tenant) {
	n.record(ctx, &models.Notification{
		TenantID: tenant.ID,
		Type:     models.NotificationAppUninstalled,
		Title:    "App uninstalled",
		Message:  fmt.Sprintf("Shop %s uninstalled the app", tenant.ShopDomain),
	})
}

func (n *Notifier) GDPREvent(ctx context.Context, tenant *models.Tenant, kind models.NotificationType, message string, data map[string]any) {
	n.record(ctx, &models.Notification{
		TenantID: tenant.ID,
		Type:     kind,
		Title:    "Privacy request",
		Message:  message,
		Data:     data,
	})
}

func (n *Notifier) record(ctx context.Context, notification *models.Notification) {
	if _, err := n.store.Create(ctx, notification); err != nil {
		n.loggerFromContext(ctx).Error("failed to record notification", "type", notification.Type, "error", err)
	}
}

func invoiceEmailInfo(tenant *models.Tenant, invoice *models.Invoice, recipient *models.Company) email.InvoiceInfo {
	info := email.InvoiceInfo{
		InvoiceNumber: invoice.InvoiceNumber,
		ShopDomain:    tenant.ShopDomain,
		OrderNumber:   invoice.ShopifyOrderID,
		IssueDate:     invoice.IssueDate.Format("2006-01-02"),
		DueDate:       invoice.DueDate.Format("2006-01-02"),
		Total:         fmt.Sprintf("%.2f", invoice.Total),
		Currency:      invoice.Currency,
	}
	if recipient != nil {
		info.CustomerName = recipient.Name
	}
	return info
}
