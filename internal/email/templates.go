// Package email provides email templates.
package email

import (
	"bytes"
	"fmt"
	"text/template"
)

// InvoiceInfo carries the fields the invoice email templates render.
type InvoiceInfo struct {
	InvoiceNumber string
	ShopDomain    string
	CustomerName  string
	OrderNumber   string
	IssueDate     string
	DueDate       string
	Total         string
	Currency      string
}

// Renderer renders the built-in invoice notification templates.
type Renderer struct {
	templates *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl := template.New("email")
	for name, body := range builtinTemplates {
		if _, err := tmpl.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
	}
	return &Renderer{templates: tmpl}, nil
}

// RenderInvoiceCreated builds the merchant notification for a newly created invoice.
func (r *Renderer) RenderInvoiceCreated(to string, info InvoiceInfo) (*Email, error) {
	return r.render("invoice_created", fmt.Sprintf("Invoice %s created", info.InvoiceNumber), to, info)
}

// RenderInvoicePaid builds the merchant notification for an invoice marked paid.
func (r *Renderer) RenderInvoicePaid(to string, info InvoiceInfo) (*Email, error) {
	return r.render("invoice_paid", fmt.Sprintf("Invoice %s paid", info.InvoiceNumber), to, info)
}

func (r *Renderer) render(name, subject, to string, info InvoiceInfo) (*Email, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, info); err != nil {
		return nil, fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return &Email{
		To:      to,
		Subject: subject,
		Text:    buf.String(),
	}, nil
}

var builtinTemplates = map[string]string{
	"invoice_created": `Invoice {{.InvoiceNumber}} was created for order {{.OrderNumber}} on {{.ShopDomain}}.

Customer: {{.CustomerName}}
Issued:   {{.IssueDate}}
Due:      {{.DueDate}}
Total:    {{.Total}} {{.Currency}}
`,
	"invoice_paid": `Invoice {{.InvoiceNumber}} for order {{.OrderNumber}} on {{.ShopDomain}} has been paid.

Customer: {{.CustomerName}}
Total:    {{.Total}} {{.Currency}}
`,
}
