package maventa

import (
	"github.com/invoicehubapp/invoicehub/internal/models"
)

const dateLayout = "2006-01-02"

// ConvertCompany maps a stored recipient to the Maventa wire shape. Country
// names are collapsed to the ISO code Maventa expects for Finland.
func ConvertCompany(company *models.Company) *Company {
	if company == nil {
		return nil
	}
	return &Company{
		Name:    company.Name,
		BID:     company.BusinessID,
		Country: countryCode(company.Address.Country),
		Address: &Address{
			Street:  company.Address.Street,
			City:    company.Address.City,
			Zip:     company.Address.PostalCode,
			Country: countryCode(company.Address.Country),
		},
		Email: company.Email,
		Phone: company.Phone,
	}
}

// ConvertInvoice maps a stored invoice to the Maventa wire shape.
func ConvertInvoice(invoice *models.Invoice, recipient *models.Company) *Invoice {
	items := make([]InvoiceItem, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		sum := item.UnitPrice * item.Quantity
		items = append(items, InvoiceItem{
			Name:       item.Description,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
			VATPercent: item.VATRate,
			Sum:        sum,
			SumVAT:     sum * (item.VATRate / 100),
			SumGross:   item.Total,
		})
	}

	return &Invoice{
		Number:      invoice.InvoiceNumber,
		Direction:   "SENT",
		Recipient:   ConvertCompany(recipient),
		DateCreated: invoice.IssueDate.Format(dateLayout),
		DateDue:     invoice.DueDate.Format(dateLayout),
		Sum:         invoice.Subtotal,
		SumTax:      invoice.VATAmount,
		SumGross:    invoice.Total,
		Currency:    invoice.Currency,
		Comment:     invoice.Notes,
		Items:       items,
	}
}

// ConvertStatus maps a wire status onto the invoice lifecycle. Rejected
// deliveries count as cancelled; unknown statuses fall back to draft.
func ConvertStatus(wire string) models.InvoiceStatus {
	switch wire {
	case WireStatusDraft:
		return models.StatusDraft
	case WireStatusSent:
		return models.StatusSent
	case WireStatusDelivered:
		return models.StatusDelivered
	case WireStatusPaid:
		return models.StatusPaid
	case WireStatusRejected, WireStatusCancelled:
		return models.StatusCancelled
	default:
		return models.StatusDraft
	}
}

func countryCode(country string) string {
	if country == "Finland" {
		return "FI"
	}
	return country
}
