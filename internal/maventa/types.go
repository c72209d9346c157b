package maventa

// Wire types for the Maventa e-invoicing API.

type Company struct {
	UUID      string   `json:"uuid,omitempty"`
	Name      string   `json:"name"`
	BID       string   `json:"bid,omitempty"`
	Country   string   `json:"country,omitempty"`
	Address   *Address `json:"address,omitempty"`
	Email     string   `json:"email,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	VATNumber string   `json:"vat_number,omitempty"`
}

type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

type Invoice struct {
	UUID        string        `json:"uuid,omitempty"`
	Number      string        `json:"number"`
	Status      string        `json:"status,omitempty"`
	Direction   string        `json:"direction"`
	Recipient   *Company      `json:"recipient,omitempty"`
	DateCreated string        `json:"date_created"`
	DateDue     string        `json:"date_due"`
	Sum         float64       `json:"sum"`
	SumTax      float64       `json:"sum_tax"`
	SumGross    float64       `json:"sum_gross"`
	Currency    string        `json:"currency"`
	Comment     string        `json:"comment,omitempty"`
	Items       []InvoiceItem `json:"items"`
}

type InvoiceItem struct {
	Name       string  `json:"name"`
	UnitPrice  float64 `json:"unit_price"`
	Quantity   float64 `json:"quantity"`
	VATPercent float64 `json:"vat_percent"`
	Sum        float64 `json:"sum"`
	SumVAT     float64 `json:"sum_vat"`
	SumGross   float64 `json:"sum_gross"`
}

// Invoice statuses reported by the API.
const (
	WireStatusDraft     = "DRAFT"
	WireStatusSent      = "SENT"
	WireStatusDelivered = "DELIVERED"
	WireStatusPaid      = "PAID"
	WireStatusRejected  = "REJECTED"
	WireStatusCancelled = "CANCELLED"
)

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}
