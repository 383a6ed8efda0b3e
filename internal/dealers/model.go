package dealers

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Dealer is the trading business a user works for. Its details head every invoice.
type Dealer struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	CompanyName    string          `json:"companyName"`
	AddressLine1   string          `json:"addressLine1"`
	AddressLine2   string          `json:"addressLine2"`
	City           string          `json:"city"`
	County         string          `json:"county"`
	Postcode       string          `json:"postcode"`
	Phone          string          `json:"phone"`
	Email          string          `json:"email"`
	VATNumber      string          `json:"vatNumber"`
	CompanyNumber  string          `json:"companyNumber"`
	LogoKey        string          `json:"logoKey"`
	InvoiceTerms   string          `json:"invoiceTerms"`
	DefaultVATRate decimal.Decimal `json:"defaultVatRate"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// AddressLines returns the non-empty address lines in print order.
func (d *Dealer) AddressLines() []string {
	var out []string
	for _, l := range []string{d.AddressLine1, d.AddressLine2, d.City, d.County, d.Postcode} {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// UpdateDealerRequest is the editable dealer profile.
type UpdateDealerRequest struct {
	Name           string `validate:"required,max=200"`
	CompanyName    string `validate:"max=200"`
	AddressLine1   string `validate:"max=200"`
	AddressLine2   string `validate:"max=200"`
	City           string `validate:"max=100"`
	County         string `validate:"max=100"`
	Postcode       string `validate:"max=10"`
	Phone          string `validate:"max=30"`
	Email          string `validate:"omitempty,email"`
	VATNumber      string `validate:"max=20"`
	CompanyNumber  string `validate:"max=20"`
	InvoiceTerms   string `validate:"max=5000"`
	DefaultVATRate decimal.Decimal
}
