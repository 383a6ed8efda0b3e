package invoices

import "github.com/forecourt/forecourt/internal/pricing"

type ListInvoicesRequest struct {
	DealerID  int64             `validate:"required,gt=0"`
	Status    Status            `validate:"omitempty,oneof=draft issued void"`
	SaleType  pricing.SaleType  `validate:"omitempty,oneof=Retail Trade Commercial"`
	InvoiceTo pricing.InvoiceTo `validate:"omitempty,oneof=Customer 'Finance Company'"`
	Search    string            `validate:"max=100"`
	Limit     int               `validate:"gte=0,lte=10000"`
	Offset    int               `validate:"gte=0"`
}

// CreateDraftRequest starts an invoice, optionally prefilled from a stock
// vehicle and a customer record.
type CreateDraftRequest struct {
	SaleType   pricing.SaleType  `json:"saleType"`
	InvoiceTo  pricing.InvoiceTo `json:"invoiceTo"`
	VehicleID  int64             `json:"vehicleId"`
	CustomerID int64             `json:"customerId"`
}

type VoidRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}
