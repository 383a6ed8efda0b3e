// Package pricing holds the invoice pricing and balance rules. Every surface that shows
// invoice figures (edit form, PDFs, HTML view, CLI) calls Calculate; nothing else
// derives money values.
package pricing

import "github.com/shopspring/decimal"

// SaleType classifies the sale for VAT and warranty treatment.
type SaleType string

const (
	SaleTypeRetail     SaleType = "Retail"
	SaleTypeTrade      SaleType = "Trade"
	SaleTypeCommercial SaleType = "Commercial"
)

// Valid reports whether the sale type is one of the known values.
func (s SaleType) Valid() bool {
	switch s {
	case SaleTypeRetail, SaleTypeTrade, SaleTypeCommercial:
		return true
	}
	return false
}

// InvoiceTo names the party the invoice is addressed to.
type InvoiceTo string

const (
	InvoiceToCustomer       InvoiceTo = "Customer"
	InvoiceToFinanceCompany InvoiceTo = "Finance Company"
)

// Valid reports whether the recipient is one of the known values.
func (i InvoiceTo) Valid() bool {
	return i == InvoiceToCustomer || i == InvoiceToFinanceCompany
}

// DefaultVATRate is the UK standard rate applied to commercial sales.
var DefaultVATRate = decimal.New(20, -2)

// Addon is a chargeable extra sold with the vehicle.
type Addon struct {
	Name     string          `json:"name"`
	Cost     decimal.Decimal `json:"cost"`
	Discount decimal.Decimal `json:"discount"`
	Enabled  bool            `json:"enabled"`
}

// PartExchange is the trade-in vehicle credited against the sale.
type PartExchange struct {
	Value      decimal.Decimal `json:"value"`
	Settlement decimal.Decimal `json:"settlement"`
}

// Input carries every figure the calculation depends on.
type Input struct {
	SaleType  SaleType  `json:"saleType"`
	InvoiceTo InvoiceTo `json:"invoiceTo"`
	// VATRate is a fraction (0.20 for 20%). Zero falls back to DefaultVATRate.
	VATRate decimal.Decimal `json:"vatRate"`

	SalePrice                  decimal.Decimal `json:"salePrice"`
	DiscountOnSalePrice        decimal.Decimal `json:"discountOnSalePrice"`
	WarrantyPrice              decimal.Decimal `json:"warrantyPrice"`
	DiscountOnWarranty         decimal.Decimal `json:"discountOnWarranty"`
	EnhancedWarrantyPrice      decimal.Decimal `json:"enhancedWarrantyPrice"`
	DiscountOnEnhancedWarranty decimal.Decimal `json:"discountOnEnhancedWarranty"`
	DeliveryCost               decimal.Decimal `json:"deliveryCost"`
	DiscountOnDelivery         decimal.Decimal `json:"discountOnDelivery"`
	// Collection means the customer collects, so no delivery is charged.
	Collection bool `json:"collection"`

	CustomerAddons []Addon `json:"customerAddons"`
	FinanceAddons  []Addon `json:"financeAddons"`

	CompulsorySaleDepositNonFinance decimal.Decimal `json:"compulsorySaleDepositNonFinance"`
	AmountPaidDeposit               decimal.Decimal `json:"amountPaidDeposit"`

	CardPayments []decimal.Decimal `json:"cardPayments"`
	BACSPayments []decimal.Decimal `json:"bacsPayments"`
	CashPayments []decimal.Decimal `json:"cashPayments"`

	PartExchange *PartExchange `json:"partExchange,omitempty"`
}

// AddonLine is an add-on after discount.
type AddonLine struct {
	Name         string          `json:"name"`
	Cost         decimal.Decimal `json:"cost"`
	Discount     decimal.Decimal `json:"discount"`
	PostDiscount decimal.Decimal `json:"postDiscount"`
	Finance      bool            `json:"finance"`
}

// Breakdown is the full set of derived invoice figures, rounded to pence.
type Breakdown struct {
	SaleType  SaleType        `json:"saleType"`
	InvoiceTo InvoiceTo       `json:"invoiceTo"`
	VATRate   decimal.Decimal `json:"vatRate"`

	SalePricePostDiscount             decimal.Decimal `json:"salePricePostDiscount"`
	WarrantyPricePostDiscount         decimal.Decimal `json:"warrantyPricePostDiscount"`
	EnhancedWarrantyPricePostDiscount decimal.Decimal `json:"enhancedWarrantyPricePostDiscount"`
	DeliveryCostPostDiscount          decimal.Decimal `json:"deliveryCostPostDiscount"`

	AddonLines          []AddonLine     `json:"addonLines"`
	CustomerAddonsTotal decimal.Decimal `json:"customerAddonsTotal"`
	FinanceAddonsTotal  decimal.Decimal `json:"financeAddonsTotal"`

	VATAmount       decimal.Decimal `json:"vatAmount"`
	SalePriceIncVAT decimal.Decimal `json:"salePriceIncVat"`
	FinanceSubtotal decimal.Decimal `json:"financeSubtotal"`
	Subtotal        decimal.Decimal `json:"subtotal"`

	CompulsorySaleDeposit decimal.Decimal `json:"compulsorySaleDeposit"`
	AmountPaidDeposit     decimal.Decimal `json:"amountPaidDeposit"`
	DepositOutstanding    decimal.Decimal `json:"depositOutstanding"`
	Overpayment           decimal.Decimal `json:"overpayment"`

	CardPaymentsTotal decimal.Decimal `json:"cardPaymentsTotal"`
	BACSPaymentsTotal decimal.Decimal `json:"bacsPaymentsTotal"`
	CashPaymentsTotal decimal.Decimal `json:"cashPaymentsTotal"`
	PaymentsTotal     decimal.Decimal `json:"paymentsTotal"`
	PartExchangeNet   decimal.Decimal `json:"partExchangeNet"`

	BalanceToFinance decimal.Decimal `json:"balanceToFinance"`
	TotalPaid        decimal.Decimal `json:"totalPaid"`
	RemainingBalance decimal.Decimal `json:"remainingBalance"`
	BalanceDue       decimal.Decimal `json:"balanceDue"`
	RefundDue        decimal.Decimal `json:"refundDue"`
}

// IsFinance reports whether the breakdown is for a finance-company invoice.
func (b Breakdown) IsFinance() bool {
	return b.InvoiceTo == InvoiceToFinanceCompany
}

// CustomerAddons returns the customer add-on lines only.
func (b Breakdown) CustomerAddons() []AddonLine {
	return filterAddons(b.AddonLines, false)
}

// FinanceAddons returns the finance add-on lines only.
func (b Breakdown) FinanceAddons() []AddonLine {
	return filterAddons(b.AddonLines, true)
}

func filterAddons(lines []AddonLine, finance bool) []AddonLine {
	out := make([]AddonLine, 0, len(lines))
	for _, l := range lines {
		if l.Finance == finance {
			out = append(out, l)
		}
	}
	return out
}
