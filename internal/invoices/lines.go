package invoices

import (
	"github.com/shopspring/decimal"

	"github.com/forecourt/forecourt/internal/pricing"
)

// Line is one labelled figure of the invoice summary.
type Line struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
	// Total marks subtotal and balance rows for emphasis.
	Total bool `json:"total"`
}

// SummaryLines lists the figures every invoice surface prints, in order.
// Optional charges that come to zero are left out.
func SummaryLines(b pricing.Breakdown) []Line {
	var lines []Line
	add := func(label string, amount decimal.Decimal, total bool) {
		lines = append(lines, Line{Label: label, Amount: amount, Total: total})
	}
	addIf := func(label string, amount decimal.Decimal) {
		if !amount.IsZero() {
			add(label, amount, false)
		}
	}

	add("Vehicle sale price", b.SalePricePostDiscount, false)
	if b.SaleType == pricing.SaleTypeCommercial {
		add("VAT @ "+pricing.FormatRate(b.VATRate), b.VATAmount, false)
		add("Sale price inc. VAT", b.SalePriceIncVAT, false)
	}
	addIf("Warranty", b.WarrantyPricePostDiscount)
	addIf("Enhanced warranty", b.EnhancedWarrantyPricePostDiscount)
	addIf("Delivery", b.DeliveryCostPostDiscount)
	for _, a := range b.CustomerAddons() {
		addIf(a.Name, a.PostDiscount)
	}
	if b.IsFinance() {
		for _, a := range b.FinanceAddons() {
			addIf(a.Name+" (finance)", a.PostDiscount)
		}
		add("Finance subtotal", b.FinanceSubtotal, true)
	}
	add("Compulsory sale deposit", b.CompulsorySaleDeposit, false)
	add("Subtotal", b.Subtotal, true)
	add("Deposit paid", b.AmountPaidDeposit, false)
	addIf("Card payments", b.CardPaymentsTotal)
	addIf("BACS payments", b.BACSPaymentsTotal)
	addIf("Cash payments", b.CashPaymentsTotal)
	addIf("Part exchange", b.PartExchangeNet)
	if b.IsFinance() {
		add("Balance to finance", b.BalanceToFinance, true)
	}
	add("Total paid", b.TotalPaid, false)
	add("Balance due", b.BalanceDue, true)
	addIf("Refund due", b.RefundDue)
	return lines
}

// Lines is SummaryLines for the document's breakdown.
func (d Document) Lines() []Line {
	return SummaryLines(d.Breakdown)
}

// RecipientName is who the invoice is addressed to.
func (d Document) RecipientName() string {
	if d.Breakdown.IsFinance() && d.Invoice.Data.FinanceCompany.Name != "" {
		return d.Invoice.Data.FinanceCompany.Name
	}
	return d.Invoice.Data.Customer.FullName()
}

// RecipientAddress is the address block under RecipientName.
func (d Document) RecipientAddress() []string {
	if d.Breakdown.IsFinance() && d.Invoice.Data.FinanceCompany.Name != "" {
		return d.Invoice.Data.FinanceCompany.Address.Lines()
	}
	return d.Invoice.Data.Customer.Address.Lines()
}
