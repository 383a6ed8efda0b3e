package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNegativeAmount is returned when a money input is below zero.
	ErrNegativeAmount = errors.New("amount cannot be negative")
	// ErrUnknownSaleType is returned for a sale type outside Retail/Trade/Commercial.
	ErrUnknownSaleType = errors.New("unknown sale type")
	// ErrUnknownInvoiceTo is returned for a recipient outside Customer/Finance Company.
	ErrUnknownInvoiceTo = errors.New("unknown invoice recipient")
	// ErrInvalidVATRate is returned when the VAT rate is outside [0, 1).
	ErrInvalidVATRate = errors.New("vat rate must be between 0 and 1")
)

// ValidationError wraps a sentinel error with the offending field.
type ValidationError struct {
	Err   error
	Field string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Err.Error())
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var one = decimal.NewFromInt(1)

// PostDiscount returns cost minus discount, floored at zero.
func PostDiscount(cost, discount decimal.Decimal) decimal.Decimal {
	return floor(cost.Sub(discount))
}

func floor(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Validate checks the input for unknown enumerations and negative amounts.
func Validate(in Input) error {
	if !in.SaleType.Valid() {
		return &ValidationError{Err: ErrUnknownSaleType, Field: "saleType"}
	}
	if !in.InvoiceTo.Valid() {
		return &ValidationError{Err: ErrUnknownInvoiceTo, Field: "invoiceTo"}
	}
	if in.VATRate.IsNegative() || in.VATRate.GreaterThanOrEqual(one) {
		return &ValidationError{Err: ErrInvalidVATRate, Field: "vatRate"}
	}

	amounts := []struct {
		field string
		value decimal.Decimal
	}{
		{"salePrice", in.SalePrice},
		{"discountOnSalePrice", in.DiscountOnSalePrice},
		{"warrantyPrice", in.WarrantyPrice},
		{"discountOnWarranty", in.DiscountOnWarranty},
		{"enhancedWarrantyPrice", in.EnhancedWarrantyPrice},
		{"discountOnEnhancedWarranty", in.DiscountOnEnhancedWarranty},
		{"deliveryCost", in.DeliveryCost},
		{"discountOnDelivery", in.DiscountOnDelivery},
		{"compulsorySaleDepositNonFinance", in.CompulsorySaleDepositNonFinance},
		{"amountPaidDeposit", in.AmountPaidDeposit},
	}
	for _, a := range amounts {
		if a.value.IsNegative() {
			return &ValidationError{Err: ErrNegativeAmount, Field: a.field}
		}
	}
	for i, a := range in.CustomerAddons {
		if a.Cost.IsNegative() || a.Discount.IsNegative() {
			return &ValidationError{Err: ErrNegativeAmount, Field: fmt.Sprintf("customerAddons[%d]", i)}
		}
	}
	for i, a := range in.FinanceAddons {
		if a.Cost.IsNegative() || a.Discount.IsNegative() {
			return &ValidationError{Err: ErrNegativeAmount, Field: fmt.Sprintf("financeAddons[%d]", i)}
		}
	}
	payments := []struct {
		field   string
		entries []decimal.Decimal
	}{
		{"cardPayments", in.CardPayments},
		{"bacsPayments", in.BACSPayments},
		{"cashPayments", in.CashPayments},
	}
	for _, group := range payments {
		for i, p := range group.entries {
			if p.IsNegative() {
				return &ValidationError{Err: ErrNegativeAmount, Field: fmt.Sprintf("%s[%d]", group.field, i)}
			}
		}
	}
	if px := in.PartExchange; px != nil {
		if px.Value.IsNegative() {
			return &ValidationError{Err: ErrNegativeAmount, Field: "partExchange.value"}
		}
		if px.Settlement.IsNegative() {
			return &ValidationError{Err: ErrNegativeAmount, Field: "partExchange.settlement"}
		}
	}
	return nil
}

// Calculate derives every invoice figure from the input in a single pass.
func Calculate(in Input) (Breakdown, error) {
	if err := Validate(in); err != nil {
		return Breakdown{}, err
	}

	finance := in.InvoiceTo == InvoiceToFinanceCompany
	rate := in.VATRate
	if rate.IsZero() {
		rate = DefaultVATRate
	}

	salePost := PostDiscount(in.SalePrice, in.DiscountOnSalePrice)

	warrantyPost := decimal.Zero
	enhancedPost := decimal.Zero
	if in.SaleType != SaleTypeTrade {
		warrantyPost = PostDiscount(in.WarrantyPrice, in.DiscountOnWarranty)
		enhancedPost = PostDiscount(in.EnhancedWarrantyPrice, in.DiscountOnEnhancedWarranty)
	}

	deliveryPost := decimal.Zero
	if !in.Collection {
		deliveryPost = PostDiscount(in.DeliveryCost, in.DiscountOnDelivery)
	}

	lines := make([]AddonLine, 0, len(in.CustomerAddons)+len(in.FinanceAddons))
	customerAddons := decimal.Zero
	for _, a := range in.CustomerAddons {
		if !a.Enabled {
			continue
		}
		post := PostDiscount(a.Cost, a.Discount)
		customerAddons = customerAddons.Add(post)
		lines = append(lines, AddonLine{Name: a.Name, Cost: money(a.Cost), Discount: money(a.Discount), PostDiscount: money(post)})
	}
	financeAddons := decimal.Zero
	if finance {
		for _, a := range in.FinanceAddons {
			if !a.Enabled {
				continue
			}
			post := PostDiscount(a.Cost, a.Discount)
			financeAddons = financeAddons.Add(post)
			lines = append(lines, AddonLine{Name: a.Name, Cost: money(a.Cost), Discount: money(a.Discount), PostDiscount: money(post), Finance: true})
		}
	}

	vat := decimal.Zero
	if in.SaleType == SaleTypeCommercial {
		vat = money(salePost.Mul(rate))
	}
	saleIncVAT := salePost.Add(vat)

	customerExtras := warrantyPost.Add(enhancedPost).Add(deliveryPost).Add(customerAddons)

	var financeSubtotal, compulsory, subtotal decimal.Decimal
	if finance {
		financeSubtotal = saleIncVAT.Add(financeAddons)
		compulsory = customerExtras
		subtotal = financeSubtotal.Add(compulsory)
	} else {
		financeSubtotal = decimal.Zero
		compulsory = in.CompulsorySaleDepositNonFinance
		subtotal = saleIncVAT.Add(customerExtras)
	}

	depositOutstanding := floor(compulsory.Sub(in.AmountPaidDeposit))
	overpayment := floor(in.AmountPaidDeposit.Sub(compulsory))

	card := sum(in.CardPayments)
	bacs := sum(in.BACSPayments)
	cash := sum(in.CashPayments)
	payments := card.Add(bacs).Add(cash)

	pxNet := decimal.Zero
	if px := in.PartExchange; px != nil {
		pxNet = px.Value.Sub(px.Settlement)
	}

	balanceToFinance := decimal.Zero
	if finance {
		balanceToFinance = floor(financeSubtotal.Sub(overpayment).Sub(payments).Sub(pxNet))
	}

	totalPaid := in.AmountPaidDeposit.Add(payments).Add(pxNet)
	remaining := subtotal.Sub(totalPaid).Sub(balanceToFinance)

	return Breakdown{
		SaleType:  in.SaleType,
		InvoiceTo: in.InvoiceTo,
		VATRate:   rate,

		SalePricePostDiscount:             money(salePost),
		WarrantyPricePostDiscount:         money(warrantyPost),
		EnhancedWarrantyPricePostDiscount: money(enhancedPost),
		DeliveryCostPostDiscount:          money(deliveryPost),

		AddonLines:          lines,
		CustomerAddonsTotal: money(customerAddons),
		FinanceAddonsTotal:  money(financeAddons),

		VATAmount:       vat,
		SalePriceIncVAT: money(saleIncVAT),
		FinanceSubtotal: money(financeSubtotal),
		Subtotal:        money(subtotal),

		CompulsorySaleDeposit: money(compulsory),
		AmountPaidDeposit:     money(in.AmountPaidDeposit),
		DepositOutstanding:    money(depositOutstanding),
		Overpayment:           money(overpayment),

		CardPaymentsTotal: money(card),
		BACSPaymentsTotal: money(bacs),
		CashPaymentsTotal: money(cash),
		PaymentsTotal:     money(payments),
		PartExchangeNet:   money(pxNet),

		BalanceToFinance: money(balanceToFinance),
		TotalPaid:        money(totalPaid),
		RemainingBalance: money(remaining),
		BalanceDue:       money(floor(remaining)),
		RefundDue:        money(floor(remaining.Neg())),
	}, nil
}
