package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "%s: want %s, got %s", field, want, got.String())
}

func TestCalculate_RetailCustomer(t *testing.T) {
	in := Input{
		SaleType:                        SaleTypeRetail,
		InvoiceTo:                       InvoiceToCustomer,
		SalePrice:                       d("10000"),
		DiscountOnSalePrice:             d("500"),
		WarrantyPrice:                   d("300"),
		DiscountOnWarranty:              d("50"),
		DeliveryCost:                    d("100"),
		CustomerAddons:                  []Addon{{Name: "Mats", Cost: d("50"), Enabled: true}, {Name: "Tint", Cost: d("200")}},
		CompulsorySaleDepositNonFinance: d("1000"),
		AmountPaidDeposit:               d("1000"),
		CardPayments:                    []decimal.Decimal{d("2000")},
		BACSPayments:                    []decimal.Decimal{d("3000")},
		CashPayments:                    []decimal.Decimal{d("500")},
		PartExchange:                    &PartExchange{Value: d("2000"), Settlement: d("500")},
	}

	b, err := Calculate(in)
	require.NoError(t, err)

	assertMoney(t, "9500", b.SalePricePostDiscount, "salePost")
	assertMoney(t, "250", b.WarrantyPricePostDiscount, "warrantyPost")
	assertMoney(t, "100", b.DeliveryCostPostDiscount, "deliveryPost")
	assertMoney(t, "50", b.CustomerAddonsTotal, "customerAddons")
	assertMoney(t, "0", b.VATAmount, "vat")
	assertMoney(t, "9500", b.SalePriceIncVAT, "incVat")
	assertMoney(t, "9900", b.Subtotal, "subtotal")
	assertMoney(t, "1000", b.CompulsorySaleDeposit, "compulsory")
	assertMoney(t, "0", b.DepositOutstanding, "depositOutstanding")
	assertMoney(t, "5500", b.PaymentsTotal, "payments")
	assertMoney(t, "1500", b.PartExchangeNet, "pxNet")
	assertMoney(t, "8000", b.TotalPaid, "totalPaid")
	assertMoney(t, "1900", b.BalanceDue, "balanceDue")
	assertMoney(t, "0", b.RefundDue, "refundDue")
	assertMoney(t, "0", b.BalanceToFinance, "balanceToFinance")

	require.Len(t, b.AddonLines, 1)
	assert.Equal(t, "Mats", b.AddonLines[0].Name)
	assert.False(t, b.IsFinance())
}

func TestCalculate_CommercialAddsVATAndRefund(t *testing.T) {
	b, err := Calculate(Input{
		SaleType:     SaleTypeCommercial,
		InvoiceTo:    InvoiceToCustomer,
		SalePrice:    d("10000"),
		BACSPayments: []decimal.Decimal{d("12500")},
	})
	require.NoError(t, err)

	assert.True(t, DefaultVATRate.Equal(b.VATRate))
	assertMoney(t, "2000", b.VATAmount, "vat")
	assertMoney(t, "12000", b.SalePriceIncVAT, "incVat")
	assertMoney(t, "-500", b.RemainingBalance, "remaining")
	assertMoney(t, "0", b.BalanceDue, "balanceDue")
	assertMoney(t, "500", b.RefundDue, "refundDue")
}

func TestCalculate_VATRateOverrideRoundsToPence(t *testing.T) {
	b, err := Calculate(Input{
		SaleType:  SaleTypeCommercial,
		InvoiceTo: InvoiceToCustomer,
		VATRate:   d("0.05"),
		SalePrice: d("1000.01"),
	})
	require.NoError(t, err)

	assertMoney(t, "50", b.VATAmount, "vat")
	assertMoney(t, "1050.01", b.SalePriceIncVAT, "incVat")
}

func TestCalculate_TradeDropsWarranties(t *testing.T) {
	b, err := Calculate(Input{
		SaleType:              SaleTypeTrade,
		InvoiceTo:             InvoiceToCustomer,
		SalePrice:             d("5000"),
		WarrantyPrice:         d("300"),
		EnhancedWarrantyPrice: d("200"),
	})
	require.NoError(t, err)

	assertMoney(t, "0", b.WarrantyPricePostDiscount, "warrantyPost")
	assertMoney(t, "0", b.EnhancedWarrantyPricePostDiscount, "enhancedPost")
	assertMoney(t, "5000", b.Subtotal, "subtotal")
	assertMoney(t, "5000", b.BalanceDue, "balanceDue")
}

func TestCalculate_DiscountLargerThanPriceFloorsAtZero(t *testing.T) {
	b, err := Calculate(Input{
		SaleType:            SaleTypeRetail,
		InvoiceTo:           InvoiceToCustomer,
		SalePrice:           d("100"),
		DiscountOnSalePrice: d("150"),
		DeliveryCost:        d("50"),
		DiscountOnDelivery:  d("80"),
	})
	require.NoError(t, err)

	assertMoney(t, "0", b.SalePricePostDiscount, "salePost")
	assertMoney(t, "0", b.DeliveryCostPostDiscount, "deliveryPost")
	assertMoney(t, "0", b.Subtotal, "subtotal")
}

func TestCalculate_CustomerIgnoresFinanceAddons(t *testing.T) {
	b, err := Calculate(Input{
		SaleType:      SaleTypeRetail,
		InvoiceTo:     InvoiceToCustomer,
		SalePrice:     d("1000"),
		FinanceAddons: []Addon{{Name: "GAP", Cost: d("300"), Enabled: true}},
	})
	require.NoError(t, err)

	assertMoney(t, "0", b.FinanceAddonsTotal, "financeAddons")
	assertMoney(t, "1000", b.Subtotal, "subtotal")
	assert.Empty(t, b.FinanceAddons())
}

func TestCalculate_FinanceCompanyBalances(t *testing.T) {
	in := Input{
		SaleType:            SaleTypeRetail,
		InvoiceTo:           InvoiceToFinanceCompany,
		SalePrice:           d("20000"),
		DiscountOnSalePrice: d("1000"),
		WarrantyPrice:       d("500"),
		DeliveryCost:        d("200"),
		Collection:          true,
		CustomerAddons:      []Addon{{Name: "Mats", Cost: d("100"), Enabled: true}},
		FinanceAddons:       []Addon{{Name: "GAP", Cost: d("300"), Discount: d("50"), Enabled: true}},
		AmountPaidDeposit:   d("1000"),
		CardPayments:        []decimal.Decimal{d("1000")},
		PartExchange:        &PartExchange{Value: d("3000"), Settlement: d("3500")},
	}

	b, err := Calculate(in)
	require.NoError(t, err)

	assert.True(t, b.IsFinance())
	assertMoney(t, "0", b.DeliveryCostPostDiscount, "deliveryPost")
	assertMoney(t, "250", b.FinanceAddonsTotal, "financeAddons")
	assertMoney(t, "19250", b.FinanceSubtotal, "financeSubtotal")
	assertMoney(t, "600", b.CompulsorySaleDeposit, "compulsory")
	assertMoney(t, "19850", b.Subtotal, "subtotal")
	assertMoney(t, "400", b.Overpayment, "overpayment")
	assertMoney(t, "0", b.DepositOutstanding, "depositOutstanding")
	assertMoney(t, "-500", b.PartExchangeNet, "pxNet")
	assertMoney(t, "18350", b.BalanceToFinance, "balanceToFinance")
	assertMoney(t, "1500", b.TotalPaid, "totalPaid")
	assertMoney(t, "0", b.BalanceDue, "balanceDue")
	assertMoney(t, "0", b.RefundDue, "refundDue")

	require.Len(t, b.CustomerAddons(), 1)
	require.Len(t, b.FinanceAddons(), 1)
	assert.Equal(t, "GAP", b.FinanceAddons()[0].Name)
}

func TestCalculate_FinanceCompanyDepositOutstanding(t *testing.T) {
	b, err := Calculate(Input{
		SaleType:          SaleTypeRetail,
		InvoiceTo:         InvoiceToFinanceCompany,
		SalePrice:         d("8000"),
		WarrantyPrice:     d("400"),
		AmountPaidDeposit: d("150"),
	})
	require.NoError(t, err)

	assertMoney(t, "400", b.CompulsorySaleDeposit, "compulsory")
	assertMoney(t, "250", b.DepositOutstanding, "depositOutstanding")
	assertMoney(t, "8000", b.BalanceToFinance, "balanceToFinance")
	assertMoney(t, "250", b.BalanceDue, "balanceDue")
}

func TestCalculate_RejectsInvalidInput(t *testing.T) {
	base := func() Input {
		return Input{SaleType: SaleTypeRetail, InvoiceTo: InvoiceToCustomer, SalePrice: d("100")}
	}

	tests := []struct {
		name   string
		mutate func(*Input)
		err    error
		field  string
	}{
		{"negative sale price", func(in *Input) { in.SalePrice = d("-1") }, ErrNegativeAmount, "salePrice"},
		{"negative card payment", func(in *Input) { in.CardPayments = []decimal.Decimal{d("10"), d("-5")} }, ErrNegativeAmount, "cardPayments[1]"},
		{"negative addon", func(in *Input) { in.CustomerAddons = []Addon{{Name: "x", Cost: d("-3")}} }, ErrNegativeAmount, "customerAddons[0]"},
		{"negative settlement", func(in *Input) { in.PartExchange = &PartExchange{Settlement: d("-1")} }, ErrNegativeAmount, "partExchange.settlement"},
		{"unknown sale type", func(in *Input) { in.SaleType = "Lease" }, ErrUnknownSaleType, "saleType"},
		{"unknown recipient", func(in *Input) { in.InvoiceTo = "Broker" }, ErrUnknownInvoiceTo, "invoiceTo"},
		{"vat rate too high", func(in *Input) { in.VATRate = d("1.2") }, ErrInvalidVATRate, "vatRate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base()
			tt.mutate(&in)
			_, err := Calculate(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.err))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestPostDiscount(t *testing.T) {
	assertMoney(t, "70", PostDiscount(d("100"), d("30")), "partial")
	assertMoney(t, "0", PostDiscount(d("100"), d("130")), "over")
}

func TestFormatGBP(t *testing.T) {
	assert.Equal(t, "£12,345.60", FormatGBP(d("12345.6")))
	assert.Equal(t, "£0.00", FormatGBP(decimal.Zero))
	assert.Equal(t, "-£5.00", FormatGBP(d("-5")))
	assert.Equal(t, "£0.00", FormatGBP(d("-0.004")))
	assert.Equal(t, "£1,234,567.01", FormatGBP(d("1234567.005")))
	assert.Equal(t, "-£0.10", FormatGBP(d("-0.1")))
	assert.Equal(t, "20%", FormatRate(DefaultVATRate))
}
