package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var gbPrinter = message.NewPrinter(language.BritishEnglish)

// FormatGBP renders an amount as pounds sterling with thousands separators, e.g. £12,345.60.
// Amounts that round to zero print without a sign.
func FormatGBP(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	fixed := d.StringFixed(2)
	pence := fixed[strings.IndexByte(fixed, '.'):]
	return sign + "£" + gbPrinter.Sprintf("%d", d.IntPart()) + pence
}

// FormatRate renders a VAT fraction as a percentage, e.g. 0.2 -> "20%".
func FormatRate(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).Round(2).String() + "%"
}
