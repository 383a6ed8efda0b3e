package export

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecourt/forecourt/internal/dealers"
	"github.com/forecourt/forecourt/internal/invoices"
	"github.com/forecourt/forecourt/internal/pricing"
)

type echoConverter struct{ got string }

func (c *echoConverter) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	c.got = html
	return []byte("%PDF-fake"), nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func financeDocument(t *testing.T) invoices.Document {
	t.Helper()
	data := invoices.ComprehensiveInvoiceData{
		Meta: invoices.Meta{
			InvoiceNumber: "INV-2026-00007",
			InvoiceDate:   "2026-03-14",
			SaleDate:      "2026-03-14",
			SaleType:      pricing.SaleTypeRetail,
			InvoiceTo:     pricing.InvoiceToFinanceCompany,
		},
		Vehicle:        invoices.VehicleDetails{Registration: "AB12CDE", Make: "Ford", Model: "Focus", Mileage: 42000},
		Customer:       invoices.CustomerDetails{FirstName: "Jane", Surname: "Doe", Address: invoices.Address{Street: "1 High St", Postcode: "LS1 1AA"}},
		FinanceCompany: invoices.FinanceCompany{Name: "Northern Finance", Reference: "NF-991"},
		Pricing: invoices.PricingDetails{
			SalePrice:     dec("12995"),
			WarrantyPrice: dec("499"),
			DeliveryCost:  dec("150"),
		},
		Delivery: invoices.Delivery{Type: invoices.DeliveryDelivery},
		Deposit:  invoices.Deposit{AmountPaid: dec("1000")},
		Addons: invoices.Addons{
			Customer: invoices.AddonSet{Slot1: pricing.Addon{Name: "Paint protection", Cost: dec("199"), Enabled: true}},
			Finance:  invoices.AddonSet{Slot1: pricing.Addon{Name: "GAP insurance", Cost: dec("299"), Enabled: true}},
		},
		Terms: invoices.Terms{Text: "Goods remain our property until paid in full."},
	}
	b, err := invoices.Breakdown(data, pricing.DefaultVATRate)
	require.NoError(t, err)
	return invoices.Document{
		Invoice:   &invoices.Invoice{ID: 7, Number: "INV-2026-00007", Status: invoices.StatusIssued, Data: data},
		Dealer:    &dealers.Dealer{Name: "Leeds Motors", AddressLine1: "2 Kirkstall Rd", VATNumber: "GB123456789"},
		Breakdown: b,
	}
}

func amountsOf(doc invoices.Document) []string {
	var out []string
	for _, l := range doc.Lines() {
		// Drop the pound sign; the native renderer stores it as a cp1252 byte.
		out = append(out, strings.TrimPrefix(pricing.FormatGBP(l.Amount), "£"))
	}
	return out
}

func TestRenderersPrintTheSameFigures(t *testing.T) {
	doc := financeDocument(t)

	conv := &echoConverter{}
	htmlR, err := NewHTMLRenderer(conv)
	require.NoError(t, err)
	out, err := htmlR.Render(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-fake", string(out))

	nativeR := &NativeRenderer{Compress: false}
	pdf, err := nativeR.Render(context.Background(), doc)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))

	figures := amountsOf(doc)
	require.NotEmpty(t, figures)
	for _, f := range figures {
		assert.Contains(t, conv.got, f, "html is missing %s", f)
		assert.Contains(t, string(pdf), f, "native pdf is missing %s", f)
	}
	for _, label := range []string{"Balance to finance", "Compulsory sale deposit", "GAP insurance"} {
		assert.Contains(t, conv.got, label)
		assert.Contains(t, string(pdf), label)
	}
}

func TestHTMLContainsLetterheadAndRecipient(t *testing.T) {
	doc := financeDocument(t)
	r, err := NewHTMLRenderer(&echoConverter{})
	require.NoError(t, err)
	html, err := r.HTML(doc)
	require.NoError(t, err)

	assert.Contains(t, html, "Invoice INV-2026-00007")
	assert.Contains(t, html, "VAT No. GB123456789")
	assert.Contains(t, html, "Northern Finance")
	assert.Contains(t, html, "Ref: NF-991")
	assert.Contains(t, html, "14/03/2026")
	assert.NotContains(t, html, "status-")
}

func TestDraftIsMarked(t *testing.T) {
	doc := financeDocument(t)
	doc.Invoice.Status = invoices.StatusDraft
	doc.Invoice.Number = ""

	r, err := NewHTMLRenderer(&echoConverter{})
	require.NoError(t, err)
	html, err := r.HTML(doc)
	require.NoError(t, err)
	assert.Contains(t, html, "DRAFT-000007")
	assert.Contains(t, html, "status-draft")

	pdf, err := (&NativeRenderer{}).Render(context.Background(), doc)
	require.NoError(t, err)
	assert.Contains(t, string(pdf), "DRAFT")
}

func signaturePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 40, 12))
	for x := 0; x < 40; x++ {
		img.Set(x, 6, color.White)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSignatureIsRendered(t *testing.T) {
	doc := financeDocument(t)
	doc.Invoice.Data.Signature = invoices.Signature{CustomerAvailable: true, ImageKey: "dealers/1/signature/sig.png", Date: "2026-03-14"}
	doc.SignatureURL = "https://cdn.test/dealers/1/signature/sig.png"
	doc.SignatureImage = signaturePNG(t)
	doc.SignatureType = "image/png"

	r, err := NewHTMLRenderer(&echoConverter{})
	require.NoError(t, err)
	html, err := r.HTML(doc)
	require.NoError(t, err)
	assert.Contains(t, html, `src="https://cdn.test/dealers/1/signature/sig.png"`)

	signed, err := (&NativeRenderer{}).Render(context.Background(), doc)
	require.NoError(t, err)
	assert.Contains(t, string(signed), "/Subtype /Image")
	assert.Contains(t, string(signed), "Customer signature")

	doc.SignatureImage = []byte("not an image")
	unsigned, err := (&NativeRenderer{}).Render(context.Background(), doc)
	require.NoError(t, err)
	assert.NotContains(t, string(unsigned), "/Subtype /Image")
	assert.Contains(t, string(unsigned), "Customer signature")
}

func TestNativeRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewNativeRenderer().Render(ctx, financeDocument(t))
	assert.ErrorIs(t, err, context.Canceled)
}
