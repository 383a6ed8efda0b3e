package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/forecourt/forecourt/internal/invoices"
	"github.com/forecourt/forecourt/internal/pricing"
)

// NativeRenderer draws the invoice directly with gofpdf, no external service.
type NativeRenderer struct {
	// Compress toggles stream compression; tests turn it off to read the text.
	Compress bool
}

func NewNativeRenderer() *NativeRenderer {
	return &NativeRenderer{Compress: true}
}

func (r *NativeRenderer) Name() string { return "native" }

const (
	pageMargin = 14.0
	lineHeight = 5.0
	labelWidth = 60.0
	valueWidth = 40.0
)

func (r *NativeRenderer) Render(ctx context.Context, doc invoices.Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inv := doc.Invoice
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.Compress)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle("Invoice "+inv.DisplayNumber(), true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pageWidth, _ := pdf.GetPageSize()
	contentWidth := pageWidth - 2*pageMargin

	// Letterhead on the left, invoice meta on the right.
	top := pdf.GetY()
	if d := doc.Dealer; d != nil {
		name := d.Name
		if d.CompanyName != "" {
			name = d.CompanyName
		}
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(contentWidth/2, 7, tr(name), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		lines := d.AddressLines()
		if d.Phone != "" {
			lines = append(lines, "Tel "+d.Phone)
		}
		if d.VATNumber != "" {
			lines = append(lines, "VAT No. "+d.VATNumber)
		}
		if d.CompanyNumber != "" {
			lines = append(lines, "Company No. "+d.CompanyNumber)
		}
		for _, l := range lines {
			pdf.CellFormat(contentWidth/2, 4.5, tr(l), "", 1, "L", false, 0, "")
		}
	}
	bottom := pdf.GetY()

	pdf.SetXY(pageMargin+contentWidth/2, top)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentWidth/2, 8, tr("Invoice "+inv.DisplayNumber()), "", 2, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	meta := inv.Data.Meta
	for _, l := range []string{
		"Date: " + formatDay(meta.InvoiceDate),
		"Sale date: " + formatDay(meta.SaleDate),
		"Sale type: " + string(meta.SaleType),
	} {
		pdf.CellFormat(contentWidth/2, 4.5, tr(l), "", 2, "R", false, 0, "")
	}
	if inv.Status != invoices.StatusIssued {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetTextColor(176, 0, 32)
		pdf.CellFormat(contentWidth/2, 6, strings.ToUpper(inv.Status.Label()), "", 2, "R", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}
	if pdf.GetY() > bottom {
		bottom = pdf.GetY()
	}
	pdf.SetXY(pageMargin, bottom+6)

	section := func(title string) {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetTextColor(85, 85, 85)
		pdf.CellFormat(contentWidth, lineHeight, strings.ToUpper(title), "B", 1, "L", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Helvetica", "", 9)
	}
	text := func(s string) {
		pdf.MultiCell(contentWidth, 4.5, tr(s), "", "L", false)
	}

	section("Invoice to")
	pdf.SetFont("Helvetica", "B", 10)
	text(doc.RecipientName())
	pdf.SetFont("Helvetica", "", 9)
	for _, l := range doc.RecipientAddress() {
		text(l)
	}
	if doc.Breakdown.IsFinance() {
		if ref := inv.Data.FinanceCompany.Reference; ref != "" {
			text("Ref: " + ref)
		}
		text("Customer: " + inv.Data.Customer.FullName())
	}

	v := inv.Data.Vehicle
	section("Vehicle")
	text(fmt.Sprintf("%s  %s %s %s", v.Registration, v.Make, v.Model, v.Derivative))
	details := []string{}
	if v.VIN != "" {
		details = append(details, "VIN "+v.VIN)
	}
	if v.Colour != "" {
		details = append(details, v.Colour)
	}
	if v.FuelType != "" {
		details = append(details, v.FuelType)
	}
	details = append(details, fmt.Sprintf("%d miles", v.Mileage))
	text(strings.Join(details, ", "))

	if w := inv.Data.Warranty; w.Name != "" || w.Level != "" {
		section("Warranty")
		line := w.Name
		if w.DurationMonths > 0 {
			line += fmt.Sprintf(", %d months", w.DurationMonths)
		}
		text(line)
		if w.EnhancedName != "" {
			text("Enhanced: " + w.EnhancedName)
		}
	}

	if px := inv.Data.PartExchange; px.Included {
		section("Part exchange")
		text(fmt.Sprintf("%s %s. Value %s, settlement %s.", px.Registration, px.MakeModel,
			pricing.FormatGBP(px.Value), pricing.FormatGBP(px.Settlement)))
	}

	section("Summary")
	x := pageMargin + contentWidth - labelWidth - valueWidth
	for _, l := range doc.Lines() {
		style, border := "", ""
		if l.Total {
			style, border = "B", "T"
		}
		pdf.SetX(x)
		pdf.SetFont("Helvetica", style, 9)
		pdf.CellFormat(labelWidth, lineHeight+0.5, tr(l.Label), border, 0, "L", false, 0, "")
		pdf.CellFormat(valueWidth, lineHeight+0.5, tr(pricing.FormatGBP(l.Amount)), border, 1, "R", false, 0, "")
	}

	if t := inv.Data.Terms; t.AdditionalInformation != "" || t.Text != "" {
		if t.AdditionalInformation != "" {
			section("Additional information")
			text(t.AdditionalInformation)
		}
		if t.Text != "" {
			section("Terms")
			pdf.SetFont("Helvetica", "", 7)
			text(t.Text)
		}
	}

	if inv.Data.Signature.CustomerAvailable {
		pdf.Ln(6)
		if !signatureImage(pdf, doc) {
			pdf.Ln(8)
		}
		label := "Customer signature"
		if day := formatDay(inv.Data.Signature.Date); day != "" {
			label += " (" + day + ")"
		}
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(70, lineHeight, label, "T", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// signatureImage draws the captured signature above the signature line and
// reports whether it did. An unreadable image leaves the line unsigned.
func signatureImage(pdf *gofpdf.Fpdf, doc invoices.Document) bool {
	var imageType string
	switch doc.SignatureType {
	case "image/png":
		imageType = "PNG"
	case "image/jpeg":
		imageType = "JPG"
	default:
		return false
	}
	if len(doc.SignatureImage) == 0 {
		return false
	}
	opts := gofpdf.ImageOptions{ImageType: imageType, ReadDpi: true}
	info := pdf.RegisterImageOptionsReader("signature", opts, bytes.NewReader(doc.SignatureImage))
	if !pdf.Ok() || info == nil {
		pdf.ClearError()
		return false
	}
	const height = 16.0
	pdf.ImageOptions("signature", pdf.GetX(), pdf.GetY(), 0, height, true, opts, 0, "")
	return pdf.Ok()
}

func formatDay(d invoices.Day) string {
	t := d.Time()
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}
