package invoices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/forecourt/forecourt/internal/dealers"
	"github.com/forecourt/forecourt/internal/pricing"
)

// Status is the invoice lifecycle state.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusIssued Status = "issued"
	StatusVoid   Status = "void"
)

func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusIssued || s == StatusVoid
}

// Label is the human form for lists and PDFs.
func (s Status) Label() string {
	switch s {
	case StatusDraft:
		return "Draft"
	case StatusIssued:
		return "Issued"
	case StatusVoid:
		return "Void"
	}
	return string(s)
}

const (
	DeliveryCollection = "collection"
	DeliveryDelivery   = "delivery"
)

// Day is a calendar date carried as YYYY-MM-DD in JSON and forms.
type Day string

// Time parses the day, returning the zero time when blank or malformed.
func (d Day) Time() time.Time {
	t, err := time.Parse(time.DateOnly, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

type Meta struct {
	InvoiceNumber string            `json:"invoiceNumber"`
	InvoiceDate   Day               `json:"invoiceDate"`
	SaleDate      Day               `json:"saleDate"`
	SaleType      pricing.SaleType  `json:"saleType"`
	InvoiceTo     pricing.InvoiceTo `json:"invoiceTo"`
	Salesperson   string            `json:"salesperson"`
	Status        Status            `json:"status"`
}

type VehicleDetails struct {
	Registration          string `json:"registration"`
	Make                  string `json:"make"`
	Model                 string `json:"model"`
	Derivative            string `json:"derivative"`
	VIN                   string `json:"vin"`
	EngineNumber          string `json:"engineNumber"`
	EngineCapacity        string `json:"engineCapacity"`
	Colour                string `json:"colour"`
	FuelType              string `json:"fuelType"`
	FirstRegistrationDate Day    `json:"firstRegistrationDate"`
	Mileage               int    `json:"mileage"`
	StockID               *int64 `json:"stockId,omitempty"`
}

type Address struct {
	Street   string `json:"street"`
	Line2    string `json:"line2"`
	City     string `json:"city"`
	County   string `json:"county"`
	Postcode string `json:"postcode"`
}

// Lines returns the non-empty lines in print order.
func (a Address) Lines() []string {
	var out []string
	for _, l := range []string{a.Street, a.Line2, a.City, a.County, a.Postcode} {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

type CustomerDetails struct {
	Title         string  `json:"title"`
	FirstName     string  `json:"firstName"`
	MiddleName    string  `json:"middleName"`
	Surname       string  `json:"surname"`
	Address       Address `json:"address"`
	ContactNumber string  `json:"contactNumber"`
	Email         string  `json:"email"`
	CustomerID    *int64  `json:"customerId,omitempty"`
}

// FullName joins the populated name parts.
func (c CustomerDetails) FullName() string {
	return strings.Join(strings.Fields(strings.Join([]string{c.Title, c.FirstName, c.MiddleName, c.Surname}, " ")), " ")
}

type FinanceCompany struct {
	Name          string  `json:"name"`
	CompanyName   string  `json:"companyName"`
	Address       Address `json:"address"`
	ContactNumber string  `json:"contactNumber"`
	Email         string  `json:"email"`
	Reference     string  `json:"reference"`
}

type PricingDetails struct {
	SalePrice                       decimal.Decimal `json:"salePrice"`
	DiscountOnSalePrice             decimal.Decimal `json:"discountOnSalePrice"`
	WarrantyPrice                   decimal.Decimal `json:"warrantyPrice"`
	DiscountOnWarranty              decimal.Decimal `json:"discountOnWarranty"`
	EnhancedWarrantyPrice           decimal.Decimal `json:"enhancedWarrantyPrice"`
	DiscountOnEnhancedWarranty      decimal.Decimal `json:"discountOnEnhancedWarranty"`
	DeliveryCost                    decimal.Decimal `json:"deliveryCost"`
	DiscountOnDelivery              decimal.Decimal `json:"discountOnDelivery"`
	VATRate                         decimal.Decimal `json:"vatRate"`
	CompulsorySaleDepositNonFinance decimal.Decimal `json:"compulsorySaleDepositNonFinance"`
	// AppliedVATRate is fixed when the invoice is issued.
	AppliedVATRate *decimal.Decimal `json:"appliedVatRate,omitempty"`
}

type Warranty struct {
	Level                  string `json:"level"`
	Name                   string `json:"name"`
	DurationMonths         int    `json:"durationMonths"`
	InHouse                bool   `json:"inHouse"`
	EnhancedLevel          string `json:"enhancedLevel"`
	EnhancedName           string `json:"enhancedName"`
	EnhancedDurationMonths int    `json:"enhancedDurationMonths"`
}

type Delivery struct {
	Type     string `json:"type"`
	Date     Day    `json:"date"`
	Location string `json:"location"`
}

type Deposit struct {
	AmountPaid decimal.Decimal `json:"amountPaid"`
	Date       Day             `json:"date"`
}

type Payment struct {
	Amount    decimal.Decimal `json:"amount"`
	Date      Day             `json:"date"`
	Reference string          `json:"reference"`
}

type Payments struct {
	Card []Payment `json:"card"`
	BACS []Payment `json:"bacs"`
	Cash []Payment `json:"cash"`
}

// AddonSet is two fixed slots plus any number of extra add-ons.
type AddonSet struct {
	Slot1   pricing.Addon   `json:"slot1"`
	Slot2   pricing.Addon   `json:"slot2"`
	Dynamic []pricing.Addon `json:"dynamic"`
}

// All returns the populated add-ons in display order.
func (s AddonSet) All() []pricing.Addon {
	var out []pricing.Addon
	for _, a := range append([]pricing.Addon{s.Slot1, s.Slot2}, s.Dynamic...) {
		if strings.TrimSpace(a.Name) == "" && a.Cost.IsZero() {
			continue
		}
		out = append(out, a)
	}
	return out
}

type Addons struct {
	Customer AddonSet `json:"customer"`
	Finance  AddonSet `json:"finance"`
}

type PartExchangeDetails struct {
	Included     bool            `json:"included"`
	Registration string          `json:"registration"`
	MakeModel    string          `json:"makeModel"`
	Mileage      int             `json:"mileage"`
	Value        decimal.Decimal `json:"value"`
	Settlement   decimal.Decimal `json:"settlement"`
}

type Checklist struct {
	MileageConfirmed bool   `json:"mileageConfirmed"`
	CambeltConfirmed bool   `json:"cambeltConfirmed"`
	ServiceHistory   string `json:"serviceHistory"`
	NumberOfKeys     int    `json:"numberOfKeys"`
	UserManual       bool   `json:"userManual"`
	V5Present        bool   `json:"v5Present"`
	Notes            string `json:"notes"`
}

type Signature struct {
	CustomerAvailable bool   `json:"customerAvailable"`
	ImageKey          string `json:"imageKey"`
	Date              Day    `json:"date"`
}

type Terms struct {
	AdditionalInformation string `json:"additionalInformation"`
	Text                  string `json:"text"`
}

// ComprehensiveInvoiceData is the whole editable invoice, stored as JSONB.
type ComprehensiveInvoiceData struct {
	Meta           Meta                `json:"meta"`
	Vehicle        VehicleDetails      `json:"vehicle"`
	Customer       CustomerDetails     `json:"customer"`
	FinanceCompany FinanceCompany      `json:"financeCompany"`
	Pricing        PricingDetails      `json:"pricing"`
	Warranty       Warranty            `json:"warranty"`
	Delivery       Delivery            `json:"delivery"`
	Deposit        Deposit             `json:"deposit"`
	Payments       Payments            `json:"payments"`
	Addons         Addons              `json:"addons"`
	PartExchange   PartExchangeDetails `json:"partExchange"`
	Checklist      Checklist           `json:"checklist"`
	Signature      Signature           `json:"signature"`
	Terms          Terms               `json:"terms"`
}

func roundAddon(a *pricing.Addon) {
	a.Cost = a.Cost.Round(2)
	a.Discount = a.Discount.Round(2)
}

func roundPayments(payments []Payment) {
	for i := range payments {
		payments[i].Amount = payments[i].Amount.Round(2)
	}
}

// RoundMoney rounds every monetary field to whole pence.
func (d *ComprehensiveInvoiceData) RoundMoney() {
	p := &d.Pricing
	for _, v := range []*decimal.Decimal{
		&p.SalePrice, &p.DiscountOnSalePrice,
		&p.WarrantyPrice, &p.DiscountOnWarranty,
		&p.EnhancedWarrantyPrice, &p.DiscountOnEnhancedWarranty,
		&p.DeliveryCost, &p.DiscountOnDelivery,
		&p.CompulsorySaleDepositNonFinance,
		&d.Deposit.AmountPaid,
		&d.PartExchange.Value, &d.PartExchange.Settlement,
	} {
		*v = v.Round(2)
	}
	roundPayments(d.Payments.Card)
	roundPayments(d.Payments.BACS)
	roundPayments(d.Payments.Cash)
	for _, set := range []*AddonSet{&d.Addons.Customer, &d.Addons.Finance} {
		roundAddon(&set.Slot1)
		roundAddon(&set.Slot2)
		for i := range set.Dynamic {
			roundAddon(&set.Dynamic[i])
		}
	}
}

func amounts(payments []Payment) []decimal.Decimal {
	out := make([]decimal.Decimal, len(payments))
	for i, p := range payments {
		out[i] = p.Amount
	}
	return out
}

// DeliveryKind is the normalised delivery type. A blank type counts as a
// delivery when a delivery cost is set.
func (d ComprehensiveInvoiceData) DeliveryKind() (string, error) {
	switch t := strings.ToLower(strings.TrimSpace(d.Delivery.Type)); t {
	case DeliveryCollection, DeliveryDelivery:
		return t, nil
	case "":
		if d.Pricing.DeliveryCost.IsPositive() {
			return DeliveryDelivery, nil
		}
		return DeliveryCollection, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrDeliveryType, d.Delivery.Type)
	}
}

// EffectiveVATRate is the rate the figures use: the one fixed at issue, then
// the invoice's own rate, then defaultVAT.
func (d ComprehensiveInvoiceData) EffectiveVATRate(defaultVAT decimal.Decimal) decimal.Decimal {
	if d.Pricing.AppliedVATRate != nil {
		return *d.Pricing.AppliedVATRate
	}
	if !d.Pricing.VATRate.IsZero() {
		return d.Pricing.VATRate
	}
	return defaultVAT
}

// ToPricingInput maps the stored sections onto the calculation input.
func (d ComprehensiveInvoiceData) ToPricingInput(defaultVAT decimal.Decimal) pricing.Input {
	vat := d.EffectiveVATRate(defaultVAT)
	kind, _ := d.DeliveryKind()
	in := pricing.Input{
		SaleType:                        d.Meta.SaleType,
		InvoiceTo:                       d.Meta.InvoiceTo,
		VATRate:                         vat,
		SalePrice:                       d.Pricing.SalePrice,
		DiscountOnSalePrice:             d.Pricing.DiscountOnSalePrice,
		WarrantyPrice:                   d.Pricing.WarrantyPrice,
		DiscountOnWarranty:              d.Pricing.DiscountOnWarranty,
		EnhancedWarrantyPrice:           d.Pricing.EnhancedWarrantyPrice,
		DiscountOnEnhancedWarranty:      d.Pricing.DiscountOnEnhancedWarranty,
		DeliveryCost:                    d.Pricing.DeliveryCost,
		DiscountOnDelivery:              d.Pricing.DiscountOnDelivery,
		Collection:                      kind != DeliveryDelivery,
		CustomerAddons:                  d.Addons.Customer.All(),
		FinanceAddons:                   d.Addons.Finance.All(),
		CompulsorySaleDepositNonFinance: d.Pricing.CompulsorySaleDepositNonFinance,
		AmountPaidDeposit:               d.Deposit.AmountPaid,
		CardPayments:                    amounts(d.Payments.Card),
		BACSPayments:                    amounts(d.Payments.BACS),
		CashPayments:                    amounts(d.Payments.Cash),
	}
	if d.PartExchange.Included {
		in.PartExchange = &pricing.PartExchange{Value: d.PartExchange.Value, Settlement: d.PartExchange.Settlement}
	}
	return in
}

// Invoice is the stored row. Data holds the editable sections; the summary
// columns are kept in step with it for listing.
type Invoice struct {
	ID           int64                    `json:"id"`
	DealerID     int64                    `json:"dealerId"`
	Number       string                   `json:"number"`
	Status       Status                   `json:"status"`
	SaleType     pricing.SaleType         `json:"saleType"`
	InvoiceTo    pricing.InvoiceTo        `json:"invoiceTo"`
	CustomerName string                   `json:"customerName"`
	Registration string                   `json:"registration"`
	VehicleID    *int64                   `json:"vehicleId,omitempty"`
	CustomerID   *int64                   `json:"customerId,omitempty"`
	Data         ComprehensiveInvoiceData `json:"data"`
	Total        decimal.Decimal          `json:"total"`
	BalanceDue   decimal.Decimal          `json:"balanceDue"`
	PDFKey       string                   `json:"pdfKey,omitempty"`
	VoidReason   string                   `json:"voidReason,omitempty"`
	CreatedBy    int64                    `json:"createdBy"`
	IssuedAt     *time.Time               `json:"issuedAt,omitempty"`
	VoidedAt     *time.Time               `json:"voidedAt,omitempty"`
	CreatedAt    time.Time                `json:"createdAt"`
	UpdatedAt    time.Time                `json:"updatedAt"`
}

// DisplayNumber is the issued number, or a draft reference before issue.
func (i *Invoice) DisplayNumber() string {
	if i.Number != "" {
		return i.Number
	}
	return fmt.Sprintf("DRAFT-%06d", i.ID)
}

// syncSummary copies the list columns out of Data.
func (i *Invoice) syncSummary(b pricing.Breakdown) {
	i.SaleType = i.Data.Meta.SaleType
	i.InvoiceTo = i.Data.Meta.InvoiceTo
	i.CustomerName = i.Data.Customer.FullName()
	if i.InvoiceTo == pricing.InvoiceToFinanceCompany && i.Data.FinanceCompany.Name != "" {
		i.CustomerName = i.Data.FinanceCompany.Name
	}
	i.Registration = i.Data.Vehicle.Registration
	i.VehicleID = i.Data.Vehicle.StockID
	i.CustomerID = i.Data.Customer.CustomerID
	i.Total = b.Subtotal
	i.BalanceDue = b.BalanceDue
}

// Document is everything a renderer needs for one invoice.
type Document struct {
	Invoice   *Invoice
	Dealer    *dealers.Dealer
	Breakdown pricing.Breakdown
	LogoURL   string
	// SignatureURL and SignatureImage are set when a signature was captured.
	// SignatureType is the sniffed content type of SignatureImage.
	SignatureURL   string
	SignatureImage []byte
	SignatureType  string
}

// Renderer turns a Document into PDF bytes.
type Renderer interface {
	Name() string
	Render(ctx context.Context, doc Document) ([]byte, error)
}
