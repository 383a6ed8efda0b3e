package invoices

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/forecourt/forecourt/internal/customers"
	"github.com/forecourt/forecourt/internal/dealers"
	"github.com/forecourt/forecourt/internal/media"
	"github.com/forecourt/forecourt/internal/platform/httpx"
	"github.com/forecourt/forecourt/internal/platform/xlsx"
	"github.com/forecourt/forecourt/internal/pricing"
	"github.com/forecourt/forecourt/internal/shared"
	"github.com/forecourt/forecourt/internal/stock"
	"github.com/forecourt/forecourt/internal/storage"
)

var (
	ErrNotDraft        = errors.New("only draft invoices can be changed")
	ErrAlreadyVoid     = errors.New("invoice is already void")
	ErrIncomplete      = errors.New("invoice is missing required details")
	ErrUnknownRenderer = errors.New("unknown pdf renderer")
	ErrDeliveryType    = errors.New("unknown delivery type")
)

type DealerSource interface {
	Get(ctx context.Context, id int64) (*dealers.Dealer, error)
}

type VehicleSource interface {
	Get(ctx context.Context, dealerID, id int64) (*stock.Vehicle, error)
}

type CustomerSource interface {
	Get(ctx context.Context, dealerID, id int64) (*customers.Customer, error)
}

// PDFQueue schedules background rendering of an invoice PDF.
type PDFQueue interface {
	EnqueueInvoicePDF(ctx context.Context, dealerID, invoiceID int64, renderer string) error
}

// Deps are the collaborators the service reads from or writes to.
type Deps struct {
	Dealers   DealerSource
	Vehicles  VehicleSource
	Customers CustomerSource
	Store     storage.Store
	Queue     PDFQueue
	Renderers []Renderer
	Logger    *slog.Logger
	// DefaultVAT applies when the dealer has no rate of its own.
	DefaultVAT decimal.Decimal
}

type Service struct {
	repo      Repository
	deps      Deps
	renderers map[string]Renderer
	validate  *validator.Validate
	now       func() time.Time
}

func NewService(repo Repository, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.DefaultVAT.IsZero() {
		deps.DefaultVAT = pricing.DefaultVATRate
	}
	renderers := make(map[string]Renderer, len(deps.Renderers))
	for _, r := range deps.Renderers {
		renderers[r.Name()] = r
	}
	return &Service{
		repo:      repo,
		deps:      deps,
		renderers: renderers,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// RendererNames lists the configured PDF renderers.
func (s *Service) RendererNames() []string {
	names := make([]string, 0, len(s.deps.Renderers))
	for _, r := range s.deps.Renderers {
		names = append(names, r.Name())
	}
	return names
}

func (s *Service) defaultVAT(ctx context.Context, dealerID int64) (decimal.Decimal, *dealers.Dealer, error) {
	dealer, err := s.deps.Dealers.Get(ctx, dealerID)
	if err != nil {
		return decimal.Decimal{}, nil, fmt.Errorf("load dealer: %w", err)
	}
	vat := dealer.DefaultVATRate
	if vat.IsZero() {
		vat = s.deps.DefaultVAT
	}
	return vat, dealer, nil
}

// Breakdown computes the derived figures for data.
func Breakdown(data ComprehensiveInvoiceData, defaultVAT decimal.Decimal) (pricing.Breakdown, error) {
	if _, err := data.DeliveryKind(); err != nil {
		return pricing.Breakdown{}, httpx.Invalid(shared.Safe("Delivery type must be collection or delivery", err))
	}
	b, err := pricing.Calculate(data.ToPricingInput(defaultVAT))
	if err != nil {
		return pricing.Breakdown{}, httpx.Invalid(err)
	}
	return b, nil
}

// Calculate runs the pricing chain for unsaved data using the dealer's VAT default.
func (s *Service) Calculate(ctx context.Context, dealerID int64, data ComprehensiveInvoiceData) (pricing.Breakdown, error) {
	vat, _, err := s.defaultVAT(ctx, dealerID)
	if err != nil {
		return pricing.Breakdown{}, err
	}
	data.RoundMoney()
	return Breakdown(data, vat)
}

func today(t time.Time) Day {
	return Day(t.Format(time.DateOnly))
}

// CreateDraft opens a draft invoice, copying vehicle and customer details
// when their ids are given.
func (s *Service) CreateDraft(ctx context.Context, p shared.Principal, req CreateDraftRequest) (*Invoice, error) {
	vat, dealer, err := s.defaultVAT(ctx, p.DealerID)
	if err != nil {
		return nil, err
	}
	if req.SaleType == "" {
		req.SaleType = pricing.SaleTypeRetail
	}
	if req.InvoiceTo == "" {
		req.InvoiceTo = pricing.InvoiceToCustomer
	}
	if !req.SaleType.Valid() || !req.InvoiceTo.Valid() {
		return nil, httpx.Invalid(fmt.Errorf("unknown sale type %q or recipient %q", req.SaleType, req.InvoiceTo))
	}

	now := s.now()
	data := ComprehensiveInvoiceData{
		Meta: Meta{
			InvoiceDate: today(now),
			SaleDate:    today(now),
			SaleType:    req.SaleType,
			InvoiceTo:   req.InvoiceTo,
			Status:      StatusDraft,
		},
		Delivery: Delivery{Type: DeliveryCollection},
		Terms:    Terms{Text: dealer.InvoiceTerms},
	}

	if req.VehicleID > 0 {
		v, err := s.deps.Vehicles.Get(ctx, p.DealerID, req.VehicleID)
		if err != nil {
			return nil, fmt.Errorf("load vehicle: %w", err)
		}
		if v.Status == stock.StatusSold {
			return nil, httpx.Conflict(shared.Safe(v.Registration+" is already sold", stock.ErrAlreadySold))
		}
		id := v.ID
		data.Vehicle = VehicleDetails{
			Registration: v.Registration,
			Make:         v.Make,
			Model:        v.Model,
			Derivative:   v.Derivative,
			VIN:          v.VIN,
			Colour:       v.Colour,
			FuelType:     v.FuelType,
			Mileage:      v.Mileage,
			StockID:      &id,
		}
		data.Pricing.SalePrice = v.RetailPrice
	}
	if req.CustomerID > 0 {
		c, err := s.deps.Customers.Get(ctx, p.DealerID, req.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("load customer: %w", err)
		}
		id := c.ID
		data.Customer = CustomerDetails{
			Title:      c.Title,
			FirstName:  c.FirstName,
			MiddleName: c.MiddleName,
			Surname:    c.LastName,
			Address: Address{
				Street:   c.AddressLine1,
				Line2:    c.AddressLine2,
				City:     c.City,
				County:   c.County,
				Postcode: c.Postcode,
			},
			ContactNumber: c.Phone,
			Email:         c.Email,
			CustomerID:    &id,
		}
	}

	b, err := Breakdown(data, vat)
	if err != nil {
		return nil, err
	}
	inv := Invoice{DealerID: p.DealerID, Status: StatusDraft, Data: data, CreatedBy: p.UserID}
	inv.syncSummary(b)
	inv.ID, err = s.repo.Create(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return &inv, nil
}

func (s *Service) Get(ctx context.Context, dealerID, id int64) (*Invoice, error) {
	return s.repo.Get(ctx, dealerID, id)
}

func (s *Service) List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	req.Search = strings.TrimSpace(req.Search)
	if err := s.validate.Struct(req); err != nil {
		return nil, 0, httpx.Invalid(err)
	}
	return s.repo.List(ctx, req)
}

// Update replaces the editable sections of a draft and returns the stored
// invoice with its recomputed breakdown.
func (s *Service) Update(ctx context.Context, dealerID, id int64, data ComprehensiveInvoiceData) (*Invoice, pricing.Breakdown, error) {
	vat, _, err := s.defaultVAT(ctx, dealerID)
	if err != nil {
		return nil, pricing.Breakdown{}, err
	}
	var inv *Invoice
	var b pricing.Breakdown
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		inv, err = repo.GetForUpdate(ctx, dealerID, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return httpx.Conflict(shared.Safe("Only draft invoices can be edited", ErrNotDraft))
		}
		data.Meta.InvoiceNumber = ""
		data.Meta.Status = StatusDraft
		data.Pricing.AppliedVATRate = nil
		data.RoundMoney()
		if kind, err := data.DeliveryKind(); err == nil {
			data.Delivery.Type = kind
		}
		if data.Vehicle.StockID != nil && *data.Vehicle.StockID <= 0 {
			data.Vehicle.StockID = nil
		}
		if data.Customer.CustomerID != nil && *data.Customer.CustomerID <= 0 {
			data.Customer.CustomerID = nil
		}
		b, err = Breakdown(data, vat)
		if err != nil {
			return err
		}
		inv.Data = data
		inv.syncSummary(b)
		return repo.Update(ctx, *inv)
	})
	if err != nil {
		return inv, b, err
	}
	return inv, b, nil
}

func checkComplete(data ComprehensiveInvoiceData) error {
	var missing []string
	if strings.TrimSpace(data.Vehicle.Registration) == "" {
		missing = append(missing, "vehicle registration")
	}
	if data.Meta.InvoiceTo == pricing.InvoiceToFinanceCompany {
		if strings.TrimSpace(data.FinanceCompany.Name) == "" {
			missing = append(missing, "finance company name")
		}
	} else if strings.TrimSpace(data.Customer.FirstName+data.Customer.Surname) == "" {
		missing = append(missing, "customer name")
	}
	if !data.Pricing.SalePrice.IsPositive() {
		missing = append(missing, "sale price")
	}
	if len(missing) > 0 {
		msg := "Add the " + strings.Join(missing, ", ") + " before issuing"
		return httpx.Invalid(shared.Safe(msg, ErrIncomplete))
	}
	return nil
}

// issueKey binds a client idempotency key to one invoice so the same key
// sent for another invoice issues that one too.
func issueKey(dealerID, id int64, key string) string {
	return fmt.Sprintf("%s:%d:%d:%s", IdempotencyModule, dealerID, id, key)
}

// Issue numbers a draft, marks its stock vehicle sold and writes an audit
// entry in one transaction. A repeated idempotency key returns the invoice
// as it stands without issuing again.
func (s *Service) Issue(ctx context.Context, p shared.Principal, id int64, idempotencyKey string) (*Invoice, error) {
	vat, _, err := s.defaultVAT(ctx, p.DealerID)
	if err != nil {
		return nil, err
	}
	if idempotencyKey != "" {
		idempotencyKey = issueKey(p.DealerID, id, idempotencyKey)
		if err := s.repo.ClaimIdempotencyKey(ctx, idempotencyKey); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				s.deps.Logger.Info("invoice issue replayed", "invoiceID", id, "key", idempotencyKey)
				return s.repo.Get(ctx, p.DealerID, id)
			}
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
	}

	var inv *Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		inv, err = repo.GetForUpdate(ctx, p.DealerID, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return httpx.Conflict(shared.Safe("Only draft invoices can be issued", ErrNotDraft))
		}
		if err := checkComplete(inv.Data); err != nil {
			return err
		}
		rate := inv.Data.EffectiveVATRate(vat)
		inv.Data.Pricing.AppliedVATRate = &rate
		b, err := Breakdown(inv.Data, vat)
		if err != nil {
			return err
		}

		now := s.now()
		number, err := repo.NextNumber(ctx, p.DealerID, now.Year())
		if err != nil {
			return fmt.Errorf("allocate number: %w", err)
		}
		if inv.Data.Vehicle.StockID != nil {
			if err := repo.MarkVehicleSold(ctx, p.DealerID, *inv.Data.Vehicle.StockID, now); err != nil {
				if errors.Is(err, stock.ErrAlreadySold) {
					return httpx.Conflict(shared.Safe(inv.Data.Vehicle.Registration+" is already sold", err))
				}
				return fmt.Errorf("mark vehicle sold: %w", err)
			}
		}

		inv.Number = number
		inv.Status = StatusIssued
		inv.IssuedAt = &now
		inv.Data.Meta.InvoiceNumber = number
		inv.Data.Meta.Status = StatusIssued
		inv.syncSummary(b)
		if err := repo.Update(ctx, *inv); err != nil {
			return err
		}
		return repo.RecordAudit(ctx, shared.AuditLog{
			ActorID:  p.UserID,
			DealerID: p.DealerID,
			Action:   "invoice.issue",
			Entity:   "invoice",
			EntityID: strconv.FormatInt(inv.ID, 10),
			Meta:     map[string]any{"number": number, "total": b.Subtotal.StringFixed(2)},
			At:       now,
		})
	})
	if err != nil {
		if idempotencyKey != "" {
			if relErr := s.repo.ReleaseIdempotencyKey(ctx, idempotencyKey); relErr != nil {
				s.deps.Logger.Warn("release idempotency key failed", "key", idempotencyKey, "error", relErr)
			}
		}
		return nil, err
	}

	s.deps.Logger.Info("invoice issued", "invoiceID", inv.ID, "number", inv.Number, "dealerID", p.DealerID)
	if s.deps.Queue != nil && len(s.deps.Renderers) > 0 {
		if err := s.deps.Queue.EnqueueInvoicePDF(ctx, p.DealerID, inv.ID, s.deps.Renderers[0].Name()); err != nil {
			s.deps.Logger.Warn("enqueue invoice pdf failed", "invoiceID", inv.ID, "error", err)
		}
	}
	return inv, nil
}

// Void cancels a draft or issued invoice. An issued invoice returns its
// vehicle to stock.
func (s *Service) Void(ctx context.Context, p shared.Principal, id int64, req VoidRequest) (*Invoice, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validate.Struct(req); err != nil {
		return nil, httpx.Invalid(shared.Safe("Give a reason for voiding", err))
	}
	var inv *Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		inv, err = repo.GetForUpdate(ctx, p.DealerID, id)
		if err != nil {
			return err
		}
		if inv.Status == StatusVoid {
			return httpx.Conflict(shared.Safe("Invoice is already void", ErrAlreadyVoid))
		}
		wasIssued := inv.Status == StatusIssued
		if wasIssued && inv.Data.Vehicle.StockID != nil {
			if err := repo.ReleaseVehicle(ctx, p.DealerID, *inv.Data.Vehicle.StockID); err != nil {
				return fmt.Errorf("release vehicle: %w", err)
			}
		}
		now := s.now()
		inv.Status = StatusVoid
		inv.VoidReason = req.Reason
		inv.VoidedAt = &now
		inv.Data.Meta.Status = StatusVoid
		if err := repo.Update(ctx, *inv); err != nil {
			return err
		}
		return repo.RecordAudit(ctx, shared.AuditLog{
			ActorID:  p.UserID,
			DealerID: p.DealerID,
			Action:   "invoice.void",
			Entity:   "invoice",
			EntityID: strconv.FormatInt(inv.ID, 10),
			Meta:     map[string]any{"number": inv.Number, "reason": req.Reason, "wasIssued": wasIssued},
			At:       now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("invoice voided", "invoiceID", inv.ID, "number", inv.Number, "dealerID", p.DealerID)
	return inv, nil
}

// Document assembles the invoice, dealer letterhead and breakdown.
func (s *Service) Document(ctx context.Context, dealerID, id int64) (Document, error) {
	vat, dealer, err := s.defaultVAT(ctx, dealerID)
	if err != nil {
		return Document{}, err
	}
	inv, err := s.repo.Get(ctx, dealerID, id)
	if err != nil {
		return Document{}, err
	}
	b, err := Breakdown(inv.Data, vat)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Invoice: inv, Dealer: dealer, Breakdown: b}
	if dealer.LogoKey != "" && s.deps.Store != nil {
		doc.LogoURL = s.deps.Store.URL(dealer.LogoKey)
	}
	if key := inv.Data.Signature.ImageKey; key != "" && s.deps.Store != nil {
		doc.SignatureURL = s.deps.Store.URL(key)
		data, ct, err := s.loadSignature(ctx, key)
		if err != nil {
			s.deps.Logger.Warn("load signature image failed", "invoiceID", id, "key", key, "error", err)
		} else {
			doc.SignatureImage, doc.SignatureType = data, ct
		}
	}
	return doc, nil
}

// loadSignature reads a stored signature image for embedding in PDFs.
func (s *Service) loadSignature(ctx context.Context, key string) ([]byte, string, error) {
	rc, err := s.deps.Store.Open(ctx, key)
	if err != nil {
		return nil, "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, media.DefaultMaxBytes+1))
	if err != nil {
		return nil, "", err
	}
	ct, err := media.ImagePolicy(0).Check(media.Detect(data), data)
	if err != nil {
		return nil, "", err
	}
	return data, ct, nil
}

func (s *Service) renderer(name string) (Renderer, error) {
	if name == "" && len(s.deps.Renderers) > 0 {
		return s.deps.Renderers[0], nil
	}
	r, ok := s.renderers[name]
	if !ok {
		return nil, httpx.Invalid(fmt.Errorf("%w: %q", ErrUnknownRenderer, name))
	}
	return r, nil
}

// RenderPDF renders the invoice with the named renderer, or the first one
// configured when name is empty.
func (s *Service) RenderPDF(ctx context.Context, dealerID, id int64, name string) ([]byte, *Invoice, error) {
	r, err := s.renderer(name)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.Document(ctx, dealerID, id)
	if err != nil {
		return nil, nil, err
	}
	pdf, err := r.Render(ctx, doc)
	if err != nil {
		return nil, doc.Invoice, fmt.Errorf("render %s pdf: %w", r.Name(), err)
	}
	return pdf, doc.Invoice, nil
}

// StorePDF renders and uploads the invoice PDF, recording its object key.
func (s *Service) StorePDF(ctx context.Context, dealerID, id int64, name string) (string, error) {
	pdf, inv, err := s.RenderPDF(ctx, dealerID, id, name)
	if err != nil {
		return "", err
	}
	r, _ := s.renderer(name)
	key := storage.InvoiceKey(dealerID, inv.ID, r.Name())
	if err := s.deps.Store.Put(ctx, key, "application/pdf", bytes.NewReader(pdf)); err != nil {
		return "", fmt.Errorf("store pdf: %w", err)
	}
	if err := s.repo.SetPDFKey(ctx, dealerID, id, key); err != nil {
		return "", fmt.Errorf("record pdf key: %w", err)
	}
	return key, nil
}

// QueuePDF asks the worker to render and store the PDF.
func (s *Service) QueuePDF(ctx context.Context, dealerID, id int64, name string) error {
	if s.deps.Queue == nil {
		return errors.New("pdf queue not configured")
	}
	r, err := s.renderer(name)
	if err != nil {
		return err
	}
	if _, err := s.repo.Get(ctx, dealerID, id); err != nil {
		return err
	}
	return s.deps.Queue.EnqueueInvoicePDF(ctx, dealerID, id, r.Name())
}

// PDFURL is the public URL of the stored PDF, empty before one is stored.
func (s *Service) PDFURL(inv *Invoice) string {
	if inv == nil || inv.PDFKey == "" || s.deps.Store == nil {
		return ""
	}
	return s.deps.Store.URL(inv.PDFKey)
}

var registerHeaders = []string{
	"Number", "Status", "Invoice date", "Sale type", "Invoice to", "Customer", "Registration", "Total", "Balance due",
}

// ExportRegisterXLSX writes the invoice register for the filter.
func (s *Service) ExportRegisterXLSX(ctx context.Context, w io.Writer, req ListInvoicesRequest) error {
	req.Limit = 10000
	req.Offset = 0
	invoices, _, err := s.List(ctx, req)
	if err != nil {
		return err
	}
	rows := make([][]any, 0, len(invoices))
	for i := range invoices {
		inv := &invoices[i]
		total, _ := inv.Total.Round(2).Float64()
		due, _ := inv.BalanceDue.Round(2).Float64()
		rows = append(rows, []any{
			inv.DisplayNumber(), inv.Status.Label(), string(inv.Data.Meta.InvoiceDate), string(inv.SaleType),
			string(inv.InvoiceTo), inv.CustomerName, inv.Registration, total, due,
		})
	}
	return xlsx.Write(w, "Invoices", registerHeaders, rows)
}
