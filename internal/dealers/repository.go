package dealers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/forecourt/forecourt/internal/shared"
)

// ErrNotFound is shared.ErrNotFound so HTTP mapping stays uniform.
var ErrNotFound = shared.ErrNotFound

// Repository persists dealers.
type Repository interface {
	ForUser(ctx context.Context, userID int64) (*Dealer, error)
	Get(ctx context.Context, id int64) (*Dealer, error)
	Update(ctx context.Context, id int64, req UpdateDealerRequest) error
	SetLogo(ctx context.Context, id int64, key string) error
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db dbtx
}

// NewRepository builds a pgx-backed Repository.
func NewRepository(db dbtx) Repository {
	return &repository{db: db}
}

const dealerColumns = `d.id, d.name, d.company_name, d.address_line1, d.address_line2, d.city, d.county,
	d.postcode, d.phone, d.email, d.vat_number, d.company_number, d.logo_key, d.invoice_terms,
	d.default_vat_rate, d.created_at, d.updated_at`

func (r *repository) ForUser(ctx context.Context, userID int64) (*Dealer, error) {
	return r.scanOne(ctx, `SELECT `+dealerColumns+` FROM dealers d JOIN users u ON u.dealer_id = d.id WHERE u.id = $1`, userID)
}

func (r *repository) Get(ctx context.Context, id int64) (*Dealer, error) {
	return r.scanOne(ctx, `SELECT `+dealerColumns+` FROM dealers d WHERE d.id = $1`, id)
}

func (r *repository) scanOne(ctx context.Context, query string, arg int64) (*Dealer, error) {
	var d Dealer
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&d.ID, &d.Name, &d.CompanyName, &d.AddressLine1, &d.AddressLine2, &d.City, &d.County,
		&d.Postcode, &d.Phone, &d.Email, &d.VATNumber, &d.CompanyNumber, &d.LogoKey, &d.InvoiceTerms,
		&d.DefaultVATRate, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *repository) Update(ctx context.Context, id int64, req UpdateDealerRequest) error {
	tag, err := r.db.Exec(ctx, `UPDATE dealers SET name = $1, company_name = $2, address_line1 = $3, address_line2 = $4,
		city = $5, county = $6, postcode = $7, phone = $8, email = $9, vat_number = $10, company_number = $11,
		invoice_terms = $12, default_vat_rate = $13, updated_at = NOW() WHERE id = $14`,
		req.Name, req.CompanyName, req.AddressLine1, req.AddressLine2, req.City, req.County, req.Postcode,
		req.Phone, req.Email, req.VATNumber, req.CompanyNumber, req.InvoiceTerms, req.DefaultVATRate, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SetLogo(ctx context.Context, id int64, key string) error {
	tag, err := r.db.Exec(ctx, `UPDATE dealers SET logo_key = $1, updated_at = NOW() WHERE id = $2`, key, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
