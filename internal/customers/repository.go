package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forecourt/forecourt/internal/platform/db"
	"github.com/forecourt/forecourt/internal/shared"
)

var (
	ErrNotFound      = shared.ErrNotFound
	ErrAlreadyExists = errors.New("customer already exists")
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, dealerID, id int64) (*Customer, error)
	List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error)
	Create(ctx context.Context, customer Customer) (int64, error)
	Update(ctx context.Context, customer Customer) error
	NextCode(ctx context.Context, dealerID int64) (string, error)
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const customerColumns = `id, dealer_id, code, title, first_name, middle_name, last_name, email, phone,
	address_line1, address_line2, city, county, postcode, notes, created_by, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(
		&c.ID, &c.DealerID, &c.Code, &c.Title, &c.FirstName, &c.MiddleName, &c.LastName, &c.Email, &c.Phone,
		&c.AddressLine1, &c.AddressLine2, &c.City, &c.County, &c.Postcode, &c.Notes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (r *repository) Get(ctx context.Context, dealerID, id int64) (*Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE dealer_id = $1 AND id = $2`, dealerID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	conditions := []string{"dealer_id = $1"}
	args := []any{req.DealerID}
	argPos := 2

	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(code ILIKE $%d OR first_name || ' ' || last_name ILIKE $%d OR email ILIKE $%d OR phone ILIKE $%d)",
			argPos, argPos, argPos, argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM customers "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM customers %s ORDER BY last_name, first_name, id LIMIT $%d OFFSET $%d`,
		customerColumns, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Customer) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO customers (dealer_id, code, title, first_name, middle_name, last_name, email, phone,
		address_line1, address_line2, city, county, postcode, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`,
		c.DealerID, c.Code, c.Title, c.FirstName, c.MiddleName, c.LastName, c.Email, c.Phone,
		c.AddressLine1, c.AddressLine2, c.City, c.County, c.Postcode, c.Notes, c.CreatedBy).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: code %s", ErrAlreadyExists, c.Code)
	}
	return id, err
}

func (r *repository) Update(ctx context.Context, c Customer) error {
	tag, err := r.db.Exec(ctx, `UPDATE customers SET title = $1, first_name = $2, middle_name = $3, last_name = $4,
		email = $5, phone = $6, address_line1 = $7, address_line2 = $8, city = $9, county = $10, postcode = $11,
		notes = $12, updated_at = NOW() WHERE dealer_id = $13 AND id = $14`,
		c.Title, c.FirstName, c.MiddleName, c.LastName, c.Email, c.Phone, c.AddressLine1, c.AddressLine2,
		c.City, c.County, c.Postcode, c.Notes, c.DealerID, c.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NextCode returns the next CUST-NNNNN code for the dealer. Call inside WithTx;
// the advisory lock serialises concurrent creates for one dealer.
func (r *repository) NextCode(ctx context.Context, dealerID int64) (string, error) {
	if _, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('customers'), $1::int)`, dealerID); err != nil {
		return "", err
	}
	var last int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(substring(code FROM 6)::bigint), 0) FROM customers
		WHERE dealer_id = $1 AND code ~ '^CUST-[0-9]+$'`, dealerID).Scan(&last)
	if err != nil {
		return "", err
	}
	return FormatCode(last + 1), nil
}

// FormatCode renders a customer code, e.g. CUST-00001.
func FormatCode(seq int64) string {
	return fmt.Sprintf("CUST-%05d", seq)
}
