package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forecourt/forecourt/internal/platform/db"
	"github.com/forecourt/forecourt/internal/shared"
	"github.com/forecourt/forecourt/internal/stock"
)

var ErrNotFound = shared.ErrNotFound

// IdempotencyModule scopes issue keys in idempotency_keys.
const IdempotencyModule = "invoices.issue"

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, dealerID, id int64) (*Invoice, error)
	GetForUpdate(ctx context.Context, dealerID, id int64) (*Invoice, error)
	List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error)
	Create(ctx context.Context, inv Invoice) (int64, error)
	Update(ctx context.Context, inv Invoice) error
	SetPDFKey(ctx context.Context, dealerID, id int64, key string) error
	NextNumber(ctx context.Context, dealerID int64, year int) (string, error)

	MarkVehicleSold(ctx context.Context, dealerID, vehicleID int64, at time.Time) error
	ReleaseVehicle(ctx context.Context, dealerID, vehicleID int64) error
	RecordAudit(ctx context.Context, entry shared.AuditLog) error
	ClaimIdempotencyKey(ctx context.Context, key string) error
	ReleaseIdempotencyKey(ctx context.Context, key string) error
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

const invoiceColumns = `id, dealer_id, COALESCE(number, ''), status, sale_type, invoice_to, customer_name, registration,
	vehicle_id, customer_id, data, total, balance_due, pdf_key, void_reason, created_by, issued_at, voided_at,
	created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var data []byte
	err := row.Scan(&inv.ID, &inv.DealerID, &inv.Number, &inv.Status, &inv.SaleType, &inv.InvoiceTo,
		&inv.CustomerName, &inv.Registration, &inv.VehicleID, &inv.CustomerID, &data, &inv.Total,
		&inv.BalanceDue, &inv.PDFKey, &inv.VoidReason, &inv.CreatedBy, &inv.IssuedAt, &inv.VoidedAt,
		&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return inv, err
	}
	if err := json.Unmarshal(data, &inv.Data); err != nil {
		return inv, fmt.Errorf("decode invoice %d data: %w", inv.ID, err)
	}
	return inv, nil
}

func (r *repository) get(ctx context.Context, query string, dealerID, id int64) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, dealerID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *repository) Get(ctx context.Context, dealerID, id int64) (*Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE dealer_id = $1 AND id = $2`, dealerID, id)
}

func (r *repository) GetForUpdate(ctx context.Context, dealerID, id int64) (*Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE dealer_id = $1 AND id = $2 FOR UPDATE`, dealerID, id)
}

func (r *repository) List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	conditions := []string{"dealer_id = $1"}
	args := []any{req.DealerID}
	argPos := 2

	add := func(cond string, val any) {
		conditions = append(conditions, fmt.Sprintf(cond, argPos))
		args = append(args, val)
		argPos++
	}
	if req.Status != "" {
		add("status = $%d", req.Status)
	}
	if req.SaleType != "" {
		add("sale_type = $%d", req.SaleType)
	}
	if req.InvoiceTo != "" {
		add("invoice_to = $%d", req.InvoiceTo)
	}
	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(number ILIKE $%d OR customer_name ILIKE $%d OR registration ILIKE $%d)", argPos, argPos, argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM invoices "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM invoices %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, inv Invoice) (int64, error) {
	data, err := json.Marshal(inv.Data)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.db.QueryRow(ctx, `INSERT INTO invoices (dealer_id, status, sale_type, invoice_to, customer_name, registration,
		vehicle_id, customer_id, data, total, balance_due, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		inv.DealerID, inv.Status, inv.SaleType, inv.InvoiceTo, inv.CustomerName, inv.Registration,
		inv.VehicleID, inv.CustomerID, data, inv.Total, inv.BalanceDue, inv.CreatedBy).Scan(&id)
	return id, err
}

func (r *repository) Update(ctx context.Context, inv Invoice) error {
	data, err := json.Marshal(inv.Data)
	if err != nil {
		return err
	}
	var number *string
	if inv.Number != "" {
		number = &inv.Number
	}
	tag, err := r.db.Exec(ctx, `UPDATE invoices SET number = $1, status = $2, sale_type = $3, invoice_to = $4,
		customer_name = $5, registration = $6, vehicle_id = $7, customer_id = $8, data = $9, total = $10,
		balance_due = $11, void_reason = $12, issued_at = $13, voided_at = $14, updated_at = NOW()
		WHERE dealer_id = $15 AND id = $16`,
		number, inv.Status, inv.SaleType, inv.InvoiceTo, inv.CustomerName, inv.Registration, inv.VehicleID,
		inv.CustomerID, data, inv.Total, inv.BalanceDue, inv.VoidReason, inv.IssuedAt, inv.VoidedAt,
		inv.DealerID, inv.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SetPDFKey(ctx context.Context, dealerID, id int64, key string) error {
	tag, err := r.db.Exec(ctx, `UPDATE invoices SET pdf_key = $1, updated_at = NOW() WHERE dealer_id = $2 AND id = $3`, key, dealerID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NextNumber allocates the next sequential number for the dealer and year. It
// must run inside the issuing transaction so a rollback frees the number.
func (r *repository) NextNumber(ctx context.Context, dealerID int64, year int) (string, error) {
	var seq int
	err := r.db.QueryRow(ctx, `INSERT INTO invoice_sequences (dealer_id, year, last_seq) VALUES ($1, $2, 1)
		ON CONFLICT (dealer_id, year) DO UPDATE SET last_seq = invoice_sequences.last_seq + 1
		RETURNING last_seq`, dealerID, year).Scan(&seq)
	if err != nil {
		return "", err
	}
	return FormatNumber(year, seq), nil
}

// FormatNumber renders INV-<year>-<5 digit sequence>.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("INV-%d-%05d", year, seq)
}

func (r *repository) MarkVehicleSold(ctx context.Context, dealerID, vehicleID int64, at time.Time) error {
	return stock.MarkSold(ctx, r.db, dealerID, vehicleID, at)
}

func (r *repository) ReleaseVehicle(ctx context.Context, dealerID, vehicleID int64) error {
	return stock.Release(ctx, r.db, dealerID, vehicleID)
}

func (r *repository) RecordAudit(ctx context.Context, entry shared.AuditLog) error {
	return shared.NewAuditLogger(r.db).Record(ctx, entry)
}

func (r *repository) ClaimIdempotencyKey(ctx context.Context, key string) error {
	return shared.NewIdempotencyStore(r.db).CheckAndInsert(ctx, key, IdempotencyModule)
}

func (r *repository) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return shared.NewIdempotencyStore(r.db).Delete(ctx, key)
}
