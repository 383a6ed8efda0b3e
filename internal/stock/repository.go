package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forecourt/forecourt/internal/platform/db"
	"github.com/forecourt/forecourt/internal/shared"
)

var (
	ErrNotFound      = shared.ErrNotFound
	ErrAlreadyExists = errors.New("registration already in stock")
	ErrAlreadySold   = errors.New("vehicle already sold")
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, dealerID, id int64) (*Vehicle, error)
	List(ctx context.Context, req ListVehiclesRequest) ([]Vehicle, int, error)
	Create(ctx context.Context, v Vehicle) (int64, error)
	Update(ctx context.Context, v Vehicle) error
	CountByStatus(ctx context.Context, dealerID int64) (map[Status]int, error)

	Images(ctx context.Context, vehicleID int64) ([]Image, error)
	GetImage(ctx context.Context, imageID int64) (*Image, error)
	AddImage(ctx context.Context, img Image) (Image, error)
	SetImagePositions(ctx context.Context, vehicleID int64, orderedIDs []int64) error
	DeleteImage(ctx context.Context, vehicleID, imageID int64) (*Image, error)
	SetThumbnail(ctx context.Context, imageID int64, key string) error
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

const vehicleColumns = `id, dealer_id, registration, vin, make, model, derivative, year, mileage, colour,
	fuel_type, transmission, purchase_price, retail_price, status, notes, sold_at, created_at, updated_at`

func scanVehicle(row pgx.Row) (Vehicle, error) {
	var v Vehicle
	err := row.Scan(&v.ID, &v.DealerID, &v.Registration, &v.VIN, &v.Make, &v.Model, &v.Derivative, &v.Year,
		&v.Mileage, &v.Colour, &v.FuelType, &v.Transmission, &v.PurchasePrice, &v.RetailPrice, &v.Status,
		&v.Notes, &v.SoldAt, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func (r *repository) Get(ctx context.Context, dealerID, id int64) (*Vehicle, error) {
	v, err := scanVehicle(r.db.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE dealer_id = $1 AND id = $2`, dealerID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *repository) List(ctx context.Context, req ListVehiclesRequest) ([]Vehicle, int, error) {
	conditions := []string{"dealer_id = $1"}
	args := []any{req.DealerID}
	argPos := 2

	if req.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, req.Status)
		argPos++
	}
	if req.Make != "" {
		conditions = append(conditions, fmt.Sprintf("make ILIKE $%d", argPos))
		args = append(args, req.Make)
		argPos++
	}
	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(registration ILIKE $%d OR vin ILIKE $%d OR model ILIKE $%d OR derivative ILIKE $%d)", argPos, argPos, argPos, argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM vehicles "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM vehicles %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		vehicleColumns, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var vehicles []Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, 0, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, v Vehicle) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO vehicles (dealer_id, registration, vin, make, model, derivative, year, mileage,
		colour, fuel_type, transmission, purchase_price, retail_price, status, notes, sold_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16) RETURNING id`,
		v.DealerID, v.Registration, v.VIN, v.Make, v.Model, v.Derivative, v.Year, v.Mileage, v.Colour, v.FuelType,
		v.Transmission, v.PurchasePrice, v.RetailPrice, v.Status, v.Notes, v.SoldAt).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: %s", ErrAlreadyExists, v.Registration)
	}
	return id, err
}

func (r *repository) Update(ctx context.Context, v Vehicle) error {
	tag, err := r.db.Exec(ctx, `UPDATE vehicles SET registration = $1, vin = $2, make = $3, model = $4, derivative = $5,
		year = $6, mileage = $7, colour = $8, fuel_type = $9, transmission = $10, purchase_price = $11,
		retail_price = $12, status = $13, notes = $14, sold_at = $15, updated_at = NOW()
		WHERE dealer_id = $16 AND id = $17`,
		v.Registration, v.VIN, v.Make, v.Model, v.Derivative, v.Year, v.Mileage, v.Colour, v.FuelType, v.Transmission,
		v.PurchasePrice, v.RetailPrice, v.Status, v.Notes, v.SoldAt, v.DealerID, v.ID)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, v.Registration)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) CountByStatus(ctx context.Context, dealerID int64) (map[Status]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM vehicles WHERE dealer_id = $1 GROUP BY status`, dealerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[Status]int{StatusInStock: 0, StatusReserved: 0, StatusSold: 0}
	for rows.Next() {
		var s Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

const imageColumns = `id, vehicle_id, object_key, thumbnail_key, content_type, position, created_at`

func scanImage(row pgx.Row) (Image, error) {
	var img Image
	err := row.Scan(&img.ID, &img.VehicleID, &img.ObjectKey, &img.ThumbnailKey, &img.ContentType, &img.Position, &img.CreatedAt)
	return img, err
}

func (r *repository) Images(ctx context.Context, vehicleID int64) ([]Image, error) {
	rows, err := r.db.Query(ctx, `SELECT `+imageColumns+` FROM vehicle_images WHERE vehicle_id = $1 ORDER BY position, id`, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var images []Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (r *repository) GetImage(ctx context.Context, imageID int64) (*Image, error) {
	img, err := scanImage(r.db.QueryRow(ctx, `SELECT `+imageColumns+` FROM vehicle_images WHERE id = $1`, imageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &img, nil
}

func (r *repository) AddImage(ctx context.Context, img Image) (Image, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO vehicle_images (vehicle_id, object_key, content_type, position)
		VALUES ($1, $2, $3, (SELECT COALESCE(MAX(position), 0) + 1 FROM vehicle_images WHERE vehicle_id = $1))
		RETURNING id, position, created_at`,
		img.VehicleID, img.ObjectKey, img.ContentType).Scan(&img.ID, &img.Position, &img.CreatedAt)
	return img, err
}

func (r *repository) SetImagePositions(ctx context.Context, vehicleID int64, orderedIDs []int64) error {
	if len(orderedIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `UPDATE vehicle_images vi SET position = o.ord
		FROM unnest($2::bigint[]) WITH ORDINALITY AS o(id, ord)
		WHERE vi.id = o.id AND vi.vehicle_id = $1`, vehicleID, orderedIDs)
	return err
}

func (r *repository) DeleteImage(ctx context.Context, vehicleID, imageID int64) (*Image, error) {
	img, err := scanImage(r.db.QueryRow(ctx, `DELETE FROM vehicle_images WHERE vehicle_id = $1 AND id = $2 RETURNING `+imageColumns, vehicleID, imageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &img, nil
}

func (r *repository) SetThumbnail(ctx context.Context, imageID int64, key string) error {
	tag, err := r.db.Exec(ctx, `UPDATE vehicle_images SET thumbnail_key = $1 WHERE id = $2`, key, imageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Execer runs a statement inside a caller owned transaction.
type Execer interface {
	QueryRow(context.Context, string, ...any) pgx.Row
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}

// MarkSold flags a vehicle as sold inside the caller's transaction. Invoices
// call it when they are issued.
func MarkSold(ctx context.Context, q Execer, dealerID, vehicleID int64, at time.Time) error {
	var status Status
	err := q.QueryRow(ctx, `SELECT status FROM vehicles WHERE dealer_id = $1 AND id = $2 FOR UPDATE`, dealerID, vehicleID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if status == StatusSold {
		return ErrAlreadySold
	}
	_, err = q.Exec(ctx, `UPDATE vehicles SET status = 'sold', sold_at = $1, updated_at = NOW() WHERE dealer_id = $2 AND id = $3`, at, dealerID, vehicleID)
	return err
}

// Release returns a sold vehicle to stock, used when its invoice is voided.
func Release(ctx context.Context, q Execer, dealerID, vehicleID int64) error {
	_, err := q.Exec(ctx, `UPDATE vehicles SET status = 'in_stock', sold_at = NULL, updated_at = NOW()
		WHERE dealer_id = $1 AND id = $2 AND status = 'sold'`, dealerID, vehicleID)
	return err
}
