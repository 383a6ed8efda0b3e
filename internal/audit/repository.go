package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository queries audit_logs.
type Repository interface {
	// Window returns up to limit rows after skipping offset, newest first.
	Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error)
}

type querier interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
}

type pgRepository struct {
	db querier
}

// NewRepository returns a Postgres backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{db: pool}
}

func (r *pgRepository) Window(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	where, args := whereClause(f)
	args = append(args, limit, offset)
	sql := `SELECT a.id, a.occurred_at, a.actor_id, COALESCE(NULLIF(u.name, ''), u.email, ''), a.action, a.entity, a.entity_id, a.meta
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.actor_id
		WHERE ` + where + fmt.Sprintf(`
		ORDER BY a.occurred_at DESC, a.id DESC
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query timeline: %w", err)
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var (
			row  TimelineRow
			meta []byte
		)
		if err := rows.Scan(&row.ID, &row.At, &row.ActorID, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, fmt.Errorf("audit: scan timeline: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, fmt.Errorf("audit: decode meta for %d: %w", row.ID, err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// whereClause always scopes by dealer; the other filters are optional.
func whereClause(f TimelineFilters) (string, []any) {
	conds := []string{"a.dealer_id = $1"}
	args := []any{f.DealerID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("a.occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		// To is a calendar day; include all of it.
		add("a.occurred_at < $%d", f.To.Add(24*time.Hour))
	}
	if v := strings.TrimSpace(f.Actor); v != "" {
		add("(u.name ILIKE $%[1]d OR u.email ILIKE $%[1]d)", "%"+v+"%")
	}
	if v := strings.TrimSpace(f.Entity); v != "" {
		add("a.entity = $%d", v)
	}
	if v := strings.TrimSpace(f.EntityID); v != "" {
		add("a.entity_id = $%d", v)
	}
	if v := strings.TrimSpace(f.Action); v != "" {
		add("a.action = $%d", v)
	}
	return strings.Join(conds, " AND "), args
}
