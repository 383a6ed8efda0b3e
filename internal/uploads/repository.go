package uploads

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Repository interface {
	Record(ctx context.Context, doc Document) (Document, error)
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db dbtx
}

func NewRepository(db dbtx) Repository {
	return &repository{db: db}
}

func (r *repository) Record(ctx context.Context, doc Document) (Document, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO documents (dealer_id, user_id, category, object_key, file_name, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		doc.DealerID, doc.UserID, doc.Category, doc.ObjectKey, doc.FileName, doc.ContentType, doc.SizeBytes,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}
