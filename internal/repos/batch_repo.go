package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"popjoy/internal/domain"
)

type BatchRepo struct{ db *sqlx.DB }

func NewBatchRepo(db *sqlx.DB) *BatchRepo { return &BatchRepo{db: db} }

const batchColumns = `id, name, product_variant_id, production_date, expiration_date, quantity,
  batch_code, created_at, updated_at`

func (r *BatchRepo) Insert(ctx context.Context, b domain.Batch) error {
	q := ext(ctx, r.db)
	_, err := sqlx.NamedExecContext(ctx, q, `INSERT INTO batches (`+batchColumns+`)
  VALUES (:id, :name, :product_variant_id, :production_date, :expiration_date, :quantity,
    :batch_code, :created_at, :updated_at)`, b)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (r *BatchRepo) ByID(ctx context.Context, id string) (domain.Batch, error) {
	q := ext(ctx, r.db)
	var b domain.Batch
	err := sqlx.GetContext(ctx, q, &b, q.Rebind(`SELECT `+batchColumns+` FROM batches WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Batch{}, domain.ErrBatchNotFound
	}
	if err != nil {
		return domain.Batch{}, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

// List returns batches soonest-expiring first, optionally for one variant.
func (r *BatchRepo) List(ctx context.Context, variantID string) ([]domain.Batch, error) {
	q := ext(ctx, r.db)
	query := `SELECT ` + batchColumns + ` FROM batches`
	args := []any{}
	if variantID != "" {
		query += ` WHERE product_variant_id = ?`
		args = append(args, variantID)
	}
	query += ` ORDER BY expiration_date, id`
	out := []domain.Batch{}
	if err := sqlx.SelectContext(ctx, q, &out, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return out, nil
}
