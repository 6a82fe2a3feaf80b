package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"popjoy/internal/domain"
)

// VariantRepo covers the catalog rows batches hang off.
type VariantRepo struct{ db *sqlx.DB }

func NewVariantRepo(db *sqlx.DB) *VariantRepo { return &VariantRepo{db: db} }

const variantColumns = `id, product_id, sku, weight, retail_price, is_active, soft_delete, created_at`

// ByID returns an active, non-deleted variant.
func (r *VariantRepo) ByID(ctx context.Context, id string) (domain.Variant, error) {
	q := ext(ctx, r.db)
	var v domain.Variant
	err := sqlx.GetContext(ctx, q, &v, q.Rebind(`SELECT `+variantColumns+`
  FROM product_variants
  WHERE id = ? AND is_active = TRUE AND soft_delete = FALSE`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Variant{}, domain.ErrVariantNotFound
	}
	if err != nil {
		return domain.Variant{}, fmt.Errorf("get variant: %w", err)
	}
	return v, nil
}

func (r *VariantRepo) List(ctx context.Context) ([]domain.Variant, error) {
	q := ext(ctx, r.db)
	out := []domain.Variant{}
	err := sqlx.SelectContext(ctx, q, &out, `SELECT `+variantColumns+`
  FROM product_variants
  WHERE soft_delete = FALSE
  ORDER BY sku, id`)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	return out, nil
}

func (r *VariantRepo) InsertProduct(ctx context.Context, p domain.Product) error {
	q := ext(ctx, r.db)
	_, err := sqlx.NamedExecContext(ctx, q, `INSERT INTO products (id, name, created_at)
  VALUES (:id, :name, :created_at)`, p)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *VariantRepo) InsertVariant(ctx context.Context, v domain.Variant) error {
	q := ext(ctx, r.db)
	_, err := sqlx.NamedExecContext(ctx, q, `INSERT INTO product_variants (`+variantColumns+`)
  VALUES (:id, :product_id, :sku, :weight, :retail_price, :is_active, :soft_delete, :created_at)`, v)
	if err != nil {
		return fmt.Errorf("insert variant: %w", err)
	}
	return nil
}
