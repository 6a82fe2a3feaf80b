package repos

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"popjoy/internal/domain"
)

type seedBatch struct {
	id, name, variantID, code string
	produced, expires         time.Time
	units                     int
}

// SeedDemo inserts an owner, a small catalog and a few batches of units.
// Safe to run on every startup: rows that already exist are left alone.
func SeedDemo(ctx context.Context, db *sqlx.DB, now time.Time) error {
	ts := domain.NewTime(now)
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	batches := []seedBatch{
		{"b-choco-0326", "Chocolate pops March", "v-choco-12", "CH0326", day(2026, 3, 1), day(2027, 3, 1), 6},
		{"b-choco-0626", "Chocolate pops June", "v-choco-12", "CH0626", day(2026, 6, 1), day(2027, 6, 1), 4},
		{"b-mango-0426", "Mango pops April", "v-mango-12", "MA0426", day(2026, 4, 1), day(2027, 4, 1), 5},
	}

	return WithTx(ctx, db, func(ctx context.Context) error {
		q := ext(ctx, db)
		exec := func(query string, args ...any) error {
			_, err := q.ExecContext(ctx, q.Rebind(query), args...)
			return err
		}

		if err := exec(`INSERT INTO users (id, email, name, role, created_at)
  VALUES (?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`, "u-owner", "owner@popjoy.test", "Event Owner", "MANAGER", ts); err != nil {
			return fmt.Errorf("seed users: %w", err)
		}
		if err := exec(`INSERT INTO products (id, name, created_at)
  VALUES (?, ?, ?) ON CONFLICT DO NOTHING`, "p-popsicle", "Popsicle", ts); err != nil {
			return fmt.Errorf("seed products: %w", err)
		}
		for _, v := range []struct{ id, sku, price string }{
			{"v-choco-12", "POP-CHOCO-12", "3.50"},
			{"v-mango-12", "POP-MANGO-12", "3.00"},
		} {
			if err := exec(`INSERT INTO product_variants
  (id, product_id, sku, weight, retail_price, is_active, soft_delete, created_at)
  VALUES (?, ?, ?, ?, ?, TRUE, FALSE, ?) ON CONFLICT DO NOTHING`, v.id, "p-popsicle", v.sku, 120, v.price, ts); err != nil {
				return fmt.Errorf("seed variants: %w", err)
			}
		}

		for _, b := range batches {
			var n int
			if err := sqlx.GetContext(ctx, q, &n, q.Rebind(`SELECT COUNT(*) FROM batches WHERE id = ?`), b.id); err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			log.Printf("[seed] inserting batch %s with %d units", b.id, b.units)
			code := b.code
			if err := exec(`INSERT INTO batches
  (id, name, product_variant_id, production_date, expiration_date, quantity, batch_code, created_at, updated_at)
  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				b.id, b.name, b.variantID, domain.NewTime(b.produced), domain.NewTime(b.expires), b.units, &code, ts, ts); err != nil {
				return fmt.Errorf("seed batches: %w", err)
			}
			units := make([]domain.Unit, 0, b.units)
			for i := 1; i <= b.units; i++ {
				units = append(units, domain.Unit{
					ID:             fmt.Sprintf("%s-u%03d", b.id, i),
					BatchID:        b.id,
					SKU:            UnitSKU(b.code, i),
					IsActive:       true,
					IsAvailable:    true,
					MovementStatus: domain.MovementInStock,
					CreatedAt:      ts,
					UpdatedAt:      ts,
				})
			}
			if err := NewUnitRepo(db).InsertMany(ctx, units); err != nil {
				return err
			}
		}
		return nil
	})
}

// UnitSKU numbers a batch's units as <prefix>-001, <prefix>-002, ...
func UnitSKU(prefix string, n int) string { return fmt.Sprintf("%s-%03d", prefix, n) }
