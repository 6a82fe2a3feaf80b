package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"popjoy/internal/domain"
)

// UnitRepo is the unit store. SelectAvailable is the allocation selector's
// query; the availability writes are issued only by the services.
type UnitRepo struct{ db *sqlx.DB }

func NewUnitRepo(db *sqlx.DB) *UnitRepo { return &UnitRepo{db: db} }

const unitColumns = `u.id, u.batch_id, u.sku, u.sold, u.is_active, u.is_available, u.movement_status,
  u.return_reason, u.return_date, u.created_at, u.updated_at`

// insertChunk keeps multi-row inserts under SQLite's bound-variable limit.
const insertChunk = 200

// SelectAvailable returns at most limit eligible units, first-expiring batch
// first and then by unit id. A unit is eligible when it is unsold, active,
// flagged available, matches every filter and has no open ledger row; the
// last condition is checked against event_units, not the cached flag.
// Inside a Postgres transaction the candidate rows are locked and rows
// locked by a concurrent allocation are skipped.
func (r *UnitRepo) SelectAvailable(ctx context.Context, limit int, f domain.Filters) ([]domain.Candidate, error) {
	q := ext(ctx, r.db)
	where := `u.sold = FALSE AND u.is_active = TRUE AND u.is_available = TRUE
  AND NOT EXISTS (
    SELECT 1 FROM event_units eu
    WHERE eu.unit_id = u.id AND eu.released_at IS NULL
  )`
	args := []any{}
	if f.VariantID != "" {
		where += ` AND b.product_variant_id = ?`
		args = append(args, f.VariantID)
	}
	if f.BatchID != "" {
		where += ` AND u.batch_id = ?`
		args = append(args, f.BatchID)
	}
	if f.MinExpiration != nil {
		where += ` AND b.expiration_date >= ?`
		args = append(args, *f.MinExpiration)
	}

	query := `
  SELECT u.id AS unit_id, u.sku, u.batch_id, b.name AS batch_name,
         b.product_variant_id AS variant_id, b.expiration_date
  FROM units u
  JOIN batches b ON b.id = u.batch_id
  WHERE ` + where + `
  ORDER BY b.expiration_date, u.id
  LIMIT ?` + lockClause(ctx, q, "FOR UPDATE OF u SKIP LOCKED")
	args = append(args, limit)

	out := []domain.Candidate{}
	if err := sqlx.SelectContext(ctx, q, &out, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select available units: %w", err)
	}
	return out, nil
}

func (r *UnitRepo) ByID(ctx context.Context, id string) (domain.Unit, error) {
	q := ext(ctx, r.db)
	var u domain.Unit
	err := sqlx.GetContext(ctx, q, &u, q.Rebind(`SELECT `+unitColumns+` FROM units u WHERE u.id = ?`+
		lockClause(ctx, q, "FOR UPDATE")), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Unit{}, domain.ErrUnitNotFound
	}
	if err != nil {
		return domain.Unit{}, fmt.Errorf("get unit: %w", err)
	}
	return u, nil
}

func (r *UnitRepo) ListByBatch(ctx context.Context, batchID string) ([]domain.Unit, error) {
	q := ext(ctx, r.db)
	out := []domain.Unit{}
	err := sqlx.SelectContext(ctx, q, &out, q.Rebind(`SELECT `+unitColumns+`
  FROM units u WHERE u.batch_id = ? ORDER BY u.sku, u.id`), batchID)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	return out, nil
}

// CountByMovement summarises a batch's units by movement status.
func (r *UnitRepo) CountByMovement(ctx context.Context, batchID string) (domain.BatchUnitsSummary, error) {
	q := ext(ctx, r.db)
	var s domain.BatchUnitsSummary
	err := sqlx.GetContext(ctx, q, &s, q.Rebind(`
  SELECT
    COALESCE(SUM(CASE WHEN movement_status = 'in_stock'  THEN 1 ELSE 0 END), 0) AS in_stock,
    COALESCE(SUM(CASE WHEN movement_status = 'sold'      THEN 1 ELSE 0 END), 0) AS sold,
    COALESCE(SUM(CASE WHEN movement_status = 'returned'  THEN 1 ELSE 0 END), 0) AS returned,
    COALESCE(SUM(CASE WHEN movement_status = 'discarded' THEN 1 ELSE 0 END), 0) AS discarded,
    COUNT(*) AS total
  FROM units WHERE batch_id = ?`), batchID)
	if err != nil {
		return domain.BatchUnitsSummary{}, fmt.Errorf("count units: %w", err)
	}
	return s, nil
}

func (r *UnitRepo) InsertMany(ctx context.Context, units []domain.Unit) error {
	q := ext(ctx, r.db)
	for start := 0; start < len(units); start += insertChunk {
		end := min(start+insertChunk, len(units))
		_, err := sqlx.NamedExecContext(ctx, q, `
  INSERT INTO units
    (id, batch_id, sku, sold, is_active, is_available, movement_status, return_reason, return_date, created_at, updated_at)
  VALUES
    (:id, :batch_id, :sku, :sold, :is_active, :is_available, :movement_status, :return_reason, :return_date, :created_at, :updated_at)
`, units[start:end])
		if err != nil {
			return fmt.Errorf("insert units: %w", err)
		}
	}
	return nil
}

// Reserve clears the availability flag on units that still have it set and
// returns how many rows changed; fewer than len(ids) means another writer got
// there first.
func (r *UnitRepo) Reserve(ctx context.Context, ids []string, at domain.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := ext(ctx, r.db)
	query, args, err := sqlx.In(`
  UPDATE units SET is_available = FALSE, updated_at = ?
  WHERE id IN (?) AND is_available = TRUE AND sold = FALSE AND is_active = TRUE`, at, ids)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("reserve units: %w", err)
	}
	return res.RowsAffected()
}

// Restore sets the availability flag back on released units. Units that were
// sold, returned, discarded or deactivated meanwhile, or that are held by
// another open allocation, stay unavailable.
func (r *UnitRepo) Restore(ctx context.Context, ids []string, at domain.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := ext(ctx, r.db)
	query, args, err := sqlx.In(`
  UPDATE units SET is_available = TRUE, updated_at = ?
  WHERE id IN (?) AND sold = FALSE AND is_active = TRUE AND movement_status = 'in_stock'
    AND NOT EXISTS (
      SELECT 1 FROM event_units eu WHERE eu.unit_id = units.id AND eu.released_at IS NULL
    )`, at, ids)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("restore units: %w", err)
	}
	return res.RowsAffected()
}

// MarkSold moves units to the terminal sold state.
func (r *UnitRepo) MarkSold(ctx context.Context, ids []string, at domain.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := ext(ctx, r.db)
	query, args, err := sqlx.In(`
  UPDATE units SET sold = TRUE, movement_status = 'sold', is_available = FALSE, updated_at = ?
  WHERE id IN (?) AND sold = FALSE`, at, ids)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("mark units sold: %w", err)
	}
	return res.RowsAffected()
}

// UpdateMovement persists a unit's movement fields as given.
func (r *UnitRepo) UpdateMovement(ctx context.Context, u domain.Unit) error {
	q := ext(ctx, r.db)
	_, err := sqlx.NamedExecContext(ctx, q, `
  UPDATE units SET
    sold = :sold, is_available = :is_available, movement_status = :movement_status,
    return_reason = :return_reason, return_date = :return_date, updated_at = :updated_at
  WHERE id = :id`, u)
	if err != nil {
		return fmt.Errorf("update unit movement: %w", err)
	}
	return nil
}
