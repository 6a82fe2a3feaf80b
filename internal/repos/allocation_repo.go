package repos

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"popjoy/internal/domain"
)

// AllocationRepo is the event_units ledger. Rows are appended by InsertMany
// and only ever changed by MarkReleased.
type AllocationRepo struct{ db *sqlx.DB }

func NewAllocationRepo(db *sqlx.DB) *AllocationRepo { return &AllocationRepo{db: db} }

const allocationColumns = `id, event_id, unit_id, allocated_at, released_at`

func (r *AllocationRepo) InsertMany(ctx context.Context, rows []domain.Allocation) error {
	q := ext(ctx, r.db)
	for start := 0; start < len(rows); start += insertChunk {
		end := min(start+insertChunk, len(rows))
		_, err := sqlx.NamedExecContext(ctx, q, `
  INSERT INTO event_units (id, event_id, unit_id, allocated_at, released_at)
  VALUES (:id, :event_id, :unit_id, :allocated_at, :released_at)`, rows[start:end])
		if err != nil {
			return classify(fmt.Errorf("insert allocations: %w", err))
		}
	}
	return nil
}

// OpenByEvent returns the event's unreleased rows, restricted to unitIDs when
// that list is non-empty.
func (r *AllocationRepo) OpenByEvent(ctx context.Context, eventID string, unitIDs []string) ([]domain.Allocation, error) {
	q := ext(ctx, r.db)
	query := `SELECT ` + allocationColumns + ` FROM event_units
  WHERE event_id = ? AND released_at IS NULL`
	args := []any{eventID}
	if len(unitIDs) > 0 {
		query += ` AND unit_id IN (?)`
		args = append(args, unitIDs)
	}
	query += ` ORDER BY allocated_at, id` + lockClause(ctx, q, "FOR UPDATE")

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}
	out := []domain.Allocation{}
	if err := sqlx.SelectContext(ctx, q, &out, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("open allocations: %w", err)
	}
	return out, nil
}

// MarkReleased stamps released_at on still-open rows and returns how many
// changed.
func (r *AllocationRepo) MarkReleased(ctx context.Context, ids []string, at domain.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := ext(ctx, r.db)
	query, args, err := sqlx.In(`UPDATE event_units SET released_at = ?
  WHERE id IN (?) AND released_at IS NULL`, at, ids)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return 0, classify(fmt.Errorf("release allocations: %w", err))
	}
	return res.RowsAffected()
}

func (r *AllocationRepo) ListByEvent(ctx context.Context, eventID string) ([]domain.Allocation, error) {
	q := ext(ctx, r.db)
	out := []domain.Allocation{}
	err := sqlx.SelectContext(ctx, q, &out, q.Rebind(`SELECT `+allocationColumns+` FROM event_units
  WHERE event_id = ? ORDER BY allocated_at, id`), eventID)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	return out, nil
}

// HasOpen reports whether the unit is currently held by any event.
func (r *AllocationRepo) HasOpen(ctx context.Context, unitID string) (bool, error) {
	q := ext(ctx, r.db)
	var n int
	err := sqlx.GetContext(ctx, q, &n, q.Rebind(`SELECT COUNT(*) FROM event_units
  WHERE unit_id = ? AND released_at IS NULL`), unitID)
	if err != nil {
		return false, fmt.Errorf("check open allocation: %w", err)
	}
	return n > 0, nil
}

func (r *AllocationRepo) Summary(ctx context.Context, eventID string) (domain.UnitsSummary, error) {
	m, err := r.Summaries(ctx, []string{eventID})
	if err != nil {
		return domain.UnitsSummary{}, err
	}
	return m[eventID], nil
}

// Summaries returns per-event ledger counts; events without rows are absent.
func (r *AllocationRepo) Summaries(ctx context.Context, eventIDs []string) (map[string]domain.UnitsSummary, error) {
	out := make(map[string]domain.UnitsSummary, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}
	q := ext(ctx, r.db)
	query, args, err := sqlx.In(`
  SELECT event_id,
    COUNT(*) AS total_allocated,
    COALESCE(SUM(CASE WHEN released_at IS NULL THEN 1 ELSE 0 END), 0) AS currently_allocated,
    COALESCE(SUM(CASE WHEN released_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS released
  FROM event_units
  WHERE event_id IN (?)
  GROUP BY event_id`, eventIDs)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		EventID string `db:"event_id"`
		domain.UnitsSummary
	}
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("allocation summaries: %w", err)
	}
	for _, row := range rows {
		out[row.EventID] = row.UnitsSummary
	}
	return out, nil
}
