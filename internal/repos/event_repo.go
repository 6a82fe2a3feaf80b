package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"popjoy/internal/domain"
)

type EventRepo struct{ db *sqlx.DB }

func NewEventRepo(db *sqlx.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, name, description, event_date, start_time, end_time, image_url, status,
  internal_owner_id, allocated_units, max_sales_capacity, event_price, transport_cost, food_cost,
  rating, rating_comment, address_street, address_number, address_city, address_state,
  address_postal_code, address_country, deleted_at, created_at, updated_at`

// Insert creates the event header.
func (r *EventRepo) Insert(ctx context.Context, e domain.Event) error {
	q := ext(ctx, r.db)
	_, err := sqlx.NamedExecContext(ctx, q, `
  INSERT INTO events (`+eventColumns+`)
  VALUES
    (:id, :name, :description, :event_date, :start_time, :end_time, :image_url, :status,
     :internal_owner_id, :allocated_units, :max_sales_capacity, :event_price, :transport_cost, :food_cost,
     :rating, :rating_comment, :address_street, :address_number, :address_city, :address_state,
     :address_postal_code, :address_country, :deleted_at, :created_at, :updated_at)`, e)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ByID returns the event whether or not it is soft-deleted.
func (r *EventRepo) ByID(ctx context.Context, id string) (domain.Event, error) {
	return r.get(ctx, id, "")
}

// Active returns a non-deleted event. Inside a Postgres transaction the row
// is share-locked so a concurrent soft delete waits for the caller.
func (r *EventRepo) Active(ctx context.Context, id string) (domain.Event, error) {
	e, err := r.get(ctx, id, "FOR SHARE")
	if err != nil {
		return domain.Event{}, err
	}
	if e.Deleted() {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return e, nil
}

func (r *EventRepo) get(ctx context.Context, id, lock string) (domain.Event, error) {
	q := ext(ctx, r.db)
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	if lock != "" {
		query += lockClause(ctx, q, lock)
	}
	var e domain.Event
	err := sqlx.GetContext(ctx, q, &e, q.Rebind(query), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, domain.ErrEventNotFound
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// List returns non-deleted events, latest event date first.
func (r *EventRepo) List(ctx context.Context) ([]domain.Event, error) {
	q := ext(ctx, r.db)
	out := []domain.Event{}
	err := sqlx.SelectContext(ctx, q, &out, `SELECT `+eventColumns+` FROM events
  WHERE deleted_at IS NULL
  ORDER BY event_date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// Update rewrites every mutable column of e.
func (r *EventRepo) Update(ctx context.Context, e domain.Event) error {
	q := ext(ctx, r.db)
	res, err := sqlx.NamedExecContext(ctx, q, `
  UPDATE events SET
    name = :name, description = :description, event_date = :event_date,
    start_time = :start_time, end_time = :end_time, image_url = :image_url, status = :status,
    internal_owner_id = :internal_owner_id, allocated_units = :allocated_units,
    max_sales_capacity = :max_sales_capacity, event_price = :event_price,
    transport_cost = :transport_cost, food_cost = :food_cost,
    rating = :rating, rating_comment = :rating_comment,
    address_street = :address_street, address_number = :address_number,
    address_city = :address_city, address_state = :address_state,
    address_postal_code = :address_postal_code, address_country = :address_country,
    updated_at = :updated_at
  WHERE id = :id AND deleted_at IS NULL`, e)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *EventRepo) SoftDelete(ctx context.Context, id string, at domain.Time) error {
	q := ext(ctx, r.db)
	res, err := q.ExecContext(ctx, q.Rebind(`UPDATE events SET deleted_at = ?, updated_at = ?
  WHERE id = ? AND deleted_at IS NULL`), at, at, id)
	if err != nil {
		return fmt.Errorf("soft delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

// Delete removes an event row outright. It is only used to undo a creation
// whose allocation failed, so the event never has ledger rows.
func (r *EventRepo) Delete(ctx context.Context, id string) error {
	q := ext(ctx, r.db)
	if _, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM events WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}
