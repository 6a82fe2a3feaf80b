package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"popjoy/internal/domain"
)

// UserRepo resolves event owners.
type UserRepo struct{ DB *sqlx.DB }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{DB: db} }

func (r *UserRepo) ByID(ctx context.Context, id string) (domain.User, error) {
	q := ext(ctx, r.DB)
	var u domain.User
	err := sqlx.GetContext(ctx, q, &u, q.Rebind(`SELECT id, email, name, role, created_at FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrOwnerNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) ByEmail(ctx context.Context, email string) (domain.User, error) {
	q := ext(ctx, r.DB)
	var u domain.User
	err := sqlx.GetContext(ctx, q, &u, q.Rebind(`SELECT id, email, name, role, created_at FROM users
  WHERE LOWER(email) = LOWER(?)`), email)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrOwnerNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepo) Insert(ctx context.Context, u domain.User) error {
	q := ext(ctx, r.DB)
	_, err := sqlx.NamedExecContext(ctx, q, `INSERT INTO users (id, email, name, role, created_at)
  VALUES (:id, :email, :name, :role, :created_at)`, u)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}
