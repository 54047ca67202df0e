package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/vinylwatch/internal/app/domain/user"
)

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watch_users (id, email, display_name, timezone, currency, is_active, created_at, updated_at)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Email, u.DisplayName, u.Timezone, u.Currency, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return user.User{}, err
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE watch_users
		SET email = lower($2), display_name = $3, timezone = $4, currency = $5, is_active = $6, updated_at = $7
		WHERE id = $1
	`, u.ID, u.Email, u.DisplayName, u.Timezone, u.Currency, u.IsActive, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return user.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, timezone, currency, is_active, created_at, updated_at
		FROM watch_users WHERE id = $1
	`, id)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, timezone, currency, is_active, created_at, updated_at
		FROM watch_users WHERE email = lower($1)
	`, email)
	return scanUser(row)
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, display_name, timezone, currency, is_active, created_at, updated_at
		FROM watch_users ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM watch_users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (user.User, error) {
	var (
		u           user.User
		displayName sql.NullString
		timezone    sql.NullString
		currency    sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &displayName, &timezone, &currency, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return user.User{}, err
	}
	u.DisplayName = fromNullString(displayName)
	u.Timezone = fromNullString(timezone)
	u.Currency = fromNullString(currency)
	return u, nil
}
