package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/models"
)

const userColumns = `id, username, password, phone, is_admin, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Password, &u.Phone, &u.IsAdmin, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByUsername returns nil, nil when no user has that name.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %q: %w", username, err)
	}
	return user, nil
}

// GetUserByID returns nil, nil when no user has that id.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return user, nil
}

// CreateUser inserts u and sets u.ID. u.Password must already be hashed.
// A duplicate username yields ErrUsernameTaken.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (username, password, phone, is_admin, created_at) VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		u.Username, u.Password, u.Phone, u.IsAdmin)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("create user %q: %w", u.Username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

// EnsureUser creates u unless a user with the same username exists.
// It reports whether a row was inserted.
func (s *Store) EnsureUser(ctx context.Context, u *models.User) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (username, password, phone, is_admin, created_at) VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(username) DO NOTHING`,
		u.Username, u.Password, u.Phone, u.IsAdmin)
	if err != nil {
		return false, fmt.Errorf("ensure user %q: %w", u.Username, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
