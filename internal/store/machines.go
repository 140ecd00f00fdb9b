package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/models"
)

const machineSelect = `
	SELECT m.id, m.name, m.category, m.price, COALESCE(m.description, ''), m.image_file, m.image_name,
	       m.user_id, u.username, u.phone, m.created_at, m.updated_at
	FROM machines m
	JOIN users u ON u.id = m.user_id`

func scanMachine(row interface{ Scan(...any) error }) (*models.Machine, error) {
	var m models.Machine
	err := row.Scan(&m.ID, &m.Name, &m.Category, &m.Price, &m.Description, &m.ImageFile, &m.ImageName,
		&m.OwnerID, &m.OwnerName, &m.OwnerPhone, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMachine inserts m and sets m.ID. An empty ImageFile becomes models.DefaultImage.
func (s *Store) CreateMachine(ctx context.Context, m *models.Machine) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if m.ImageFile == "" {
		m.ImageFile = models.DefaultImage
	}
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO machines (name, category, price, description, image_file, image_name, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		m.Name, m.Category, m.Price, nullString(m.Description), m.ImageFile, m.ImageName, m.OwnerID)
	if err != nil {
		return fmt.Errorf("create machine: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

// ListMachines returns all listings in insertion order. A non-empty search
// keeps those whose name or category contains it (ASCII case-insensitive).
func (s *Store) ListMachines(ctx context.Context, search string) ([]models.Machine, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := machineSelect
	var args []any
	if search != "" {
		pattern := "%" + escapeLike(search) + "%"
		query += ` WHERE m.name LIKE ? ESCAPE '\' OR m.category LIKE ? ESCAPE '\'`
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY m.id`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	defer rows.Close()

	var machines []models.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		machines = append(machines, *m)
	}
	return machines, rows.Err()
}

func (s *Store) GetMachineByID(ctx context.Context, id int64) (*models.Machine, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	m, err := scanMachine(s.DB.QueryRowContext(ctx, machineSelect+` WHERE m.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get machine %d: %w", id, err)
	}
	return m, nil
}

// UpdateMachine loads the listing, lets apply check and change it, and
// writes name, category, price, description and image fields back, all in
// one transaction. An error from apply aborts without writing.
func (s *Store) UpdateMachine(ctx context.Context, id int64, apply func(m *models.Machine) error) (*models.Machine, error) {
	var updated *models.Machine
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := getMachineTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := apply(m); err != nil {
			return err
		}
		if m.ImageFile == "" {
			m.ImageFile = models.DefaultImage
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE machines
			SET name = ?, category = ?, price = ?, description = ?, image_file = ?, image_name = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			m.Name, m.Category, m.Price, nullString(m.Description), m.ImageFile, m.ImageName, m.ID)
		if err != nil {
			return fmt.Errorf("update machine %d: %w", id, err)
		}
		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteMachine removes the listing if authorize accepts it, in one
// transaction, and returns the removed record.
func (s *Store) DeleteMachine(ctx context.Context, id int64, authorize func(m *models.Machine) error) (*models.Machine, error) {
	var deleted *models.Machine
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := getMachineTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := authorize(m); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM machines WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete machine %d: %w", id, err)
		}
		deleted = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func getMachineTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Machine, error) {
	m, err := scanMachine(tx.QueryRowContext(ctx, machineSelect+` WHERE m.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get machine %d: %w", id, err)
	}
	return m, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
