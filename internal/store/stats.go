package store

import (
	"context"
	"fmt"
)

type Stats struct {
	TotalUsers    int
	TotalMachines int
	ByCategory    []CategoryCount
}

type CategoryCount struct {
	Category string
	Count    int
}

// GetStats summarises accounts and listings, largest categories first.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	stats := &Stats{}

	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&stats.TotalUsers); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM machines`).Scan(&stats.TotalMachines); err != nil {
		return nil, fmt.Errorf("count machines: %w", err)
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT category, COUNT(*) AS n
		FROM machines
		GROUP BY category
		ORDER BY n DESC, category
	`)
	if err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count); err != nil {
			return nil, err
		}
		stats.ByCategory = append(stats.ByCategory, cc)
	}
	return stats, rows.Err()
}
