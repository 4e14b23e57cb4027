package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Dashboard is one embedded-dashboard slot of the app shell: a stable key,
// a display title and the iframe URL the shell loads.
type Dashboard struct {
	Key       string    `json:"key"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListDashboards returns all configured dashboards ordered by key.
func (s *Store) ListDashboards(ctx context.Context) ([]Dashboard, error) {
	rows, err := s.db.Query(ctx,
		`SELECT key, title, url, updated_at FROM dashboards ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query dashboards: %w", err)
	}
	defer rows.Close()

	var dashboards []Dashboard
	for rows.Next() {
		var (
			d         Dashboard
			updatedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&d.Key, &d.Title, &d.URL, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan dashboard: %w", err)
		}
		if updatedAt.Valid {
			d.UpdatedAt = updatedAt.Time
		}
		dashboards = append(dashboards, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read dashboards: %w", err)
	}

	return dashboards, nil
}

// SaveDashboard creates or replaces the dashboard stored under key.
func (s *Store) SaveDashboard(ctx context.Context, key, title, url string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO dashboards (key, title, url, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (key) DO UPDATE
		 SET title = EXCLUDED.title, url = EXCLUDED.url, updated_at = now()`,
		key, title, url)
	if err != nil {
		return fmt.Errorf("save dashboard %q: %w", key, err)
	}
	return nil
}
