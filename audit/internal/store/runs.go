package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Run mirrors audit.RunMeta at the storage layer.
type Run struct {
	ID        string
	URL       string
	Origin    string
	Status    string
	Pages     int
	Journeys  int
	Issues    int
	Digests   []string
	CreatedAt int64
}

// UpsertRun inserts a run record, replacing any existing record with the same
// id. Records are never amended in place.
func (s *Store) UpsertRun(ctx context.Context, r *Run) error {
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}
	digests, err := json.Marshal(r.Digests)
	if err != nil {
		return fmt.Errorf("marshal digests: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO runs (id, url, origin, status, pages, journeys, issues, digests, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url=excluded.url, origin=excluded.origin, status=excluded.status,
			pages=excluded.pages, journeys=excluded.journeys, issues=excluded.issues,
			digests=excluded.digests, created_at=excluded.created_at`,
		r.ID, r.URL, r.Origin, r.Status, r.Pages, r.Journeys, r.Issues,
		string(digests), r.CreatedAt,
	)
	return err
}

// GetRun retrieves one run by id, or nil when unknown.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, url, origin, status, pages, journeys, issues, digests, created_at
		FROM runs WHERE id = ?`, id)
	return scanRun(row.Scan)
}

// ListRuns returns runs sorted by creation time descending, optionally
// filtered to one origin.
func (s *Store) ListRuns(ctx context.Context, origin string) ([]*Run, error) {
	query := `SELECT id, url, origin, status, pages, journeys, issues, digests, created_at
		FROM runs ORDER BY created_at DESC`
	args := []any{}
	if origin != "" {
		query = `SELECT id, url, origin, status, pages, journeys, issues, digests, created_at
			FROM runs WHERE origin = ? ORDER BY created_at DESC`
		args = append(args, origin)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanRun(scan func(...any) error) (*Run, error) {
	var r Run
	var digestsJSON string
	err := scan(&r.ID, &r.URL, &r.Origin, &r.Status,
		&r.Pages, &r.Journeys, &r.Issues, &digestsJSON, &r.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(digestsJSON), &r.Digests); err != nil {
		return nil, fmt.Errorf("unmarshal digests: %w", err)
	}
	return &r, nil
}
