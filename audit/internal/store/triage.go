package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Triage mirrors audit.TriageMeta at the storage layer. EstimateHours is nil
// when no estimate has been set.
type Triage struct {
	Digest        string
	State         string
	Owner         string
	EstimateHours *float64
	Notes         string
	CreatedAt     int64
	UpdatedAt     int64
}

// SetState sets or clears the triage state for a digest. An empty state
// clears the disposition without deleting other metadata fields. The record
// is created on first triage action.
func (s *Store) SetState(ctx context.Context, digest, state string) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO triage (digest, state, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(digest) DO UPDATE SET state=excluded.state, updated_at=excluded.updated_at`,
		digest, state, now, now)
	return err
}

// MergeMeta applies a partial update: only non-nil fields overwrite the
// stored record. Runs in one transaction so concurrent merges can't lose
// each other's fields.
func (s *Store) MergeMeta(ctx context.Context, digest string, owner *string, estimateHours *float64, notes *string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO triage (digest, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(digest) DO NOTHING`, digest, now, now)
	if err != nil {
		return err
	}

	sets := []string{"updated_at = ?"}
	args := []any{now}
	if owner != nil {
		sets = append(sets, "owner = ?")
		args = append(args, *owner)
	}
	if estimateHours != nil {
		sets = append(sets, "estimate_hours = ?")
		args = append(args, *estimateHours)
	}
	if notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *notes)
	}
	args = append(args, digest)

	_, err = tx.ExecContext(ctx,
		`UPDATE triage SET `+strings.Join(sets, ", ")+` WHERE digest = ?`, args...)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// GetTriage returns triage records for the given digests. Unknown digests are
// simply absent from the result — never an error.
func (s *Store) GetTriage(ctx context.Context, digests []string) (map[string]*Triage, error) {
	out := make(map[string]*Triage, len(digests))
	if len(digests) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?,", len(digests))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(digests))
	for i, d := range digests {
		args[i] = d
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT digest, state, owner, estimate_hours, notes, created_at, updated_at
		FROM triage WHERE digest IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t Triage
		var estimate sql.NullFloat64
		if err := rows.Scan(&t.Digest, &t.State, &t.Owner, &estimate,
			&t.Notes, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan triage: %w", err)
		}
		if estimate.Valid {
			t.EstimateHours = &estimate.Float64
		}
		out[t.Digest] = &t
	}
	return out, rows.Err()
}
