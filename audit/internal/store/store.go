// Package store persists the run history and triage index in SQLite.
//
// Every write is a single transaction, so concurrent writers serialize on the
// database instead of racing a whole-file read-modify-write cycle.
package store

import "database/sql"

// Store wraps an open database with run-history and triage queries.
type Store struct {
	DB *sql.DB
}

// NewStore wraps an open database. Call ApplySchema before first use.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}
