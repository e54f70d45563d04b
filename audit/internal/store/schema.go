package store

import "database/sql"

// Schema holds the run-history list and the digest-keyed triage map.
const Schema = `
-- One row per completed audit job. Re-recording the same id replaces the row.
CREATE TABLE IF NOT EXISTS runs (
    id         TEXT PRIMARY KEY,
    url        TEXT NOT NULL,
    origin     TEXT NOT NULL,
    status     TEXT NOT NULL,
    pages      INTEGER NOT NULL DEFAULT 0,
    journeys   INTEGER NOT NULL DEFAULT 0,
    issues     INTEGER NOT NULL DEFAULT 0,
    digests    TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_origin ON runs(origin, created_at DESC);

-- Triage records are keyed purely by digest, never by run: this is what lets
-- a disposition survive issue re-discovery in later scans.
CREATE TABLE IF NOT EXISTS triage (
    digest         TEXT PRIMARY KEY,
    state          TEXT NOT NULL DEFAULT '',
    owner          TEXT NOT NULL DEFAULT '',
    estimate_hours REAL,
    notes          TEXT NOT NULL DEFAULT '',
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
