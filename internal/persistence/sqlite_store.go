package persistence

import (
	"context"
	"database/sql"
)

// SQLiteStore is a Store backed by SQLite.
//
// It expects an *sql.DB opened with a SQLite driver, for example
// modernc.org/sqlite registered as "sqlite".
type SQLiteStore struct {
	*sqlStore
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{sqlStore: &sqlStore{db: db}}
	if err := s.initSchema(context.Background(), []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			metadata BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at, id)`,
		`CREATE TABLE IF NOT EXISTS projects (
			name TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
	}); err != nil {
		return nil, err
	}
	return s, nil
}
