package persistence

import (
	"context"
	"database/sql"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// The caller is responsible for importing a driver for its side effects,
// e.g. _ "github.com/jackc/pgx/v5/stdlib", and opening the *sql.DB.
type PostgresStore struct {
	*sqlStore
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore initializes the required schema in the given database and
// returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{sqlStore: &sqlStore{db: db, numbered: true}}
	if err := s.initSchema(context.Background(), []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			metadata BYTEA
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at, id)`,
		`CREATE TABLE IF NOT EXISTS projects (
			name TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		)`,
	}); err != nil {
		return nil, err
	}
	return s, nil
}
