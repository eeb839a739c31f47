package persistence

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	_ "modernc.org/sqlite"
)

func newTestSQLiteStore(t *testing.T) Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Every pooled connection would otherwise get its own empty database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, &storeSuite{open: newTestSQLiteStore})
}

func TestSQLiteStore_SchemaIsIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	_, err = NewSQLiteStore(db)
	require.NoError(t, err)
	_, err = NewSQLiteStore(db)
	require.NoError(t, err)
}

func TestRebind(t *testing.T) {
	plain := &sqlStore{}
	numbered := &sqlStore{numbered: true}

	q := "UPDATE t SET a = ?, b = ? WHERE id = ?"
	require.Equal(t, q, plain.rebind(q))
	require.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE id = $3", numbered.rebind(q))
}
