package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/petrijr/orchestra/internal/testutil"
)

func TestPostgresStoreSuite(t *testing.T) {
	dsn := testutil.PostgresDSN(t)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	suite.Run(t, &storeSuite{open: func(t *testing.T) Store {
		_, err := db.ExecContext(context.Background(), `TRUNCATE sessions, projects`)
		require.NoError(t, err)
		return store
	}})
}
