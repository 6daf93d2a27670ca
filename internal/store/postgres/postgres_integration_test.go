package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dukkan/backend/internal/store/storetest"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()

	databaseURL := os.Getenv("DUKKAN_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set DUKKAN_TEST_DATABASE_URL to run postgres integration test")
	}

	require.NoError(t, Migrate(databaseURL))

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	require.NoError(t, err)

	cleanup := func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection LIKE 'st\_%'`)
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		_ = s.Close()
	})
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, newIntegrationStore(t))
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/db?sslmode=disable", migrateURL("postgres://u:p@localhost:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://localhost/db", migrateURL("postgresql://localhost/db"))
	assert.Equal(t, "pgx5://already", migrateURL("pgx5://already"))
}
