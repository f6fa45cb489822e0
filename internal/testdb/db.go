//go:build integration

package testdb

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/phrazzld/contacts-ledger/internal/config"
	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
	"github.com/phrazzld/contacts-ledger/internal/platform/postgres"
	"github.com/stretchr/testify/require"
)

// TestTimeout defines a default timeout for test database operations.
const TestTimeout = 10 * time.Second

// IsIntegrationTestEnvironment reports whether a test database URL is set.
func IsIntegrationTestEnvironment() bool {
	return GetTestDatabaseURL() != ""
}

// GetTestDatabaseURL returns DATABASE_URL, falling back to LEDGER_TEST_DB_URL.
func GetTestDatabaseURL() string {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL
	}
	return os.Getenv("LEDGER_TEST_DB_URL")
}

// GetTestDBWithT opens a connection pool to the test database and registers
// its cleanup. The test is skipped when no database URL is set.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		t.Skip("DATABASE_URL or LEDGER_TEST_DB_URL not set - skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	db, err := postgres.Open(ctx, config.DatabaseConfig{
		Driver:          config.DriverPostgres,
		URL:             dbURL,
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	require.NoError(t, err, "failed to connect to %s", maskDatabaseURL(dbURL))

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close database connection: %v", err)
		}
	})
	return db
}

// SetupTestDatabaseSchema applies the embedded migrations.
func SetupTestDatabaseSchema(t *testing.T, db *sql.DB) {
	t.Helper()

	buf, log := logger.NewTestLogger(t)
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	if err := postgres.Migrate(ctx, db, log); err != nil {
		t.Logf("migration log:\n%s", buf.String())
		require.NoError(t, err, "failed to run migrations")
	}
}

// ResetTables removes all contacts and operations. TRUNCATE bypasses the
// row-level append-only trigger on operations.
func ResetTables(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`TRUNCATE operations, contacts`)
	require.NoError(t, err, "failed to truncate tables")
}

func maskDatabaseURL(dbURL string) string {
	parsed, err := url.Parse(dbURL)
	if err != nil {
		return "invalid-url"
	}
	if parsed.User != nil {
		parsed.User = url.UserPassword(parsed.User.Username(), "****")
	}
	return parsed.String()
}
