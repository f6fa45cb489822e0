//go:build integration

// Package testdb provides helpers for PostgreSQL integration tests.
//
// Tests using it are compiled only with the integration build tag and skip
// themselves when no database URL is configured:
//
//	func TestSomething(t *testing.T) {
//	    db := testdb.GetTestDBWithT(t)
//	    testdb.SetupTestDatabaseSchema(t, db)
//	    testdb.ResetTables(t, db)
//	    ...
//	}
//
// # Environment Variables
//
// - DATABASE_URL: primary connection string
// - LEDGER_TEST_DB_URL: alternative connection string
package testdb
