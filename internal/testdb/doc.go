// Package testdb provides helpers for integration tests that need a real
// Postgres database.
//
// Tests call GetTestDBWithT, which skips the test unless FANOUT_TEST_DB_URL
// or DATABASE_URL is set, and otherwise returns a migrated connection that
// is closed when the test ends. Tests isolate their data either by working
// inside WithTx, which always rolls back, or by deleting the runs they
// created with CleanupRuns.
package testdb
