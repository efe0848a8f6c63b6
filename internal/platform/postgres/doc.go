// Package postgres provides the PostgreSQL implementation of store.RunStore
// together with the embedded goose migrations that create its schema.
// Runs are stored as one row each; URLs and per-URL items are JSONB columns.
package postgres
