// Package store defines the persistence contract for runs.
// Implementations live under internal/platform: an in-memory store for
// single-process deployments and a PostgreSQL store.
package store
