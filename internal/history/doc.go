// Package history persists finished runs and per-owner totals in SQLite.
//
// Each run summary is written once, together with its pair outcomes, and the
// owner's running totals are updated in the same transaction. Writes retry
// briefly when the database is busy so the daemon and a CLI reading history
// can share the file.
package history
