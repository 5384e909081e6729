// Package repositories implements SQLite persistence for synthesis history.
//
// [RunRepository] stores each run with one row per suggestion outcome, written in a single transaction.
// Runs are soft deleted via deleted_at and excluded from queries once deleted.
//
// Sequence numbers give runs a stable, human-readable ordering independent of their UUIDs.
// [NextSequence] atomically increments the per-table counter kept in a dedicated sequence table.
package repositories
