// Package ledger records the outcome of every item sync in SQLite.
//
// One row per host item holds the latest outcome, the resolved DTDD id, and
// tag counts; one row per sync run holds aggregate counters. Scheduled runs
// consult the ledger to skip items refreshed recently, and the CLI and HTTP
// API read it for history and status. Schema changes ship as goose migrations.
package ledger
