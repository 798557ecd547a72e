// Package catalog defines the shared data model for DoesTheDogDie lookups.
//
// Queries, candidate records, and per-topic vote statistics live here so the
// matching and trigger packages can stay pure functions over plain values. The
// dtdd client decodes wire payloads into these types; nothing in this package
// performs IO.
package catalog
