// Package jellyfin reads and writes the Jellyfin items whose tags dtddsync
// manages.
//
// Library is the host boundary used by the enrichment pipeline: list the
// movies, series, and seasons to sync, fetch a single item, and write back its
// tag list and DTDD provider id. Updates round-trip the full item payload so
// fields dtddsync does not own are preserved.
package jellyfin
