// Package enrich runs the per-item pipeline that turns DTDD vote data into
// Jellyfin tags.
//
// For each host item the Enricher resolves a DTDD record (stored id, external
// id, then title search), classifies the record's topic stats under the
// configured policy, reconciles the managed tags, and writes the item back only
// when its tags or stored DTDD id changed. Seasons and episodes resolve through
// their series. Every outcome is recorded in the sync ledger; Run applies the
// same pipeline to a whole library listing.
package enrich
