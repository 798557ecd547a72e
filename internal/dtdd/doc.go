// Package dtdd talks to the DoesTheDogDie API.
//
// Client maps the search and media detail endpoints onto catalog types and
// classifies failures with the services error markers. Lookup wraps any
// Catalog with a response cache, fixed request pacing, and bounded retries for
// transient failures so batch syncs stay within the API's rate limits.
package dtdd
