// Package daemon runs dtddsync as a long-lived service.
//
// It owns the single-instance flock, the scheduled library sync, a worker that
// drains host item events, and the HTTP API. Sync and index work is delegated
// to the enrich and triggerindex packages; the daemon only decides when it
// runs and reports the outcome through notifications.
package daemon
