// Package daemonrun wires configuration into running components.
//
// Assemble builds the DTDD lookup, Jellyfin client, ledger, enricher, and
// trigger index store from a loaded config. Run adds logging, log retention,
// and signal handling around a daemon built from those components.
package daemonrun
