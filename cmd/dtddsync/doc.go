// Command dtddsync tags Jellyfin items with DoesTheDogDie content warnings.
//
// One-shot subcommands (lookup, sync, index, history) build the same component
// graph the daemon uses and run in the foreground; `dtddsync daemon` starts the
// scheduler, event worker, and HTTP API.
package main
