// Package triggerindex builds and persists the catalog of known trigger topics.
//
// The index is folded from the detail payloads of a fixed list of seed titles
// chosen for broad topic coverage, so it can be built without enumerating the
// remote catalog. Store keeps the sorted result in a JSON file guarded by an
// in-process mutex and a file lock, building it on first use and rebuilding on
// demand.
package triggerindex
