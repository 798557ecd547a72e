// Package triggers turns DoesTheDogDie vote tallies into host tags.
//
// Classify applies the vote threshold and category/topic allow-lists and
// orders the survivors. Reconcile merges a classified set into an existing tag
// list: every tag carrying one of the configured prefixes is rebuilt on each
// pass, unrelated tags are kept in place, and the changed flag lets callers
// skip no-op write-backs. Fold accumulates observed topics into the
// category index that backs the trigger filter list.
//
// All functions are pure; callers own persistence and write serialization.
package triggers
