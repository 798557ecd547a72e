// Package matching picks the DoesTheDogDie record that corresponds to a host
// title.
//
// Normalize applies the narrow comparison rule (case fold, trim, one leading
// article). Score weights a candidate so that title agreement dominates, year
// proximity comes next, and verification/popularity only break ties. Resolve
// filters by category, scores every candidate, and rejects winners that never
// reached at least a normalized title match.
//
// Everything here is a pure function of its inputs and safe for concurrent use.
package matching
