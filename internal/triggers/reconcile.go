package triggers

import (
	"strings"

	"golang.org/x/text/cases"
)

// Tag formats a trigger tag as "{prefix} {topic}".
func Tag(prefix, topic string) string {
	return strings.TrimSpace(prefix) + " " + strings.TrimSpace(topic)
}

// Reconcile rebuilds the prefixed tags in existing from set. Unprefixed tags
// keep their relative order and new tags are appended after them, positives
// first. changed is false when the result holds the same tags as existing,
// ignoring order. existing is never modified.
func Reconcile(existing []string, set ClassifiedSet, policy Policy) ([]string, bool) {
	fold := cases.Fold()
	positive := fold.String(strings.TrimSpace(policy.PositivePrefix))
	negative := fold.String(strings.TrimSpace(policy.NegativePrefix))

	result := make([]string, 0, len(existing)+set.Len())
	for _, tag := range existing {
		if isManaged(fold.String(tag), positive, negative) {
			continue
		}
		result = append(result, tag)
	}

	seen := make(map[string]struct{}, set.Len())
	add := func(prefix, topic string) {
		tag := Tag(prefix, topic)
		key := fold.String(tag)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		result = append(result, tag)
	}
	for _, trigger := range set.Positive {
		add(policy.PositivePrefix, trigger.TopicName)
	}
	for _, trigger := range set.Negative {
		add(policy.NegativePrefix, trigger.TopicName)
	}

	return result, !sameTags(existing, result)
}

// Strip removes every managed tag from existing.
func Strip(existing []string, policy Policy) ([]string, bool) {
	return Reconcile(existing, ClassifiedSet{}, policy)
}

// ManagedTags returns the tags in existing that carry either prefix.
func ManagedTags(existing []string, policy Policy) []string {
	fold := cases.Fold()
	positive := fold.String(strings.TrimSpace(policy.PositivePrefix))
	negative := fold.String(strings.TrimSpace(policy.NegativePrefix))
	var managed []string
	for _, tag := range existing {
		if isManaged(fold.String(tag), positive, negative) {
			managed = append(managed, tag)
		}
	}
	return managed
}

func isManaged(folded, positive, negative string) bool {
	if positive != "" && strings.HasPrefix(folded, positive) {
		return true
	}
	return negative != "" && strings.HasPrefix(folded, negative)
}

func sameTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, tag := range a {
		counts[tag]++
	}
	for _, tag := range b {
		if counts[tag] == 0 {
			return false
		}
		counts[tag]--
	}
	return true
}
