package triggers

import (
	"sort"

	"dtddsync/internal/catalog"
)

// Policy controls which triggers become tags and how they are spelled.
type Policy struct {
	PositivePrefix    string
	NegativePrefix    string
	MinVotes          int
	ShowAll           bool
	EnabledCategories map[int]struct{}
	EnabledTopics     map[int]struct{}
}

// NewIDSet builds an allow-list from ids, ignoring non-positive values.
func NewIDSet(ids ...int) map[int]struct{} {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if id > 0 {
			set[id] = struct{}{}
		}
	}
	return set
}

// Filtering reports whether the allow-lists restrict output.
func (p Policy) Filtering() bool {
	return !p.ShowAll && len(p.EnabledCategories) > 0
}

// Allows reports whether stat passes the vote threshold and allow-lists.
func (p Policy) Allows(stat catalog.TopicStat) bool {
	if stat.TotalVotes() < p.MinVotes {
		return false
	}
	if !p.Filtering() {
		return true
	}
	if stat.CategoryID == 0 {
		return false
	}
	if _, ok := p.EnabledCategories[stat.CategoryID]; !ok {
		return false
	}
	if len(p.EnabledTopics) == 0 {
		return true
	}
	_, ok := p.EnabledTopics[stat.TopicID]
	return ok
}

// Trigger is a classified topic with its derived confidence.
type Trigger struct {
	catalog.TopicStat
	Confidence float64
}

// ClassifiedSet partitions the included topics by vote direction.
// Unfiltered is set when no allow-list restricted the result.
type ClassifiedSet struct {
	Positive   []Trigger
	Negative   []Trigger
	Unfiltered bool
}

// Len returns the number of classified triggers.
func (s ClassifiedSet) Len() int {
	return len(s.Positive) + len(s.Negative)
}

// Classify filters stats through policy. Positive triggers are ordered by yes
// votes and negative triggers by no votes, both descending and stable on input
// order. A negative vote count panics.
func Classify(stats []catalog.TopicStat, policy Policy) ClassifiedSet {
	set := ClassifiedSet{Unfiltered: !policy.Filtering()}
	for _, stat := range stats {
		stat.MustValid()
		if !policy.Allows(stat) {
			continue
		}
		trigger := Trigger{TopicStat: stat, Confidence: stat.ConfidencePercent()}
		if stat.IsPositive() {
			set.Positive = append(set.Positive, trigger)
		} else {
			set.Negative = append(set.Negative, trigger)
		}
	}
	sort.SliceStable(set.Positive, func(i, j int) bool {
		return set.Positive[i].YesVotes > set.Positive[j].YesVotes
	})
	sort.SliceStable(set.Negative, func(i, j int) bool {
		return set.Negative[i].NoVotes > set.Negative[j].NoVotes
	})
	return set
}

// ClassifyRaw converts raw detail entries and classifies them. Entries without
// a topic are dropped.
func ClassifyRaw(raw []catalog.RawStat, policy Policy) ClassifiedSet {
	stats := make([]catalog.TopicStat, 0, len(raw))
	for _, entry := range raw {
		if stat, ok := catalog.NewTopicStat(entry); ok {
			stats = append(stats, stat)
		}
	}
	return Classify(stats, policy)
}
