package catalog

import (
	"fmt"
	"strings"
)

// Category is the DTDD item type id used to partition search results.
type Category int

const (
	CategoryUnknown Category = 0
	CategoryMovie   Category = 15
	CategorySeries  Category = 16
)

func (c Category) String() string {
	switch c {
	case CategoryMovie:
		return "movie"
	case CategorySeries:
		return "series"
	default:
		return "unknown"
	}
}

// ParseCategory maps user/config input ("movie", "tv", "series") to a Category.
func ParseCategory(value string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "movie", "movies", "film":
		return CategoryMovie, nil
	case "series", "tv", "show", "season", "episode":
		return CategorySeries, nil
	default:
		return CategoryUnknown, fmt.Errorf("unknown category %q", value)
	}
}

// CategoryHint describes what kind of host item is being enriched.
type CategoryHint string

const (
	HintMovie   CategoryHint = "movie"
	HintSeries  CategoryHint = "series"
	HintSeason  CategoryHint = "season"
	HintEpisode CategoryHint = "episode"
)

// Category returns the DTDD category used to resolve items of this kind.
// Seasons and episodes resolve through their series.
func (h CategoryHint) Category() Category {
	switch h {
	case HintMovie:
		return CategoryMovie
	case HintSeries, HintSeason, HintEpisode:
		return CategorySeries
	default:
		return CategoryUnknown
	}
}

// UsesParentIdentity reports whether items of this kind resolve via their series.
func (h CategoryHint) UsesParentIdentity() bool {
	return h == HintSeason || h == HintEpisode
}

// Query is a single lookup request. Year is zero when unknown.
type Query struct {
	Title      string
	Year       int
	Category   Category
	ExternalID string
}

// Candidate is a DTDD record returned by a search, not yet confirmed as the match.
type Candidate struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	NormalizedName string `json:"normalizedName,omitempty"`
	ReleaseYear    string `json:"releaseYear,omitempty"`
	TMDBID         string `json:"tmdbId,omitempty"`
	IMDBID         string `json:"imdbId,omitempty"`
	Verified       bool   `json:"verified"`
	StaffVerified  bool   `json:"staffVerified"`
	NumRatings     int    `json:"numRatings"`
	CategoryID     int    `json:"categoryId"`
}

// RawCategory is a topic category as it appears in a detail payload.
type RawCategory struct {
	ID   int
	Name string
}

// RawTopic is a topic as it appears in a detail payload.
type RawTopic struct {
	ID           int
	Name         string
	QuestionForm string
	CategoryID   int
	Category     *RawCategory
}

// RawStat is one per-topic vote tally from a detail payload.
type RawStat struct {
	Topic    *RawTopic
	Category *RawCategory
	YesVotes int
	NoVotes  int
}

// Details is the result of a detail fetch for a single record.
type Details struct {
	Record Candidate
	Stats  []RawStat
}

// TopicStat is the normalized vote tally for a single trigger topic.
// CategoryID is zero when the payload did not carry one.
type TopicStat struct {
	TopicID      int
	CategoryID   int
	CategoryName string
	TopicName    string
	YesVotes     int
	NoVotes      int
}

// NewTopicStat builds a TopicStat from a raw detail entry. It reports false when
// the entry has no topic.
func NewTopicStat(raw RawStat) (TopicStat, bool) {
	if raw.Topic == nil {
		return TopicStat{}, false
	}
	stat := TopicStat{
		TopicID:   raw.Topic.ID,
		TopicName: strings.TrimSpace(raw.Topic.Name),
		YesVotes:  raw.YesVotes,
		NoVotes:   raw.NoVotes,
	}
	stat.CategoryID, stat.CategoryName = raw.CategoryRef()
	return stat, true
}

// CategoryRef resolves the category a stat is filed under. The topic's own
// category id wins, then a non-zero nested topic category, then a non-zero
// stat-level category. It returns 0 when none carries an id.
func (s RawStat) CategoryRef() (int, string) {
	if s.Topic == nil {
		return 0, ""
	}
	var name string
	if s.Topic.Category != nil {
		name = s.Topic.Category.Name
	} else if s.Category != nil {
		name = s.Category.Name
	}
	switch {
	case s.Topic.CategoryID != 0:
		return s.Topic.CategoryID, strings.TrimSpace(name)
	case s.Topic.Category != nil && s.Topic.Category.ID != 0:
		return s.Topic.Category.ID, strings.TrimSpace(s.Topic.Category.Name)
	case s.Category != nil && s.Category.ID != 0:
		return s.Category.ID, strings.TrimSpace(s.Category.Name)
	default:
		return 0, ""
	}
}

// TotalVotes returns yes + no.
func (s TopicStat) TotalVotes() int {
	return s.YesVotes + s.NoVotes
}

// IsPositive reports a strict yes majority; a tie is negative.
func (s TopicStat) IsPositive() bool {
	return s.YesVotes > s.NoVotes
}

// ConfidencePercent is the share of the majority direction, 0 when there are no votes.
func (s TopicStat) ConfidencePercent() float64 {
	total := s.TotalVotes()
	if total == 0 {
		return 0
	}
	majority := max(s.YesVotes, s.NoVotes)
	return float64(majority) / float64(total) * 100
}

// MustValid panics when the stat violates the non-negative vote invariant.
func (s TopicStat) MustValid() {
	if s.YesVotes < 0 || s.NoVotes < 0 {
		panic(fmt.Sprintf("catalog: topic %d has negative votes (yes=%d no=%d)", s.TopicID, s.YesVotes, s.NoVotes))
	}
}
