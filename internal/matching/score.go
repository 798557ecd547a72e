package matching

import (
	"strconv"
	"strings"

	"dtddsync/internal/catalog"
)

// Score weights. A normalized title match (70) is the minimum acceptable
// score; the non-title bonuses together top out at 65.
const (
	ScoreExactTitle      = 100
	ScoreNormalizedTitle = 80
	ScoreCleanName       = 70
	ScoreYearExact       = 50
	ScoreYearAdjacent    = 25
	ScoreStaffVerified   = 10
	ScoreVerified        = 5
	ScorePopular         = 5

	popularRatingsFloor = 100
)

// Breakdown records each scoring component for a single candidate.
type Breakdown struct {
	Title        int
	Year         int
	Verification int
	Popularity   int
	TitleMatch   string
}

// Total sums the components.
func (b Breakdown) Total() int {
	return b.Title + b.Year + b.Verification + b.Popularity
}

// Score returns the total match score of candidate against query.
func Score(candidate catalog.Candidate, query catalog.Query) int {
	return Explain(candidate, query).Total()
}

// Explain scores candidate against query and returns the per-component values.
func Explain(candidate catalog.Candidate, query catalog.Query) Breakdown {
	var b Breakdown
	b.Title, b.TitleMatch = titleScore(candidate, query.Title)
	b.Year = yearScore(candidate.ReleaseYear, query.Year)
	switch {
	case candidate.StaffVerified:
		b.Verification = ScoreStaffVerified
	case candidate.Verified:
		b.Verification = ScoreVerified
	}
	if candidate.NumRatings > popularRatingsFloor {
		b.Popularity = ScorePopular
	}
	return b
}

func titleScore(candidate catalog.Candidate, title string) (int, string) {
	if strings.EqualFold(candidate.Name, title) {
		return ScoreExactTitle, "exact"
	}
	queryNormalized := Normalize(title)
	if Normalize(candidate.Name) == queryNormalized {
		return ScoreNormalizedTitle, "normalized"
	}
	clean := strings.ToLower(strings.TrimSpace(candidate.NormalizedName))
	if clean != "" && clean == queryNormalized {
		return ScoreCleanName, "clean_name"
	}
	return 0, "none"
}

func yearScore(releaseYear string, queryYear int) int {
	if queryYear <= 0 {
		return 0
	}
	year, ok := ParseYear(releaseYear)
	if !ok {
		return 0
	}
	switch diff := year - queryYear; {
	case diff == 0:
		return ScoreYearExact
	case diff == 1 || diff == -1:
		return ScoreYearAdjacent
	default:
		return 0
	}
}

// ParseYear reads a release year such as "2014". Values that are not a bare
// integer, dates included, carry no year.
func ParseYear(value string) (int, bool) {
	year, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || year <= 0 {
		return 0, false
	}
	return year, true
}
