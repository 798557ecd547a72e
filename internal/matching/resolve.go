package matching

import (
	"strings"

	"dtddsync/internal/catalog"
)

// MinimumScore is the lowest winning score Resolve accepts.
const MinimumScore = ScoreCleanName

// Scored pairs a candidate with its breakdown, in input order.
type Scored struct {
	Candidate catalog.Candidate
	Breakdown Breakdown
}

// Resolve returns the best candidate for query, or false when nothing in the
// required category reaches MinimumScore. Ties go to the earliest candidate.
func Resolve(candidates []catalog.Candidate, query catalog.Query) (catalog.Candidate, bool) {
	best, ok := Rank(candidates, query)
	if !ok || best.Breakdown.Total() < MinimumScore {
		return catalog.Candidate{}, false
	}
	return best.Candidate, true
}

// Rank scores every candidate in the required category and returns the first
// highest-scoring one without applying MinimumScore.
func Rank(candidates []catalog.Candidate, query catalog.Query) (Scored, bool) {
	var (
		best  Scored
		found bool
	)
	for _, candidate := range candidates {
		if catalog.Category(candidate.CategoryID) != query.Category {
			continue
		}
		breakdown := Explain(candidate, query)
		if !found || breakdown.Total() > best.Breakdown.Total() {
			best = Scored{Candidate: candidate, Breakdown: breakdown}
			found = true
		}
	}
	return best, found
}

// ScoreAll returns the breakdown of every category-matching candidate in input order.
func ScoreAll(candidates []catalog.Candidate, query catalog.Query) []Scored {
	scored := make([]Scored, 0, len(candidates))
	for _, candidate := range candidates {
		if catalog.Category(candidate.CategoryID) != query.Category {
			continue
		}
		scored = append(scored, Scored{Candidate: candidate, Breakdown: Explain(candidate, query)})
	}
	return scored
}

// ResolveExternal picks the first category-matching candidate whose IMDb or
// TMDB id equals query.ExternalID. Without such a candidate it falls back to
// Resolve so a title check still guards the result.
func ResolveExternal(candidates []catalog.Candidate, query catalog.Query) (catalog.Candidate, bool) {
	externalID := strings.TrimSpace(query.ExternalID)
	if externalID != "" {
		for _, candidate := range candidates {
			if catalog.Category(candidate.CategoryID) != query.Category {
				continue
			}
			if strings.EqualFold(candidate.IMDBID, externalID) || candidate.TMDBID == externalID {
				return candidate, true
			}
		}
	}
	return Resolve(candidates, query)
}
