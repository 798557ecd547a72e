package triggers

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"dtddsync/internal/catalog"
)

// Index lists every trigger topic observed so far, grouped by category.
type Index struct {
	LastRefreshed time.Time       `json:"lastRefreshed"`
	Categories    []IndexCategory `json:"categories"`
}

// IndexCategory is one category and its topics.
type IndexCategory struct {
	ID     int          `json:"id"`
	Name   string       `json:"name"`
	Topics []IndexTopic `json:"topics"`
}

// IndexTopic is a single trigger topic.
type IndexTopic struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	QuestionForm string `json:"questionForm,omitempty"`
}

// Empty reports whether the index has no categories.
func (idx Index) Empty() bool {
	return len(idx.Categories) == 0
}

// TopicCount returns the number of topics across all categories.
func (idx Index) TopicCount() int {
	count := 0
	for _, category := range idx.Categories {
		count += len(category.Topics)
	}
	return count
}

// Clone returns a deep copy of idx.
func (idx Index) Clone() Index {
	out := Index{LastRefreshed: idx.LastRefreshed}
	if idx.Categories == nil {
		return out
	}
	out.Categories = make([]IndexCategory, len(idx.Categories))
	for i, category := range idx.Categories {
		out.Categories[i] = IndexCategory{
			ID:     category.ID,
			Name:   category.Name,
			Topics: append([]IndexTopic(nil), category.Topics...),
		}
	}
	return out
}

// Fold adds the topics in stats to idx and returns the updated copy. The first
// observation of a topic wins; later observations never rename it. Stats with
// no topic or no resolvable category id are skipped.
func Fold(stats []catalog.RawStat, idx Index) Index {
	out := idx.Clone()
	positions := make(map[int]int, len(out.Categories))
	for i, category := range out.Categories {
		positions[category.ID] = i
	}

	for _, stat := range stats {
		if stat.Topic == nil {
			continue
		}
		categoryID, categoryName := stat.CategoryRef()
		if categoryID == 0 {
			continue
		}
		pos, ok := positions[categoryID]
		if !ok {
			out.Categories = append(out.Categories, IndexCategory{ID: categoryID, Name: categoryName})
			pos = len(out.Categories) - 1
			positions[categoryID] = pos
		} else if out.Categories[pos].Name == "" && categoryName != "" {
			out.Categories[pos].Name = categoryName
		}

		category := &out.Categories[pos]
		if hasTopic(category.Topics, stat.Topic.ID) {
			continue
		}
		category.Topics = append(category.Topics, IndexTopic{
			ID:           stat.Topic.ID,
			Name:         strings.TrimSpace(stat.Topic.Name),
			QuestionForm: strings.TrimSpace(stat.Topic.QuestionForm),
		})
	}
	return out
}

func hasTopic(topics []IndexTopic, id int) bool {
	for _, topic := range topics {
		if topic.ID == id {
			return true
		}
	}
	return false
}

// MergeIndexes folds partial indexes together in the given order, applying the
// same first-seen rule as Fold.
func MergeIndexes(parts ...Index) Index {
	var out Index
	for _, part := range parts {
		for _, category := range part.Categories {
			raw := make([]catalog.RawStat, 0, len(category.Topics))
			for _, topic := range category.Topics {
				raw = append(raw, catalog.RawStat{Topic: &catalog.RawTopic{
					ID:           topic.ID,
					Name:         topic.Name,
					QuestionForm: topic.QuestionForm,
					CategoryID:   category.ID,
					Category:     &catalog.RawCategory{ID: category.ID, Name: category.Name},
				}})
			}
			if len(raw) == 0 {
				if findCategory(out.Categories, category.ID) < 0 {
					out.Categories = append(out.Categories, IndexCategory{ID: category.ID, Name: category.Name})
				}
				continue
			}
			out = Fold(raw, out)
		}
		if part.LastRefreshed.After(out.LastRefreshed) {
			out.LastRefreshed = part.LastRefreshed
		}
	}
	return out
}

func findCategory(categories []IndexCategory, id int) int {
	for i, category := range categories {
		if category.ID == id {
			return i
		}
	}
	return -1
}

// SortIndex orders categories and their topics alphabetically by name
// (case-insensitive, id breaks ties). Unnamed categories get a placeholder.
func SortIndex(idx Index) Index {
	out := idx.Clone()
	for i := range out.Categories {
		if out.Categories[i].Name == "" {
			out.Categories[i].Name = fmt.Sprintf("Category %d", out.Categories[i].ID)
		}
		topics := out.Categories[i].Topics
		sort.SliceStable(topics, func(a, b int) bool {
			return lessByName(topics[a].Name, topics[a].ID, topics[b].Name, topics[b].ID)
		})
	}
	sort.SliceStable(out.Categories, func(a, b int) bool {
		return lessByName(out.Categories[a].Name, out.Categories[a].ID, out.Categories[b].Name, out.Categories[b].ID)
	})
	return out
}

func lessByName(nameA string, idA int, nameB string, idB int) bool {
	la, lb := strings.ToLower(nameA), strings.ToLower(nameB)
	if la != lb {
		return la < lb
	}
	return idA < idB
}
