package dtdd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"dtddsync/internal/catalog"
)

// flexString accepts JSON strings, numbers, and null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

type searchResponse struct {
	Items []wireItem `json:"items"`
}

type wireItem struct {
	ID            int        `json:"id"`
	Name          string     `json:"name"`
	CleanName     string     `json:"cleanName"`
	ReleaseYear   flexString `json:"releaseYear"`
	TMDBID        flexString `json:"tmdbId"`
	IMDBID        flexString `json:"imdbId"`
	ItemTypeID    int        `json:"itemTypeId"`
	Verified      bool       `json:"verified"`
	StaffVerified bool       `json:"staffVerified"`
	NumRatings    int        `json:"numRatings"`
	ItemType      *struct {
		ID int `json:"id"`
	} `json:"ItemType"`
}

type detailResponse struct {
	Item           *wireItem  `json:"item"`
	TopicItemStats []wireStat `json:"topicItemStats"`
}

type wireCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type wireTopic struct {
	ID              int           `json:"id"`
	Name            string        `json:"name"`
	DoesName        string        `json:"doesName"`
	TopicCategoryID int           `json:"TopicCategoryId"`
	TopicCategory   *wireCategory `json:"TopicCategory"`
}

type wireStat struct {
	Topic         *wireTopic    `json:"topic"`
	TopicCategory *wireCategory `json:"TopicCategory"`
	YesSum        int           `json:"yesSum"`
	NoSum         int           `json:"noSum"`
}

func (w wireItem) candidate() catalog.Candidate {
	categoryID := w.ItemTypeID
	if categoryID == 0 && w.ItemType != nil {
		categoryID = w.ItemType.ID
	}
	return catalog.Candidate{
		ID:             w.ID,
		Name:           strings.TrimSpace(w.Name),
		NormalizedName: strings.TrimSpace(w.CleanName),
		ReleaseYear:    string(w.ReleaseYear),
		TMDBID:         string(w.TMDBID),
		IMDBID:         string(w.IMDBID),
		Verified:       w.Verified,
		StaffVerified:  w.StaffVerified,
		NumRatings:     w.NumRatings,
		CategoryID:     categoryID,
	}
}

func toCategory(w *wireCategory) *catalog.RawCategory {
	if w == nil {
		return nil
	}
	return &catalog.RawCategory{ID: w.ID, Name: strings.TrimSpace(w.Name)}
}

// rawStats converts the detail payload. Negative tallies are rejected because
// the core treats them as programming errors.
func rawStats(stats []wireStat) ([]catalog.RawStat, error) {
	out := make([]catalog.RawStat, 0, len(stats))
	for i, stat := range stats {
		if stat.YesSum < 0 || stat.NoSum < 0 {
			return nil, fmt.Errorf("stat %d has negative votes (yes=%d no=%d)", i, stat.YesSum, stat.NoSum)
		}
		raw := catalog.RawStat{
			Category: toCategory(stat.TopicCategory),
			YesVotes: stat.YesSum,
			NoVotes:  stat.NoSum,
		}
		if stat.Topic != nil {
			raw.Topic = &catalog.RawTopic{
				ID:           stat.Topic.ID,
				Name:         strings.TrimSpace(stat.Topic.Name),
				QuestionForm: strings.TrimSpace(stat.Topic.DoesName),
				CategoryID:   stat.Topic.TopicCategoryID,
				Category:     toCategory(stat.Topic.TopicCategory),
			}
		}
		out = append(out, raw)
	}
	return out, nil
}
