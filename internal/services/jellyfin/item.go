package jellyfin

import (
	"strconv"
	"strings"

	"dtddsync/internal/catalog"
)

// Provider id keys as stored on Jellyfin items.
const (
	ProviderDTDD = "DoesTheDogDie"
	ProviderIMDB = "Imdb"
	ProviderTMDB = "Tmdb"
)

// Item is the subset of a Jellyfin item used for enrichment.
type Item struct {
	ID          string
	Name        string
	Year        int
	Kind        catalog.CategoryHint
	ProviderIDs map[string]string
	Tags        []string
	SeriesID    string
	SeriesName  string
	ParentID    string
}

// ExternalID returns the IMDb id when present, else the TMDB id.
func (i Item) ExternalID() string {
	if id := i.provider(ProviderIMDB); id != "" {
		return id
	}
	return i.provider(ProviderTMDB)
}

// DTDDID returns the DTDD record id stored on the item by a previous sync.
func (i Item) DTDDID() (int, bool) {
	value := i.provider(ProviderDTDD)
	if value == "" {
		return 0, false
	}
	id, err := strconv.Atoi(value)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Query builds the DTDD lookup for the item itself.
func (i Item) Query() catalog.Query {
	return catalog.Query{
		Title:      i.Name,
		Year:       i.Year,
		Category:   i.Kind.Category(),
		ExternalID: i.ExternalID(),
	}
}

// HasParentIdentity reports whether the item resolves through its series.
func (i Item) HasParentIdentity() bool {
	return i.Kind.UsesParentIdentity() && i.SeriesID != ""
}

func (i Item) provider(key string) string {
	for k, v := range i.ProviderIDs {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func kindFromType(itemType string) catalog.CategoryHint {
	switch strings.ToLower(itemType) {
	case "movie":
		return catalog.HintMovie
	case "series":
		return catalog.HintSeries
	case "season":
		return catalog.HintSeason
	case "episode":
		return catalog.HintEpisode
	default:
		return ""
	}
}

func itemFromRaw(raw map[string]any) Item {
	item := Item{
		ID:          stringField(raw, "Id"),
		Name:        strings.TrimSpace(stringField(raw, "Name")),
		Kind:        kindFromType(stringField(raw, "Type")),
		SeriesID:    stringField(raw, "SeriesId"),
		SeriesName:  stringField(raw, "SeriesName"),
		ParentID:    stringField(raw, "ParentId"),
		ProviderIDs: map[string]string{},
	}
	if year, ok := raw["ProductionYear"].(float64); ok {
		item.Year = int(year)
	}
	if ids, ok := raw["ProviderIds"].(map[string]any); ok {
		for key, value := range ids {
			if s, ok := value.(string); ok {
				item.ProviderIDs[key] = s
			}
		}
	}
	if tags, ok := raw["Tags"].([]any); ok {
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				item.Tags = append(item.Tags, s)
			}
		}
	}
	return item
}

func stringField(raw map[string]any, key string) string {
	if s, ok := raw[key].(string); ok {
		return s
	}
	return ""
}
