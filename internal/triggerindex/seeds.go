package triggerindex

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"dtddsync/internal/catalog"
)

// Seed is a title whose trigger stats feed the index.
type Seed struct {
	Title string `yaml:"title"`
	Year  int    `yaml:"year,omitempty"`
	Kind  string `yaml:"kind,omitempty"`
}

// Query builds the DTDD lookup for the seed. Kind defaults to movie.
func (s Seed) Query() (catalog.Query, error) {
	category := catalog.CategoryMovie
	if kind := strings.TrimSpace(s.Kind); kind != "" {
		parsed, err := catalog.ParseCategory(kind)
		if err != nil {
			return catalog.Query{}, err
		}
		category = parsed
	}
	return catalog.Query{Title: strings.TrimSpace(s.Title), Year: s.Year, Category: category}, nil
}

// DefaultSeeds are widely rated titles that together touch most topic categories.
var DefaultSeeds = []Seed{
	{Title: "John Wick", Year: 2014},
	{Title: "Marley & Me", Year: 2008},
	{Title: "Old Yeller", Year: 1957},
	{Title: "The Shining", Year: 1980},
	{Title: "Requiem for a Dream", Year: 2000},
	{Title: "Schindler's List", Year: 1993},
	{Title: "Hereditary", Year: 2018},
	{Title: "Titanic", Year: 1997},
	{Title: "Saving Private Ryan", Year: 1998},
	{Title: "Game of Thrones", Year: 2011, Kind: "series"},
	{Title: "Breaking Bad", Year: 2008, Kind: "series"},
}

type seedFile struct {
	Seeds []Seed `yaml:"seeds"`
}

// LoadSeeds reads a YAML seed list:
//
//	seeds:
//	  - title: John Wick
//	    year: 2014
//	  - title: Breaking Bad
//	    kind: series
//
// An empty path returns DefaultSeeds.
func LoadSeeds(path string) ([]Seed, error) {
	if strings.TrimSpace(path) == "" {
		return append([]Seed(nil), DefaultSeeds...), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seeds file: %w", err)
	}
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse seeds file: %w", err)
	}
	seeds := make([]Seed, 0, len(file.Seeds))
	for i, seed := range file.Seeds {
		if strings.TrimSpace(seed.Title) == "" {
			return nil, fmt.Errorf("seed %d: title is required", i+1)
		}
		if _, err := seed.Query(); err != nil {
			return nil, fmt.Errorf("seed %d (%s): %w", i+1, seed.Title, err)
		}
		seeds = append(seeds, seed)
	}
	if len(seeds) == 0 {
		return nil, errors.New("seeds file lists no titles")
	}
	return seeds, nil
}
