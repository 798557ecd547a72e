package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dtddsync/internal/catalog"
	"dtddsync/internal/dtdd"
	"dtddsync/internal/matching"
	"dtddsync/internal/triggers"
)

type lookupResult struct {
	Query      lookupQuery        `json:"query"`
	Candidates []lookupCandidate  `json:"candidates,omitempty"`
	Match      *catalog.Candidate `json:"match,omitempty"`
	Positive   []lookupTrigger    `json:"positive,omitempty"`
	Negative   []lookupTrigger    `json:"negative,omitempty"`
	Tags       []string           `json:"tags,omitempty"`
}

type lookupQuery struct {
	Title      string `json:"title,omitempty"`
	Year       int    `json:"year,omitempty"`
	Category   string `json:"category"`
	ExternalID string `json:"externalId,omitempty"`
}

type lookupCandidate struct {
	catalog.Candidate
	Score      int    `json:"score"`
	TitleMatch string `json:"titleMatch,omitempty"`
}

type lookupTrigger struct {
	TopicID    int     `json:"topicId"`
	Topic      string  `json:"topic"`
	Category   string  `json:"category,omitempty"`
	Yes        int     `json:"yes"`
	No         int     `json:"no"`
	Confidence float64 `json:"confidence"`
}

func newLookupCommand(ctx *commandContext) *cobra.Command {
	var (
		year       int
		series     bool
		imdbID     string
		candidates bool
		showAll    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "lookup [title]",
		Short: "Resolve a title against DTDD and show the triggers it would tag",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := ""
			if len(args) == 1 {
				title = strings.TrimSpace(args[0])
			}
			imdbID = strings.TrimSpace(imdbID)
			if title == "" && imdbID == "" {
				return errors.New("a title or --imdb id is required")
			}
			if imdbID != "" && !dtdd.IsIMDBID(imdbID) {
				return fmt.Errorf("%q is not an IMDb id", imdbID)
			}

			components, err := ctx.ensureComponents()
			if err != nil {
				return err
			}
			query := catalog.Query{Title: title, Year: year, Category: catalog.CategoryMovie, ExternalID: imdbID}
			if series {
				query.Category = catalog.CategorySeries
			}

			result := lookupResult{Query: lookupQuery{
				Title:      query.Title,
				Year:       query.Year,
				Category:   query.Category.String(),
				ExternalID: query.ExternalID,
			}}

			var (
				found []catalog.Candidate
				match catalog.Candidate
				ok    bool
			)
			if imdbID != "" {
				found, err = components.Catalog.SearchByExternalID(cmd.Context(), imdbID)
				if err != nil {
					return err
				}
				match, ok = matching.ResolveExternal(found, query)
			}
			if !ok && title != "" {
				found, err = components.Catalog.SearchByTitle(cmd.Context(), title)
				if err != nil {
					return err
				}
				match, ok = matching.Resolve(found, query)
			}
			if candidates {
				for _, scored := range matching.ScoreAll(found, query) {
					result.Candidates = append(result.Candidates, lookupCandidate{
						Candidate:  scored.Candidate,
						Score:      scored.Breakdown.Total(),
						TitleMatch: scored.Breakdown.TitleMatch,
					})
				}
			}

			if ok {
				details, err := components.Catalog.GetDetails(cmd.Context(), match.ID)
				if err != nil {
					return err
				}
				if details == nil {
					return fmt.Errorf("DTDD record %d has no detail page", match.ID)
				}
				policy := components.Config.TagPolicy()
				if showAll {
					policy.ShowAll = true
				}
				set := triggers.ClassifyRaw(details.Stats, policy)
				record := details.Record
				if record.ID == 0 {
					record = match
				}
				result.Match = &record
				result.Positive = lookupTriggers(set.Positive)
				result.Negative = lookupTriggers(set.Negative)
				result.Tags, _ = triggers.Reconcile(nil, set, policy)
			}

			if jsonOutput {
				return writeJSON(cmd, result)
			}
			printLookup(cmd, result)
			return nil
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "Release year used to score candidates")
	cmd.Flags().BoolVar(&series, "series", false, "Search TV series instead of movies")
	cmd.Flags().StringVar(&imdbID, "imdb", "", "Resolve by IMDb id before falling back to the title")
	cmd.Flags().BoolVar(&candidates, "candidates", false, "Show every scored candidate")
	cmd.Flags().BoolVar(&showAll, "all", false, "Ignore category and topic allow-lists")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func lookupTriggers(in []triggers.Trigger) []lookupTrigger {
	out := make([]lookupTrigger, 0, len(in))
	for _, trigger := range in {
		out = append(out, lookupTrigger{
			TopicID:    trigger.TopicID,
			Topic:      trigger.TopicName,
			Category:   trigger.CategoryName,
			Yes:        trigger.YesVotes,
			No:         trigger.NoVotes,
			Confidence: trigger.Confidence,
		})
	}
	return out
}

func printLookup(cmd *cobra.Command, result lookupResult) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	if len(result.Candidates) > 0 {
		fmt.Fprintln(out, renderSectionHeader("Candidates", colorize))
		rows := make([][]string, 0, len(result.Candidates))
		for _, c := range result.Candidates {
			rows = append(rows, []string{
				strconv.Itoa(c.ID),
				c.Name,
				c.ReleaseYear,
				strconv.Itoa(c.Score),
				c.TitleMatch,
				yesNo(c.Verified || c.StaffVerified),
			})
		}
		fmt.Fprintln(out, renderTable([]column{
			numCol("ID"), textCol("Name"), textCol("Year"),
			numCol("Score"), textCol("Title Match"), textCol("Verified"),
		}, rows))
		fmt.Fprintln(out)
	}

	if result.Match == nil {
		fmt.Fprintln(out, paint(colorize, ansiYellow, "No DTDD match"))
		return
	}
	fmt.Fprintf(out, "%s %s (%s) [DTDD %d, %s]\n",
		paint(colorize, ansiGreen, "Matched"),
		result.Match.Name,
		result.Match.ReleaseYear,
		result.Match.ID,
		titleCase(result.Query.Category),
	)

	printTriggerTable(cmd, "Triggers present", result.Positive, colorize)
	printTriggerTable(cmd, "Confirmed absent", result.Negative, colorize)

	if len(result.Tags) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderSectionHeader("Tags", colorize))
		for _, tag := range result.Tags {
			fmt.Fprintf(out, "  %s\n", tag)
		}
	}
}

func printTriggerTable(cmd *cobra.Command, title string, rows []lookupTrigger, colorize bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSectionHeader(fmt.Sprintf("%s (%d)", title, len(rows)), colorize))
	if len(rows) == 0 {
		fmt.Fprintln(out, "  none")
		return
	}
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		table = append(table, []string{
			row.Topic,
			titleCase(row.Category),
			strconv.Itoa(row.Yes),
			strconv.Itoa(row.No),
			fmt.Sprintf("%.0f%%", row.Confidence),
		})
	}
	fmt.Fprintln(out, renderTable([]column{
		textCol("Topic"), textCol("Category"), numCol("Yes"), numCol("No"), numCol("Confidence"),
	}, table))
}
