package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dtddsync/internal/enrich"
	"dtddsync/internal/ledger"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var (
		itemID     string
		force      bool
		dryRun     bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Tag the Jellyfin library (or one item) with DTDD triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := ctx.ensureComponents()
			if err != nil {
				return err
			}

			if id := strings.TrimSpace(itemID); id != "" {
				result, err := components.Enricher.SyncItem(cmd.Context(), id, enrich.ItemOptions{Force: true, DryRun: dryRun})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, result)
				}
				printItemResult(cmd, result)
				return nil
			}

			run, err := components.Enricher.Run(cmd.Context(), enrich.RunOptions{
				Source: enrich.SourceManual,
				Force:  force,
				DryRun: dryRun,
			})
			if jsonOutput {
				if encErr := writeJSON(cmd, run); encErr != nil {
					return encErr
				}
				return err
			}
			printRunSummary(cmd, run)
			return err
		},
	}

	cmd.Flags().StringVar(&itemID, "item", "", "Sync a single Jellyfin item id")
	cmd.Flags().BoolVar(&force, "force", false, "Ignore the refresh window")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute tags without writing them")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printItemResult(cmd *cobra.Command, result enrich.Result) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	name := result.ItemName
	if name == "" {
		name = result.ItemID
	}
	fmt.Fprintf(out, "%s: %s\n", name, paint(colorize, outcomeColor(result.Outcome), titleCase(result.Outcome)))
	if result.Record != nil {
		fmt.Fprintf(out, "DTDD: %s (%s) [%d]\n", result.Record.Name, result.Record.ReleaseYear, result.Record.ID)
		fmt.Fprintf(out, "Triggers: %d present, %d absent\n", result.Positive, result.Negative)
	}
	switch {
	case result.DryRun && result.Changed:
		fmt.Fprintln(out, "Tags would change (dry run)")
	case result.Written:
		fmt.Fprintln(out, "Tags written")
	case result.Outcome == ledger.OutcomeMatched:
		fmt.Fprintln(out, "Tags already current")
	}
	for _, tag := range result.Tags {
		fmt.Fprintf(out, "  %s\n", tag)
	}
}

func printRunSummary(cmd *cobra.Command, run ledger.Run) {
	out := cmd.OutOrStdout()
	rows := [][]string{
		{"Items", strconv.Itoa(run.Items)},
		{"Matched", strconv.Itoa(run.Matched)},
		{"Updated", strconv.Itoa(run.Updated)},
		{"Skipped", strconv.Itoa(run.Skipped)},
		{"Failed", strconv.Itoa(run.Failed)},
		{"Elapsed", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()},
		{"Dry run", yesNo(run.DryRun)},
	}
	fmt.Fprintln(out, renderTable([]column{textCol("Run " + shortID(run.RunID)), numCol("")}, rows))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
