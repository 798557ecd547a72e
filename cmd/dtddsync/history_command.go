package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent per-item sync results",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			components, err := ctx.ensureComponents()
			if err != nil {
				return err
			}
			entries, err := components.Ledger.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, entries)
			}

			out := cmd.OutOrStdout()
			if last, err := components.Ledger.LastRun(cmd.Context()); err == nil && last != nil {
				fmt.Fprintf(out, "Last run %s (%s): %d items, %d updated, %d failed\n",
					last.FinishedAt.Local().Format(time.DateTime), last.Source, last.Items, last.Updated, last.Failed)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No items synced yet")
				return nil
			}
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				dtddID := ""
				if entry.DTDDID > 0 {
					dtddID = strconv.Itoa(entry.DTDDID)
				}
				rows = append(rows, []string{
					entry.SyncedAt.Local().Format(time.DateTime),
					entry.ItemName,
					paint(colorize, outcomeColor(entry.Outcome), entry.Outcome),
					dtddID,
					strconv.Itoa(entry.Positive),
					strconv.Itoa(entry.Negative),
					yesNo(entry.Changed),
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				textCol("Synced"), textCol("Item"), textCol("Outcome"),
				numCol("DTDD"), numCol("Present"), numCol("Absent"), textCol("Changed"),
			}, rows))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of entries to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
