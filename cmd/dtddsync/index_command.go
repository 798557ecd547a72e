package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dtddsync/internal/triggers"
)

func newIndexCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect or rebuild the trigger index",
	}
	cmd.AddCommand(newIndexShowCommand(ctx))
	cmd.AddCommand(newIndexRefreshCommand(ctx))
	return cmd
}

func newIndexShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the trigger index, building it when absent",
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := ctx.ensureComponents()
			if err != nil {
				return err
			}
			idx, err := components.Index.Get(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, idx)
			}
			printIndex(cmd, idx)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newIndexRefreshCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the trigger index from the seed titles",
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := ctx.ensureComponents()
			if err != nil {
				return err
			}
			idx, report, err := components.Index.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Index rebuilt: %d topics in %d categories (%d/%d seeds resolved)\n",
				idx.TopicCount(), len(idx.Categories), report.Resolved, report.Seeds)
			if report.Failed > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d seeds failed; see the log for details\n", report.Failed)
			}
			return nil
		},
	}
	return cmd
}

func printIndex(cmd *cobra.Command, idx triggers.Index) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	refreshed := "never"
	if !idx.LastRefreshed.IsZero() {
		refreshed = idx.LastRefreshed.Local().Format(time.DateTime)
	}
	fmt.Fprintf(out, "Last refreshed: %s\n", refreshed)
	for _, category := range idx.Categories {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderSectionHeader(fmt.Sprintf("%s [%d]", titleCase(category.Name), category.ID), colorize))
		rows := make([][]string, 0, len(category.Topics))
		for _, topic := range category.Topics {
			rows = append(rows, []string{strconv.Itoa(topic.ID), topic.Name})
		}
		fmt.Fprintln(out, renderTable([]column{numCol("ID"), textCol("Topic")}, rows))
	}
}
