package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newClearCommand(ctx *commandContext) *cobra.Command {
	var (
		itemID     string
		dryRun     bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every managed trigger tag from the library (or one item)",
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := ctx.ensureComponents()
			if err != nil {
				return err
			}
			cleared, err := components.Enricher.Clear(cmd.Context(), itemID, dryRun)
			if jsonOutput {
				if encErr := writeJSON(cmd, cleared); encErr != nil {
					return encErr
				}
				return err
			}
			out := cmd.OutOrStdout()
			for _, item := range cleared {
				fmt.Fprintf(out, "%s: %s\n", item.ItemName, strings.Join(item.Removed, ", "))
			}
			verb := "Cleared"
			if dryRun {
				verb = "Would clear"
			}
			fmt.Fprintf(out, "%s managed tags on %d items\n", verb, len(cleared))
			return err
		},
	}
	cmd.Flags().StringVar(&itemID, "item", "", "Clear a single Jellyfin item id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report tags without removing them")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
