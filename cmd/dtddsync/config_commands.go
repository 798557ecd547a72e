package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dtddsync/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check the configuration file",
	}
	cmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand(ctx))
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		path      string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := initTarget(path)
			if err != nil {
				return err
			}
			if err := guardExisting(target, overwrite); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("write sample config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n"+
				"Fill in dtdd.api_key, jellyfin.url and jellyfin.api_key, or export DTDD_API_KEY and JELLYFIN_API_KEY.\n", target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "Where to write the file (default: the standard config location)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func initTarget(path string) (string, error) {
	if path = strings.TrimSpace(path); path == "" {
		target, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("default config path: %w", err)
		}
		return target, nil
	}
	target, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	return target, nil
}

func guardExisting(target string, overwrite bool) error {
	if overwrite {
		return nil
	}
	_, err := os.Stat(target)
	switch {
	case err == nil:
		return fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("stat %s: %w", target, err)
	}
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and report the effective settings",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("prepare directories: %w", err)
			}
			source := path
			if !exists {
				source += " (missing, defaults used)"
			}
			rows := [][]string{
				{"Config", source},
				{"Jellyfin", cfg.Jellyfin.URL},
				{"Tag prefixes", fmt.Sprintf("%q / %q", cfg.Tags.PositivePrefix, cfg.Tags.NegativePrefix)},
				{"Min votes", strconv.Itoa(cfg.Tags.MinVotes)},
				{"Warning tags", yesNo(cfg.Tags.AddWarningTags)},
				{"Library", libraryScope(cfg.Jellyfin)},
				{"Data dir", cfg.Paths.DataDir},
				{"Notifications", yesNo(strings.TrimSpace(cfg.Notifications.NtfyTopic) != "")},
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]column{textCol("Setting"), textCol("Value")}, rows))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func libraryScope(jf config.Jellyfin) string {
	var kinds []string
	for _, kind := range []struct {
		name string
		on   bool
	}{{"movies", jf.IncludeMovies}, {"series", jf.IncludeSeries}, {"seasons", jf.IncludeSeasons}} {
		if kind.on {
			kinds = append(kinds, kind.name)
		}
	}
	if len(kinds) == 0 {
		return "nothing"
	}
	return strings.Join(kinds, ", ")
}
