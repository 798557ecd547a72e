package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"dtddsync/internal/config"
	"dtddsync/internal/daemon"
	"dtddsync/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the dtddsync daemon and blocks until cmdCtx is cancelled or the
// process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logOpts := logging.OptionsFromConfig(cfg)
	if strings.TrimSpace(opts.LogLevel) != "" {
		logOpts.Level = opts.LogLevel
	}
	logOpts.Development = opts.Development
	logger, err := logging.New(logOpts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logConfigSnapshot(logger, cfg)
	if removed := logging.PruneLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, time.Now()); removed > 0 {
		logger.Info("old logs pruned", logging.Int("removed", removed))
	}
	pidPath := filepath.Join(cfg.Paths.DataDir, "dtddsync.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	components, err := Assemble(cfg, logger)
	if err != nil {
		logger.Error("assemble components", logging.Error(err))
		return err
	}
	defer components.Close()

	d, err := daemon.New(cfg, daemon.Deps{
		Syncer:   components.Enricher,
		Index:    components.Index,
		History:  components.Ledger,
		Notifier: components.Notifier,
	}, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running instance and the api bind address"),
		)
		return err
	}

	d.Wait(signalCtx)
	logger.Info("dtddsync daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("dtdd_base_url", cfg.DTDD.BaseURL),
		logging.Bool("dtdd_key_present", strings.TrimSpace(cfg.DTDD.APIKey) != ""),
		logging.String("jellyfin_url", cfg.Jellyfin.URL),
		logging.Bool("jellyfin_key_present", strings.TrimSpace(cfg.Jellyfin.APIKey) != ""),
		logging.Int("min_votes", cfg.Tags.MinVotes),
		logging.Bool("show_all", cfg.Tags.ShowAll),
		logging.Int("enabled_categories", len(cfg.Tags.EnabledCategories)),
		logging.Duration("sync_interval", cfg.SyncInterval()),
		logging.Duration("refresh_after", cfg.RefreshAfter()),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_auth", cfg.Paths.APIToken != ""),
		logging.Bool("notifications", cfg.Notifications.NtfyTopic != ""),
	)
}
