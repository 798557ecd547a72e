package daemonrun

import (
	"errors"
	"fmt"
	"log/slog"

	"dtddsync/internal/config"
	"dtddsync/internal/dtdd"
	"dtddsync/internal/enrich"
	"dtddsync/internal/ledger"
	"dtddsync/internal/logging"
	"dtddsync/internal/notifications"
	"dtddsync/internal/services/jellyfin"
	"dtddsync/internal/triggerindex"
)

// Components is the wired object graph shared by the daemon and one-shot
// CLI commands.
type Components struct {
	Config   *config.Config
	Logger   *slog.Logger
	Catalog  *dtdd.Lookup
	Library  *jellyfin.Client
	Ledger   *ledger.Ledger
	Enricher *enrich.Enricher
	Index    *triggerindex.Store
	Notifier notifications.Service
}

// Assemble builds every component described by cfg.
func Assemble(cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	client, err := dtdd.New(cfg.DTDD.APIKey, cfg.DTDD.BaseURL, dtdd.WithTimeout(cfg.RequestTimeout()))
	if err != nil {
		return nil, fmt.Errorf("dtdd client: %w", err)
	}
	lookup := dtdd.NewLookup(client, dtdd.LookupOptions{
		Delay:      cfg.RequestDelay(),
		CacheTTL:   cfg.CacheTTL(),
		MaxRetries: cfg.DTDD.MaxRetries,
		Logger:     logger,
	})

	library, err := jellyfin.NewConfiguredLibrary(cfg)
	if err != nil {
		return nil, fmt.Errorf("jellyfin client: %w", err)
	}

	seeds, err := triggerindex.LoadSeeds(cfg.Index.SeedsPath)
	if err != nil {
		return nil, err
	}
	index := triggerindex.NewStore(cfg.Index.Path, triggerindex.NewBuilder(lookup, seeds, logger), logger)

	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	enricher := enrich.New(lookup, library, store, enrich.Options{
		Policy:       cfg.TagPolicy(),
		RefreshAfter: cfg.RefreshAfter(),
		List:         jellyfin.ListOptionsFromConfig(cfg),
		IDOnly:       !cfg.Tags.AddWarningTags,
	}, logger)

	return &Components{
		Config:   cfg,
		Logger:   logger,
		Catalog:  lookup,
		Library:  library,
		Ledger:   store,
		Enricher: enricher,
		Index:    index,
		Notifier: notifications.NewService(cfg),
	}, nil
}

// Close releases the ledger.
func (c *Components) Close() error {
	if c == nil || c.Ledger == nil {
		return nil
	}
	return c.Ledger.Close()
}
