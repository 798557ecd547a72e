package triggerindex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dtddsync/internal/catalog"
	"dtddsync/internal/dtdd"
	"dtddsync/internal/logging"
	"dtddsync/internal/matching"
	"dtddsync/internal/triggers"
)

// BuildReport summarizes an index build.
type BuildReport struct {
	Seeds    int
	Resolved int
	Failed   int
	Topics   int
}

type cachePurger interface {
	Purge()
}

// Builder folds seed title details into a trigger index.
type Builder struct {
	catalog dtdd.Catalog
	seeds   []Seed
	logger  *slog.Logger
	now     func() time.Time
}

// NewBuilder constructs a Builder. Seeds are processed in the given order.
func NewBuilder(catalog dtdd.Catalog, seeds []Seed, logger *slog.Logger) *Builder {
	return &Builder{
		catalog: catalog,
		seeds:   seeds,
		logger:  logging.NewComponentLogger(logger, "triggerindex"),
		now:     time.Now,
	}
}

// Build resolves every seed and folds its stats into a fresh index. Seeds that
// do not resolve are skipped; per-seed failures are logged and counted. Build
// fails only when cancelled or when no seed could be fetched at all.
//
// Each seed yields a partial index; partials are merged in seed order so the
// first-seen name of a topic does not depend on fetch timing.
func (b *Builder) Build(ctx context.Context) (triggers.Index, BuildReport, error) {
	report := BuildReport{Seeds: len(b.seeds)}
	if purger, ok := b.catalog.(cachePurger); ok {
		purger.Purge()
	}
	var (
		parts   []triggers.Index
		lastErr error
	)
	for _, seed := range b.seeds {
		if err := ctx.Err(); err != nil {
			return triggers.Index{}, report, err
		}
		details, found, err := b.fetch(ctx, seed)
		if err != nil {
			if ctx.Err() != nil {
				return triggers.Index{}, report, ctx.Err()
			}
			report.Failed++
			lastErr = err
			logging.WarnWithContext(b.logger, "seed fetch failed", "index_seed_failed",
				logging.String("seed", seed.Title),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check DTDD availability and api key"),
				logging.String(logging.FieldImpact, "topics only seen on this title are missing from the index"),
			)
			continue
		}
		if !found {
			b.logger.Debug("seed did not resolve", logging.String("seed", seed.Title))
			continue
		}
		report.Resolved++
		parts = append(parts, triggers.Fold(details.Stats, triggers.Index{}))
	}

	if report.Resolved == 0 && report.Failed > 0 {
		return triggers.Index{}, report, fmt.Errorf("build trigger index: every seed failed: %w", lastErr)
	}

	idx := triggers.SortIndex(triggers.MergeIndexes(parts...))
	idx.LastRefreshed = b.now().UTC()
	report.Topics = idx.TopicCount()
	b.logger.Info("trigger index built",
		logging.String(logging.FieldEventType, "index_built"),
		logging.Int("seeds", report.Seeds),
		logging.Int("resolved", report.Resolved),
		logging.Int("failed", report.Failed),
		logging.Int("categories", len(idx.Categories)),
		logging.Int("topics", report.Topics),
	)
	return idx, report, nil
}

func (b *Builder) fetch(ctx context.Context, seed Seed) (*catalog.Details, bool, error) {
	query, err := seed.Query()
	if err != nil {
		return nil, false, err
	}
	candidates, err := b.catalog.SearchByTitle(ctx, query.Title)
	if err != nil {
		return nil, false, err
	}
	match, ok := matching.Resolve(candidates, query)
	if !ok {
		return nil, false, nil
	}
	details, err := b.catalog.GetDetails(ctx, match.ID)
	if err != nil {
		return nil, false, err
	}
	if details == nil {
		return nil, false, nil
	}
	return details, true, nil
}
