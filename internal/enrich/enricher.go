package enrich

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"dtddsync/internal/catalog"
	"dtddsync/internal/dtdd"
	"dtddsync/internal/ledger"
	"dtddsync/internal/logging"
	"dtddsync/internal/matching"
	"dtddsync/internal/services"
	"dtddsync/internal/services/jellyfin"
	"dtddsync/internal/triggers"
)

// OutcomeSkipped marks an item left alone because it was synced recently.
const OutcomeSkipped = "skipped"

// Ledger records per-item and per-run sync results.
type Ledger interface {
	Record(ctx context.Context, entry ledger.Entry) error
	ShouldSkip(ctx context.Context, itemID string, window time.Duration, now time.Time) (bool, error)
	RecordRun(ctx context.Context, run ledger.Run) error
}

// Options configures an Enricher.
type Options struct {
	Policy       triggers.Policy
	RefreshAfter time.Duration
	List         jellyfin.ListOptions
	DryRun       bool
	// IDOnly records the DTDD id on items without touching their tags.
	IDOnly       bool
}

// ItemOptions tunes a single pipeline invocation.
type ItemOptions struct {
	// Force ignores the ledger refresh window.
	Force  bool
	DryRun bool
	RunID  string
}

// Result describes what happened to one item.
type Result struct {
	ItemID   string                 `json:"itemId"`
	ItemName string                 `json:"itemName"`
	Outcome  string                 `json:"outcome"`
	Record   *catalog.Candidate     `json:"record,omitempty"`
	Positive int                    `json:"positive"`
	Negative int                    `json:"negative"`
	Tags     []string               `json:"tags,omitempty"`
	Changed  bool                   `json:"changed"`
	Written  bool                   `json:"written"`
	DryRun   bool                   `json:"dryRun"`
	Set      triggers.ClassifiedSet `json:"-"`
}

// Enricher applies DTDD trigger tags to Jellyfin items.
type Enricher struct {
	catalog dtdd.Catalog
	library jellyfin.Library
	ledger  Ledger
	opts    Options
	logger  *slog.Logger
	locks   *itemLocks
	now     func() time.Time
}

// New constructs an Enricher. A nil ledger disables history and skipping.
func New(catalog dtdd.Catalog, library jellyfin.Library, store Ledger, opts Options, logger *slog.Logger) *Enricher {
	return &Enricher{
		catalog: catalog,
		library: library,
		ledger:  store,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "enrich"),
		locks:   newItemLocks(),
		now:     time.Now,
	}
}

// SyncItem fetches a host item by id and runs the pipeline on it.
func (e *Enricher) SyncItem(ctx context.Context, itemID string, opts ItemOptions) (Result, error) {
	item, err := e.library.GetItem(ctx, itemID)
	if err != nil {
		return Result{ItemID: itemID}, err
	}
	return e.Process(ctx, *item, opts)
}

// Process resolves, classifies, and reconciles a single item. Items without a
// DTDD match keep their tags untouched.
func (e *Enricher) Process(ctx context.Context, item jellyfin.Item, opts ItemOptions) (Result, error) {
	unlock := e.locks.lock(item.ID)
	defer unlock()

	ctx = services.WithItemID(ctx, item.ID)
	ctx = services.WithRunID(ctx, opts.RunID)
	logger := logging.WithContext(ctx, e.logger)
	dryRun := opts.DryRun || e.opts.DryRun
	result := Result{ItemID: item.ID, ItemName: item.Name, DryRun: dryRun}

	if !opts.Force && e.ledger != nil && e.opts.RefreshAfter > 0 {
		skip, err := e.ledger.ShouldSkip(ctx, item.ID, e.opts.RefreshAfter, e.now())
		if err != nil {
			logger.Debug("ledger lookup failed", logging.Error(err))
		}
		if skip {
			result.Outcome = OutcomeSkipped
			logger.Debug("item synced recently; skipping")
			return result, nil
		}
	}

	ident := e.identity(ctx, logger, item)
	record, details, err := e.resolve(ctx, logger, ident)
	if err != nil {
		result.Outcome = ledger.OutcomeError
		e.record(ctx, logger, item, result, opts.RunID, err)
		return result, err
	}
	if record == nil {
		result.Outcome = ledger.OutcomeNoMatch
		logger.Debug("no DTDD match", logging.String("title", ident.Title))
		e.record(ctx, logger, item, result, opts.RunID, nil)
		return result, nil
	}

	// Catalog calls can take a while; reconcile against the tags the host
	// holds now so edits made in the meantime are kept.
	current, err := e.library.GetItem(ctx, item.ID)
	if err != nil {
		result.Outcome = ledger.OutcomeError
		e.record(ctx, logger, item, result, opts.RunID, err)
		return result, err
	}
	item = *current

	set := triggers.ClassifyRaw(details.Stats, e.opts.Policy)
	tags, changed := item.Tags, false
	if !e.opts.IDOnly {
		tags, changed = triggers.Reconcile(item.Tags, set, e.opts.Policy)
	}
	result.Outcome = ledger.OutcomeMatched
	result.Record = record
	result.Set = set
	result.Positive = len(set.Positive)
	result.Negative = len(set.Negative)
	result.Tags = tags
	result.Changed = changed

	var update jellyfin.Update
	storedID, hasStored := item.DTDDID()
	needsID := !item.HasParentIdentity() && (!hasStored || storedID != record.ID)
	if needsID {
		update.DTDDID = strconv.Itoa(record.ID)
	}
	if (changed || needsID) && !dryRun {
		update.Tags = tags
		if err := e.library.UpdateItem(ctx, item.ID, update); err != nil {
			result.Outcome = ledger.OutcomeError
			e.record(ctx, logger, item, result, opts.RunID, err)
			return result, err
		}
		result.Written = true
	}

	logBreakdown(logger, record, set)
	logger.Info("item reconciled",
		logging.String(logging.FieldEventType, "item_reconciled"),
		logging.String("item", item.Name),
		logging.Int(logging.FieldDTDDID, record.ID),
		logging.Int("positive", result.Positive),
		logging.Int("negative", result.Negative),
		logging.Bool("changed", changed),
		logging.Bool("written", result.Written),
		logging.Bool("dry_run", dryRun),
	)
	e.record(ctx, logger, item, result, opts.RunID, nil)
	return result, nil
}

type identity struct {
	catalog.Query
	StoredID int
}

// identity picks the item whose DTDD identity is used. Seasons and episodes
// resolve through their series; when the series cannot be fetched its name on
// the child item is used instead.
func (e *Enricher) identity(ctx context.Context, logger *slog.Logger, item jellyfin.Item) identity {
	if item.HasParentIdentity() {
		series, err := e.library.GetItem(ctx, item.SeriesID)
		if err == nil && series != nil {
			id := identity{Query: series.Query()}
			id.Category = catalog.CategorySeries
			id.StoredID, _ = series.DTDDID()
			return id
		}
		logger.Debug("series lookup failed; using series name",
			logging.String("series_id", item.SeriesID),
			logging.Error(err),
		)
	}
	query := item.Query()
	if item.Kind.UsesParentIdentity() {
		query.Year = 0
		query.ExternalID = ""
		if item.SeriesName != "" {
			query.Title = item.SeriesName
		}
	}
	id := identity{Query: query}
	id.StoredID, _ = item.DTDDID()
	return id
}

// resolve finds the DTDD record for id: stored DTDD id first, then external id,
// then title search. A nil record with a nil error is a no-match.
func (e *Enricher) resolve(ctx context.Context, logger *slog.Logger, id identity) (*catalog.Candidate, *catalog.Details, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if id.Category == catalog.CategoryUnknown {
		return nil, nil, nil
	}
	if id.StoredID > 0 {
		details, err := e.catalog.GetDetails(ctx, id.StoredID)
		if err != nil {
			return nil, nil, err
		}
		if details != nil {
			record := details.Record
			if record.ID == 0 {
				record.ID = id.StoredID
			}
			return &record, details, nil
		}
		logger.Debug("stored DTDD id not found; searching", logging.Int(logging.FieldDTDDID, id.StoredID))
	}

	if id.ExternalID != "" {
		candidates, err := e.catalog.SearchByExternalID(ctx, id.ExternalID)
		if err != nil {
			return nil, nil, err
		}
		if match, ok := matching.ResolveExternal(candidates, id.Query); ok {
			return e.details(ctx, match)
		}
	}

	if id.Title == "" {
		return nil, nil, nil
	}
	candidates, err := e.catalog.SearchByTitle(ctx, id.Title)
	if err != nil {
		return nil, nil, err
	}
	match, ok := matching.Resolve(candidates, id.Query)
	if !ok {
		return nil, nil, nil
	}
	return e.details(ctx, match)
}

func (e *Enricher) details(ctx context.Context, match catalog.Candidate) (*catalog.Candidate, *catalog.Details, error) {
	details, err := e.catalog.GetDetails(ctx, match.ID)
	if err != nil || details == nil {
		return nil, nil, err
	}
	return &match, details, nil
}

func (e *Enricher) record(ctx context.Context, logger *slog.Logger, item jellyfin.Item, result Result, runID string, cause error) {
	if cause != nil && !errors.Is(cause, context.Canceled) {
		logging.WarnWithContext(logger, "item sync failed", "item_sync_failed",
			logging.String("item", item.Name),
			logging.String("reason", services.Outcome(cause)),
			logging.Error(cause),
			logging.String(logging.FieldImpact, "item tags left unchanged"),
		)
	}
	// Dry runs leave no ledger trace so the next real run is not skipped.
	if e.ledger == nil || result.DryRun {
		return
	}
	entry := ledger.Entry{
		ItemID:   item.ID,
		ItemName: item.Name,
		Outcome:  result.Outcome,
		Positive: result.Positive,
		Negative: result.Negative,
		Changed:  result.Changed,
		RunID:    runID,
		SyncedAt: e.now(),
	}
	if result.Record != nil {
		entry.DTDDID = result.Record.ID
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := e.ledger.Record(context.WithoutCancel(ctx), entry); err != nil {
		logging.WarnWithContext(logger, "ledger write failed", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "item may be re-synced before its refresh window"),
		)
	}
}

func logBreakdown(logger *slog.Logger, record *catalog.Candidate, set triggers.ClassifiedSet) {
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	for _, group := range []struct {
		label    string
		triggers []triggers.Trigger
	}{{"positive", set.Positive}, {"negative", set.Negative}} {
		for _, trigger := range group.triggers {
			logger.Debug("trigger classified",
				logging.String("direction", group.label),
				logging.Int(logging.FieldDTDDID, record.ID),
				logging.String("topic", trigger.TopicName),
				logging.Int("yes", trigger.YesVotes),
				logging.Int("no", trigger.NoVotes),
				logging.Float64("confidence", trigger.Confidence),
			)
		}
	}
}
