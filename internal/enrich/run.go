package enrich

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"dtddsync/internal/ledger"
	"dtddsync/internal/logging"
	"dtddsync/internal/services"
)

// Sources of a sync run.
const (
	SourceSchedule = "schedule"
	SourceManual   = "manual"
	SourceEvent    = "event"
	SourceAPI      = "api"
)

// RunOptions tunes a library-wide sync.
type RunOptions struct {
	Source string
	Force  bool
	DryRun bool
}

// Run processes every listed library item sequentially. Per-item failures are
// counted and logged; a configuration failure or cancellation aborts the run.
// The returned summary is recorded in the ledger even when the run aborts.
func (e *Enricher) Run(ctx context.Context, opts RunOptions) (ledger.Run, error) {
	source := opts.Source
	if source == "" {
		source = SourceManual
	}
	run := ledger.Run{
		RunID:     uuid.NewString(),
		Source:    source,
		StartedAt: e.now(),
		DryRun:    opts.DryRun || e.opts.DryRun,
	}
	ctx = services.WithRunID(ctx, run.RunID)
	logger := logging.WithContext(ctx, e.logger)
	logger.Info("sync run started",
		logging.String(logging.FieldEventType, "sync_run_started"),
		logging.String("source", source),
		logging.Bool("force", opts.Force),
		logging.Bool("dry_run", run.DryRun),
	)

	runErr := e.runItems(ctx, &run, opts)
	run.FinishedAt = e.now()

	if e.ledger != nil && !run.DryRun {
		if err := e.ledger.RecordRun(context.WithoutCancel(ctx), run); err != nil {
			logging.WarnWithContext(logger, "run summary not recorded", "ledger_write_failed", logging.Error(err))
		}
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "sync_run_finished"),
		logging.Int("items", run.Items),
		logging.Int("matched", run.Matched),
		logging.Int("updated", run.Updated),
		logging.Int("skipped", run.Skipped),
		logging.Int("failed", run.Failed),
		logging.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
	}
	if runErr != nil {
		logging.ErrorWithContext(logger, "sync run aborted", "sync_run_aborted", append(attrs, logging.Error(runErr))...)
		return run, runErr
	}
	logger.Info("sync run finished", logging.Args(attrs...)...)
	return run, nil
}

func (e *Enricher) runItems(ctx context.Context, run *ledger.Run, opts RunOptions) error {
	items, err := e.library.ListItems(ctx, e.opts.List)
	if err != nil {
		return err
	}
	run.Items = len(items)
	itemOpts := ItemOptions{Force: opts.Force, DryRun: opts.DryRun, RunID: run.RunID}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := e.Process(ctx, item, itemOpts)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			run.Failed++
			if errors.Is(err, services.ErrConfiguration) {
				return err
			}
			continue
		}
		switch result.Outcome {
		case OutcomeSkipped:
			run.Skipped++
		case ledger.OutcomeMatched:
			run.Matched++
		}
		if result.Written || (result.DryRun && result.Changed) {
			run.Updated++
		}
	}
	return nil
}
