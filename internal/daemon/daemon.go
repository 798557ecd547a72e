package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"dtddsync/internal/config"
	"dtddsync/internal/enrich"
	"dtddsync/internal/ledger"
	"dtddsync/internal/logging"
	"dtddsync/internal/notifications"
	"dtddsync/internal/triggerindex"
	"dtddsync/internal/triggers"
)

const eventQueueSize = 256

var (
	// ErrRunInProgress is returned when a library sync is already running.
	ErrRunInProgress = errors.New("sync run already in progress")
	// ErrQueueFull is returned when the item event queue cannot accept more work.
	ErrQueueFull = errors.New("item event queue is full")
	// ErrNotRunning is returned when events are sent to a stopped daemon.
	ErrNotRunning = errors.New("daemon is not running")
)

// Syncer runs the enrichment pipeline.
type Syncer interface {
	Run(ctx context.Context, opts enrich.RunOptions) (ledger.Run, error)
	SyncItem(ctx context.Context, itemID string, opts enrich.ItemOptions) (enrich.Result, error)
}

// IndexStore serves the persisted trigger index.
type IndexStore interface {
	Get(ctx context.Context) (triggers.Index, error)
	Refresh(ctx context.Context) (triggers.Index, triggerindex.BuildReport, error)
}

// History reads the sync ledger.
type History interface {
	Recent(ctx context.Context, limit int) ([]ledger.Entry, error)
	LastRun(ctx context.Context) (*ledger.Run, error)
}

// Deps are the collaborators a Daemon drives.
type Deps struct {
	Syncer   Syncer
	Index    IndexStore
	History  History
	Notifier notifications.Service
}

// ItemEvent reports that a host item was added or updated.
type ItemEvent struct {
	ItemID string `json:"itemId"`
	Kind   string `json:"event,omitempty"`
}

// Daemon coordinates scheduled syncs, item events, and the HTTP API.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	deps     Deps
	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running   atomic.Bool
	syncing   atomic.Bool
	startedAt time.Time
	events    chan ItemEvent
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu       sync.Mutex
	lastRun  *ledger.Run
	lastErr  string
	eventsIn int
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool        `json:"running"`
	Syncing       bool        `json:"syncing"`
	StartedAt     time.Time   `json:"startedAt,omitzero"`
	LockFilePath  string      `json:"lockFilePath"`
	LedgerPath    string      `json:"ledgerPath"`
	IndexPath     string      `json:"indexPath"`
	SyncInterval  string      `json:"syncInterval"`
	PendingEvents int         `json:"pendingEvents"`
	EventsQueued  int         `json:"eventsQueued"`
	LastRun       *ledger.Run `json:"lastRun,omitempty"`
	LastError     string      `json:"lastError,omitempty"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Syncer == nil || deps.Index == nil {
		return nil, errors.New("daemon requires config, syncer, and index store")
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(&config.Config{})
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		deps:     deps,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the scheduler, the event
// worker, and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dtddsync daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}

	d.mu.Lock()
	d.runCtx = runCtx
	d.cancel = cancel
	d.events = make(chan ItemEvent, eventQueueSize)
	d.startedAt = time.Now()
	d.running.Store(true)
	d.mu.Unlock()

	d.wg.Add(2)
	go d.schedule(runCtx)
	go d.drainEvents(runCtx, d.events)

	d.logger.Info("dtddsync daemon started",
		logging.String("lock", d.lockPath),
		logging.Duration("interval", d.cfg.SyncInterval()),
		logging.Bool("run_on_start", d.cfg.Sync.RunOnStart),
	)
	return nil
}

// Stop cancels background work and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	wasRunning := d.running.Swap(false)
	d.mu.Unlock()
	if !wasRunning {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("dtddsync daemon stopped")
}

// Wait blocks until ctx is done, then stops the daemon.
func (d *Daemon) Wait(ctx context.Context) {
	<-ctx.Done()
	d.Stop()
}

// Enqueue hands an item event to the worker without blocking.
func (d *Daemon) Enqueue(event ItemEvent) error {
	if !d.running.Load() {
		return ErrNotRunning
	}
	select {
	case d.events <- event:
		d.mu.Lock()
		d.eventsIn++
		d.mu.Unlock()
		return nil
	default:
		return ErrQueueFull
	}
}

// RunSync runs a library-wide sync unless one is already in progress.
func (d *Daemon) RunSync(ctx context.Context, opts enrich.RunOptions) (ledger.Run, error) {
	if !d.syncing.CompareAndSwap(false, true) {
		return ledger.Run{}, ErrRunInProgress
	}
	defer d.syncing.Store(false)

	run, err := d.deps.Syncer.Run(ctx, opts)
	d.mu.Lock()
	d.lastRun = &run
	d.lastErr = ""
	if err != nil {
		d.lastErr = err.Error()
	}
	d.mu.Unlock()

	notifyCtx := context.WithoutCancel(ctx)
	if errors.Is(err, context.Canceled) {
		return run, err
	}
	if err != nil {
		d.notify(notifyCtx, notifications.EventError, notifications.Payload{"context": opts.Source + " sync", "error": err})
		return run, err
	}
	d.notify(notifyCtx, notifications.EventSyncCompleted, notifications.Payload{
		"items":   run.Items,
		"matched": run.Matched,
		"updated": run.Updated,
		"skipped": run.Skipped,
		"failed":  run.Failed,
		"elapsed": run.FinishedAt.Sub(run.StartedAt),
		"dryRun":  run.DryRun,
	})
	return run, err
}

// StartSync launches a library-wide sync in the background. The run is bound
// to the daemon lifetime, so Stop cancels it and waits for it to return.
func (d *Daemon) StartSync(opts enrich.RunOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return ErrNotRunning
	}
	if d.syncing.Load() {
		return ErrRunInProgress
	}
	ctx := d.runCtx
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := d.RunSync(ctx, opts); err != nil && !errors.Is(err, ErrRunInProgress) && ctx.Err() == nil {
			logging.WarnWithContext(d.logger, "background sync failed", "background_sync_failed",
				logging.String("source", opts.Source),
				logging.Error(err),
			)
		}
	}()
	return nil
}

// SyncItem reconciles a single item immediately.
func (d *Daemon) SyncItem(ctx context.Context, itemID string, opts enrich.ItemOptions) (enrich.Result, error) {
	return d.deps.Syncer.SyncItem(ctx, itemID, opts)
}

// Index returns the trigger index, building it on first use.
func (d *Daemon) Index(ctx context.Context) (triggers.Index, error) {
	return d.deps.Index.Get(ctx)
}

// RefreshIndex rebuilds the trigger index.
func (d *Daemon) RefreshIndex(ctx context.Context) (triggers.Index, error) {
	idx, report, err := d.deps.Index.Refresh(ctx)
	if err != nil {
		d.notify(context.WithoutCancel(ctx), notifications.EventError, notifications.Payload{"context": "index refresh", "error": err})
		return triggers.Index{}, err
	}
	d.notify(context.WithoutCancel(ctx), notifications.EventIndexRefreshed, notifications.Payload{
		"topics":     report.Topics,
		"categories": len(idx.Categories),
	})
	return idx, nil
}

// History returns the most recent ledger entries.
func (d *Daemon) History(ctx context.Context, limit int) ([]ledger.Entry, error) {
	if d.deps.History == nil {
		return nil, nil
	}
	return d.deps.History.Recent(ctx, limit)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	status := Status{
		Running:      d.running.Load(),
		Syncing:      d.syncing.Load(),
		StartedAt:    d.startedAt,
		LockFilePath: d.lockPath,
		LedgerPath:   d.cfg.LedgerPath(),
		IndexPath:    d.cfg.Index.Path,
		SyncInterval: d.cfg.SyncInterval().String(),
		EventsQueued: d.eventsIn,
		LastRun:      d.lastRun,
		LastError:    d.lastErr,
	}
	d.mu.Unlock()
	if d.events != nil {
		status.PendingEvents = len(d.events)
	}
	if status.LastRun == nil && d.deps.History != nil {
		if run, err := d.deps.History.LastRun(ctx); err == nil {
			status.LastRun = run
		}
	}
	return status
}

func (d *Daemon) schedule(ctx context.Context) {
	defer d.wg.Done()
	if d.cfg.Sync.RunOnStart {
		d.scheduledRun(ctx)
	}
	interval := d.cfg.SyncInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.scheduledRun(ctx)
		}
	}
}

func (d *Daemon) scheduledRun(ctx context.Context) {
	if _, err := d.RunSync(ctx, enrich.RunOptions{Source: enrich.SourceSchedule}); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			d.logger.Info("scheduled sync skipped; run in progress")
			return
		}
		if ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(d.logger, "scheduled sync failed", "scheduled_sync_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "library tags may be stale until the next run"),
		)
	}
}

func (d *Daemon) drainEvents(ctx context.Context, events <-chan ItemEvent) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			d.handleEvent(ctx, event)
		}
	}
}

func (d *Daemon) handleEvent(ctx context.Context, event ItemEvent) {
	result, err := d.deps.Syncer.SyncItem(ctx, event.ItemID, enrich.ItemOptions{})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(d.logger, "item event failed", "item_event_failed",
			logging.String(logging.FieldItemID, event.ItemID),
			logging.String("event", event.Kind),
			logging.Error(err),
		)
		d.notify(context.WithoutCancel(ctx), notifications.EventError, notifications.Payload{"context": "item " + event.ItemID, "error": err})
		return
	}
	d.logger.Debug("item event processed",
		logging.String(logging.FieldItemID, event.ItemID),
		logging.String("event", event.Kind),
		logging.String("outcome", result.Outcome),
	)
}

func (d *Daemon) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := d.deps.Notifier.Publish(ctx, event, payload); err != nil {
		d.logger.Warn("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}
