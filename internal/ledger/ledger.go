package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"dtddsync/internal/ledger/migrations"
)

// Outcomes recorded for an item.
const (
	OutcomeMatched = "matched"
	OutcomeNoMatch = "no_match"
	OutcomeError   = "error"
)

// Entry is the latest sync result for one host item.
type Entry struct {
	ItemID   string    `json:"itemId"`
	ItemName string    `json:"itemName"`
	DTDDID   int       `json:"dtddId,omitempty"`
	Outcome  string    `json:"outcome"`
	Positive int       `json:"positive"`
	Negative int       `json:"negative"`
	Changed  bool      `json:"changed"`
	Error    string    `json:"error,omitempty"`
	RunID    string    `json:"runId,omitempty"`
	SyncedAt time.Time `json:"syncedAt"`
}

// Run summarizes one sync pass.
type Run struct {
	RunID      string    `json:"runId"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Items      int       `json:"items"`
	Matched    int       `json:"matched"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	DryRun     bool      `json:"dryRun"`
}

// Ledger persists sync results.
type Ledger struct {
	db   *sql.DB
	path string
}

var migrateMu sync.Mutex

// Open initializes or connects to the ledger database and applies migrations.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Ledger{db: db, path: path}, nil
}

func runMigrations(db *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Path returns the database file location.
func (l *Ledger) Path() string {
	return l.path
}

// Record stores entry as the latest result for its item.
func (l *Ledger) Record(ctx context.Context, entry Entry) error {
	if entry.ItemID == "" {
		return errors.New("ledger entry requires an item id")
	}
	if entry.SyncedAt.IsZero() {
		entry.SyncedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
        INSERT INTO sync_ledger (item_id, item_name, dtdd_id, outcome, positive, negative, changed, error, run_id, synced_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(item_id) DO UPDATE SET
            item_name = excluded.item_name,
            dtdd_id = excluded.dtdd_id,
            outcome = excluded.outcome,
            positive = excluded.positive,
            negative = excluded.negative,
            changed = excluded.changed,
            error = excluded.error,
            run_id = excluded.run_id,
            synced_at = excluded.synced_at`,
		entry.ItemID,
		entry.ItemName,
		nullableInt(entry.DTDDID),
		entry.Outcome,
		entry.Positive,
		entry.Negative,
		boolToInt(entry.Changed),
		entry.Error,
		entry.RunID,
		formatTime(entry.SyncedAt),
	)
	if err != nil {
		return fmt.Errorf("record ledger entry: %w", err)
	}
	return nil
}

// Get returns the latest entry for itemID, or nil when the item was never synced.
func (l *Ledger) Get(ctx context.Context, itemID string) (*Entry, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM sync_ledger WHERE item_id = ?`, itemID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return entry, nil
}

// Recent returns the most recently synced entries, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM sync_ledger ORDER BY synced_at DESC, item_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, *entry)
	}
	return out, rows.Err()
}

// ShouldSkip reports whether itemID was synced successfully within window.
// Failed syncs are always retried.
func (l *Ledger) ShouldSkip(ctx context.Context, itemID string, window time.Duration, now time.Time) (bool, error) {
	if window <= 0 {
		return false, nil
	}
	entry, err := l.Get(ctx, itemID)
	if err != nil || entry == nil {
		return false, err
	}
	if entry.Outcome != OutcomeMatched && entry.Outcome != OutcomeNoMatch {
		return false, nil
	}
	return now.Sub(entry.SyncedAt) < window, nil
}

// RecordRun stores a finished sync run.
func (l *Ledger) RecordRun(ctx context.Context, run Run) error {
	if run.RunID == "" {
		return errors.New("sync run requires an id")
	}
	_, err := l.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO sync_runs (run_id, source, started_at, finished_at, items, matched, updated, skipped, failed, dry_run)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.Source,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.Items,
		run.Matched,
		run.Updated,
		run.Skipped,
		run.Failed,
		boolToInt(run.DryRun),
	)
	if err != nil {
		return fmt.Errorf("record sync run: %w", err)
	}
	return nil
}

// LastRun returns the most recent sync run, or nil when none has finished.
func (l *Ledger) LastRun(ctx context.Context) (*Run, error) {
	row := l.db.QueryRowContext(ctx, `
        SELECT run_id, source, started_at, finished_at, items, matched, updated, skipped, failed, dry_run
        FROM sync_runs ORDER BY finished_at DESC LIMIT 1`)
	var (
		run               Run
		started, finished string
		dryRun            int
	)
	err := row.Scan(&run.RunID, &run.Source, &started, &finished, &run.Items, &run.Matched, &run.Updated, &run.Skipped, &run.Failed, &dryRun)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last sync run: %w", err)
	}
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	run.DryRun = dryRun != 0
	return &run, nil
}

const entryColumns = `item_id, item_name, dtdd_id, outcome, positive, negative, changed, error, run_id, synced_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		entry    Entry
		dtddID   sql.NullInt64
		changed  int
		syncedAt string
	)
	if err := row.Scan(&entry.ItemID, &entry.ItemName, &dtddID, &entry.Outcome, &entry.Positive, &entry.Negative, &changed, &entry.Error, &entry.RunID, &syncedAt); err != nil {
		return nil, err
	}
	if dtddID.Valid {
		entry.DTDDID = int(dtddID.Int64)
	}
	entry.Changed = changed != 0
	entry.SyncedAt = parseTime(syncedAt)
	return &entry, nil
}

func nullableInt(v int) any {
	if v <= 0 {
		return nil
	}
	return v
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
