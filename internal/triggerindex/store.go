package triggerindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"dtddsync/internal/logging"
	"dtddsync/internal/services"
	"dtddsync/internal/triggers"
)

const lockRetryDelay = 100 * time.Millisecond

// IndexBuilder produces a fresh trigger index.
type IndexBuilder interface {
	Build(ctx context.Context) (triggers.Index, BuildReport, error)
}

// Store persists the trigger index as JSON and builds it on demand.
type Store struct {
	path     string
	builder  IndexBuilder
	logger   *slog.Logger
	fileLock *flock.Flock

	mu     sync.Mutex
	cached *triggers.Index
}

// NewStore returns a Store backed by path. A nil builder makes Get and Refresh
// fail when no index is persisted yet.
func NewStore(path string, builder IndexBuilder, logger *slog.Logger) *Store {
	return &Store{
		path:     path,
		builder:  builder,
		logger:   logging.NewComponentLogger(logger, "triggerindex"),
		fileLock: flock.New(path + ".lock"),
	}
}

// Path returns the index file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted index. ok is false when no file exists.
func (s *Store) Load() (triggers.Index, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return triggers.Index{}, false, nil
	}
	if err != nil {
		return triggers.Index{}, false, fmt.Errorf("read trigger index: %w", err)
	}
	var idx triggers.Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return triggers.Index{}, false, services.Wrap(services.ErrMalformed, "triggerindex", "load", "decode index file", err)
	}
	return idx, true, nil
}

// Get returns the cached index, loading it from disk or building it when the
// file is absent, empty, or unreadable.
func (s *Store) Get(ctx context.Context) (triggers.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && !s.cached.Empty() {
		return s.cached.Clone(), nil
	}
	idx, ok, err := s.Load()
	if err != nil {
		logging.WarnWithContext(s.logger, "trigger index unreadable; rebuilding", "index_load_failed",
			logging.String("path", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the file is rewritten on the next successful build"),
		)
	}
	if ok && !idx.Empty() {
		s.cached = &idx
		return idx.Clone(), nil
	}
	idx, _, err = s.rebuild(ctx)
	if err != nil {
		return triggers.Index{}, err
	}
	return idx.Clone(), nil
}

// Refresh rebuilds the index and replaces the persisted file.
func (s *Store) Refresh(ctx context.Context) (triggers.Index, BuildReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, report, err := s.rebuild(ctx)
	if err != nil {
		return triggers.Index{}, report, err
	}
	return idx.Clone(), report, nil
}

// rebuild must be called with s.mu held.
func (s *Store) rebuild(ctx context.Context) (triggers.Index, BuildReport, error) {
	if s.builder == nil {
		return triggers.Index{}, BuildReport{}, services.Wrap(services.ErrConfiguration, "triggerindex", "build", "no index builder configured", nil)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return triggers.Index{}, BuildReport{}, fmt.Errorf("create index directory: %w", err)
	}
	locked, err := s.fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return triggers.Index{}, BuildReport{}, fmt.Errorf("lock trigger index: %w", err)
	}
	if !locked {
		return triggers.Index{}, BuildReport{}, errors.New("trigger index is locked by another process")
	}
	defer func() {
		if err := s.fileLock.Unlock(); err != nil {
			s.logger.Debug("index unlock failed", logging.Error(err))
		}
	}()

	idx, report, err := s.builder.Build(ctx)
	if err != nil {
		return triggers.Index{}, report, err
	}
	if err := s.save(idx); err != nil {
		return triggers.Index{}, report, err
	}
	s.cached = &idx
	return idx, report, nil
}

func (s *Store) save(idx triggers.Index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode trigger index: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write trigger index: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace trigger index: %w", err)
	}
	return nil
}
