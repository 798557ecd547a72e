package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dtddsync/internal/catalog"
	"dtddsync/internal/config"
	"dtddsync/internal/enrich"
	"dtddsync/internal/ledger"
	"dtddsync/internal/logging"
	"dtddsync/internal/notifications"
	"dtddsync/internal/services"
	"dtddsync/internal/triggerindex"
	"dtddsync/internal/triggers"
)

type stubSyncer struct {
	mu      sync.Mutex
	items   []string
	runs    int
	block   chan struct{}
	itemErr error
	synced  chan string
	aborted bool
}

func (s *stubSyncer) Run(ctx context.Context, opts enrich.RunOptions) (ledger.Run, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			s.mu.Lock()
			s.aborted = true
			s.mu.Unlock()
			return ledger.Run{}, ctx.Err()
		}
	}
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	now := time.Now()
	return ledger.Run{RunID: "run-1", Source: opts.Source, StartedAt: now, FinishedAt: now, Items: 2, Matched: 1}, nil
}

func (s *stubSyncer) SyncItem(_ context.Context, itemID string, opts enrich.ItemOptions) (enrich.Result, error) {
	s.mu.Lock()
	s.items = append(s.items, itemID)
	s.mu.Unlock()
	if s.synced != nil {
		s.synced <- itemID
	}
	if s.itemErr != nil {
		return enrich.Result{ItemID: itemID}, s.itemErr
	}
	return enrich.Result{ItemID: itemID, Outcome: ledger.OutcomeMatched, Changed: true, DryRun: opts.DryRun}, nil
}

type stubIndex struct {
	idx      triggers.Index
	err      error
	refreshs int
}

func (s *stubIndex) Get(context.Context) (triggers.Index, error) { return s.idx, s.err }

func (s *stubIndex) Refresh(context.Context) (triggers.Index, triggerindex.BuildReport, error) {
	s.refreshs++
	return s.idx, triggerindex.BuildReport{Topics: s.idx.TopicCount()}, s.err
}

type stubHistory struct{ entries []ledger.Entry }

func (s *stubHistory) Recent(_ context.Context, limit int) ([]ledger.Entry, error) {
	if limit < len(s.entries) {
		return s.entries[:limit], nil
	}
	return s.entries, nil
}

func (s *stubHistory) LastRun(context.Context) (*ledger.Run, error) { return nil, nil }

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.APIBind = ""
	cfg.Index.Path = filepath.Join(cfg.Paths.DataDir, "trigger_index.json")
	cfg.Sync.RunOnStart = false
	cfg.Sync.IntervalMinutes = 0
	return &cfg
}

func sampleIndex() triggers.Index {
	return triggers.Fold([]catalog.RawStat{{Topic: &catalog.RawTopic{ID: 153, Name: "a dog dies", CategoryID: 1,
		Category: &catalog.RawCategory{ID: 1, Name: "Animal"}}}}, triggers.Index{})
}

func newTestDaemon(t *testing.T, syncer *stubSyncer) (*Daemon, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	d, err := New(testConfig(t), Deps{
		Syncer:   syncer,
		Index:    &stubIndex{idx: sampleIndex()},
		History:  &stubHistory{entries: []ledger.Entry{{ItemID: "a"}, {ItemID: "b"}, {ItemID: "c"}}},
		Notifier: notifier,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, notifier
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newTestDaemon(t, &stubSyncer{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Status(ctx).Running {
		t.Fatal("expected daemon to report running")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	other, err := New(d.cfg, d.deps, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := other.Start(ctx); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if err := other.Start(ctx); err != nil {
		t.Fatalf("lock should be free after stop: %v", err)
	}
	other.Stop()
}

func TestDaemonRunsOnStart(t *testing.T) {
	syncer := &stubSyncer{}
	d, notifier := newTestDaemon(t, syncer)
	d.cfg.Sync.RunOnStart = true
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for d.Status(context.Background()).LastRun == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	d.Stop()
	status := d.Status(context.Background())
	if status.LastRun == nil || status.LastRun.Source != enrich.SourceSchedule {
		t.Fatalf("expected scheduled run, got %+v", status.LastRun)
	}
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventSyncCompleted {
		t.Fatalf("unexpected notifications %v", notifier.events)
	}
}

func TestDaemonEventWorker(t *testing.T) {
	syncer := &stubSyncer{synced: make(chan string, 1)}
	d, _ := newTestDaemon(t, syncer)
	if err := d.Enqueue(ItemEvent{ItemID: "x"}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	if err := d.Enqueue(ItemEvent{ItemID: "item-1", Kind: "added"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case id := <-syncer.synced:
		if id != "item-1" {
			t.Fatalf("synced %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not processed")
	}
}

func TestRunSyncRejectsOverlap(t *testing.T) {
	syncer := &stubSyncer{block: make(chan struct{})}
	d, _ := newTestDaemon(t, syncer)

	done := make(chan error, 1)
	go func() {
		_, err := d.RunSync(context.Background(), enrich.RunOptions{Source: enrich.SourceManual})
		done <- err
	}()
	for !d.syncing.Load() {
		time.Sleep(time.Millisecond)
	}
	if _, err := d.RunSync(context.Background(), enrich.RunOptions{}); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	close(syncer.block)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

func TestStopCancelsAPIStartedSync(t *testing.T) {
	syncer := &stubSyncer{block: make(chan struct{})}
	d, notifier := newTestDaemon(t, syncer)
	if w := serve(t, d, "", http.MethodPost, "/api/sync", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before start, got %d", w.Code)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if w := serve(t, d, "", http.MethodPost, "/api/sync?force=true", "", nil); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	for !d.syncing.Load() {
		time.Sleep(time.Millisecond)
	}
	if w := serve(t, d, "", http.MethodPost, "/api/sync", "", nil); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while syncing, got %d", w.Code)
	}

	d.Stop()
	if d.syncing.Load() {
		t.Fatal("Stop returned while the sync was still running")
	}
	syncer.mu.Lock()
	defer syncer.mu.Unlock()
	if !syncer.aborted {
		t.Fatal("expected the sync to observe cancellation")
	}
	if syncer.runs != 0 {
		t.Fatalf("expected no completed runs, got %d", syncer.runs)
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 0 {
		t.Fatalf("cancelled run should not notify, got %v", notifier.events)
	}
}

func serve(t *testing.T, d *Daemon, token string, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	srv := &apiServer{daemon: d, logger: logging.NewNop()}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	srv.routes(token).ServeHTTP(w, req)
	return w
}

func TestAPIAuth(t *testing.T) {
	d, _ := newTestDaemon(t, &stubSyncer{})
	if w := serve(t, d, "secret", http.MethodGet, "/api/status", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := serve(t, d, "secret", http.MethodGet, "/api/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("health should be public, got %d", w.Code)
	}
	header := http.Header{"Authorization": {"Bearer secret"}}
	if w := serve(t, d, "secret", http.MethodGet, "/api/status", "", header); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	if w := serve(t, d, "", http.MethodGet, "/api/status", "", nil); w.Code != http.StatusOK {
		t.Fatalf("empty token should disable auth, got %d", w.Code)
	}
}

func TestAPIIndex(t *testing.T) {
	d, notifier := newTestDaemon(t, &stubSyncer{})
	w := serve(t, d, "", http.MethodGet, "/api/triggers/index", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var idx triggers.Index
	if err := json.Unmarshal(w.Body.Bytes(), &idx); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if idx.TopicCount() != 1 || idx.Categories[0].Name != "Animal" {
		t.Fatalf("unexpected index %+v", idx)
	}

	w = serve(t, d, "", http.MethodPost, "/api/triggers/index/refresh", "", nil)
	if w.Code != http.StatusOK || d.deps.Index.(*stubIndex).refreshs != 1 {
		t.Fatalf("refresh failed: %d", w.Code)
	}
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventIndexRefreshed {
		t.Fatalf("unexpected notifications %v", notifier.events)
	}

	d.deps.Index.(*stubIndex).err = services.Wrap(services.ErrConfiguration, "triggerindex", "build", "no builder", nil)
	if w := serve(t, d, "", http.MethodGet, "/api/triggers/index", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestAPIItemSync(t *testing.T) {
	syncer := &stubSyncer{}
	d, _ := newTestDaemon(t, syncer)
	w := serve(t, d, "", http.MethodPost, "/api/items/abc/sync?dryRun=true", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result enrich.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.ItemID != "abc" || !result.DryRun {
		t.Fatalf("unexpected result %+v", result)
	}

	syncer.itemErr = services.Wrap(services.ErrNotFound, "jellyfin", "get item", "abc", nil)
	if w := serve(t, d, "", http.MethodPost, "/api/items/abc/sync", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAPIItemEvent(t *testing.T) {
	d, _ := newTestDaemon(t, &stubSyncer{synced: make(chan string, 1)})
	if w := serve(t, d, "", http.MethodPost, "/api/events/item", `{"itemId":"x"}`, nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("stopped daemon should reject events, got %d", w.Code)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()
	if w := serve(t, d, "", http.MethodPost, "/api/events/item", `{"event":"added"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing id should be rejected, got %d", w.Code)
	}
	if w := serve(t, d, "", http.MethodPost, "/api/events/item", `{"itemId":"x","event":"added"}`, nil); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
}

func TestAPIHistory(t *testing.T) {
	d, _ := newTestDaemon(t, &stubSyncer{})
	w := serve(t, d, "", http.MethodGet, "/api/sync/history?limit=2", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var payload struct {
		Entries []ledger.Entry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(payload.Entries))
	}
	if w := serve(t, d, "", http.MethodGet, "/api/sync/history?limit=zero", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrTransient, http.StatusBadGateway},
		{services.ErrConfiguration, http.StatusServiceUnavailable},
		{ErrRunInProgress, http.StatusConflict},
		{ErrNotRunning, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
