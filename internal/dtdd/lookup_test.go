package dtdd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dtddsync/internal/catalog"
	"dtddsync/internal/services"
)

type fakeCatalog struct {
	mu       sync.Mutex
	calls    map[string]int
	failures int
	err      error
}

func (f *fakeCatalog) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[op]++
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	return nil
}

func (f *fakeCatalog) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeCatalog) SearchByTitle(_ context.Context, title string) ([]catalog.Candidate, error) {
	if err := f.record("title"); err != nil {
		return nil, err
	}
	return []catalog.Candidate{{ID: 1, Name: title}}, nil
}

func (f *fakeCatalog) SearchByExternalID(_ context.Context, id string) ([]catalog.Candidate, error) {
	if err := f.record("external"); err != nil {
		return nil, err
	}
	return []catalog.Candidate{{ID: 2, IMDBID: id}}, nil
}

func (f *fakeCatalog) GetDetails(_ context.Context, id int) (*catalog.Details, error) {
	if err := f.record("details"); err != nil {
		return nil, err
	}
	return &catalog.Details{Record: catalog.Candidate{ID: id}}, nil
}

func TestLookupCachesResponses(t *testing.T) {
	fake := &fakeCatalog{}
	lookup := NewLookup(fake, LookupOptions{CacheTTL: time.Minute})
	ctx := context.Background()

	for range 3 {
		if _, err := lookup.SearchByTitle(ctx, "Alien"); err != nil {
			t.Fatal(err)
		}
		if _, err := lookup.GetDetails(ctx, 7); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := lookup.SearchByTitle(ctx, " alien "); err != nil {
		t.Fatal(err)
	}
	if fake.count("title") != 1 || fake.count("details") != 1 {
		t.Fatalf("expected cached calls, got %v", fake.calls)
	}

	now := time.Now()
	lookup.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := lookup.SearchByTitle(ctx, "Alien"); err != nil {
		t.Fatal(err)
	}
	if fake.count("title") != 2 {
		t.Fatal("expired entry should be refetched")
	}

	lookup.Purge()
	lookup.now = time.Now
	if _, err := lookup.GetDetails(ctx, 7); err != nil {
		t.Fatal(err)
	}
	if fake.count("details") != 2 {
		t.Fatal("purge should drop cached details")
	}
}

func TestLookupEvictsExpiredEntries(t *testing.T) {
	lookup := NewLookup(&fakeCatalog{}, LookupOptions{CacheTTL: time.Minute})
	ctx := context.Background()
	if _, err := lookup.SearchByTitle(ctx, "Alien"); err != nil {
		t.Fatal(err)
	}
	if _, err := lookup.GetDetails(ctx, 7); err != nil {
		t.Fatal(err)
	}
	keys := make([]string, 0, len(lookup.cache))
	for key := range lookup.cache {
		keys = append(keys, key)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 cached entries, got %d", len(keys))
	}

	now := time.Now()
	lookup.now = func() time.Time { return now.Add(2 * time.Minute) }
	for _, key := range keys {
		if _, ok := lookup.cached(key); ok {
			t.Fatalf("entry %q should have expired", key)
		}
	}
	if len(lookup.cache) != 0 {
		t.Fatalf("expired entries left in cache: %d", len(lookup.cache))
	}
}

func TestLookupRetriesTransientFailures(t *testing.T) {
	fake := &fakeCatalog{failures: 2, err: services.Wrap(services.ErrTransient, "dtdd", "search", "503", nil)}
	lookup := NewLookup(fake, LookupOptions{Delay: time.Millisecond, MaxRetries: 2})

	got, err := lookup.SearchByExternalID(context.Background(), "tt1")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(got) != 1 || fake.count("external") != 3 {
		t.Fatalf("unexpected result %v after %d calls", got, fake.count("external"))
	}
}

func TestLookupGivesUpAfterMaxRetries(t *testing.T) {
	fake := &fakeCatalog{failures: 5, err: services.Wrap(services.ErrTransient, "dtdd", "details", "timeout", nil)}
	lookup := NewLookup(fake, LookupOptions{Delay: time.Millisecond, MaxRetries: 1})

	if _, err := lookup.GetDetails(context.Background(), 3); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if fake.count("details") != 2 {
		t.Fatalf("expected 2 attempts, got %d", fake.count("details"))
	}
}

func TestLookupDoesNotRetryPermanentFailures(t *testing.T) {
	fake := &fakeCatalog{failures: 1, err: services.Wrap(services.ErrMalformed, "dtdd", "details", "bad json", nil)}
	lookup := NewLookup(fake, LookupOptions{Delay: time.Millisecond, MaxRetries: 3, CacheTTL: time.Minute})

	if _, err := lookup.GetDetails(context.Background(), 3); !errors.Is(err, services.ErrMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}
	if fake.count("details") != 1 {
		t.Fatalf("malformed payloads must not be retried, got %d calls", fake.count("details"))
	}
	if _, err := lookup.GetDetails(context.Background(), 3); err != nil {
		t.Fatalf("errors must not be cached: %v", err)
	}
}

func TestLookupPacesCalls(t *testing.T) {
	fake := &fakeCatalog{}
	delay := 20 * time.Millisecond
	lookup := NewLookup(fake, LookupOptions{Delay: delay})

	start := time.Now()
	for i := range 3 {
		if _, err := lookup.GetDetails(context.Background(), i+1); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*delay {
		t.Fatalf("three calls finished in %v, expected at least %v", elapsed, 2*delay)
	}
}

func TestLookupHonoursCancellation(t *testing.T) {
	fake := &fakeCatalog{}
	lookup := NewLookup(fake, LookupOptions{Delay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := lookup.GetDetails(ctx, 1); err != nil {
		t.Fatal(err)
	}
	cancel()
	if _, err := lookup.GetDetails(ctx, 2); err == nil {
		t.Fatal("expected cancellation error while waiting for the limiter")
	}
	if fake.count("details") != 1 {
		t.Fatal("cancelled call must not reach the catalog")
	}
}
