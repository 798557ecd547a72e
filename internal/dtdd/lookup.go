package dtdd

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dtddsync/internal/catalog"
	"dtddsync/internal/logging"
	"dtddsync/internal/services"
)

// LookupOptions tunes a Lookup.
type LookupOptions struct {
	// Delay is the minimum gap between calls reaching the wrapped catalog.
	Delay time.Duration
	// CacheTTL of zero disables caching.
	CacheTTL   time.Duration
	MaxRetries int
	Logger     *slog.Logger
}

type cacheEntry struct {
	candidates []catalog.Candidate
	details    *catalog.Details
	expires    time.Time
}

// Lookup is a Catalog that caches, paces, and retries calls to another Catalog.
type Lookup struct {
	next       Catalog
	limiter    *rate.Limiter
	retryDelay time.Duration
	maxRetries int
	ttl        time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

var _ Catalog = (*Lookup)(nil)

// NewLookup wraps next.
func NewLookup(next Catalog, opts LookupOptions) *Lookup {
	l := &Lookup{
		next:       next,
		retryDelay: opts.Delay,
		maxRetries: max(opts.MaxRetries, 0),
		ttl:        opts.CacheTTL,
		logger:     logging.NewComponentLogger(opts.Logger, "dtdd-lookup"),
		now:        time.Now,
		cache:      make(map[string]cacheEntry),
	}
	if opts.Delay > 0 {
		l.limiter = rate.NewLimiter(rate.Every(opts.Delay), 1)
	}
	if l.retryDelay <= 0 {
		l.retryDelay = 500 * time.Millisecond
	}
	return l
}

// SearchByTitle implements Catalog.
func (l *Lookup) SearchByTitle(ctx context.Context, title string) ([]catalog.Candidate, error) {
	key := "title|" + strings.ToLower(strings.TrimSpace(title))
	if entry, ok := l.cached(key); ok {
		return entry.candidates, nil
	}
	var out []catalog.Candidate
	err := l.do(ctx, "search_title", func(ctx context.Context) error {
		var err error
		out, err = l.next.SearchByTitle(ctx, title)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.store(key, cacheEntry{candidates: out})
	return out, nil
}

// SearchByExternalID implements Catalog.
func (l *Lookup) SearchByExternalID(ctx context.Context, externalID string) ([]catalog.Candidate, error) {
	key := "external|" + strings.ToLower(strings.TrimSpace(externalID))
	if entry, ok := l.cached(key); ok {
		return entry.candidates, nil
	}
	var out []catalog.Candidate
	err := l.do(ctx, "search_external", func(ctx context.Context) error {
		var err error
		out, err = l.next.SearchByExternalID(ctx, externalID)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.store(key, cacheEntry{candidates: out})
	return out, nil
}

// GetDetails implements Catalog.
func (l *Lookup) GetDetails(ctx context.Context, id int) (*catalog.Details, error) {
	key := "details|" + strconv.Itoa(id)
	if entry, ok := l.cached(key); ok {
		return entry.details, nil
	}
	var out *catalog.Details
	err := l.do(ctx, "details", func(ctx context.Context) error {
		var err error
		out, err = l.next.GetDetails(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.store(key, cacheEntry{details: out})
	return out, nil
}

// Purge drops every cached response.
func (l *Lookup) Purge() {
	l.mu.Lock()
	l.cache = make(map[string]cacheEntry)
	l.mu.Unlock()
}

func (l *Lookup) do(ctx context.Context, operation string, call func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if l.limiter != nil {
			if werr := l.limiter.Wait(ctx); werr != nil {
				return werr
			}
		}
		err = call(ctx)
		if err == nil || !services.Retryable(err) || attempt >= l.maxRetries || ctx.Err() != nil {
			return err
		}
		logging.WarnWithContext(logging.WithContext(ctx, l.logger), "dtdd call failed; retrying", "dtdd_retry",
			logging.String("operation", operation),
			logging.Int("attempt", attempt+1),
			logging.Int("max_retries", l.maxRetries),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "DTDD may be rate limiting or unavailable"),
			logging.String(logging.FieldImpact, "sync slows down while retrying"),
		)
		if serr := sleepWithContext(ctx, l.retryDelay*time.Duration(attempt+1)); serr != nil {
			return serr
		}
	}
}

func (l *Lookup) cached(key string) (cacheEntry, bool) {
	if l.ttl <= 0 {
		return cacheEntry{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.cache[key]
	if !ok {
		return cacheEntry{}, false
	}
	if !l.now().Before(entry.expires) {
		delete(l.cache, key)
		return cacheEntry{}, false
	}
	return entry, true
}

func (l *Lookup) store(key string, entry cacheEntry) {
	if l.ttl <= 0 {
		return
	}
	entry.expires = l.now().Add(l.ttl)
	l.mu.Lock()
	l.cache[key] = entry
	l.mu.Unlock()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
