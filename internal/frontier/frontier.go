// Package frontier implements the crawl's URL scheduler: dedup by
// normalized URL, per-host politeness, retry backoff and crash-safe
// resumption over a durable record store.
package frontier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mkarlsen/newsdex/internal/crawler"
	"github.com/mkarlsen/newsdex/internal/telemetry"
)

// Config controls scheduling behavior.
type Config struct {
	// MaxRetries bounds retriable failures: a URL failing on attempt
	// MaxRetries+1 becomes terminally Failed.
	MaxRetries int
	// DefaultPolicy applies to hosts without an explicit entry in Policies.
	DefaultPolicy crawler.HostPolicy
	// Policies holds per-host politeness overrides, keyed by host.
	Policies map[string]crawler.HostPolicy
}

// NextResult is the outcome of a Next call. Exactly one of three shapes:
// URL set (a claim succeeded), Wait > 0 (everything eligible is backing
// off; retry after Wait), or neither (Idle reports whether the frontier
// is fully quiescent or merely blocked on in-flight work).
type NextResult struct {
	URL  string
	Wait time.Duration
	Idle bool
}

// Frontier schedules URLs for fetching. All state transitions happen
// under one mutex and are written through to the durable store before
// they are visible, so a crash can at worst repeat a fetch, never lose
// one.
type Frontier struct {
	mu       sync.Mutex
	store    crawler.FrontierStore
	clock    crawler.Clock
	backoff  *Backoff
	cfg      Config
	logger   *zap.Logger
	records  map[string]*crawler.URLRecord
	order    []string
	inFlight map[string]int
}

// New builds a Frontier, loading prior state from the store. URLs left
// InFlight by a crashed run are requeued to Discovered.
func New(
	ctx context.Context,
	store crawler.FrontierStore,
	clock crawler.Clock,
	backoff *Backoff,
	cfg Config,
	logger *zap.Logger,
) (*Frontier, error) {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	f := &Frontier{
		store:    store,
		clock:    clock,
		backoff:  backoff,
		cfg:      cfg,
		logger:   logger,
		records:  make(map[string]*crawler.URLRecord),
		inFlight: make(map[string]int),
	}
	records, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load frontier state: %w", err)
	}
	requeued := 0
	for i := range records {
		rec := records[i]
		if rec.State == crawler.URLInFlight {
			rec.State = crawler.URLDiscovered
			rec.NextEligibleAt = time.Time{}
			if err := store.SaveURL(ctx, rec); err != nil {
				return nil, fmt.Errorf("requeue in-flight url %s: %w", rec.URL, err)
			}
			requeued++
		}
		r := rec
		f.records[r.URL] = &r
		f.order = append(f.order, r.URL)
	}
	if requeued > 0 {
		logger.Info("requeued in-flight urls from prior run", zap.Int("count", requeued))
	}
	f.publishDepth()
	return f, nil
}

// AddDiscovered offers a URL to the frontier. It returns false when the
// normalized form is already known. Unparseable URLs are an error.
func (f *Frontier) AddDiscovered(ctx context.Context, rawURL string) (bool, error) {
	normalized, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return false, fmt.Errorf("add discovered: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, known := f.records[normalized]; known {
		return false, nil
	}
	rec := crawler.URLRecord{
		URL:          normalized,
		State:        crawler.URLDiscovered,
		DiscoveredAt: f.clock.Now(),
	}
	if err := f.store.SaveURL(ctx, rec); err != nil {
		return false, fmt.Errorf("persist discovered url: %w", err)
	}
	f.records[normalized] = &rec
	f.order = append(f.order, normalized)
	f.publishDepth()
	return true, nil
}

// Next claims the oldest-discovered eligible URL, transitioning it to
// InFlight and counting the attempt. Eligibility requires the host to be
// under its concurrency cap and next_eligible_at to have passed.
func (f *Frontier) Next(ctx context.Context) (NextResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now()
	var (
		waiting      bool
		soonest      time.Time
		discoverable bool
	)
	for _, u := range f.order {
		rec := f.records[u]
		if rec.State != crawler.URLDiscovered {
			continue
		}
		discoverable = true
		if !rec.NextEligibleAt.IsZero() && rec.NextEligibleAt.After(now) {
			if !waiting || rec.NextEligibleAt.Before(soonest) {
				waiting = true
				soonest = rec.NextEligibleAt
			}
			continue
		}
		host := crawler.HostOf(rec.URL)
		if f.inFlight[host] >= f.policyFor(host).MaxConcurrent {
			continue
		}

		// Claim: one transition, one durable write, under the lock.
		prev := *rec
		rec.State = crawler.URLInFlight
		rec.AttemptCount++
		rec.LastAttemptAt = now
		if err := f.store.SaveURL(ctx, *rec); err != nil {
			*rec = prev
			return NextResult{}, fmt.Errorf("persist claim: %w", err)
		}
		f.inFlight[host]++
		f.publishDepth()
		return NextResult{URL: rec.URL}, nil
	}

	if waiting {
		return NextResult{Wait: soonest.Sub(now)}, nil
	}
	if discoverable || f.totalInFlight() > 0 {
		// Blocked on per-host caps or on other workers' in-flight
		// fetches, which may still discover new links.
		return NextResult{}, nil
	}
	return NextResult{Idle: true}, nil
}

// MarkVisited completes an in-flight URL successfully.
func (f *Frontier) MarkVisited(ctx context.Context, url string) error {
	return f.finish(ctx, url, func(rec *crawler.URLRecord) {
		rec.State = crawler.URLVisited
		rec.NextEligibleAt = time.Time{}
	})
}

// MarkFailed completes an in-flight URL with a failure. Retriable
// failures requeue the URL with backoff until the retry cap; others are
// terminal.
func (f *Frontier) MarkFailed(ctx context.Context, url string, retriable bool) error {
	return f.finish(ctx, url, func(rec *crawler.URLRecord) {
		if !retriable || rec.AttemptCount > f.cfg.MaxRetries {
			rec.State = crawler.URLFailed
			rec.NextEligibleAt = time.Time{}
			return
		}
		rec.State = crawler.URLDiscovered
		rec.NextEligibleAt = f.clock.Now().Add(f.backoff.Delay(rec.AttemptCount))
	})
}

// RetryAt overrides the next eligible time of a requeued URL, used for
// server-suggested backoff (HTTP 429 Retry-After).
func (f *Frontier) RetryAt(ctx context.Context, url string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[url]
	if !ok {
		return fmt.Errorf("retry at: unknown url %s", url)
	}
	if rec.State != crawler.URLDiscovered {
		return nil
	}
	prev := *rec
	rec.NextEligibleAt = at
	if err := f.store.SaveURL(ctx, *rec); err != nil {
		*rec = prev
		return fmt.Errorf("persist retry time: %w", err)
	}
	return nil
}

// Record returns a copy of the ledger entry for a URL.
func (f *Frontier) Record(url string) (crawler.URLRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[url]
	if !ok {
		return crawler.URLRecord{}, false
	}
	return *rec, true
}

func (f *Frontier) finish(ctx context.Context, url string, transition func(*crawler.URLRecord)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[url]
	if !ok {
		return fmt.Errorf("unknown url %s", url)
	}
	if rec.State != crawler.URLInFlight {
		return fmt.Errorf("url %s is %s, not in flight", url, rec.State)
	}
	prev := *rec
	transition(rec)
	if err := f.store.SaveURL(ctx, *rec); err != nil {
		*rec = prev
		return fmt.Errorf("persist transition: %w", err)
	}
	host := crawler.HostOf(url)
	if f.inFlight[host] > 0 {
		f.inFlight[host]--
	}
	f.publishDepth()
	return nil
}

func (f *Frontier) policyFor(host string) crawler.HostPolicy {
	p, ok := f.cfg.Policies[host]
	if !ok {
		p = f.cfg.DefaultPolicy
	}
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 1
	}
	return p
}

// PolicyFor exposes the effective politeness policy for a URL's host.
func (f *Frontier) PolicyFor(url string) crawler.HostPolicy {
	host := crawler.HostOf(url)
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.policyFor(host)
	p.Host = host
	return p
}

func (f *Frontier) totalInFlight() int {
	n := 0
	for _, c := range f.inFlight {
		n += c
	}
	return n
}

func (f *Frontier) publishDepth() {
	n := 0
	for _, rec := range f.records {
		if rec.State == crawler.URLDiscovered {
			n++
		}
	}
	telemetry.SetFrontierDepth(n)
}
