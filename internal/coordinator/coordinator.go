// Package coordinator drives a crawl run: a bounded worker pool pulls
// URLs from the frontier and pushes each through fetch, extract and
// store, feeding discovered links back in.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mkarlsen/newsdex/internal/crawler"
	"github.com/mkarlsen/newsdex/internal/extractor"
	"github.com/mkarlsen/newsdex/internal/frontier"
	"github.com/mkarlsen/newsdex/internal/telemetry"
)

// State is the run lifecycle state.
type State string

// Run states. A run moves Idle -> Running -> (Draining ->) Stopped;
// Draining is entered when the run context is canceled while work is
// still in flight.
const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDraining State = "draining"
	StateStopped  State = "stopped"
)

// Config controls a crawl run.
type Config struct {
	// Workers is the global worker pool size.
	Workers int
	// AllowedHosts restricts link discovery. Empty means hosts of the
	// seed URLs.
	AllowedHosts []string
	// DrainTimeout bounds per-URL processing, so a canceled run drains
	// within it.
	DrainTimeout time.Duration
	// StoreRetries is how many times a transient store failure is
	// retried before it halts the run.
	StoreRetries int
	// StoreRetryDelay spaces store retries.
	StoreRetryDelay time.Duration
	// PollInterval spaces frontier polls while all eligible URLs are
	// claimed by other workers or backing off.
	PollInterval time.Duration
}

// Summary reports what a finished run did.
type Summary struct {
	RunID      string
	Outcomes   map[crawler.OutcomeResult]int
	Discovered int
}

// Coordinator owns one crawl run at a time.
type Coordinator struct {
	frontier  *frontier.Frontier
	fetcher   crawler.Fetcher
	extractor crawler.Extractor
	articles  crawler.ArticleStore
	hasher    crawler.Hasher
	clock     crawler.Clock
	ids       crawler.IDGenerator
	cfg       Config
	logger    *zap.Logger

	mu         sync.Mutex
	state      State
	runID      string
	allowed    map[string]struct{}
	outcomes   map[crawler.OutcomeResult]int
	discovered int

	fatalOnce    sync.Once
	fatalErr     error
	cancelClaims context.CancelFunc
}

// New builds a Coordinator.
func New(
	f *frontier.Frontier,
	fetcher crawler.Fetcher,
	ext crawler.Extractor,
	articles crawler.ArticleStore,
	hasher crawler.Hasher,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if cfg.StoreRetries < 0 {
		cfg.StoreRetries = 0
	}
	if cfg.StoreRetryDelay <= 0 {
		cfg.StoreRetryDelay = 500 * time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	return &Coordinator{
		frontier:  f,
		fetcher:   fetcher,
		extractor: ext,
		articles:  articles,
		hasher:    hasher,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
		state:     StateIdle,
		outcomes:  make(map[crawler.OutcomeResult]int),
	}
}

// State returns the current run state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run seeds the frontier and blocks until the crawl finishes: the
// frontier goes quiescent, ctx is canceled and in-flight work drains,
// or a persistent store failure halts the run. Fetch and extraction
// failures never abort a run.
func (c *Coordinator) Run(ctx context.Context, seeds []string) (Summary, error) {
	runID, err := c.ids.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	if err := c.start(runID, seeds); err != nil {
		return Summary{}, err
	}

	claimCtx, cancelClaims := context.WithCancel(ctx)
	defer cancelClaims()
	c.mu.Lock()
	c.cancelClaims = cancelClaims
	c.mu.Unlock()

	seeded := 0
	for _, seed := range seeds {
		added, err := c.frontier.AddDiscovered(ctx, seed)
		if err != nil {
			c.logger.Warn("seed rejected", zap.String("url", seed), zap.Error(err))
			continue
		}
		if added {
			seeded++
		}
	}
	c.logger.Info("crawl run starting",
		zap.String("run_id", runID),
		zap.Int("seeds", seeded),
		zap.Int("workers", c.cfg.Workers))

	runDone := make(chan struct{})
	defer close(runDone)
	go func() {
		select {
		case <-ctx.Done():
			c.setState(StateDraining, StateRunning)
		case <-runDone:
		}
	}()

	// Per-URL work survives run cancellation so in-flight fetches can
	// drain, bounded by DrainTimeout.
	workCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.workerLoop(claimCtx, workCtx)
		}()
	}
	wg.Wait()

	c.mu.Lock()
	c.state = StateStopped
	summary := Summary{
		RunID:      c.runID,
		Outcomes:   make(map[crawler.OutcomeResult]int, len(c.outcomes)),
		Discovered: c.discovered,
	}
	for k, v := range c.outcomes {
		summary.Outcomes[k] = v
	}
	fatal := c.fatalErr
	c.mu.Unlock()

	if fatal != nil {
		c.logger.Error("crawl run halted", zap.String("run_id", summary.RunID), zap.Error(fatal))
		return summary, fatal
	}
	c.logger.Info("crawl run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("stored", summary.Outcomes[crawler.OutcomeStored]),
		zap.Int("duplicates", summary.Outcomes[crawler.OutcomeSkippedDuplicate]),
		zap.Int("extraction_failures", summary.Outcomes[crawler.OutcomeExtractionFailed]),
		zap.Int("fetch_failures", summary.Outcomes[crawler.OutcomeFetchFailed]),
		zap.Int("discovered", summary.Discovered))
	return summary, nil
}

func (c *Coordinator) start(runID string, seeds []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return fmt.Errorf("coordinator is %s, not idle", c.state)
	}
	c.state = StateRunning
	c.runID = runID

	c.allowed = make(map[string]struct{})
	for _, h := range c.cfg.AllowedHosts {
		c.allowed[h] = struct{}{}
	}
	if len(c.allowed) == 0 {
		for _, seed := range seeds {
			if h := crawler.HostOf(seed); h != "" {
				c.allowed[h] = struct{}{}
			}
		}
	}
	return nil
}

func (c *Coordinator) workerLoop(claimCtx, workCtx context.Context) {
	for {
		if claimCtx.Err() != nil {
			return
		}
		next, err := c.frontier.Next(claimCtx)
		if err != nil {
			if claimCtx.Err() != nil {
				return
			}
			c.fatal(fmt.Errorf("frontier claim: %w", err))
			return
		}
		switch {
		case next.URL != "":
			c.process(workCtx, next.URL)
		case next.Idle:
			return
		case next.Wait > 0:
			c.sleep(claimCtx, minDuration(next.Wait, c.cfg.PollInterval*4))
		default:
			c.sleep(claimCtx, c.cfg.PollInterval)
		}
	}
}

// process runs one URL through the pipeline. All frontier transitions
// for the URL happen here, exactly once.
func (c *Coordinator) process(ctx context.Context, url string) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DrainTimeout)
	defer cancel()

	resp, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{
		URL:    url,
		Policy: c.frontier.PolicyFor(url),
	})
	if err != nil {
		c.handleFetchFailure(ctx, url, err)
		return
	}

	// Links are discovered from every fetched page, article or not.
	c.discoverLinks(ctx, resp.Body, url)

	article, err := c.extractor.Extract(resp.Body, url)
	if err != nil {
		if markErr := c.frontier.MarkVisited(ctx, url); markErr != nil {
			c.fatal(markErr)
			return
		}
		c.emit(url, crawler.OutcomeExtractionFailed, err.Error())
		return
	}

	article.URL = url
	article.FetchedAt = c.clock.Now()
	article.ContentHash = c.hasher.Hash([]byte(article.BodyText))

	result, err := c.upsertWithRetry(ctx, article)
	if err != nil {
		_ = c.frontier.MarkFailed(ctx, url, true)
		c.fatal(fmt.Errorf("store article %s: %w", url, err))
		return
	}
	if markErr := c.frontier.MarkVisited(ctx, url); markErr != nil {
		c.fatal(markErr)
		return
	}
	if result == crawler.UpsertUnchanged {
		c.emit(url, crawler.OutcomeSkippedDuplicate, "content hash unchanged")
		return
	}
	c.emit(url, crawler.OutcomeStored, article.Headline)
}

func (c *Coordinator) handleFetchFailure(ctx context.Context, url string, err error) {
	fe, typed := crawler.AsFetchError(err)
	retriable := typed && fe.Retriable()
	if markErr := c.frontier.MarkFailed(ctx, url, retriable); markErr != nil {
		c.fatal(markErr)
		return
	}
	if typed && retriable && fe.RetryAfter > 0 {
		if raErr := c.frontier.RetryAt(ctx, url, c.clock.Now().Add(fe.RetryAfter)); raErr != nil {
			c.logger.Warn("retry-after not applied", zap.String("url", url), zap.Error(raErr))
		}
	}
	c.emit(url, crawler.OutcomeFetchFailed, err.Error())
}

func (c *Coordinator) discoverLinks(ctx context.Context, body []byte, pageURL string) {
	for _, link := range extractor.FindLinks(body, pageURL) {
		if _, ok := c.allowed[crawler.HostOf(link)]; !ok {
			continue
		}
		added, err := c.frontier.AddDiscovered(ctx, link)
		if err != nil {
			c.logger.Debug("discovered link rejected", zap.String("url", link), zap.Error(err))
			continue
		}
		if added {
			c.mu.Lock()
			c.discovered++
			c.mu.Unlock()
		}
	}
}

func (c *Coordinator) upsertWithRetry(ctx context.Context, article crawler.Article) (crawler.UpsertResult, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.StoreRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying article upsert",
				zap.String("url", article.URL),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
			c.sleep(ctx, c.cfg.StoreRetryDelay)
		}
		result, err := c.articles.Upsert(ctx, article)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if se, ok := crawler.AsStoreError(err); !ok || !se.Transient {
			break
		}
	}
	return 0, lastErr
}

func (c *Coordinator) emit(url string, result crawler.OutcomeResult, detail string) {
	c.mu.Lock()
	c.outcomes[result]++
	outcome := crawler.CrawlOutcome{RunID: c.runID, URL: url, Result: result, Detail: detail}
	c.mu.Unlock()

	telemetry.ObserveOutcome(string(result))
	c.logger.Info("url processed",
		zap.String("run_id", outcome.RunID),
		zap.String("url", outcome.URL),
		zap.String("result", string(outcome.Result)),
		zap.String("detail", outcome.Detail))
}

// fatal records the first unrecoverable error and stops all claiming.
func (c *Coordinator) fatal(err error) {
	c.fatalOnce.Do(func() {
		c.mu.Lock()
		c.fatalErr = err
		cancel := c.cancelClaims
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
}

func (c *Coordinator) setState(to, from State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == from {
		c.state = to
	}
}

func (c *Coordinator) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
