// Package collyfetcher implements crawler.Fetcher on the Colly
// collector, layering per-host politeness and a typed error taxonomy on
// top of it.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/mkarlsen/newsdex/internal/crawler"
	"github.com/mkarlsen/newsdex/internal/policy/ratelimit"
	"github.com/mkarlsen/newsdex/internal/telemetry"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher performs one rate-limited HTTP GET per call. Frontier-level
// dedup makes revisits legitimate here, so the collector allows them.
type Fetcher struct {
	cfg           Config
	limiter       *ratelimit.Limiter
	robots        RobotsPolicy
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config, limiter *ratelimit.Limiter, robots RobotsPolicy) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	// colly v2.1.0's Async option sets async mode regardless of its
	// argument; the default collector is already synchronous.
	c := colly.NewCollector()
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true // enforced by the RobotsPolicy instead
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		limiter:       limiter,
		robots:        robots,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET, blocking for the host's politeness
// delay first. Failures come back as *crawler.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if f.robots != nil && !f.robots.Allowed(ctx, request.URL) {
		return crawler.FetchResponse{}, &crawler.FetchError{
			Kind: crawler.FetchBlocked,
			Err:  fmt.Errorf("disallowed by robots.txt"),
		}
	}

	release, err := f.limiter.Acquire(ctx, request.Policy)
	if err != nil {
		return crawler.FetchResponse{}, &crawler.FetchError{Kind: crawler.FetchTimeout, Err: err}
	}
	defer release()

	var (
		result   crawler.FetchResponse
		fetchErr *crawler.FetchError
	)
	start := time.Now()
	collector := f.buildCollector(request, start, &result, &fetchErr)

	visitErr, err := f.runCollector(ctx, collector, request.URL)
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	if fetchErr != nil {
		return crawler.FetchResponse{}, fetchErr
	}
	if result.StatusCode == 0 {
		// Visit failed before a request was issued (bad URL, dial error
		// the collector did not surface through OnError).
		if visitErr == nil {
			visitErr = fmt.Errorf("no response received")
		}
		return crawler.FetchResponse{}, classify(nil, visitErr)
	}
	telemetry.ObservePageFetched(request.Policy.Host, result.StatusCode)
	return result, nil
}

func (f *Fetcher) buildCollector(
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr **crawler.FetchError,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range request.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		*result = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		*fetchErr = classify(r, err)
	})

	return collector
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) (error, error) {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, &crawler.FetchError{Kind: crawler.FetchTimeout, Err: ctx.Err()}
	case visitErr := <-done:
		// OnError usually captured visitErr already, with more context
		// than the return value carries.
		return visitErr, nil
	}
}

// classify maps transport and HTTP failures onto the fetch error
// taxonomy. Status codes present on the response win over the wrapped
// error text.
func classify(r *colly.Response, err error) *crawler.FetchError {
	if r != nil && r.StatusCode >= 400 {
		fe := &crawler.FetchError{
			Kind:   crawler.FetchHTTPError,
			Status: r.StatusCode,
			Err:    err,
		}
		if r.StatusCode == http.StatusTooManyRequests {
			fe.RetryAfter = parseRetryAfter(r.Headers)
		}
		return fe
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &crawler.FetchError{Kind: crawler.FetchTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &crawler.FetchError{Kind: crawler.FetchTimeout, Err: err}
	case errors.Is(err, syscall.ECONNREFUSED):
		return &crawler.FetchError{Kind: crawler.FetchConnectionRefused, Err: err}
	case strings.Contains(err.Error(), "stopped after"):
		return &crawler.FetchError{Kind: crawler.FetchTooManyRedirects, Err: err}
	default:
		return &crawler.FetchError{Kind: crawler.FetchConnectionRefused, Err: err}
	}
}

func parseRetryAfter(headers *http.Header) time.Duration {
	if headers == nil {
		return 0
	}
	raw := headers.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
