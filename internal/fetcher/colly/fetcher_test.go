package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mkarlsen/newsdex/internal/crawler"
	"github.com/mkarlsen/newsdex/internal/policy/ratelimit"
)

type denyAllPolicy struct{}

func (denyAllPolicy) Allowed(context.Context, string) bool { return false }

func newTestFetcher() *Fetcher {
	return New(
		Config{UserAgent: "newsdex-test/1.0", Timeout: 5 * time.Second},
		ratelimit.New(),
		allowAllPolicy{},
	)
}

func policyFor(ts *httptest.Server) crawler.HostPolicy {
	return crawler.HostPolicy{Host: crawler.HostOf(ts.URL), MaxConcurrent: 2}
}

func TestFetcher_Success(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "newsdex-test/1.0", r.UserAgent())
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer ts.Close()

	f := newTestFetcher()
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: ts.URL, Policy: policyFor(ts)})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "hello")
	require.Equal(t, "text/html", resp.Headers.Get("Content-Type"))
}

func TestFetcher_NotFoundIsTerminal(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	f := newTestFetcher()
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: ts.URL, Policy: policyFor(ts)})
	fe, ok := crawler.AsFetchError(err)
	require.True(t, ok)
	require.Equal(t, crawler.FetchHTTPError, fe.Kind)
	require.Equal(t, http.StatusNotFound, fe.Status)
	require.False(t, fe.Retriable())
}

func TestFetcher_ServerErrorIsRetriable(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	f := newTestFetcher()
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: ts.URL, Policy: policyFor(ts)})
	fe, ok := crawler.AsFetchError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusServiceUnavailable, fe.Status)
	require.True(t, fe.Retriable())
}

func TestFetcher_TooManyRequestsCarriesRetryAfter(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	f := newTestFetcher()
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: ts.URL, Policy: policyFor(ts)})
	fe, ok := crawler.AsFetchError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusTooManyRequests, fe.Status)
	require.True(t, fe.Retriable())
	require.Equal(t, 30*time.Second, fe.RetryAfter)
}

func TestFetcher_RobotsBlocked(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("request should never reach the server")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	f := New(Config{UserAgent: "newsdex-test/1.0"}, ratelimit.New(), denyAllPolicy{})
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: ts.URL, Policy: policyFor(ts)})
	fe, ok := crawler.AsFetchError(err)
	require.True(t, ok)
	require.Equal(t, crawler.FetchBlocked, fe.Kind)
	require.False(t, fe.Retriable())
}

func TestFetcher_ConnectionRefused(t *testing.T) {
	t.Parallel()

	// Reserve a port, then close it so the connection is refused.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	deadURL := ts.URL
	ts.Close()

	f := newTestFetcher()
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{
		URL:    deadURL,
		Policy: crawler.HostPolicy{Host: crawler.HostOf(deadURL), MaxConcurrent: 1},
	})
	fe, ok := crawler.AsFetchError(err)
	require.True(t, ok)
	require.Equal(t, crawler.FetchConnectionRefused, fe.Kind)
	require.True(t, fe.Retriable())
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("Retry-After", "12")
	require.Equal(t, 12*time.Second, parseRetryAfter(&h))

	h.Set("Retry-After", "not-a-number")
	require.Equal(t, time.Duration(0), parseRetryAfter(&h))

	require.Equal(t, time.Duration(0), parseRetryAfter(nil))
}
