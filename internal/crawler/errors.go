package crawler

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// FetchErrorKind enumerates the fetch failure taxonomy.
type FetchErrorKind string

// Fetch error kinds.
const (
	FetchTimeout           FetchErrorKind = "timeout"
	FetchConnectionRefused FetchErrorKind = "connection_refused"
	FetchHTTPError         FetchErrorKind = "http_error"
	FetchTooManyRedirects  FetchErrorKind = "too_many_redirects"
	FetchBlocked           FetchErrorKind = "blocked"
)

// FetchError is a typed fetch failure. Status is set only for
// FetchHTTPError; RetryAfter carries a server-suggested backoff
// (HTTP 429 Retry-After) when present.
type FetchError struct {
	Kind       FetchErrorKind
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchHTTPError {
		return fmt.Sprintf("fetch failed: http %d", e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch failed: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch failed: %s", e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retriable reports whether the failure is worth another attempt.
// Timeouts, refused connections, 5xx and 429 are retriable; other 4xx,
// redirect loops and robots-blocked URLs are terminal.
func (e *FetchError) Retriable() bool {
	switch e.Kind {
	case FetchTimeout, FetchConnectionRefused:
		return true
	case FetchHTTPError:
		return e.Status >= 500 || e.Status == http.StatusTooManyRequests
	default:
		return false
	}
}

// ExtractionError means a fetched page did not contain enough article
// text. It is recoverable: the fetch succeeded, so the URL is still
// marked visited.
type ExtractionError struct {
	URL    string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.URL, e.Reason)
}

// StoreError wraps article store failures. Transient errors (lost
// connections, timeouts) are retried by the coordinator; persistent
// ones halt the crawl run.
type StoreError struct {
	Transient bool
	Err       error
}

func (e *StoreError) Error() string {
	if e.Transient {
		return fmt.Sprintf("store (transient): %v", e.Err)
	}
	return fmt.Sprintf("store: %v", e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// AsFetchError unwraps err to a *FetchError if one is in the chain.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// AsExtractionError unwraps err to a *ExtractionError if one is in the chain.
func AsExtractionError(err error) (*ExtractionError, bool) {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// AsStoreError unwraps err to a *StoreError if one is in the chain.
func AsStoreError(err error) (*StoreError, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
