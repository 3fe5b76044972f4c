package crawler

import (
	"net/http"
	"time"
)

// URLState represents the lifecycle state of a URL in the frontier.
type URLState string

// URL states persisted in the frontier store. A URL occupies exactly one
// state at a time. Transitions are Discovered -> InFlight ->
// {Visited | Discovered (retry) | Failed}; InFlight -> Discovered also
// happens on crash recovery.
const (
	URLDiscovered URLState = "discovered"
	URLInFlight   URLState = "in_flight"
	URLVisited    URLState = "visited"
	URLFailed     URLState = "failed"
)

// URLRecord is the durable per-URL entry in the frontier. It is never
// deleted; it doubles as the crawl's dedup ledger and audit trail.
type URLRecord struct {
	URL            string    `json:"url"`
	State          URLState  `json:"state"`
	AttemptCount   int       `json:"attempt_count"`
	DiscoveredAt   time.Time `json:"discovered_at"`
	LastAttemptAt  time.Time `json:"last_attempt_at,omitempty"`
	NextEligibleAt time.Time `json:"next_eligible_at,omitempty"`
}

// Article is the cleansed document persisted by the article store,
// keyed by normalized URL.
type Article struct {
	URL         string     `json:"url" bson:"url"`
	Headline    string     `json:"headline" bson:"headline"`
	Author      string     `json:"author,omitempty" bson:"author,omitempty"`
	BodyText    string     `json:"body_text" bson:"body_text"`
	PublishedAt *time.Time `json:"published_at,omitempty" bson:"published_at,omitempty"`
	FetchedAt   time.Time  `json:"fetched_at" bson:"fetched_at"`
	ContentHash string     `json:"content_hash" bson:"content_hash"`
}

// ArticleSummary is the search-result projection of an Article.
type ArticleSummary struct {
	Headline    string     `json:"headline"`
	URL         string     `json:"url"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Snippet     string     `json:"snippet"`
}

// OutcomeResult classifies how processing a single URL ended.
type OutcomeResult string

// Outcome results emitted by the coordinator, one per processed URL.
const (
	OutcomeStored           OutcomeResult = "stored"
	OutcomeSkippedDuplicate OutcomeResult = "skipped_duplicate"
	OutcomeExtractionFailed OutcomeResult = "extraction_failed"
	OutcomeFetchFailed      OutcomeResult = "fetch_failed"
)

// CrawlOutcome is a transient per-URL processing result. It is logged
// and counted but never persisted.
type CrawlOutcome struct {
	RunID  string
	URL    string
	Result OutcomeResult
	Detail string
}

// HostPolicy captures politeness limits for a single host. It is derived
// from configuration and shared read-only by the fetcher and frontier.
type HostPolicy struct {
	Host          string
	MinDelay      time.Duration
	MaxConcurrent int
}

// UpsertResult reports whether an upsert wrote new content.
type UpsertResult int

// Upsert outcomes.
const (
	// UpsertStored means the article was inserted or its content changed.
	UpsertStored UpsertResult = iota
	// UpsertUnchanged means the content hash matched the existing record;
	// only fetched_at was refreshed.
	UpsertUnchanged
)

// FetchRequest captures everything needed to fetch one URL.
type FetchRequest struct {
	URL     string
	Policy  HostPolicy
	Headers http.Header
}

// FetchResponse is the result of a successful fetch.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
