package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves a single URL, honoring the host policy carried in
// the request. Failures are reported as *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor isolates an article's main content from raw page HTML.
// Pages without enough article text fail with *ExtractionError.
type Extractor interface {
	Extract(html []byte, pageURL string) (Article, error)
}

// ArticleStore persists cleansed articles keyed by normalized URL and
// answers keyword searches over them.
type ArticleStore interface {
	Upsert(ctx context.Context, article Article) (UpsertResult, error)
	Search(ctx context.Context, keywords []string) ([]ArticleSummary, error)
}

// FrontierStore is the durable journal behind the frontier. SaveURL is
// an upsert keyed by record URL; LoadAll returns every record ever seen.
type FrontierStore interface {
	SaveURL(ctx context.Context, record URLRecord) error
	LoadAll(ctx context.Context) ([]URLRecord, error)
}

// Hasher computes content digests for dedup.
type Hasher interface {
	Hash(data []byte) string
}

// Clock returns the current time (swappable in tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl-run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
