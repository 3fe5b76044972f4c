// Package main hosts the newsdex service entrypoint.
//
// Architecture overview:
//   - Frontier: internal/frontier schedules URLs with dedup by normalized
//     form, per-host politeness, exponential retry backoff and a durable
//     journal (memory or Postgres via internal/storage) so an interrupted
//     crawl resumes without losing or double-counting URLs.
//   - Fetch pipeline: internal/coordinator runs a fixed worker pool; each
//     worker claims a URL, fetches it through the Colly-based fetcher
//     (per-host rate limiting, optional robots.txt enforcement), cleanses
//     it with readability-based extraction and upserts the article into
//     the store (memory or MongoDB). Links found on any fetched page are
//     offered back to the frontier, filtered to allowed hosts.
//   - Search API: internal/api.Server exposes GET /articles?q= for ranked
//     keyword search over stored articles, plus health and metrics
//     endpoints.
//   - Configuration & plumbing: Viper populates config from env (NEWSDEX_*)
//     and file; zap provides structured logging; Prometheus metrics are
//     exported via /metrics.
//
// Operational notes:
//   - Shutdown: SIGINT/SIGTERM drains the worker pool (in-flight fetches
//     finish within crawler.drain_timeout_seconds) and stops the HTTP
//     server gracefully.
//   - The crawl runs once per process start; the search API keeps serving
//     after the crawl finishes.
//
// Run locally: go run ./cmd/newsdex -config config.yaml (or rely solely
// on NEWSDEX_* env overrides).
package main
