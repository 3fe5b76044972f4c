// Package crawler defines the core types and contracts shared across the
// crawl pipeline: URL lifecycle records, extracted articles, fetch
// requests/responses, host politeness policies and the error taxonomy.
// Implementations live in the sibling packages (frontier, fetcher,
// extractor, storage, coordinator).
package crawler
