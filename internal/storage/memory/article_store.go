package memory

import (
	"context"
	"sync"

	"github.com/mkarlsen/newsdex/internal/crawler"
	"github.com/mkarlsen/newsdex/internal/storage"
)

// ArticleStore is an in-memory crawler.ArticleStore with the same
// upsert and ranking semantics as the Mongo backend.
type ArticleStore struct {
	mu       sync.RWMutex
	articles map[string]crawler.Article
}

// NewArticleStore constructs an empty ArticleStore.
func NewArticleStore() *ArticleStore {
	return &ArticleStore{articles: make(map[string]crawler.Article)}
}

// Upsert inserts or replaces the article keyed by URL. When the content
// hash matches the stored record only fetched_at is refreshed and
// UpsertUnchanged is returned.
func (s *ArticleStore) Upsert(_ context.Context, article crawler.Article) (crawler.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.articles[article.URL]
	if ok && existing.ContentHash == article.ContentHash {
		existing.FetchedAt = article.FetchedAt
		s.articles[article.URL] = existing
		return crawler.UpsertUnchanged, nil
	}
	s.articles[article.URL] = article
	return crawler.UpsertStored, nil
}

// Search returns ranked summaries of articles matching any keyword.
func (s *ArticleStore) Search(_ context.Context, keywords []string) ([]crawler.ArticleSummary, error) {
	normalized := storage.NormalizeKeywords(keywords)
	if len(normalized) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	all := make([]crawler.Article, 0, len(s.articles))
	for _, a := range s.articles {
		all = append(all, a)
	}
	s.mu.RUnlock()

	return storage.Rank(all, normalized), nil
}

// Get returns the stored article for a URL, if any.
func (s *ArticleStore) Get(url string) (crawler.Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[url]
	return a, ok
}

// Len reports the number of stored articles.
func (s *ArticleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.articles)
}
