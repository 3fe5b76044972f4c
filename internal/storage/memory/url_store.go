// Package memory provides in-memory store implementations for
// development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/mkarlsen/newsdex/internal/crawler"
)

// URLStore is an in-memory crawler.FrontierStore. Records survive
// frontier restarts within a process, which the recovery tests lean on.
type URLStore struct {
	mu      sync.RWMutex
	records map[string]crawler.URLRecord
	order   []string
}

// NewURLStore constructs an empty URLStore.
func NewURLStore() *URLStore {
	return &URLStore{records: make(map[string]crawler.URLRecord)}
}

// SaveURL upserts a record keyed by its URL.
func (s *URLStore) SaveURL(_ context.Context, record crawler.URLRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.URL]; !exists {
		s.order = append(s.order, record.URL)
	}
	s.records[record.URL] = record
	return nil
}

// LoadAll returns every record in first-seen order.
func (s *URLStore) LoadAll(_ context.Context) ([]crawler.URLRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.URLRecord, 0, len(s.order))
	for _, u := range s.order {
		out = append(out, s.records[u])
	}
	return out, nil
}
