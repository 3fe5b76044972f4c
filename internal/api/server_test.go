package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkarlsen/newsdex/internal/crawler"
	"github.com/mkarlsen/newsdex/internal/storage/memory"
)

func seededStore(t *testing.T) *memory.ArticleStore {
	t.Helper()
	store := memory.NewArticleStore()
	published := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	articles := []crawler.Article{
		{
			URL:         "https://news.example/politics/election-night",
			Headline:    "Election night",
			BodyText:    "Coverage of the election results and turnout across the country.",
			PublishedAt: &published,
			ContentHash: "a",
		},
		{
			URL:         "https://news.example/sport/cricket-final",
			Headline:    "Cricket final",
			BodyText:    "The cricket final ended in a draw after rain stopped play.",
			ContentHash: "b",
		},
	}
	for _, a := range articles {
		a.FetchedAt = time.Now().UTC()
		_, err := store.Upsert(context.Background(), a)
		require.NoError(t, err)
	}
	return store
}

func newTestServer(t *testing.T, store crawler.ArticleStore) *Server {
	t.Helper()
	return NewServer(store, Config{}, zap.NewNop())
}

func doGet(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSearchArticles_MissingQuery(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, seededStore(t))
	for _, target := range []string{"/articles", "/articles?q=", "/articles?q=++,++"} {
		rec := doGet(t, s, target)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestSearchArticles_ReturnsMatches(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, seededStore(t))
	rec := doGet(t, s, "/articles?q=election")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp struct {
		Query    []string                 `json:"query"`
		Count    int                      `json:"count"`
		Articles []crawler.ArticleSummary `json:"articles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []string{"election"}, resp.Query)
	require.Equal(t, 1, resp.Count)
	require.Len(t, resp.Articles, 1)
	require.Equal(t, "https://news.example/politics/election-night", resp.Articles[0].URL)
	require.Contains(t, resp.Articles[0].Snippet, "election")
}

func TestSearchArticles_NoMatchesIsEmptyList(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, seededStore(t))
	rec := doGet(t, s, "/articles?q=volcano")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"articles":[]`)
}

type brokenStore struct{}

func (brokenStore) Upsert(context.Context, crawler.Article) (crawler.UpsertResult, error) {
	return 0, errors.New("unreachable")
}

func (brokenStore) Search(context.Context, []string) ([]crawler.ArticleSummary, error) {
	return nil, &crawler.StoreError{Err: errors.New("connection lost")}
}

func TestSearchArticles_StoreFailure(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, brokenStore{})
	rec := doGet(t, s, "/articles?q=election")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, seededStore(t))
	require.Equal(t, http.StatusOK, doGet(t, s, "/healthz").Code)
	require.Equal(t, http.StatusOK, doGet(t, s, "/readyz").Code)

	broken := newTestServer(t, brokenStore{})
	require.Equal(t, http.StatusServiceUnavailable, doGet(t, broken, "/readyz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, seededStore(t))
	rec := doGet(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestParseKeywords(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b", "c"}, parseKeywords("a,b c"))
	require.Empty(t, parseKeywords("  ,  "))
	require.Equal(t, []string{"election"}, parseKeywords("election"))
}
