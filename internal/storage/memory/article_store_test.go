package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mkarlsen/newsdex/internal/crawler"
	"github.com/mkarlsen/newsdex/internal/hash/sha256"
)

func articleFixture(url, body string, published *time.Time) crawler.Article {
	return crawler.Article{
		URL:         url,
		Headline:    "Headline for " + url,
		BodyText:    body,
		PublishedAt: published,
		FetchedAt:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		ContentHash: sha256.New().Hash([]byte(body)),
	}
}

func TestArticleStore_UpsertIdempotent(t *testing.T) {
	t.Parallel()

	store := NewArticleStore()
	ctx := context.Background()
	a := articleFixture("http://news.example/a", "the election results are in", nil)

	res, err := store.Upsert(ctx, a)
	require.NoError(t, err)
	require.Equal(t, crawler.UpsertStored, res)

	// Identical content, later fetch: no new record, fetched_at refreshed.
	refetched := a
	refetched.FetchedAt = a.FetchedAt.Add(time.Hour)
	res, err = store.Upsert(ctx, refetched)
	require.NoError(t, err)
	require.Equal(t, crawler.UpsertUnchanged, res)
	require.Equal(t, 1, store.Len())

	stored, ok := store.Get(a.URL)
	require.True(t, ok)
	require.Equal(t, refetched.FetchedAt, stored.FetchedAt)
	require.Equal(t, a.BodyText, stored.BodyText)
}

func TestArticleStore_UpsertReplacesChangedContent(t *testing.T) {
	t.Parallel()

	store := NewArticleStore()
	ctx := context.Background()
	a := articleFixture("http://news.example/a", "first draft", nil)
	_, err := store.Upsert(ctx, a)
	require.NoError(t, err)

	updated := articleFixture("http://news.example/a", "second draft with corrections", nil)
	res, err := store.Upsert(ctx, updated)
	require.NoError(t, err)
	require.Equal(t, crawler.UpsertStored, res)

	stored, _ := store.Get(a.URL)
	require.Equal(t, "second draft with corrections", stored.BodyText)
	require.Equal(t, 1, store.Len())
}

func TestArticleStore_SearchRanking(t *testing.T) {
	t.Parallel()

	store := NewArticleStore()
	ctx := context.Background()
	older := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)

	fixtures := []crawler.Article{
		articleFixture("http://news.example/both", "election results and turnout analysis", &older),
		articleFixture("http://news.example/election-new", "election night coverage", &newer),
		articleFixture("http://news.example/election-old", "election retrospective", &older),
		articleFixture("http://news.example/cricket", "cricket scores from the weekend", &newer),
	}
	for _, a := range fixtures {
		_, err := store.Upsert(ctx, a)
		require.NoError(t, err)
	}

	results, err := store.Search(ctx, []string{"election", "turnout"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Two keyword matches first, then recency, cricket excluded.
	require.Equal(t, "http://news.example/both", results[0].URL)
	require.Equal(t, "http://news.example/election-new", results[1].URL)
	require.Equal(t, "http://news.example/election-old", results[2].URL)
	require.Contains(t, results[0].Snippet, "election")
}

func TestArticleStore_SearchDeterministic(t *testing.T) {
	t.Parallel()

	store := NewArticleStore()
	ctx := context.Background()
	// Same match count, no dates: URL order breaks the tie.
	for _, u := range []string{"http://news.example/c", "http://news.example/a", "http://news.example/b"} {
		_, err := store.Upsert(ctx, articleFixture(u, "budget debate continues", nil))
		require.NoError(t, err)
	}

	first, err := store.Search(ctx, []string{"budget"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := store.Search(ctx, []string{"budget"})
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
	require.Equal(t, "http://news.example/a", first[0].URL)
	require.Equal(t, "http://news.example/b", first[1].URL)
	require.Equal(t, "http://news.example/c", first[2].URL)
}

func TestArticleStore_SearchEmptyKeywords(t *testing.T) {
	t.Parallel()

	store := NewArticleStore()
	results, err := store.Search(context.Background(), []string{" ", ""})
	require.NoError(t, err)
	require.Empty(t, results)
}
