// Package storage holds the ranking logic shared by the article store
// backends, so memory and Mongo return identically ordered results.
package storage

import (
	"sort"
	"strings"

	"github.com/mkarlsen/newsdex/internal/crawler"
)

// SnippetWidth is the target snippet length in bytes.
const SnippetWidth = 200

// NormalizeKeywords lowercases and deduplicates the query terms,
// dropping blanks.
func NormalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// MatchCount returns how many of the (already normalized) keywords occur
// in the article body.
func MatchCount(bodyText string, keywords []string) int {
	body := strings.ToLower(bodyText)
	n := 0
	for _, k := range keywords {
		if strings.Contains(body, k) {
			n++
		}
	}
	return n
}

// Rank filters articles to those matching at least one keyword and
// orders them by match count descending, then published_at descending
// (undated articles last), then URL ascending. The URL tiebreak makes
// repeated searches over the same store state return identical
// sequences.
func Rank(articles []crawler.Article, keywords []string) []crawler.ArticleSummary {
	type ranked struct {
		article crawler.Article
		matches int
	}
	hits := make([]ranked, 0, len(articles))
	for _, a := range articles {
		if m := MatchCount(a.BodyText, keywords); m > 0 {
			hits = append(hits, ranked{article: a, matches: m})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.matches != b.matches {
			return a.matches > b.matches
		}
		ap, bp := a.article.PublishedAt, b.article.PublishedAt
		switch {
		case ap != nil && bp != nil && !ap.Equal(*bp):
			return ap.After(*bp)
		case ap != nil && bp == nil:
			return true
		case ap == nil && bp != nil:
			return false
		}
		return a.article.URL < b.article.URL
	})

	out := make([]crawler.ArticleSummary, 0, len(hits))
	for _, h := range hits {
		out = append(out, crawler.ArticleSummary{
			Headline:    h.article.Headline,
			URL:         h.article.URL,
			Author:      h.article.Author,
			PublishedAt: h.article.PublishedAt,
			Snippet:     Snippet(h.article.BodyText, keywords),
		})
	}
	return out
}

// Snippet returns a window of body text around the first keyword hit,
// or the leading text when no position is found.
func Snippet(bodyText string, keywords []string) string {
	body := strings.ToLower(bodyText)
	pos := -1
	for _, k := range keywords {
		if i := strings.Index(body, k); i >= 0 && (pos < 0 || i < pos) {
			pos = i
		}
	}
	start := 0
	if pos > SnippetWidth/2 {
		start = pos - SnippetWidth/2
	}
	end := start + SnippetWidth
	if end > len(bodyText) {
		end = len(bodyText)
	}
	snippet := strings.TrimSpace(bodyText[start:end])
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(bodyText) {
		snippet += "…"
	}
	return snippet
}
