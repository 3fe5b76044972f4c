// Package extractor isolates article content from raw page HTML using
// readability cleansing, and discovers outbound links for the frontier.
package extractor

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/mkarlsen/newsdex/internal/crawler"
)

// DefaultMinTextLength is the floor below which a cleansed page is not
// considered an article (listing pages, stubs, error pages).
const DefaultMinTextLength = 150

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	reBlockOpen  = regexp.MustCompile(`<(div|p|br|li|td|tr|h[1-6])[^>]*>`)
	reBlockClose = regexp.MustCompile(`</(div|p|li|td|tr|h[1-6])>`)
)

// Config controls extraction behavior.
type Config struct {
	// MinTextLength is the minimum cleansed body length, in bytes, for a
	// page to count as an article.
	MinTextLength int
}

// Extractor cleanses fetched pages into Articles.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
}

// New builds an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = DefaultMinTextLength
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// Extract runs readability over the page and assembles an Article.
// Pages whose cleansed text is too short fail with *crawler.ExtractionError.
func (e *Extractor) Extract(html []byte, pageURL string) (crawler.Article, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return crawler.Article{}, &crawler.ExtractionError{URL: pageURL, Reason: fmt.Sprintf("parse url: %v", err)}
	}

	page, err := readability.FromReader(bytes.NewReader(html), parsed)
	if err != nil {
		return crawler.Article{}, &crawler.ExtractionError{URL: pageURL, Reason: fmt.Sprintf("readability: %v", err)}
	}

	rawDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return crawler.Article{}, &crawler.ExtractionError{URL: pageURL, Reason: fmt.Sprintf("parse html: %v", err)}
	}

	body, err := cleanText(page.Content)
	if err != nil {
		return crawler.Article{}, &crawler.ExtractionError{URL: pageURL, Reason: fmt.Sprintf("cleanse content: %v", err)}
	}
	if len(body) < e.cfg.MinTextLength {
		return crawler.Article{}, &crawler.ExtractionError{
			URL:    pageURL,
			Reason: fmt.Sprintf("article text too short (%d bytes)", len(body)),
		}
	}

	article := crawler.Article{
		URL:         pageURL,
		Headline:    headline(page.Title, rawDoc),
		Author:      author(page.Byline, rawDoc),
		BodyText:    body,
		PublishedAt: publishedAt(page.PublishedTime, rawDoc),
	}
	if e.logger != nil {
		e.logger.Debug("article extracted",
			zap.String("url", pageURL),
			zap.String("headline", article.Headline),
			zap.Int("body_bytes", len(article.BodyText)))
	}
	return article, nil
}

// cleanText flattens readability's content HTML to whitespace-normalized
// plain text. Block boundaries get a space so adjacent words don't fuse.
func cleanText(contentHTML string) (string, error) {
	spaced := reBlockOpen.ReplaceAllString(contentHTML, " <$1>")
	spaced = reBlockClose.ReplaceAllString(spaced, "</$1> ")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(spaced))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reWhitespace.ReplaceAllString(doc.Text(), " ")), nil
}

func headline(title string, doc *goquery.Document) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func author(byline string, doc *goquery.Document) string {
	if b := strings.TrimSpace(byline); b != "" {
		return b
	}
	for _, selector := range []string{
		`meta[name="author"]`,
		`meta[property="article:author"]`,
	} {
		if v, ok := doc.Find(selector).First().Attr("content"); ok {
			if v = strings.TrimSpace(v); v != "" && !strings.HasPrefix(v, "http") {
				return v
			}
		}
	}
	return ""
}

// publishedAt prefers explicit publication metadata over readability's
// own guess. dateparse copes with the format zoo news sites emit.
func publishedAt(fromReadability *time.Time, doc *goquery.Document) *time.Time {
	for _, selector := range []string{
		`meta[property="article:published_time"]`,
		`meta[name="date"]`,
		`meta[itemprop="datePublished"]`,
		`time[datetime]`,
	} {
		sel := doc.Find(selector).First()
		raw, ok := sel.Attr("content")
		if !ok {
			raw, ok = sel.Attr("datetime")
		}
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if at, err := dateparse.ParseAny(strings.TrimSpace(raw)); err == nil {
			utc := at.UTC()
			return &utc
		}
	}
	if fromReadability != nil {
		utc := fromReadability.UTC()
		return &utc
	}
	return nil
}
