package extractor

import (
	"bytes"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// assetExtensions are link targets that are never article pages.
var assetExtensions = map[string]struct{}{
	".css": {}, ".js": {}, ".ico": {}, ".xml": {}, ".json": {},
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".svg": {}, ".webp": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {},
	".pdf": {}, ".zip": {}, ".gz": {}, ".tar": {},
}

// FindLinks collects outbound anchor targets from a page, resolved
// against base. Only absolute http(s) URLs survive; fragments, mailto
// and javascript schemes, and static assets are dropped. Order follows
// document order with duplicates removed.
func FindLinks(html []byte, base string) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}

	var links []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := baseURL.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if _, skip := assetExtensions[strings.ToLower(path.Ext(resolved.Path))]; skip {
			return
		}
		resolved.Fragment = ""
		link := resolved.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links
}
