package repo

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"gitlab.com/golang-commonmark/markdown"

	"github.com/lukemcguire/linkguardian/result"
	"github.com/lukemcguire/linkguardian/urlutil"
)

// renderer turns CommonMark into HTML. Raw HTML blocks are passed through so
// anchors written as HTML are found as well; bare URLs are not linkified.
var renderer = markdown.New(markdown.HTML(true), markdown.Linkify(false))

// ExtractMarkdownLinks returns the normalized absolute http(s) link targets
// of a Markdown document, deduplicated in document order. Relative links,
// anchors and other schemes are skipped.
func ExtractMarkdownLinks(text string) ([]string, error) {
	rendered := renderer.RenderToString([]byte(text))

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rendered))
	if err != nil {
		return nil, fmt.Errorf("parse rendered markdown: %w", err)
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if !urlutil.IsHTTPScheme(href) {
			return
		}
		normalized, err := urlutil.Normalize(href)
		if err != nil || seen[normalized] {
			return
		}
		seen[normalized] = true
		links = append(links, normalized)
	})
	return links, nil
}

// DocumentLinks extracts the links of doc as depth-0 Links sourced from the document URL.
func DocumentLinks(doc *Document) ([]result.Link, error) {
	hrefs, err := ExtractMarkdownLinks(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("extract links from %s: %w", doc.Name, err)
	}
	links := make([]result.Link, 0, len(hrefs))
	for _, h := range hrefs {
		links = append(links, result.Link{URL: h, Depth: 0, SourcePage: doc.URL})
	}
	return links, nil
}
