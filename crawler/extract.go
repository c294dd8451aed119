package crawler

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/lukemcguire/linkguardian/urlutil"
)

// ExtractLinks tokenizes HTML from body and returns the normalized absolute
// http(s) targets of every anchor, deduplicated in document order. Relative
// references resolve against base, or against a <base href> in the document.
func ExtractLinks(body io.Reader, base *url.URL) ([]string, error) {
	tokenizer := html.NewTokenizer(body)
	seen := make(map[string]bool)
	var links []string
	var errs []error

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if err := tokenizer.Err(); err != nil && err != io.EOF {
				errs = append(errs, err)
			}
			if len(errs) > 0 {
				return links, fmt.Errorf("encountered %d parse errors (first: %w)", len(errs), errs[0])
			}
			return links, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			switch token.Data {
			case "base":
				if href, ok := attr(token, "href"); ok {
					if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
						base = base.ResolveReference(ref)
					}
				}
			case "a":
				href, ok := attr(token, "href")
				if !ok {
					continue
				}
				href = strings.TrimSpace(href)
				if href == "" || strings.HasPrefix(href, "#") {
					continue
				}

				ref, err := url.Parse(href)
				if err != nil {
					errs = append(errs, fmt.Errorf("parse href %q: %w", href, err))
					continue
				}
				resolved := base.ResolveReference(ref).String()
				if !urlutil.IsHTTPScheme(resolved) {
					continue
				}

				normalized, err := urlutil.Normalize(resolved)
				if err != nil {
					errs = append(errs, fmt.Errorf("normalize URL %q: %w", resolved, err))
					continue
				}
				if !seen[normalized] {
					seen[normalized] = true
					links = append(links, normalized)
				}
			}
		}
	}
}

func attr(token html.Token, key string) (string, bool) {
	for _, a := range token.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
