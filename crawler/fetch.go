package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"golang.org/x/net/html/charset"
)

// maxPageSize bounds how much of a page body is read for link extraction.
const maxPageSize = 10 << 20

// ErrNotHTML is wrapped by PageFetchError when a page is not an HTML document.
var ErrNotHTML = errors.New("content is not HTML")

// Page is a fetched HTML page, decoded to UTF-8.
type Page struct {
	URL  *url.URL // final URL after redirects, used as the base for relative links
	Body []byte
}

// PageFetcher fetches a page so its links can be extracted.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (*Page, error)
}

// PageFetchError describes a page that could not be used for link extraction.
type PageFetchError struct {
	URL         string
	StatusCode  int    // non-2xx status, 0 for transport failures
	ContentType string // set together with ErrNotHTML
	Err         error
}

func (e *PageFetchError) Error() string {
	switch {
	case errors.Is(e.Err, ErrNotHTML):
		return fmt.Sprintf("fetch %s: %v (%s)", e.URL, e.Err, e.ContentType)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *PageFetchError) Unwrap() error { return e.Err }

// HTTPPageFetcher fetches pages with GET requests.
type HTTPPageFetcher struct {
	client    *http.Client
	userAgent string
	retry     RetryPolicy
}

// NewHTTPPageFetcher creates a fetcher. The client's Timeout bounds each attempt.
func NewHTTPPageFetcher(client *http.Client, userAgent string, retry RetryPolicy) *HTTPPageFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPageFetcher{client: client, userAgent: userAgent, retry: retry}
}

// FetchPage downloads pageURL, retrying transient failures per the retry policy.
func (f *HTTPPageFetcher) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	var page *Page
	err := f.retry.Do(ctx, func() error {
		var fetchErr error
		page, fetchErr = f.fetchOnce(ctx, pageURL)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (f *HTTPPageFetcher) fetchOnce(ctx context.Context, pageURL string) (page *Page, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &PageFetchError{URL: pageURL, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &PageFetchError{URL: pageURL, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			page, err = nil, &PageFetchError{URL: pageURL, Err: fmt.Errorf("close response body: %w", closeErr)}
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &PageFetchError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTML(contentType) {
		return nil, &PageFetchError{URL: pageURL, ContentType: contentType, Err: ErrNotHTML}
	}

	body := io.LimitReader(resp.Body, maxPageSize)
	decoded, charsetErr := charset.NewReader(body, contentType)
	if charsetErr != nil {
		decoded = body
	}
	data, err := io.ReadAll(decoded)
	if err != nil {
		return nil, &PageFetchError{URL: pageURL, Err: fmt.Errorf("read body: %w", err)}
	}

	return &Page{URL: resp.Request.URL, Body: data}, nil
}

// isHTML accepts HTML and XHTML media types. A missing header is accepted
// and left to the tokenizer.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
