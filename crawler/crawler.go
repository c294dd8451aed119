// Package crawler performs a breadth-first, depth-bounded traversal of the
// same-origin pages of a site and collects every link those pages reference.
// Pages are fetched one at a time with a politeness delay between fetches,
// honouring robots.txt when configured.
package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/lukemcguire/linkguardian/config"
	"github.com/lukemcguire/linkguardian/metrics"
	"github.com/lukemcguire/linkguardian/result"
	"github.com/lukemcguire/linkguardian/urlutil"
)

// DefaultCrawlDelay is the minimal delay between consecutive page fetches.
const DefaultCrawlDelay = 100 * time.Millisecond

// ErrDisallowed is recorded for pages excluded by robots.txt.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// PageError records a page that was skipped during traversal.
type PageError struct {
	URL   string
	Depth int
	Err   error
}

// Result is the outcome of one crawl.
type Result struct {
	Links        []result.Link // unique links in discovery order
	PagesVisited int           // pages fetched successfully
	PageErrors   []PageError
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithFetcher replaces the HTTP page fetcher.
func WithFetcher(f PageFetcher) Option { return func(c *Crawler) { c.fetcher = f } }

// WithRobots makes the crawler skip pages that robots.txt disallows.
func WithRobots(r *RobotsChecker) Option { return func(c *Crawler) { c.robots = r } }

// WithLimiter sets the politeness limiter applied between page fetches.
func WithLimiter(l *AdaptiveLimiter) Option { return func(c *Crawler) { c.limiter = l } }

// WithMemoryWatcher stops frontier growth under critical memory pressure.
func WithMemoryWatcher(m *MemoryWatcher) Option { return func(c *Crawler) { c.memory = m } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Crawler) { c.logger = l } }

// WithProgress streams a CrawlEvent per processed page to ch.
func WithProgress(ch chan<- CrawlEvent) Option { return func(c *Crawler) { c.progress = ch } }

// WithMetrics records page counters on m.
func WithMetrics(m *metrics.Scan) Option { return func(c *Crawler) { c.metrics = m } }

// Crawler holds the collaborators of a crawl. All traversal state lives in
// Crawl, so a Crawler may be reused for several scans.
type Crawler struct {
	fetcher  PageFetcher
	robots   *RobotsChecker
	limiter  *AdaptiveLimiter
	memory   *MemoryWatcher
	logger   *slog.Logger
	progress chan<- CrawlEvent
	metrics  *metrics.Scan
}

// New creates a Crawler. Without options it fetches pages over HTTP with a
// 10s timeout and waits DefaultCrawlDelay between fetches.
func New(opts ...Option) *Crawler {
	c := &Crawler{}
	for _, opt := range opts {
		opt(c)
	}
	if c.fetcher == nil {
		c.fetcher = NewHTTPPageFetcher(&http.Client{Timeout: 10 * time.Second}, config.DefaultUserAgent, RetryPolicy{})
	}
	if c.limiter == nil {
		c.limiter = NewAdaptiveLimiter(DefaultCrawlDelay, DefaultTargetRTT)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

type frontierItem struct {
	url   string
	depth int
}

// Crawl traverses the site breadth-first from startURL. Depth 1 collects only
// the links of the start page. Unreachable pages are recorded in
// Result.PageErrors and never abort the crawl; only an invalid start URL,
// maxDepth < 1 or cancellation of ctx return an error. On cancellation the
// partial result is returned alongside the error.
func (c *Crawler) Crawl(ctx context.Context, startURL string, maxDepth int) (*Result, error) {
	if maxDepth < 1 {
		return nil, &config.ConfigError{Field: "max_depth", Value: fmt.Sprint(maxDepth), Reason: "must be at least 1"}
	}
	start, err := urlutil.Normalize(startURL)
	if err != nil {
		return nil, &config.ConfigError{Field: "start URL", Value: startURL, Reason: "must be an absolute URL", Err: err}
	}
	if !urlutil.IsHTTPScheme(start) {
		return nil, &config.ConfigError{Field: "start URL", Value: startURL, Reason: "scheme must be http or https"}
	}
	startOrigin, err := urlutil.Origin(start)
	if err != nil {
		return nil, &config.ConfigError{Field: "start URL", Value: startURL, Reason: "has no origin", Err: err}
	}

	pages, err := urlutil.NewVisitedSet(urlutil.DefaultVisitedEstimate)
	if err != nil {
		c.logger.Warn("disk-backed visited set unavailable, using memory", slog.Any("error", err))
		pages = urlutil.NewMemoryVisitedSet(urlutil.DefaultVisitedEstimate)
	}
	defer func() {
		if closeErr := pages.Close(); closeErr != nil {
			c.logger.Warn("close visited set", slog.Any("error", closeErr))
		}
	}()
	discovered := urlutil.NewMemoryVisitedSet(urlutil.DefaultVisitedEstimate)
	defer discovered.Close()

	// A start page that redirects to another origin (http to https, apex to
	// www) makes that origin part of the site as well.
	origins := []string{startOrigin}
	sameOrigin := func(u string) bool {
		for _, o := range origins {
			if urlutil.SameOrigin(u, o) {
				return true
			}
		}
		return false
	}

	res := &Result{}
	queue := []frontierItem{{url: start, depth: 0}}
	pages.Visit(start)
	frontierClosed := false

	c.logger.Info("crawl started", slog.String("url", start), slog.Int("max_depth", maxDepth))

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("crawl %s: %w", start, err)
		}

		item := queue[0]
		queue = queue[1:]

		page, err := c.visit(ctx, item)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, fmt.Errorf("crawl %s: %w", start, ctxErr)
			}
			res.PageErrors = append(res.PageErrors, PageError{URL: item.url, Depth: item.depth, Err: err})
			c.metrics.PageFailed()
			c.logger.Warn("page skipped", slog.String("url", item.url), slog.Int("depth", item.depth), slog.Any("error", err))
			Emit(c.progress, ctx.Done(), CrawlEvent{
				Phase: PhaseCrawl, URL: item.url, Error: err.Error(),
				Pages: res.PagesVisited, Links: len(res.Links),
			})
			continue
		}
		base := page.URL
		if base == nil {
			base, _ = url.Parse(item.url)
		}
		// A redirect may land on a page already crawled under its own URL.
		if final, nErr := urlutil.Normalize(base.String()); nErr == nil && final != item.url && !pages.VisitIfNew(final) {
			c.logger.Debug("page already crawled", slog.String("url", item.url), slog.String("final_url", final))
			continue
		}

		res.PagesVisited++
		c.metrics.PageFetched()
		if item.depth == 0 {
			if o, oErr := urlutil.Origin(base.String()); oErr == nil && o != startOrigin {
				origins = append(origins, o)
			}
		}

		hrefs, extractErr := ExtractLinks(bytes.NewReader(page.Body), base)
		if extractErr != nil {
			c.logger.Debug("partial link extraction", slog.String("url", item.url), slog.Any("error", extractErr))
		}

		if !frontierClosed && c.underPressure() {
			frontierClosed = true
			c.logger.Warn("memory pressure critical, no longer growing the frontier", slog.Int("queued", len(queue)))
		}

		nextDepth := item.depth + 1
		for _, href := range hrefs {
			if discovered.VisitIfNew(href) {
				res.Links = append(res.Links, result.Link{URL: href, Depth: nextDepth, SourcePage: item.url})
			}
			if frontierClosed || nextDepth >= maxDepth || !sameOrigin(href) {
				continue
			}
			if pages.VisitIfNew(href) {
				queue = append(queue, frontierItem{url: href, depth: nextDepth})
			}
		}

		c.logger.Debug("page crawled", slog.String("url", item.url), slog.Int("depth", item.depth),
			slog.Int("links", len(hrefs)), slog.Int("queued", len(queue)))
		Emit(c.progress, ctx.Done(), CrawlEvent{
			Phase: PhaseCrawl, URL: item.url,
			Pages: res.PagesVisited, Links: len(res.Links),
		})
	}

	c.metrics.LinksDiscovered(len(res.Links))
	if syncErr := pages.LastError(); syncErr != nil {
		c.logger.Warn("visited set sync failed", slog.Any("error", syncErr))
	}
	c.logger.Info("crawl finished", slog.Int("pages", res.PagesVisited),
		slog.Int("urls_seen", pages.Len()), slog.Int("links", len(res.Links)),
		slog.Int("page_errors", len(res.PageErrors)),
		slog.Float64("fetch_rate", c.limiter.CurrentRate()),
		slog.Duration("fetch_delay", c.limiter.CurrentDelay()),
		slog.Duration("rtt_ema", c.limiter.CurrentEMA()))
	return res, nil
}

// visit applies robots.txt and the politeness delay, then fetches one page.
func (c *Crawler) visit(ctx context.Context, item frontierItem) (*Page, error) {
	if c.robots != nil {
		allowed, err := c.robots.Allowed(ctx, item.url)
		if err != nil {
			c.logger.Debug("robots.txt unavailable, allowing", slog.String("url", item.url), slog.Any("error", err))
		}
		if !allowed {
			return nil, ErrDisallowed
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("politeness wait: %w", err)
	}

	began := time.Now()
	page, err := c.fetcher.FetchPage(ctx, item.url)
	c.limiter.ObserveRTT(time.Since(began))
	return page, err
}

func (c *Crawler) underPressure() bool {
	if c.memory == nil {
		return false
	}
	_, level := c.memory.Check()
	return level == PressureCritical
}
