// Package checker verifies links with lightweight HEAD probes under bounded
// concurrency and classifies each outcome.
package checker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lukemcguire/linkguardian/config"
	"github.com/lukemcguire/linkguardian/crawler"
	"github.com/lukemcguire/linkguardian/metrics"
	"github.com/lukemcguire/linkguardian/result"
	"github.com/lukemcguire/linkguardian/urlutil"
)

// drainLimit bounds how much of a fallback GET body is read before closing.
const drainLimit = 4 << 10

// Config holds the probe settings.
type Config struct {
	Concurrency  int           // simultaneous probes (default 50)
	Timeout      time.Duration // per probe, covering every redirect hop (default 10s)
	MaxRedirects int           // redirect hops followed before giving up (default 5)
	UserAgent    string
}

// DefaultConfig returns the default probe settings.
func DefaultConfig() Config {
	return Config{
		Concurrency:  50,
		Timeout:      10 * time.Second,
		MaxRedirects: 5,
		UserAgent:    config.DefaultUserAgent,
	}
}

// Option configures a Checker.
type Option func(*Checker)

// WithTransport sets the transport used for probes.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Checker) { c.client.Transport = rt }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Checker) { c.logger = l } }

// WithProgress streams one PhaseCheck event per completed probe to ch.
func WithProgress(ch chan<- crawler.CrawlEvent) Option {
	return func(c *Checker) { c.progress = ch }
}

// WithMetrics records probe outcomes and latency on m.
func WithMetrics(m *metrics.Scan) Option { return func(c *Checker) { c.metrics = m } }

// Checker probes links. It holds no per-run state and is safe for concurrent use.
type Checker struct {
	cfg      Config
	client   *http.Client
	logger   *slog.Logger
	progress chan<- crawler.CrawlEvent
	metrics  *metrics.Scan
}

// New creates a Checker. Zero fields of cfg take their defaults.
func New(cfg Config, opts ...Option) *Checker {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRedirects < 0 {
		cfg.MaxRedirects = def.MaxRedirects
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	c := &Checker{
		cfg: cfg,
		client: &http.Client{
			// Redirects are followed by probe so every hop can be counted
			// and checked for loops.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// CheckAll probes every unique link and returns exactly one LinkResult per
// unique URL, in completion order. A failing probe never aborts the batch;
// cancelling ctx turns the remaining probes into Other outcomes. links is
// not modified.
func (c *Checker) CheckAll(ctx context.Context, links []result.Link) []result.LinkResult {
	probed := urlutil.NewMemoryVisitedSet(uint(len(links)) + 1)
	defer probed.Close()

	unique := make([]result.Link, 0, len(links))
	for _, l := range links {
		key, err := urlutil.Normalize(l.URL)
		if err != nil {
			key = l.URL
		}
		if probed.VisitIfNew(key) {
			unique = append(unique, l)
		}
	}
	if len(unique) == 0 {
		return []result.LinkResult{}
	}

	c.logger.Info("checking links", slog.Int("links", len(unique)), slog.Int("concurrency", c.cfg.Concurrency))

	jobs := make(chan result.Link)
	results := make(chan result.LinkResult, c.cfg.Concurrency)

	var g errgroup.Group
	for range min(c.cfg.Concurrency, len(unique)) {
		g.Go(func() error {
			for link := range jobs {
				results <- c.check(ctx, link)
			}
			return nil
		})
	}

	go func() {
		defer close(jobs)
		for _, l := range unique {
			jobs <- l
		}
	}()

	go func() {
		_ = g.Wait()
		close(results)
	}()

	out := make([]result.LinkResult, 0, len(unique))
	var broken int
	for r := range results {
		out = append(out, r)
		if r.IsBroken() {
			broken++
		}
		crawler.Emit(c.progress, ctx.Done(), crawler.CrawlEvent{
			Phase:   crawler.PhaseCheck,
			URL:     r.Link.URL,
			Kind:    r.Outcome.Kind,
			Message: r.Message,
			Checked: len(out),
			Total:   len(unique),
			Broken:  broken,
		})
	}
	return out
}

func (c *Checker) check(ctx context.Context, link result.Link) result.LinkResult {
	c.metrics.ProbeStarted()
	began := time.Now()

	outcome := c.Probe(ctx, link.URL)

	elapsed := time.Since(began)
	c.metrics.ProbeFinished(outcome.Kind, elapsed)
	c.logger.Debug("probed link", slog.String("url", link.URL), slog.String("outcome", string(outcome.Kind)),
		slog.Int("status", outcome.StatusCode), slog.Duration("elapsed", elapsed))
	return result.NewLinkResult(link, outcome)
}

// Probe checks a single URL, following at most MaxRedirects hops within
// one overall timeout.
func (c *Checker) Probe(ctx context.Context, target string) result.Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	current := target
	chain := map[string]bool{current: true}
	firstStatus := 0

	for hop := 0; ; hop++ {
		status, location, err := c.request(ctx, current)
		if err != nil {
			return result.ClassifyError(err)
		}

		if status < 300 || status > 399 {
			if firstStatus != 0 && status >= 200 && status <= 299 {
				return result.Redirect(firstStatus, current)
			}
			return result.ClassifyStatus(status)
		}

		if location == "" {
			if firstStatus != 0 {
				return result.Redirect(firstStatus, current)
			}
			return result.Redirect(status, "")
		}
		next, err := urlutil.ResolveReference(current, location)
		if err != nil || !urlutil.IsHTTPScheme(next) {
			return result.Other(fmt.Sprintf("invalid redirect location %q", location))
		}
		if firstStatus == 0 {
			firstStatus = status
		}
		if hop >= c.cfg.MaxRedirects || chain[next] {
			return result.ClassifyError(result.ErrTooManyRedirects)
		}
		chain[next] = true
		current = next
	}
}

// request issues a HEAD, retrying once with GET when the server does not
// support HEAD, and returns the status and Location header.
func (c *Checker) request(ctx context.Context, target string) (int, string, error) {
	status, location, err := c.do(ctx, http.MethodHead, target)
	if err != nil {
		return 0, "", err
	}
	if status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
		return c.do(ctx, http.MethodGet, target)
	}
	return status, location, nil
}

func (c *Checker) do(ctx context.Context, method, target string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, "", &url.Error{Op: method, URL: target, Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("close probe body", slog.String("url", target), slog.Any("error", closeErr))
		}
	}()

	return resp.StatusCode, resp.Header.Get("Location"), nil
}
