// Package scan wires the crawler, the repository fetcher and the link
// checker into the two scan modes and assembles the final report.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lukemcguire/linkguardian/checker"
	"github.com/lukemcguire/linkguardian/config"
	"github.com/lukemcguire/linkguardian/crawler"
	"github.com/lukemcguire/linkguardian/metrics"
	"github.com/lukemcguire/linkguardian/repo"
	"github.com/lukemcguire/linkguardian/result"
)

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option { return func(s *Scanner) { s.logger = l } }

// WithProgress streams crawl and check events to ch. The channel is not closed.
func WithProgress(ch chan<- crawler.CrawlEvent) Option {
	return func(s *Scanner) { s.progress = ch }
}

// WithMetrics records scan metrics on m.
func WithMetrics(m *metrics.Scan) Option { return func(s *Scanner) { s.metrics = m } }

// WithHTTPClient sets the client used for page, robots.txt and document fetches.
func WithHTTPClient(c *http.Client) Option { return func(s *Scanner) { s.client = c } }

// WithProbeTransport sets the transport used by link probes.
func WithProbeTransport(rt http.RoundTripper) Option {
	return func(s *Scanner) { s.probeTransport = rt }
}

// WithRawBase points repository mode at another raw-content host.
func WithRawBase(base string) Option { return func(s *Scanner) { s.rawBase = base } }

// WithBranches sets the branches searched for the README in repository mode.
func WithBranches(branches ...string) Option { return func(s *Scanner) { s.branches = branches } }

// Scanner runs scans with one configuration.
type Scanner struct {
	cfg            *config.Config
	logger         *slog.Logger
	progress       chan<- crawler.CrawlEvent
	metrics        *metrics.Scan
	client         *http.Client
	probeTransport http.RoundTripper
	rawBase        string
	branches       []string
}

// New creates a Scanner. A nil cfg uses config.Default().
func New(cfg *config.Config, opts ...Option) *Scanner {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Scanner{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: cfg.Timeout}
	}
	return s
}

// Site crawls the site at startURL and checks every discovered link.
func (s *Scanner) Site(ctx context.Context, startURL string) (*result.Report, error) {
	started := time.Now()

	retry := crawler.DefaultRetryPolicy()
	retry.MaxRetries = s.cfg.Retries
	retry.BaseDelay = s.cfg.RetryDelay

	opts := []crawler.Option{
		crawler.WithFetcher(crawler.NewHTTPPageFetcher(s.client, s.cfg.UserAgent, retry)),
		crawler.WithLimiter(crawler.NewAdaptiveLimiter(s.cfg.CrawlDelay, crawler.DefaultTargetRTT)),
		crawler.WithLogger(s.logger.With(slog.String("component", "crawler"))),
		crawler.WithProgress(s.progress),
		crawler.WithMetrics(s.metrics),
	}
	if s.cfg.RespectRobots {
		opts = append(opts, crawler.WithRobots(crawler.NewRobotsChecker(s.client, s.cfg.UserAgent)))
	}
	if s.cfg.MemoryLimitMB > 0 {
		watcher := crawler.NewMemoryWatcher(s.cfg.MemoryLimitMB)
		defer watcher.Close()
		watcher.OnChange(func(p crawler.Pressure) {
			s.logger.Warn("memory pressure changed", slog.String("level", p.String()))
		})
		opts = append(opts, crawler.WithMemoryWatcher(watcher))
	}

	crawled, err := crawler.New(opts...).Crawl(ctx, startURL, s.cfg.MaxDepth)
	if err != nil {
		return nil, fmt.Errorf("crawl %s: %w", startURL, err)
	}

	results := s.checker().CheckAll(ctx, crawled.Links)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("check links of %s: %w", startURL, err)
	}

	report := result.NewReport(result.ModeSite, startURL, crawled.PagesVisited, results, started)
	s.logger.Info("site scan finished", slog.String("scan_id", report.ScanID),
		slog.Int("pages", report.PagesVisited), slog.Int("links", report.Summary.Total),
		slog.Int("broken", report.Summary.Broken), slog.Duration("elapsed", report.Duration))
	return report, nil
}

// Repository checks the links of a GitHub repository's README.
func (s *Scanner) Repository(ctx context.Context, repoURL string) (*result.Report, error) {
	started := time.Now()

	fetchOpts := []repo.Option{
		repo.WithHTTPClient(s.client),
		repo.WithUserAgent(s.cfg.UserAgent),
		repo.WithLogger(s.logger.With(slog.String("component", "repo"))),
	}
	if s.rawBase != "" {
		fetchOpts = append(fetchOpts, repo.WithRawBase(s.rawBase))
	}
	if len(s.branches) > 0 {
		fetchOpts = append(fetchOpts, repo.WithBranches(s.branches...))
	}

	doc, err := repo.NewFetcher(fetchOpts...).FetchDocument(ctx, repoURL)
	if err != nil {
		return nil, err
	}
	links, err := repo.DocumentLinks(doc)
	if err != nil {
		return nil, err
	}
	s.metrics.LinksDiscovered(len(links))
	s.logger.Info("links extracted", slog.String("document", doc.URL), slog.Int("links", len(links)))

	results := s.checker().CheckAll(ctx, links)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("check links of %s: %w", repoURL, err)
	}

	report := result.NewReport(result.ModeRepository, repoURL, 0, results, started)
	s.logger.Info("repository scan finished", slog.String("scan_id", report.ScanID),
		slog.Int("links", report.Summary.Total), slog.Int("broken", report.Summary.Broken))
	return report, nil
}

func (s *Scanner) checker() *checker.Checker {
	opts := []checker.Option{
		checker.WithLogger(s.logger.With(slog.String("component", "checker"))),
		checker.WithProgress(s.progress),
		checker.WithMetrics(s.metrics),
	}
	if s.probeTransport != nil {
		opts = append(opts, checker.WithTransport(s.probeTransport))
	}
	return checker.New(checker.Config{
		Concurrency:  s.cfg.Concurrency,
		Timeout:      s.cfg.Timeout,
		MaxRedirects: s.cfg.MaxRedirects,
		UserAgent:    s.cfg.UserAgent,
	}, opts...)
}
