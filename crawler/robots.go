package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// maxRobotsSize bounds how much of a robots.txt body is read.
const maxRobotsSize = 512 << 10

// RobotsChecker fetches robots.txt once per origin and answers whether a
// page may be crawled. Entries live as long as the checker, which is one scan.
type RobotsChecker struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	cache map[string]*robotstxt.Group // origin -> group; nil means allow all
}

// NewRobotsChecker creates a RobotsChecker that identifies itself as userAgent.
func NewRobotsChecker(client *http.Client, userAgent string) *RobotsChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.Group),
	}
}

// Allowed reports whether rawURL may be crawled. Any failure to obtain or
// parse robots.txt allows the page; the error is returned for logging.
func (r *RobotsChecker) Allowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true, fmt.Errorf("parse URL: %w", err)
	}
	if u.Host == "" {
		return true, nil
	}

	origin := u.Scheme + "://" + u.Host
	group, fetchErr := r.group(ctx, origin)
	if group == nil {
		return true, fetchErr
	}

	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path), fetchErr
}

func (r *RobotsChecker) group(ctx context.Context, origin string) (*robotstxt.Group, error) {
	r.mu.Lock()
	group, ok := r.cache[origin]
	r.mu.Unlock()
	if ok {
		return group, nil
	}

	group, err := r.fetch(ctx, origin)
	if err != nil && ctx.Err() != nil {
		// Not cached: the file is fetched again by the next caller.
		return nil, err
	}

	r.mu.Lock()
	r.cache[origin] = group
	r.mu.Unlock()
	return group, err
}

func (r *RobotsChecker) fetch(ctx context.Context, origin string) (*robotstxt.Group, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("create robots.txt request for %s: %w", origin, err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt for %s: %w", origin, err)
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	closeErr := resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("read robots.txt for %s: %w", origin, readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close robots.txt body for %s: %w", origin, closeErr)
	}

	// A missing file or a server error means there are no rules to honour.
	if resp.StatusCode >= 400 {
		return nil, nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt for %s: %w", origin, err)
	}
	return data.FindGroup(r.userAgent), nil
}
