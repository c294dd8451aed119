// Package repo fetches the README of a GitHub repository and extracts the
// links it contains.
package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	// DefaultRawBase serves raw file contents of public repositories.
	DefaultRawBase = "https://raw.githubusercontent.com"

	readmeName  = "README.md"
	maxDocument = 5 << 20
)

// DefaultBranches are tried in order when looking for the README.
var DefaultBranches = []string{"main", "master"}

// ErrDocumentNotFound is returned when no branch has a README.
var ErrDocumentNotFound = errors.New("repository document not found")

// ErrNotGitHub is returned by ParseRepoURL for URLs outside github.com.
var ErrNotGitHub = errors.New("not a GitHub repository URL")

// Repository identifies a GitHub repository.
type Repository struct {
	Owner string
	Name  string
}

func (r Repository) String() string { return r.Owner + "/" + r.Name }

// ParseRepoURL accepts github.com/<owner>/<repo> with or without a scheme or
// "www.", a trailing ".git" or extra path segments.
func ParseRepoURL(raw string) (Repository, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")

	path, ok := strings.CutPrefix(s, "github.com/")
	if !ok {
		return Repository{}, fmt.Errorf("%w: %s", ErrNotGitHub, raw)
	}
	path, _, _ = strings.Cut(path, "?")
	path, _, _ = strings.Cut(path, "#")

	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Repository{}, fmt.Errorf("%w: %s: want github.com/<owner>/<repo>", ErrNotGitHub, raw)
	}

	name := strings.TrimSuffix(parts[1], ".git")
	if name == "" {
		return Repository{}, fmt.Errorf("%w: %s: empty repository name", ErrNotGitHub, raw)
	}
	return Repository{Owner: parts[0], Name: name}, nil
}

// Document is a fetched repository file.
type Document struct {
	Repository Repository
	Branch     string
	Name       string
	URL        string // where the content was downloaded from
	Content    string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the client used for downloads.
func WithHTTPClient(c *http.Client) Option { return func(f *Fetcher) { f.client = c } }

// WithRawBase points the fetcher at another raw-content host.
func WithRawBase(base string) Option {
	return func(f *Fetcher) { f.rawBase = strings.TrimSuffix(base, "/") }
}

// WithBranches overrides the branches tried, in order.
func WithBranches(branches ...string) Option { return func(f *Fetcher) { f.branches = branches } }

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option { return func(f *Fetcher) { f.userAgent = ua } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(f *Fetcher) { f.logger = l } }

// Fetcher downloads repository documents. No authentication is used, so
// only public repositories are reachable.
type Fetcher struct {
	client    *http.Client
	rawBase   string
	branches  []string
	userAgent string
	logger    *slog.Logger
}

// NewFetcher creates a Fetcher for raw.githubusercontent.com.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   http.DefaultClient,
		rawBase:  DefaultRawBase,
		branches: DefaultBranches,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchDocument downloads the README of the repository at repoURL, trying
// each branch in turn.
func (f *Fetcher) FetchDocument(ctx context.Context, repoURL string) (*Document, error) {
	repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, branch := range f.branches {
		docURL := fmt.Sprintf("%s/%s/%s/%s/%s", f.rawBase, repo.Owner, repo.Name, branch, readmeName)
		content, err := f.download(ctx, docURL)
		if err == nil {
			f.logger.Info("fetched repository document", slog.String("repo", repo.String()),
				slog.String("branch", branch), slog.Int("bytes", len(content)))
			return &Document{Repository: repo, Branch: branch, Name: readmeName, URL: docURL, Content: content}, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s: %w", readmeName, ctx.Err())
		}
		f.logger.Debug("document not on branch", slog.String("branch", branch), slog.Any("error", err))
		errs = append(errs, err)
	}

	return nil, fmt.Errorf("%w: %s in %s: %w", ErrDocumentNotFound, readmeName, repo, errors.Join(errs...))
}

func (f *Fetcher) download(ctx context.Context, docURL string) (content string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request for %s: %w", docURL, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", docURL, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close response body: %w", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: HTTP %d", docURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocument))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", docURL, err)
	}
	return string(body), nil
}
