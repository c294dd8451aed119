package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukemcguire/linkguardian/result"
)

// newSite serves a start page linking to a healthy page, a missing page and
// a page that redirects.
func newSite(t *testing.T, broken bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<a href="/a">a</a> <a href="/c">c</a>`)
		if broken {
			fmt.Fprint(w, ` <a href="/b">b</a>`)
		}
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "a") })
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/a", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func siteArgs(target string, extra ...string) []string {
	return append([]string{"site", target, "--crawl-delay", "0", "--max-depth", "1", "--retries", "0"}, extra...)
}

func TestSiteBrokenLinksJSON(t *testing.T) {
	srv := newSite(t, true)

	code, stdout, _ := runCLI(t, siteArgs(srv.URL, "--format", "json")...)
	assert.Equal(t, result.ExitBroken, code)

	var report struct {
		Mode         string         `json:"mode"`
		PagesVisited int            `json:"pages_visited"`
		Summary      result.Summary `json:"summary"`
		Results      []struct {
			URL    string `json:"url"`
			Status string `json:"status"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, "site", report.Mode)
	assert.Equal(t, 1, report.PagesVisited)
	assert.Equal(t, result.Summary{Ok: 1, Redirect: 1, Broken: 1, Total: 3}, report.Summary)
	require.Len(t, report.Results, 3)
	assert.Equal(t, srv.URL+"/a", report.Results[0].URL)
	assert.Equal(t, "broken", report.Results[1].Status)
}

func TestSiteCleanTable(t *testing.T) {
	srv := newSite(t, false)

	code, stdout, _ := runCLI(t, siteArgs(srv.URL)...)
	assert.Equal(t, result.ExitOK, code)
	assert.Contains(t, stdout, "URL")
	assert.Contains(t, stdout, "REDIRECT")
	assert.Contains(t, stdout, "Crawled 1 pages, checked 2 links")
	assert.Contains(t, stdout, "No broken links found!")
}

func TestSiteCSV(t *testing.T) {
	srv := newSite(t, true)

	code, stdout, _ := runCLI(t, siteArgs(srv.URL, "--format", "csv")...)
	assert.Equal(t, result.ExitBroken, code)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "url,status,status_code,location,message,source_page,depth", lines[0])
}

func TestMetricsFile(t *testing.T) {
	srv := newSite(t, false)
	path := filepath.Join(t.TempDir(), "scan.prom")

	code, _, _ := runCLI(t, siteArgs(srv.URL, "--format", "json", "--metrics-file", path)...)
	require.Equal(t, result.ExitOK, code)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `linkguardian_checker_probes_total{outcome="ok"} 1`)
	assert.Contains(t, string(data), "linkguardian_crawler_pages_fetched_total 1")
}

func TestConfigFileWithFlagOverride(t *testing.T) {
	srv := newSite(t, false)
	path := filepath.Join(t.TempDir(), "linkguardian.yaml")
	require.NoError(t, os.WriteFile(path, []byte("format: json\nconcurrency: 4\ncrawl_delay: 0s\n"), 0o600))

	code, stdout, _ := runCLI(t, "site", srv.URL, "--config", path, "--max-depth", "1")
	require.Equal(t, result.ExitOK, code)
	assert.True(t, json.Valid([]byte(stdout)), "config file format should apply: %s", stdout)

	code, stdout, _ = runCLI(t, "site", srv.URL, "--config", path, "--max-depth", "1", "--format", "csv")
	require.Equal(t, result.ExitOK, code)
	assert.True(t, strings.HasPrefix(stdout, "url,status"), "flag should override config file: %s", stdout)
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkguardian.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concurrency: 4\ntimeout: 3s\nrespect_robots: false\n"), 0o600))

	c := newCLI(&bytes.Buffer{}, &bytes.Buffer{})
	cmd, _, err := c.rootCmd().Find([]string{"site"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--timeout", "7s", "--no-robots=false"}))

	require.NoError(t, c.loadConfig(cmd))
	assert.Equal(t, 4, c.cfg.Concurrency, "file value kept when the flag is not set")
	assert.Equal(t, 7*time.Second, c.cfg.Timeout, "flag overrides file")
	assert.True(t, c.cfg.RespectRobots, "explicit --no-robots=false re-enables robots.txt")
	assert.Equal(t, 5, c.cfg.MaxRedirects, "defaults fill unset fields")
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing url", args: []string{"site"}, wantErr: "accepts 1 arg"},
		{name: "unknown command", args: []string{"ftp", "x"}, wantErr: "unknown command"},
		{name: "invalid concurrency", args: []string{"site", "https://example.com", "--concurrency", "0"}, wantErr: `invalid concurrency "0"`},
		{name: "invalid format", args: []string{"github", "github.com/a/b", "--format", "xml"}, wantErr: "invalid format"},
		{name: "unsupported scheme", args: []string{"site", "ftp://example.com", "--no-tui"}, wantErr: "scheme must be http or https"},
		{name: "not a github url", args: []string{"github", "https://gitlab.com/a/b"}, wantErr: "not a GitHub repository URL"},
		{name: "missing config file", args: []string{"site", "https://example.com", "--config", "/nonexistent/lg.yaml"}, wantErr: "read config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := runCLI(t, tt.args...)
			assert.Equal(t, result.ExitError, code)
			assert.Empty(t, stdout)
			assert.Contains(t, stderr, tt.wantErr)
		})
	}
}

func TestUnknownConfigKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkguardian.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concurency: 4\n"), 0o600))

	code, _, stderr := runCLI(t, "site", "https://example.com", "--config", path)
	assert.Equal(t, result.ExitError, code)
	assert.Contains(t, stderr, "concurency")
}

func TestHelp(t *testing.T) {
	code, stdout, _ := runCLI(t, "--help")
	assert.Equal(t, result.ExitOK, code)
	assert.Contains(t, stdout, "site")
	assert.Contains(t, stdout, "github")
}

func TestGitHubBranchFlag(t *testing.T) {
	c := newCLI(&bytes.Buffer{}, &bytes.Buffer{})
	cmd, _, err := c.rootCmd().Find([]string{"github"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--branch", "trunk,develop", "--branch", "main"}))

	assert.Equal(t, []string{"trunk", "develop", "main"}, c.branches)
}
