package repo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		in        string
		wantOwner string
		wantName  string
	}{
		{"https://github.com/rust-lang/rust", "rust-lang", "rust"},
		{"https://github.com/user/repo.git", "user", "repo"},
		{"http://www.github.com/user/repo", "user", "repo"},
		{"github.com/user/repo", "user", "repo"},
		{"https://github.com/user/repo/tree/main/docs", "user", "repo"},
		{"https://github.com/user/repo?tab=readme", "user", "repo"},
		{"  https://github.com/user/repo/  ", "user", "repo"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			repo, err := ParseRepoURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, repo.Owner)
			assert.Equal(t, tt.wantName, repo.Name)
		})
	}
}

func TestParseRepoURLRejects(t *testing.T) {
	for _, in := range []string{
		"https://gitlab.com/user/repo",
		"https://github.com/user",
		"https://github.com/",
		"https://github.com/user/.git",
		"",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseRepoURL(in)
			assert.ErrorIs(t, err, ErrNotGitHub)
		})
	}
}

func TestFetchDocumentPrefersMain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/owner/repo/main/README.md":
			_, _ = w.Write([]byte("# main readme"))
		case "/owner/repo/master/README.md":
			_, _ = w.Write([]byte("# master readme"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	f := NewFetcher(WithRawBase(server.URL), WithHTTPClient(server.Client()))
	doc, err := f.FetchDocument(context.Background(), "https://github.com/owner/repo")
	require.NoError(t, err)

	assert.Equal(t, "main", doc.Branch)
	assert.Equal(t, "# main readme", doc.Content)
	assert.Equal(t, server.URL+"/owner/repo/main/README.md", doc.URL)
	assert.Equal(t, "owner/repo", doc.Repository.String())
}

func TestFetchDocumentFallsBackToMaster(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path == "/owner/legacy/master/README.md" {
			_, _ = w.Write([]byte("legacy"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := NewFetcher(WithRawBase(server.URL+"/"), WithHTTPClient(server.Client()))
	doc, err := f.FetchDocument(context.Background(), "github.com/owner/legacy.git")
	require.NoError(t, err)

	assert.Equal(t, "master", doc.Branch)
	assert.Equal(t, "legacy", doc.Content)
	assert.Equal(t, int32(2), requests.Load())
}

func TestFetchDocumentNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	f := NewFetcher(WithRawBase(server.URL), WithHTTPClient(server.Client()))
	_, err := f.FetchDocument(context.Background(), "https://github.com/owner/empty")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDocumentNotFound))
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestFetchDocumentInvalidURL(t *testing.T) {
	_, err := NewFetcher().FetchDocument(context.Background(), "https://example.com/not/github")
	assert.ErrorIs(t, err, ErrNotGitHub)
}

func TestFetchDocumentSendsUserAgent(t *testing.T) {
	var got atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := NewFetcher(WithRawBase(server.URL), WithHTTPClient(server.Client()), WithUserAgent("linkguardian-test"), WithBranches("trunk"))
	doc, err := f.FetchDocument(context.Background(), "https://github.com/o/r")
	require.NoError(t, err)
	assert.Equal(t, "trunk", doc.Branch)
	assert.Equal(t, "linkguardian-test", got.Load())
}
