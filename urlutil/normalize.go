package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrEmptyURL is returned when normalizing an empty string.
var ErrEmptyURL = errors.New("cannot normalize empty URL")

// Normalize takes a raw URL string and returns the key used to deduplicate it.
// Normalization includes:
// - Lowercasing the scheme and host
// - Stripping fragments (#section)
// - Using "/" for an empty path so "http://host" and "http://host/" collapse
// - Stripping trailing slashes (except for root path "/")
// - Preserving query parameters
//
// Returns an error if the input is empty or cannot be parsed as an absolute URL.
func Normalize(rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", ErrEmptyURL
	}

	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("normalize URL %q: %w", rawURL, err)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("normalize URL %q: URL must have both scheme and host", rawURL)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""

	if parsed.Path == "" {
		parsed.Path = "/"
		parsed.RawPath = ""
	}
	if parsed.Path != "/" && strings.HasSuffix(parsed.Path, "/") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
		parsed.RawPath = strings.TrimSuffix(parsed.RawPath, "/")
	}

	return parsed.String(), nil
}

// Origin returns the lowercased "scheme://host[:port]" of rawURL.
func Origin(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse origin of %q: %w", rawURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("URL %q has no origin", rawURL)
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), nil
}
