// Package result holds the data produced by a scan: discovered links, their
// classified outcomes, and the summary derived from them.
package result

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Link is a normalized absolute URL together with where it was found.
type Link struct {
	URL        string // Normalized absolute URL (the uniqueness key)
	Depth      int    // Depth at which the link was discovered
	SourcePage string // The page that referenced this link
}

// Kind names one variant of the closed outcome set.
type Kind string

const (
	KindOk       Kind = "ok"
	KindRedirect Kind = "redirect"
	KindBroken   Kind = "broken"
	KindTimeout  Kind = "timeout"
	KindTLSError Kind = "tls_error"
	KindDNSError Kind = "dns_error"
	KindOther    Kind = "other"
)

// Kinds lists every outcome kind, most actionable first.
var Kinds = []Kind{KindBroken, KindOther, KindTimeout, KindDNSError, KindTLSError, KindRedirect, KindOk}

// Outcome is the classified result of one probe. Build values with the
// constructor functions so that only the fields of the chosen variant are set.
type Outcome struct {
	Kind       Kind
	StatusCode int    // Ok, Redirect, Broken; Other when the server answered
	Location   string // Redirect only: final resolved target
	Detail     string // TLSError, DNSError, Other
}

// Ok is a 2xx answer reached without redirects.
func Ok(status int) Outcome { return Outcome{Kind: KindOk, StatusCode: status} }

// Redirect is an answer reached through redirects, or a 3xx without a usable target.
func Redirect(status int, location string) Outcome {
	return Outcome{Kind: KindRedirect, StatusCode: status, Location: location}
}

// Broken is a 404 or 410 answer.
func Broken(status int) Outcome { return Outcome{Kind: KindBroken, StatusCode: status} }

// Timeout is a probe that exceeded its deadline.
func Timeout() Outcome { return Outcome{Kind: KindTimeout} }

// TLSError is a TLS handshake or certificate failure.
func TLSError(detail string) Outcome { return Outcome{Kind: KindTLSError, Detail: detail} }

// DNSError is a name resolution failure.
func DNSError(detail string) Outcome { return Outcome{Kind: KindDNSError, Detail: detail} }

// Other is any failure not covered by the other variants.
func Other(detail string) Outcome { return Outcome{Kind: KindOther, Detail: detail} }

// OtherStatus is an error status that is not treated as broken (403, 500, ...).
func OtherStatus(status int) Outcome {
	return Outcome{Kind: KindOther, StatusCode: status, Detail: fmt.Sprintf("HTTP %d", status)}
}

// Message returns the default human-readable description of the outcome.
func (o Outcome) Message() string {
	switch o.Kind {
	case KindOk, KindBroken:
		return fmt.Sprintf("HTTP %d", o.StatusCode)
	case KindRedirect:
		if o.Location == "" {
			return fmt.Sprintf("HTTP %d", o.StatusCode)
		}
		return fmt.Sprintf("HTTP %d -> %s", o.StatusCode, o.Location)
	case KindTimeout:
		return "Request timed out"
	case KindTLSError:
		return "TLS error: " + o.Detail
	case KindDNSError:
		return "Could not resolve hostname: " + o.Detail
	case KindOther:
		return o.Detail
	default:
		return string(o.Kind)
	}
}

// LinkResult pairs a Link with its outcome and a human-readable message.
type LinkResult struct {
	Link    Link
	Outcome Outcome
	Message string
}

// NewLinkResult builds a LinkResult using the outcome's default message.
func NewLinkResult(link Link, outcome Outcome) LinkResult {
	return LinkResult{Link: link, Outcome: outcome, Message: outcome.Message()}
}

// IsBroken reports whether the link is definitively broken (404/410).
func (r LinkResult) IsBroken() bool { return r.Outcome.Kind == KindBroken }

// Summary counts outcomes by kind. It is always derived with Summarize.
type Summary struct {
	Ok       int `json:"ok"`
	Redirect int `json:"redirect"`
	Broken   int `json:"broken"`
	Timeout  int `json:"timeout"`
	TLSError int `json:"tls_error"`
	DNSError int `json:"dns_error"`
	Other    int `json:"other"`
	Total    int `json:"total"`
}

// Summarize recomputes the summary from the final collection of results.
func Summarize(results []LinkResult) Summary {
	var s Summary
	for _, r := range results {
		switch r.Outcome.Kind {
		case KindOk:
			s.Ok++
		case KindRedirect:
			s.Redirect++
		case KindBroken:
			s.Broken++
		case KindTimeout:
			s.Timeout++
		case KindTLSError:
			s.TLSError++
		case KindDNSError:
			s.DNSError++
		default:
			s.Other++
		}
		s.Total++
	}
	return s
}

// Count returns the number of results of kind k.
func (s Summary) Count(k Kind) int {
	switch k {
	case KindOk:
		return s.Ok
	case KindRedirect:
		return s.Redirect
	case KindBroken:
		return s.Broken
	case KindTimeout:
		return s.Timeout
	case KindTLSError:
		return s.TLSError
	case KindDNSError:
		return s.DNSError
	case KindOther:
		return s.Other
	default:
		return 0
	}
}

// Exit codes of the linkguardian process.
const (
	ExitOK     = 0 // no broken links
	ExitBroken = 1 // at least one Broken outcome
	ExitError  = 2 // usage or internal error
)

// ExitCode maps a summary to the process exit code.
func ExitCode(s Summary) int {
	if s.Broken > 0 {
		return ExitBroken
	}
	return ExitOK
}

// Mode identifies how the links of a scan were discovered.
type Mode string

const (
	ModeSite       Mode = "site"
	ModeRepository Mode = "github"
)

// Report is the complete output of one scan.
type Report struct {
	ScanID       string
	Mode         Mode
	Target       string
	PagesVisited int
	StartedAt    time.Time
	Duration     time.Duration
	Results      []LinkResult // sorted by URL
	Summary      Summary
}

// NewReport assembles a report, sorting a copy of results by URL and deriving the summary.
func NewReport(mode Mode, target string, pagesVisited int, results []LinkResult, startedAt time.Time) *Report {
	sorted := make([]LinkResult, len(results))
	copy(sorted, results)
	slices.SortFunc(sorted, func(a, b LinkResult) int {
		return strings.Compare(a.Link.URL, b.Link.URL)
	})

	return &Report{
		ScanID:       uuid.NewString(),
		Mode:         mode,
		Target:       target,
		PagesVisited: pagesVisited,
		StartedAt:    startedAt,
		Duration:     time.Since(startedAt),
		Results:      sorted,
		Summary:      Summarize(sorted),
	}
}

// HasBrokenLinks reports whether the report contains at least one Broken outcome.
func (r *Report) HasBrokenLinks() bool {
	return r != nil && r.Summary.Broken > 0
}
