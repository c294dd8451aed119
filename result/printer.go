package result

import (
	"fmt"
	"io"

	"github.com/rodaine/table"
)

const maxURLWidth = 70

// Label returns the short uppercase label used in tables.
func (k Kind) Label() string {
	switch k {
	case KindOk:
		return "OK"
	case KindRedirect:
		return "REDIRECT"
	case KindBroken:
		return "BROKEN"
	case KindTimeout:
		return "TIMEOUT"
	case KindTLSError:
		return "TLS ERROR"
	case KindDNSError:
		return "DNS ERROR"
	default:
		return "ERROR"
	}
}

// Title returns the plural heading used when grouping results by kind.
func (k Kind) Title() string {
	switch k {
	case KindOk:
		return "OK"
	case KindRedirect:
		return "Redirects"
	case KindBroken:
		return "Broken"
	case KindTimeout:
		return "Timeouts"
	case KindTLSError:
		return "TLS Errors"
	case KindDNSError:
		return "DNS Errors"
	default:
		return "Other Errors"
	}
}

// PrintTable writes a plain-text table of every result followed by the summary.
func PrintTable(w io.Writer, report *Report) {
	writef := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	if len(report.Results) == 0 {
		writef("No links found to check.\n")
	} else {
		tbl := table.New("URL", "STATUS", "MESSAGE").WithWriter(w)
		for _, r := range report.Results {
			tbl.AddRow(Truncate(r.Link.URL, maxURLWidth), r.Outcome.Kind.Label(), r.Message)
		}
		tbl.Print()
		writef("\n")
	}

	PrintSummary(w, report)
}

// PrintSummary writes the per-kind counts and the total.
func PrintSummary(w io.Writer, report *Report) {
	writef := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	s := report.Summary
	if report.Mode == ModeSite {
		writef("Crawled %d pages, checked %d links\n", report.PagesVisited, s.Total)
	} else {
		writef("Checked %d links\n", s.Total)
	}
	writef("OK: %d  Redirects: %d  Broken: %d  Timeouts: %d  TLS errors: %d  DNS errors: %d  Other: %d\n",
		s.Ok, s.Redirect, s.Broken, s.Timeout, s.TLSError, s.DNSError, s.Other)
	if s.Broken == 0 {
		writef("No broken links found!\n")
	} else {
		writef("Found %d broken links\n", s.Broken)
	}
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
