package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lukemcguire/linkguardian/result"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true)
	successStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	headerStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	categoryStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	dimStyle         = lipgloss.NewStyle().Faint(true)
	urlStyle         = lipgloss.NewStyle()
	statusErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// RenderSummary produces a Lip Gloss styled summary of a scan report.
// Every outcome other than Ok gets its own table, most actionable first.
func RenderSummary(report *result.Report) string {
	if report == nil {
		return errorStyle.Render("No results available.")
	}

	var builder strings.Builder

	grouped := make(map[result.Kind][]result.LinkResult)
	for _, r := range report.Results {
		grouped[r.Outcome.Kind] = append(grouped[r.Outcome.Kind], r)
	}

	for _, kind := range result.Kinds {
		links := grouped[kind]
		if kind == result.KindOk || len(links) == 0 {
			continue
		}

		builder.WriteString(categoryStyle.Render(fmt.Sprintf("## %s (%d)", kind.Title(), len(links))))
		builder.WriteString("\n")

		rows := make([][]string, 0, len(links))
		for _, r := range links {
			rows = append(rows, []string{r.Link.URL, r.Message, r.Link.SourcePage})
		}

		statusStyle := statusWarnStyle
		if kind == result.KindBroken {
			statusStyle = statusErrorStyle
		}
		kindTable := table.New().
			Border(lipgloss.RoundedBorder()).
			Headers("URL", "Status", "Found On").
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				if col == 1 {
					return statusStyle
				}
				return urlStyle
			}).
			Rows(rows...)

		builder.WriteString(kindTable.Render())
		builder.WriteString("\n\n")
	}

	s := report.Summary
	elapsed := report.Duration.Round(time.Millisecond)
	if report.Mode == result.ModeSite {
		builder.WriteString(dimStyle.Render(fmt.Sprintf("Crawled %d pages, checked %d links in %s",
			report.PagesVisited, s.Total, elapsed)))
	} else {
		builder.WriteString(dimStyle.Render(fmt.Sprintf("Checked %d links in %s", s.Total, elapsed)))
	}
	builder.WriteString("\n")

	counts := make([]string, 0, len(result.Kinds))
	for _, kind := range []result.Kind{
		result.KindOk, result.KindRedirect, result.KindBroken, result.KindTimeout,
		result.KindTLSError, result.KindDNSError, result.KindOther,
	} {
		counts = append(counts, fmt.Sprintf("%s: %d", kind.Title(), s.Count(kind)))
	}
	builder.WriteString(strings.Join(counts, "  "))
	builder.WriteString("\n")

	if s.Broken == 0 {
		builder.WriteString(successStyle.Render("No broken links found!"))
	} else {
		builder.WriteString(titleStyle.Render(fmt.Sprintf("Found %d broken links out of %d links checked",
			s.Broken, s.Total)))
	}
	builder.WriteString("\n")

	return builder.String()
}
