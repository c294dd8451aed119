package result

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
)

// Format selects how a Report is written.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// linkRecord is the flat, snake_case row shared by the JSON and CSV writers.
type linkRecord struct {
	URL        string `json:"url" csv:"url"`
	Status     Kind   `json:"status" csv:"status"`
	StatusCode int    `json:"status_code,omitempty" csv:"status_code"`
	Location   string `json:"location,omitempty" csv:"location"`
	Message    string `json:"message" csv:"message"`
	SourcePage string `json:"source_page,omitempty" csv:"source_page"`
	Depth      int    `json:"depth" csv:"depth"`
}

type reportRecord struct {
	ScanID       string       `json:"scan_id"`
	Mode         Mode         `json:"mode"`
	Target       string       `json:"target"`
	PagesVisited int          `json:"pages_visited"`
	StartedAt    time.Time    `json:"started_at"`
	DurationMS   int64        `json:"duration_ms"`
	Summary      Summary      `json:"summary"`
	Results      []linkRecord `json:"results"`
}

func toRecords(results []LinkResult) []linkRecord {
	records := make([]linkRecord, 0, len(results))
	for _, r := range results {
		records = append(records, linkRecord{
			URL:        r.Link.URL,
			Status:     r.Outcome.Kind,
			StatusCode: r.Outcome.StatusCode,
			Location:   r.Outcome.Location,
			Message:    r.Message,
			SourcePage: r.Link.SourcePage,
			Depth:      r.Link.Depth,
		})
	}
	return records
}

// WriteJSON writes the report as an indented JSON document.
func WriteJSON(w io.Writer, report *Report) error {
	rec := reportRecord{
		ScanID:       report.ScanID,
		Mode:         report.Mode,
		Target:       report.Target,
		PagesVisited: report.PagesVisited,
		StartedAt:    report.StartedAt,
		DurationMS:   report.Duration.Milliseconds(),
		Summary:      report.Summary,
		Results:      toRecords(report.Results),
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("write json output: %w", err)
	}
	return nil
}

// WriteCSV writes one row per result. The header row is always present.
func WriteCSV(w io.Writer, report *Report) error {
	if err := gocsv.Marshal(toRecords(report.Results), w); err != nil {
		return fmt.Errorf("write csv output: %w", err)
	}
	return nil
}

// Write dispatches to the writer for format.
func Write(w io.Writer, report *Report, format Format) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, report)
	case FormatCSV:
		return WriteCSV(w, report)
	case FormatTable, "":
		PrintTable(w, report)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
