package result

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func sampleReport() *Report {
	return NewReport(ModeSite, "https://example.com/", 2, []LinkResult{
		NewLinkResult(Link{URL: "https://example.com/broken", Depth: 1, SourcePage: "https://example.com/"}, Broken(404)),
		NewLinkResult(Link{URL: "https://example.com/old", Depth: 1, SourcePage: "https://example.com/"}, Redirect(301, "https://example.com/new?a=1&b=2")),
		NewLinkResult(Link{URL: "https://external.test/x", Depth: 2, SourcePage: "https://example.com/about"}, Other("dial tcp: connect: connection refused")),
	}, time.Now())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleReport()); err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}

	for _, key := range []string{"scan_id", "mode", "target", "pages_visited", "started_at", "duration_ms", "summary", "results"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("Expected %q field in JSON output", key)
		}
	}

	summary := raw["summary"].(map[string]any)
	if summary["broken"] != float64(1) || summary["total"] != float64(3) {
		t.Errorf("unexpected summary %v", summary)
	}

	results := raw["results"].([]any)
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	first := results[0].(map[string]any)
	if first["url"] != "https://example.com/broken" || first["status"] != "broken" || first["status_code"] != float64(404) {
		t.Errorf("unexpected first record %v", first)
	}
	if _, ok := first["location"]; ok {
		t.Error("location should be omitted for non-redirects")
	}

	// URLs are written verbatim, not HTML-escaped.
	if !strings.Contains(buf.String(), "https://example.com/new?a=1&b=2") {
		t.Error("URLs should not be HTML-escaped")
	}
}

func TestWriteJSON_EmptyResults(t *testing.T) {
	report := NewReport(ModeRepository, "https://github.com/o/r", 0, nil, time.Now())

	var buf bytes.Buffer
	if err := WriteJSON(&buf, report); err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}
	if !strings.Contains(buf.String(), `"results": []`) {
		t.Errorf("empty results should encode as [], got:\n%s", buf.String())
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleReport()); err != nil {
		t.Fatalf("WriteCSV returned error: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Output is not valid CSV: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("Expected header + 3 rows, got %d records", len(records))
	}

	wantHeader := []string{"url", "status", "status_code", "location", "message", "source_page", "depth"}
	for i, col := range wantHeader {
		if records[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, records[0][i], col)
		}
	}

	row := records[2]
	if row[0] != "https://example.com/old" || row[1] != "redirect" || row[2] != "301" || row[3] != "https://example.com/new?a=1&b=2" {
		t.Errorf("unexpected redirect row %v", row)
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleReport(), Format("xml")); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWrite_Dispatch(t *testing.T) {
	report := sampleReport()

	var js bytes.Buffer
	if err := Write(&js, report, FormatJSON); err != nil {
		t.Fatalf("Write(json) error: %v", err)
	}
	if !json.Valid(js.Bytes()) {
		t.Error("Write(json) produced invalid JSON")
	}

	var tbl bytes.Buffer
	if err := Write(&tbl, report, FormatTable); err != nil {
		t.Fatalf("Write(table) error: %v", err)
	}
	if !strings.Contains(tbl.String(), "BROKEN") {
		t.Errorf("Write(table) missing BROKEN label:\n%s", tbl.String())
	}
}
