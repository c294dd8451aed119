package crawler

import "github.com/lukemcguire/linkguardian/result"

// Phase identifies which stage of a scan produced a CrawlEvent.
type Phase int

const (
	PhaseCrawl Phase = iota // fetching pages and collecting links
	PhaseCheck              // probing collected links
)

// CrawlEvent reports progress for a single fetched page or probed link.
type CrawlEvent struct {
	Phase   Phase
	URL     string
	Kind    result.Kind // PhaseCheck only
	Message string
	Error   string // set when a page could not be fetched
	Pages   int    // pages visited so far
	Links   int    // unique links discovered so far
	Checked int    // probes completed so far
	Total   int    // links to probe (PhaseCheck)
	Broken  int    // Broken outcomes so far
}

// Emit sends evt on ch unless ch is nil or done is closed first.
func Emit(ch chan<- CrawlEvent, done <-chan struct{}, evt CrawlEvent) {
	if ch == nil {
		return
	}
	select {
	case ch <- evt:
	case <-done:
	}
}
