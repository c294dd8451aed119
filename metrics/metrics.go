// Package metrics records per-scan Prometheus metrics and can dump them in
// the node_exporter textfile format at the end of a run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lukemcguire/linkguardian/result"
)

const namespace = "linkguardian"

// Scan holds the collectors for one scan. A nil *Scan is valid and records nothing.
type Scan struct {
	registry *prometheus.Registry

	probesTotal   *prometheus.CounterVec
	probeDuration prometheus.Histogram
	probesActive  prometheus.Gauge
	pagesFetched  prometheus.Counter
	pageErrors    prometheus.Counter
	linksFound    prometheus.Gauge
}

// New creates a Scan backed by its own registry so concurrent scans and
// parallel tests never collide on the default registerer.
func New() *Scan {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Scan{
		registry: reg,
		probesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "probes_total",
			Help:      "Link probes completed, by outcome kind.",
		}, []string{"outcome"}),
		probeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "probe_duration_seconds",
			Help:      "Wall time of a single link probe including redirects.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		probesActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "probes_in_flight",
			Help:      "Link probes currently in flight.",
		}),
		pagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crawler",
			Name:      "pages_fetched_total",
			Help:      "Pages fetched and parsed for links.",
		}),
		pageErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crawler",
			Name:      "page_errors_total",
			Help:      "Pages that could not be fetched or parsed.",
		}),
		linksFound: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "crawler",
			Name:      "links_discovered",
			Help:      "Unique links discovered by the scan.",
		}),
	}
}

// ProbeStarted marks one probe as in flight.
func (s *Scan) ProbeStarted() {
	if s == nil {
		return
	}
	s.probesActive.Inc()
}

// ProbeFinished records the outcome and duration of a probe started with ProbeStarted.
func (s *Scan) ProbeFinished(kind result.Kind, d time.Duration) {
	if s == nil {
		return
	}
	s.probesActive.Dec()
	s.probesTotal.WithLabelValues(string(kind)).Inc()
	s.probeDuration.Observe(d.Seconds())
}

// PageFetched counts a successfully fetched page.
func (s *Scan) PageFetched() {
	if s == nil {
		return
	}
	s.pagesFetched.Inc()
}

// PageFailed counts a page that could not be fetched.
func (s *Scan) PageFailed() {
	if s == nil {
		return
	}
	s.pageErrors.Inc()
}

// LinksDiscovered sets the number of unique links found.
func (s *Scan) LinksDiscovered(n int) {
	if s == nil {
		return
	}
	s.linksFound.Set(float64(n))
}

// Registry exposes the underlying registry for gathering.
func (s *Scan) Registry() *prometheus.Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

// WriteTextfile writes every metric of the scan to path in the text
// exposition format.
func (s *Scan) WriteTextfile(path string) error {
	if s == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, s.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
