// Package metrics records pipeline run metrics in a private prometheus
// registry that is written out as a textfile at the end of a run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bankrot-cli/internal/model"
)

// Metrics provides observability for one pipeline run. A nil *Metrics is
// a valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	// Final lot outcomes by status
	LotOutcomes *prometheus.CounterVec

	// Per-lot processing time from admission to persistence
	LotDuration prometheus.Histogram

	// Lots skipped because the cache already holds a final outcome
	LotsSkipped prometheus.Counter

	// Catalog pages that yielded no references
	EmptyPages prometheus.Counter

	// AI provider calls by provider and outcome
	EnrichAttempts *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		LotOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bankrot_lots_total",
			Help: "Lots persisted by final status",
		}, []string{"status"}),

		LotDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bankrot_lot_duration_seconds",
			Help:    "Duration from lot admission to its cache flush",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		LotsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "bankrot_lots_skipped_total",
			Help: "Lots skipped on resume",
		}),

		EmptyPages: factory.NewCounter(prometheus.CounterOpts{
			Name: "bankrot_empty_catalog_pages_total",
			Help: "Catalog pages that yielded no lot references",
		}),

		EnrichAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bankrot_enrich_attempts_total",
			Help: "AI enrichment calls by provider and outcome",
		}, []string{"provider", "outcome"}), // outcome: ok, no_match, transient, malformed, failed
	}
}

// LotFinished records a persisted lot.
func (m *Metrics) LotFinished(status model.LotStatus, _ string, elapsed time.Duration) {
	if m != nil {
		m.LotOutcomes.WithLabelValues(string(status)).Inc()
		m.LotDuration.Observe(elapsed.Seconds())
	}
}

// LotSkipped records a lot skipped on resume.
func (m *Metrics) LotSkipped() {
	if m != nil {
		m.LotsSkipped.Inc()
	}
}

// EmptyPage records a catalog page without references.
func (m *Metrics) EmptyPage() {
	if m != nil {
		m.EmptyPages.Inc()
	}
}

// EnrichAttempt records one AI provider call. Its signature matches
// enrich.AttemptHook.
func (m *Metrics) EnrichAttempt(provider, outcome string) {
	if m != nil {
		m.EnrichAttempts.WithLabelValues(provider, outcome).Inc()
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every metric in the prometheus text format,
// atomically replacing path. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return eris.Wrapf(err, "metrics: write textfile %s", path)
	}
	return nil
}
