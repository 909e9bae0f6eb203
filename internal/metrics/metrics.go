// Package metrics exposes Prometheus collectors for scrape cycles and attempts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for the scraper. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry         *prometheus.Registry
	AttemptsTotal    *prometheus.CounterVec
	RetriesTotal     prometheus.Counter
	AttemptDuration  prometheus.Histogram
	CyclesTotal      prometheus.Counter
	CycleDuration    prometheus.Histogram
	InFlight         prometheus.Gauge
	ContextRotations prometheus.Counter
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_scraper_attempts_total",
			Help: "Listing scrapes by final status.",
		},
		[]string{"status"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "price_scraper_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	attemptDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "price_scraper_attempt_duration_seconds",
			Help:    "Wall time per listing, retries included.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		},
	)
	cycles := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "price_scraper_cycles_total",
			Help: "Completed scrape cycles.",
		},
	)
	cycleDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "price_scraper_cycle_duration_seconds",
			Help:    "Wall time per scrape cycle.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
	inflight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "price_scraper_inflight",
			Help: "Scrapes currently holding a concurrency slot.",
		},
	)
	rotations := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "price_scraper_context_rotations_total",
			Help: "Browser contexts replaced after reaching their lifetime.",
		},
	)

	registry.MustRegister(attempts, retries, attemptDuration, cycles, cycleDuration, inflight, rotations)

	return &Metrics{
		Registry:         registry,
		AttemptsTotal:    attempts,
		RetriesTotal:     retries,
		AttemptDuration:  attemptDuration,
		CyclesTotal:      cycles,
		CycleDuration:    cycleDuration,
		InFlight:         inflight,
		ContextRotations: rotations,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveAttempt records one listing's outcome.
func (m *Metrics) ObserveAttempt(status string, retries int, d time.Duration) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(status).Inc()
	m.RetriesTotal.Add(float64(retries))
	m.AttemptDuration.Observe(d.Seconds())
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// SlotAcquired and SlotReleased track concurrency slots in use.
func (m *Metrics) SlotAcquired() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

func (m *Metrics) SlotReleased() {
	if m == nil {
		return
	}
	m.InFlight.Dec()
}

// IncContextRotation counts a browser context replacement.
func (m *Metrics) IncContextRotation() {
	if m == nil {
		return
	}
	m.ContextRotations.Inc()
}
