package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the prometheus collectors of the service. They are
// registered on a private registry served by the ops endpoint.
type Metrics struct {
	Registry      *prometheus.Registry
	fetchOutcomes *prometheus.CounterVec
	deletes       prometheus.Counter
	jobsEnqueued  *prometheus.CounterVec
	lookupSeconds prometheus.Histogram
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		fetchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alexandria",
			Name:      "fetch_outcomes_total",
			Help:      "Number of completed fetch jobs by outcome.",
		}, []string{"outcome"}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alexandria",
			Name:      "deletes_total",
			Help:      "Number of completed delete jobs.",
		}),
		jobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alexandria",
			Name:      "jobs_enqueued_total",
			Help:      "Number of jobs pushed to the work queue by kind.",
		}, []string{"kind"}),
		lookupSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "alexandria",
			Name:      "remote_lookup_seconds",
			Help:      "Duration of remote metadata lookups.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.fetchOutcomes,
		m.deletes,
		m.jobsEnqueued,
		m.lookupSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, o := range AllFetchOutcomes {
		m.fetchOutcomes.WithLabelValues(string(o))
	}
	return m
}

// ObserveOutcome counts a completed fetch job.
func (m *Metrics) ObserveOutcome(o FetchOutcome) {
	if m == nil {
		return
	}
	m.fetchOutcomes.WithLabelValues(string(o)).Inc()
}

// ObserveDelete counts a completed delete job.
func (m *Metrics) ObserveDelete() {
	if m == nil {
		return
	}
	m.deletes.Inc()
}

// ObserveEnqueued counts a pushed job.
func (m *Metrics) ObserveEnqueued(kind JobKind) {
	if m == nil {
		return
	}
	m.jobsEnqueued.WithLabelValues(string(kind)).Inc()
}

// ObserveLookup records the duration of a remote lookup started at start.
func (m *Metrics) ObserveLookup(start time.Time) {
	if m == nil {
		return
	}
	m.lookupSeconds.Observe(time.Since(start).Seconds())
}
