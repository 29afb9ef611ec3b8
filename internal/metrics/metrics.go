// Package metrics exposes the pipeline's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loghook_runs_total",
		Help: "Pipeline runs by outcome.",
	}, []string{"outcome"})

	PagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loghook_pages_fetched_total",
		Help: "Log pages fetched from the source.",
	})

	EventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loghook_events_delivered_total",
		Help: "Payloads delivered to the webhook.",
	})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loghook_run_duration_seconds",
		Help:    "Wall-clock duration of one pipeline run.",
		Buckets: prometheus.DefBuckets,
	})
)
