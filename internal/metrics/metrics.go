// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "budgetagent_http_requests_total",
		Help: "HTTP requests served, labelled by route and status code.",
	}, []string{"route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "budgetagent_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"route"})

	InsightsComputed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "budgetagent_insights_computed_total",
		Help: "Insights computed, labelled by period kind.",
	}, []string{"period"})

	Augmentations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "budgetagent_augmentations_total",
		Help: "Narrative augmentation attempts, labelled by outcome.",
	}, []string{"outcome"})

	EntryEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "budgetagent_entry_events_total",
		Help: "entry.created messages handled by the worker, labelled by result.",
	}, []string{"result"})

	LedgerReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "budgetagent_ledger_reloads_total",
		Help: "Seed file reloads of the in-memory ledger, labelled by result.",
	}, []string{"result"})
)
