// Package metrics holds the Prometheus collectors shared across the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outbound provider calls
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehub_provider_requests_total",
			Help: "Outbound provider attempts by outcome (ok, http_error, network_error, timeout, rejected)",
		},
		[]string{"provider", "outcome"},
	)

	ProviderRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehub_provider_retries_total",
			Help: "Retries scheduled after a 429 or 5xx response",
		},
		[]string{"provider", "status"},
	)

	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gamehub_provider_request_duration_seconds",
			Help:    "Duration of a single provider attempt",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gamehub_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehub_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"provider", "from", "to"},
	)

	// Catalog reconciliation
	CatalogEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehub_catalog_entries_total",
			Help: "Snapshot entries processed by outcome (added, linked, error)",
		},
		[]string{"platform", "status"},
	)

	CatalogUnlinked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehub_catalog_unlinked_total",
			Help: "Platform links removed by catalog sync",
		},
		[]string{"platform"},
	)

	CatalogOrphansDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamehub_catalog_orphans_deleted_total",
			Help: "Games deleted after losing their last platform link",
		},
	)

	// Bulk jobs
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehub_job_runs_total",
			Help: "Bulk job runs by outcome (started, conflict, start_failed, completed)",
		},
		[]string{"job", "outcome"},
	)

	JobItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehub_job_items_total",
			Help: "Bulk job items by outcome (succeeded, failed)",
		},
		[]string{"job", "outcome"},
	)

	JobInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gamehub_job_in_progress",
			Help: "1 while a job of this type is running",
		},
		[]string{"job"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gamehub_job_duration_seconds",
			Help:    "Wall time of completed bulk job runs",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 10800},
		},
		[]string{"job"},
	)

	// Covers
	CoverSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehub_cover_selections_total",
			Help: "Cover selections by outcome (selected, fallback_unsafe, exhausted)",
		},
		[]string{"outcome"},
	)

	// HTTP surface
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehub_api_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gamehub_ws_clients",
			Help: "Connected progress feed clients",
		},
	)
)
