// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

// Package metrics holds the Prometheus collectors for listingsync.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "listingsync_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingsync_duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	// Sync runs
	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "listingsync_sync_run_duration_seconds",
			Help:    "Duration of complete sync runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingsync_sync_runs_total",
			Help: "Sync runs by terminal status",
		},
		[]string{"status"},
	)

	SyncActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "listingsync_sync_active_runs",
			Help: "Sync runs currently executing",
		},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "listingsync_sync_last_success_timestamp",
			Help: "Unix timestamp of the last successful sync run",
		},
	)

	SyncLocationsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "listingsync_sync_locations_in_progress",
			Help: "Locations currently being processed across all runs",
		},
	)

	SyncLocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingsync_sync_locations_total",
			Help: "Locations handled by outcome (processed, skipped)",
		},
		[]string{"outcome"},
	)

	SyncFacetFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingsync_sync_facet_fetches_total",
			Help: "Facet fetches by facet and result (success, empty, error class)",
		},
		[]string{"facet", "result"},
	)

	SyncRowsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingsync_sync_rows_upserted_total",
			Help: "Rows written by facet and outcome (inserted, modified)",
		},
		[]string{"facet", "outcome"},
	)

	SyncUpsertRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingsync_sync_upsert_retries_total",
			Help: "Upsert retries after transient failures",
		},
		[]string{"facet"},
	)

	SyncBatchesAbandoned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingsync_sync_batches_abandoned_total",
			Help: "Facet batches abandoned after a save error",
		},
		[]string{"facet"},
	)

	SyncEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingsync_sync_events_total",
			Help: "Progress events emitted by type",
		},
		[]string{"type"},
	)

	SyncEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "listingsync_sync_events_dropped_total",
			Help: "Progress events not delivered because the subscriber was gone",
		},
	)

	// Listing API
	ListingAPIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingsync_listing_api_requests_total",
			Help: "Requests to the external listing API by endpoint and status code",
		},
		[]string{"endpoint", "status"},
	)

	ListingAPIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "listingsync_listing_api_duration_seconds",
			Help:    "Latency of external listing API requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	ListingAPIRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingsync_listing_api_rate_limited_total",
			Help: "HTTP 429 responses received from the listing API",
		},
		[]string{"endpoint"},
	)

	// Cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingsync_cache_hits_total",
			Help: "Cache hits by cache name",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingsync_cache_misses_total",
			Help: "Cache misses by cache name",
		},
		[]string{"cache"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "listingsync_cache_entries",
			Help: "Entries currently held by cache name",
		},
		[]string{"cache"},
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingsync_api_requests_total",
			Help: "HTTP API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "listingsync_api_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// WebSocket
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "listingsync_websocket_connections",
			Help: "Connected websocket dashboard clients",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "listingsync_websocket_messages_sent_total",
			Help: "Messages written to websocket clients",
		},
	)

	// Event bus
	EventBusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingsync_eventbus_published_total",
			Help: "Sync events published to the message bus by result",
		},
		[]string{"result"},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "listingsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingsync_circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result (success, failure, rejected)",
		},
		[]string{"name", "result"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingsync_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordDBQuery records a database query. Long error strings are truncated
// to keep label cardinality bounded.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordSyncRun records a finished run.
func RecordSyncRun(status string, duration time.Duration) {
	SyncRuns.WithLabelValues(status).Inc()
	SyncRunDuration.Observe(duration.Seconds())
	if status == "completed" {
		SyncLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordFacetFetch counts one facet fetch outcome.
func RecordFacetFetch(facet, result string) {
	SyncFacetFetches.WithLabelValues(facet, result).Inc()
}

// RecordUpsert counts written rows.
func RecordUpsert(facet string, inserted, modified int) {
	if inserted > 0 {
		SyncRowsUpserted.WithLabelValues(facet, "inserted").Add(float64(inserted))
	}
	if modified > 0 {
		SyncRowsUpserted.WithLabelValues(facet, "modified").Add(float64(modified))
	}
}

// RecordListingRequest records one external API call.
func RecordListingRequest(endpoint string, statusCode int, duration time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	ListingAPIRequests.WithLabelValues(endpoint, status).Inc()
	ListingAPIDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordAPIRequest records an HTTP API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
