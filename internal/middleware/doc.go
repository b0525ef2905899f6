// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

/*
Package middleware provides HTTP middleware for the API router.

  - RequestID: reuses or generates X-Request-ID and stores it in the
    logging context, so every log line of a request carries request_id
  - PrometheusMetrics: request count and latency by method, route pattern
    and status

Both are plain func(http.Handler) http.Handler and are mounted with chi's
r.Use. The response wrapper keeps http.Flusher so server-sent event streams
still flush through the metrics layer.
*/
package middleware
