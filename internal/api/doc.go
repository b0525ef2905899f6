// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

/*
Package api provides the HTTP interface of the sync engine.

Routes:

	POST /api/v1/sync                   start a run, stream its events (SSE)
	POST /api/v1/sync?async=true        start a run, 202 with its id
	GET  /api/v1/sync/runs              recent and checkpointed runs
	GET  /api/v1/sync/runs/{id}         one run
	POST /api/v1/sync/runs/{id}/cancel  cancel an active run
	GET  /api/v1/ws                     websocket feed of all run events
	GET  /api/v1/health/live            liveness
	GET  /api/v1/health/ready           readiness (database ping)
	GET  /metrics                       prometheus

Event streams use one SSE message per event:

	id: 3
	event: warning
	data: {"type":"warning","timestamp":"...","run_id":"...","payload":{...}}

The stream ends after the done event. Disconnecting does not stop the run.

JSON responses share the APIResponse envelope. Start errors map to status
codes: 400 invalid body, 404 unknown resume id, 409 run not resumable,
429 too many concurrent runs, 503 anything else.

Middleware is chi's: request id with logging context, real IP, recoverer,
go-chi/cors, go-chi/httprate per-IP limits, and request metrics.
*/
package api
