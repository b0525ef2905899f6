// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package api

import (
	"context"
	"net/http"
	"time"
)

const readinessTimeout = 2 * time.Second

// HealthStatus is the body of the health endpoints.
type HealthStatus struct {
	Status            string  `json:"status"`
	DatabaseConnected bool    `json:"database_connected"`
	SchemaVersion     int     `json:"schema_version"`
	ActiveRuns        int     `json:"active_runs"`
	WebSocketClients  int     `json:"websocket_clients"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// HealthLive reports that the process is serving requests.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "alive"})
}

// HealthReady reports whether the database answers, with its schema
// version. 503 when it does not.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	status := h.health(r.Context())
	rw := NewResponseWriter(w, r)
	if !status.DatabaseConnected {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "database unavailable", status)
		return
	}
	rw.Success(status)
}

func (h *Handler) health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:        "healthy",
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}
	if h.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
		status.DatabaseConnected = h.db.Ping(pingCtx) == nil
		if status.DatabaseConnected {
			if v, err := h.db.SchemaVersion(pingCtx); err == nil {
				status.SchemaVersion = v
			}
		}
		cancel()
	}
	if !status.DatabaseConnected {
		status.Status = "degraded"
	}
	if h.sync != nil {
		status.ActiveRuns = h.sync.ActiveRuns()
	}
	if h.wsHub != nil {
		status.WebSocketClients = h.wsHub.GetClientCount()
	}
	return status
}
