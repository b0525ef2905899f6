// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/listingsync/internal/config"
	"github.com/tomtom215/listingsync/internal/logging"
	"github.com/tomtom215/listingsync/internal/models"
	syncpkg "github.com/tomtom215/listingsync/internal/sync"
	ws "github.com/tomtom215/listingsync/internal/websocket"
)

// SyncService is the part of *sync.Manager the API drives.
type SyncService interface {
	StartSync(ctx context.Context, req syncpkg.StartRequest, sink syncpkg.Sink) (string, error)
	Run(ctx context.Context, runID string) (*models.SyncRun, error)
	Runs(ctx context.Context) ([]*models.SyncRun, error)
	Cancel(runID string) error
	ActiveRuns() int
}

// DatabaseStatus reports database reachability and schema version.
type DatabaseStatus interface {
	Ping(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
}

// Handler contains dependencies for API handlers
//
// Handler methods are split across files:
//   - handlers_sync.go: start, inspect and cancel sync runs
//   - handlers_health.go: liveness and readiness
//   - handlers_websocket.go: dashboard websocket upgrade
type Handler struct {
	sync      SyncService
	db        DatabaseStatus
	wsHub     *ws.Hub
	config    *config.Config
	startTime time.Time
}

// NewHandler creates a Handler. db and hub may be nil.
func NewHandler(cfg *config.Config, svc SyncService, db DatabaseStatus, hub *ws.Hub) *Handler {
	return &Handler{
		sync:      svc,
		db:        db,
		wsHub:     hub,
		config:    cfg,
		startTime: time.Now(),
	}
}

// getUpgrader creates a websocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts an origin listed in security.cors_origins, or
// any origin when the list contains "*". A missing Origin header is rejected
// since browsers always send one.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}
	if h.config == nil {
		return false
	}
	for _, allowed := range h.config.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
