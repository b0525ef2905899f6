// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package services

import (
	"context"
	"errors"

	"github.com/tomtom215/listingsync/internal/logging"
)

// ContextHub is a hub whose event loop stops with its context.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// WebSocketHubService runs the sync event fan-out hub. Connected clients
// are dropped if the loop exits; they reconnect and resubscribe by run id.
type WebSocketHubService struct {
	hub ContextHub
}

func NewWebSocketHubService(hub ContextHub) *WebSocketHubService {
	return &WebSocketHubService{hub: hub}
}

// Serve implements suture.Service.
func (w *WebSocketHubService) Serve(ctx context.Context) error {
	err := w.hub.RunWithContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Warn().Err(err).Msg("WebSocket hub stopped unexpectedly")
	}
	return err
}

func (w *WebSocketHubService) String() string {
	return "websocket-hub"
}
