// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

/*
Package supervisor runs the long-lived listingsync components under a
suture v4 supervision tree.

The tree has one root and three layer supervisors:

	listingsync
	├── sync-layer        sync.Manager (maintenance loop, run shutdown)
	├── messaging-layer   websocket.Hub, websocket.BusForwarder
	└── api-layer         HTTP server

Services that return an error are restarted with backoff. Services that
panic are restarted too. Supervisor events are logged through sutureslog
using the slog bridge from the logging package.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return err
	}
	tree.AddSyncService(services.NewSyncService(manager))
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))
	return tree.Serve(ctx)

Subpackage services holds the adapters from Start/Stop, RunWithContext and
ListenAndServe lifecycles to suture.Service.
*/
package supervisor
