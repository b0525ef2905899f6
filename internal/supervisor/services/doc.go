// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

/*
Package services adapts listingsync components to suture.Service.

Each adapter turns a component lifecycle into the Serve(ctx) error shape:

  - HTTPServerService: ListenAndServe plus Shutdown with a drain timeout
  - WebSocketHubService: the hub's RunWithContext event loop
  - SyncService: sync.Manager Start/Stop, with a maintenance pass on start

The event bus forwarder already implements Serve and is added to the tree
directly.

Serve returns ctx.Err() on a requested shutdown and a wrapped error on
failure, which suture uses to decide on a restart.
*/
package services
