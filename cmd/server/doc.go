// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

/*
Package main is the entry point for the listingsync server.

listingsync pulls business listing data (accounts, locations, reviews,
posts, performance insights and search keywords) from the external listing
API into DuckDB, streaming progress to the caller over Server-Sent Events.

# Application Architecture

	listingsync
	├── sync-layer
	│   └── Sync Manager (run admission, maintenance, shutdown)
	├── messaging-layer
	│   ├── WebSocket Hub (live run events)
	│   └── Bus Forwarder (event bus to hub, when events are enabled)
	└── api-layer
	    └── HTTP Server (chi router)

Initialization order:

 1. Configuration: koanf defaults, optional YAML file, environment
 2. Logging: zerolog, JSON or console
 3. Database: DuckDB with the listing schema
 4. Checkpoints: BadgerDB run checkpoints (optional)
 5. Event bus: watermill gochannel, or NATS JetStream with -tags nats
 6. Sync Manager, HTTP handlers and router
 7. Supervisor tree

# Configuration

	HTTP_PORT=8080
	LOG_LEVEL=info
	LOG_FORMAT=json
	DUCKDB_PATH=/data/listingsync.duckdb
	LISTING_CLIENT_ID=...
	LISTING_CLIENT_SECRET=...
	SYNC_MAX_LOCATIONS=5
	CHECKPOINT_ENABLED=true
	CHECKPOINT_PATH=/data/checkpoints
	EVENTS_BACKEND=gochannel     # or nats (build with -tags nats)
	NATS_URL=nats://127.0.0.1:4222

A YAML file is read from CONFIG_PATH when set.

# Build Tags

	go build ./cmd/server               # in-process event bus only
	go build -tags nats ./cmd/server    # adds the NATS JetStream backend

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains for
HTTP_SHUTDOWN_TIMEOUT, the sync manager cancels active runs (each one
emits its error and done events), and storage is closed last.
*/
package main
