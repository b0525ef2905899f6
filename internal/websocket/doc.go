// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

/*
Package websocket streams sync run events to dashboard clients.

It uses gorilla/websocket with a hub-and-client layout:

	┌──────────┐     ┌──────────────┐
	│ Manager  │ ──► │ Event bus    │
	└──────────┘     └──────┬───────┘
	                        │ BusForwarder
	                  ┌─────▼─────┐
	                  │    Hub    │
	                  └─────┬─────┘
	        ┌───────────────┼───────────────┐
	    Client 1        Client 2        Client 3

Without an event bus the Hub is registered as a run observer directly.

Each client has two goroutines: readPump handles requests and pongs,
writePump writes queued messages and keepalive pings.

Client requests:

	{"type":"ping"}                                   → {"type":"pong"}
	{"type":"subscribe","data":{"run_id":"..."}}      → only that run's events
	{"type":"unsubscribe"}                            → events of every run

Server messages of type sync_event carry the run id and the event as data.
A client whose send buffer fills up is disconnected rather than stalling
other clients.
*/
package websocket
