// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

/*
Package eventbus publishes sync events to a Watermill message bus.

The Bus is registered as a sync.Observer on the manager, so every event of
every run is published as one message on the configured topic. Two backends
are available:

  - gochannel: in-process pub/sub, the default
  - nats: NATS JetStream via watermill-nats, only in binaries built with
    -tags=nats. With events.embedded_nats set, an in-process nats-server is
    started and the bus connects to it instead of events.nats_url.

Message payloads are the JSON-encoded models.SyncEvent. The run id and the
event type are also set as message metadata so consumers can route without
decoding the body.

The websocket package subscribes to the bus to forward events to browsers.
*/
package eventbus
