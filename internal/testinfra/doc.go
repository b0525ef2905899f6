// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

// Package testinfra starts Docker containers for integration tests through
// testcontainers-go. Everything here is behind the integration build tag.
//
// # NATS Container
//
// StartNATS is the usual entry point. It skips without Docker and
// terminates the container when the test ends:
//
//	func TestBusAgainstRealNATS(t *testing.T) {
//	    url := testinfra.StartNATS(t)
//	    bus, err := eventbus.New(config.EventsConfig{Enabled: true, Backend: "nats", NATSURL: url})
//	    // ...
//	}
//
// NewNATSContainer returns the container itself when a test needs to stop
// or inspect it.
//
// Run with:
//
//	go test -tags "integration nats" ./internal/eventbus/...
package testinfra
