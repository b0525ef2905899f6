// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

//go:build !nats

package eventbus

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/listingsync/internal/config"
)

func newNATSTransport(_ config.EventsConfig, _ watermill.LoggerAdapter) (message.Publisher, message.Subscriber, func(), error) {
	return nil, nil, nil, fmt.Errorf("NATS event bus not available: build with -tags=nats")
}
