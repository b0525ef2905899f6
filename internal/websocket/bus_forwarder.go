// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package websocket

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/listingsync/internal/eventbus"
	"github.com/tomtom215/listingsync/internal/logging"
)

// EventSource yields bus messages. *eventbus.Bus satisfies it.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
}

// BusForwarder relays sync events from the event bus to the hub.
type BusForwarder struct {
	hub    *Hub
	source EventSource
}

// NewBusForwarder creates a forwarder from source to hub.
func NewBusForwarder(hub *Hub, source EventSource) *BusForwarder {
	return &BusForwarder{hub: hub, source: source}
}

// Serve forwards messages until ctx is canceled or the subscription closes.
// Every message is acked, including ones that fail to decode.
func (f *BusForwarder) Serve(ctx context.Context) error {
	messages, err := f.source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to event bus: %w", err)
	}
	logging.Info().Msg("Event bus to websocket forwarder started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("event bus subscription closed")
			}
			f.forward(msg)
			msg.Ack()
		}
	}
}

func (f *BusForwarder) forward(msg *message.Message) {
	env, err := eventbus.DecodeEvent(msg)
	if err != nil {
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable sync event")
		return
	}
	f.hub.BroadcastSyncEvent(env.RunID, env)
}

// String names the service for supervisor logs.
func (f *BusForwarder) String() string {
	return "websocket-bus-forwarder"
}
