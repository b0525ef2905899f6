// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

//go:build nats

package eventbus

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/listingsync/internal/config"
	"github.com/tomtom215/listingsync/internal/logging"
)

const (
	natsMaxReconnects = -1
	natsReconnectWait = 2 * time.Second
	natsCloseTimeout  = 10 * time.Second
)

// newNATSTransport connects a JetStream publisher and subscriber. The
// subscriber only receives messages published after it subscribed. With
// EmbeddedNATS set, an in-process server is started first and the returned
// shutdown func stops it.
func newNATSTransport(cfg config.EventsConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, func(), error) {
	url := cfg.NATSURL
	var shutdown func()
	if cfg.EmbeddedNATS {
		srv, err := StartEmbeddedServer(cfg.StoreDir)
		if err != nil {
			return nil, nil, nil, err
		}
		url = srv.ClientURL()
		shutdown = srv.Shutdown
	}
	if url == "" {
		url = natsgo.DefaultURL
	}
	fail := func(err error) (message.Publisher, message.Subscriber, func(), error) {
		if shutdown != nil {
			shutdown()
		}
		return nil, nil, nil, err
	}
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(natsMaxReconnects),
		natsgo.ReconnectWait(natsReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS event bus disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS event bus reconnected")
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("create NATS publisher: %w", err))
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		SubscribersCount: 1,
		CloseTimeout:     natsCloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision:    true,
			SubscribeOptions: []natsgo.SubOpt{natsgo.DeliverNew(), natsgo.AckExplicit()},
		},
	}, logger)
	if err != nil {
		_ = pub.Close() //nolint:errcheck // best effort cleanup
		return fail(fmt.Errorf("create NATS subscriber: %w", err))
	}
	return pub, sub, shutdown, nil
}
