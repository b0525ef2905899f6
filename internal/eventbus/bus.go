// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/listingsync/internal/config"
	"github.com/tomtom215/listingsync/internal/logging"
	"github.com/tomtom215/listingsync/internal/metrics"
	"github.com/tomtom215/listingsync/internal/models"
)

const (
	// BackendGoChannel is the in-process backend.
	BackendGoChannel = "gochannel"
	// BackendNATS publishes to a NATS server.
	BackendNATS = "nats"

	// DefaultTopic is used when the config leaves the topic empty.
	DefaultTopic = "listingsync.sync.events"

	// MetadataRunID and MetadataType are set on every published message.
	MetadataRunID = "run_id"
	MetadataType  = "event_type"

	goChannelBuffer = 256
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("event bus closed")

// Bus publishes sync events and hands out subscriptions to them.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string
	logger     watermill.LoggerAdapter
	// shutdown stops transport resources owned by the bus, such as an
	// embedded NATS server. Runs after publisher and subscriber close.
	shutdown func()

	mu     sync.RWMutex
	closed bool
}

// New creates a Bus for the configured backend.
func New(cfg config.EventsConfig) (*Bus, error) {
	logger := watermill.NewSlogLogger(logging.NewSlogLogger())
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	switch cfg.Backend {
	case "", BackendGoChannel:
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: goChannelBuffer,
		}, logger)
		return &Bus{publisher: ch, subscriber: ch, topic: topic, logger: logger}, nil
	case BackendNATS:
		pub, sub, shutdown, err := newNATSTransport(cfg, logger)
		if err != nil {
			return nil, err
		}
		return &Bus{publisher: pub, subscriber: sub, topic: topic, logger: logger, shutdown: shutdown}, nil
	default:
		return nil, fmt.Errorf("unknown event bus backend %q", cfg.Backend)
	}
}

// NewWithPubSub wraps an existing publisher and subscriber.
func NewWithPubSub(pub message.Publisher, sub message.Subscriber, topic string) *Bus {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Bus{
		publisher:  pub,
		subscriber: sub,
		topic:      topic,
		logger:     watermill.NewSlogLogger(logging.NewSlogLogger()),
	}
}

// Topic returns the topic events are published on.
func (b *Bus) Topic() string {
	return b.topic
}

// Observe publishes one event. Failures are logged and counted, never
// returned: the bus must not stall a run.
func (b *Bus) Observe(ev models.SyncEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	msg, err := EncodeEvent(ev)
	if err != nil {
		metrics.EventBusPublished.WithLabelValues("encode_error").Inc()
		logging.Warn().Err(err).Str("run_id", ev.RunID).Str("type", string(ev.Type)).Msg("Failed to encode sync event")
		return
	}
	if err := b.publisher.Publish(b.topic, msg); err != nil {
		metrics.EventBusPublished.WithLabelValues("error").Inc()
		logging.Warn().Err(err).Str("run_id", ev.RunID).Str("type", string(ev.Type)).Msg("Failed to publish sync event")
		return
	}
	metrics.EventBusPublished.WithLabelValues("success").Inc()
}

// Subscribe returns the message stream for the bus topic. Each message must
// be Acked by the consumer.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	return b.subscriber.Subscribe(ctx, b.topic)
}

// Close shuts down publisher and subscriber. It is safe to call twice.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	var errs []error
	if err := b.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	// gochannel uses one value for both roles.
	if c, ok := b.subscriber.(message.Publisher); !ok || c != b.publisher {
		if err := b.subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	if b.shutdown != nil {
		b.shutdown()
	}
	return errors.Join(errs...)
}

// EncodeEvent builds the Watermill message for ev.
func EncodeEvent(ev models.SyncEvent) (*message.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal sync event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(MetadataRunID, ev.RunID)
	msg.Metadata.Set(MetadataType, string(ev.Type))
	return msg, nil
}

// Envelope is the decoded form of a bus message. Payload stays raw since its
// shape depends on Type.
type Envelope struct {
	Type      models.EventType `json:"type"`
	Timestamp json.RawMessage  `json:"timestamp"`
	RunID     string           `json:"run_id"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
}

// DecodeEvent parses a message produced by EncodeEvent.
func DecodeEvent(msg *message.Message) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal sync event: %w", err)
	}
	return env, nil
}
