// Package bus carries session events between the chat handler, the event
// streams and the recent-events recorder.
package bus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/agentlink/internal/metrics"
	"github.com/zhouzirui/agentlink/internal/model/chat"
)

// Topic carries every session event; subscribers filter on the session metadata.
const Topic = "agentlink.events"

const metadataSessionID = "session_id"

// Bus publishes and subscribes to session events.
type Bus struct {
	pub     message.Publisher
	sub     message.Subscriber
	logger  zerolog.Logger
	metrics *metrics.Collector
	closers []func() error
}

// NewInMemory returns a bus backed by a watermill gochannel.
func NewInMemory(logger zerolog.Logger, m *metrics.Collector) *Bus {
	logger = logger.With().Str("component", "bus").Logger()
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, NewWatermillLogger(logger))
	return &Bus{
		pub:     ch,
		sub:     ch,
		logger:  logger,
		metrics: m,
		closers: []func() error{ch.Close},
	}
}

// NewRedis returns a bus over Redis Streams. Every subscription reads in
// fan-out mode so each event stream sees all events.
func NewRedis(ctx context.Context, addr string, logger zerolog.Logger, m *metrics.Collector) (*Bus, error) {
	logger = logger.With().Str("component", "bus").Str("redis", addr).Logger()
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connect redis %s", addr)
	}

	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	wlog := NewWatermillLogger(logger)

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, wlog)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:       client,
		Unmarshaller: marshaler,
	}, wlog)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis subscriber")
	}

	return &Bus{
		pub:     pub,
		sub:     sub,
		logger:  logger,
		metrics: m,
		closers: []func() error{sub.Close, pub.Close, client.Close},
	}, nil
}

// Publish sends ev for sessionID.
func (b *Bus) Publish(ctx context.Context, sessionID string, ev chat.EventPayload) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set(metadataSessionID, sessionID)
	msg.SetContext(ctx)

	if err := b.pub.Publish(Topic, msg); err != nil {
		return errors.Wrapf(err, "publish event %s", ev.Type)
	}
	b.metrics.EventPublished()
	return nil
}

// Subscribe streams events for sessionID until ctx ends. An empty sessionID
// receives every session. The returned channel is closed when the
// subscription ends.
func (b *Bus) Subscribe(ctx context.Context, sessionID string) (<-chan Delivery, error) {
	msgs, err := b.sub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe to events")
	}

	out := make(chan Delivery, 16)
	go func() {
		defer close(out)
		for msg := range msgs {
			target := msg.Metadata.Get(metadataSessionID)
			if sessionID != "" && target != sessionID {
				msg.Ack()
				continue
			}

			var ev chat.EventPayload
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				b.logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping undecodable event")
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- Delivery{SessionID: target, Event: ev}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Delivery is one event received from the bus.
type Delivery struct {
	SessionID string
	Event     chat.EventPayload
}

// Close releases the publisher, subscriber and any backing client.
func (b *Bus) Close() error {
	var first error
	for _, closeFn := range b.closers {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
