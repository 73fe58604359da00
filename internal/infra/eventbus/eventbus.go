package eventbus

import (
	"context"
	"fmt"

	"go-shortener-pipeline/internal/conf"
	"go-shortener-pipeline/internal/domain/event"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	// MetadataPartitionKey carries the url key used for ordering and routing.
	MetadataPartitionKey = "partition_key"

	goChannelBuffer = 1024
)

// GroupSubscriber is implemented by brokers with consumer groups.
type GroupSubscriber interface {
	SubscribeGroup(ctx context.Context, topic, group string) (<-chan *message.Message, error)
}

// EventBus publishes pipeline events and hands out topic subscriptions.
type EventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	close      func() error
	logger     watermill.LoggerAdapter
	inProcess  bool
}

// NewEventBus builds the bus for the configured driver.
func NewEventBus(c *conf.Broker, logger watermill.LoggerAdapter) (*EventBus, func(), error) {
	switch c.Driver {
	case "gochannel":
		bus := NewGoChannelBus(logger)
		return bus, func() { _ = bus.Close() }, nil
	case "nats":
		js, err := NewJetStream(c.NATS, logger)
		if err != nil {
			return nil, nil, err
		}
		bus := &EventBus{
			publisher:  js,
			subscriber: js,
			close:      js.Close,
			logger:     logger,
		}
		return bus, func() { _ = bus.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
	}
}

// NewGoChannelBus creates an in-process bus. Every subscriber receives every
// message and each delivery waits for its own ack.
func NewGoChannelBus(logger watermill.LoggerAdapter) *EventBus {
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: goChannelBuffer,
			Persistent:          false,
		},
		logger,
	)

	return &EventBus{
		publisher:  pubsub,
		subscriber: pubsub,
		close:      pubsub.Close,
		logger:     logger,
		inProcess:  true,
	}
}

// Publisher returns the Watermill publisher.
func (b *EventBus) Publisher() message.Publisher {
	return b.publisher
}

// Subscriber returns the Watermill subscriber.
func (b *EventBus) Subscriber() message.Subscriber {
	return b.subscriber
}

// Publish sends a single event to its topic.
func (b *EventBus) Publish(ctx context.Context, e event.Event) error {
	msg, err := EventToMessage(ctx, e)
	if err != nil {
		return err
	}
	return b.publisher.Publish(e.Topic(), msg)
}

// PublishBatch sends events to topic in one broker call.
func (b *EventBus) PublishBatch(ctx context.Context, topic string, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]*message.Message, 0, len(events))
	for _, e := range events {
		msg, err := EventToMessage(ctx, e)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return b.publisher.Publish(topic, msgs...)
}

// Subscribe returns the message stream of topic. group names the consumer
// group on brokers that support one and is ignored otherwise.
func (b *EventBus) Subscribe(ctx context.Context, topic, group string) (<-chan *message.Message, error) {
	if gs, ok := b.subscriber.(GroupSubscriber); ok && group != "" {
		return gs.SubscribeGroup(ctx, topic, group)
	}

	msgs, err := b.subscriber.Subscribe(ctx, topic)
	if err != nil || !b.inProcess {
		return msgs, err
	}
	return prefetch(ctx, msgs), nil
}

// prefetch acks in-process deliveries as soon as they are buffered, since
// gochannel holds back the next message until the previous one is acked.
// Later acks by the consumer are no-ops.
func prefetch(ctx context.Context, in <-chan *message.Message) <-chan *message.Message {
	out := make(chan *message.Message, goChannelBuffer)
	go func() {
		defer close(out)
		for msg := range in {
			select {
			case out <- msg:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out
}

// Close closes the event bus.
func (b *EventBus) Close() error {
	return b.close()
}

// EventToMessage converts an event to a Watermill message. Transport headers
// travel as metadata.
func EventToMessage(ctx context.Context, e event.Event) (*message.Message, error) {
	payload, err := event.Encode(e)
	if err != nil {
		return nil, err
	}

	id := e.EventID()
	if id == "" {
		id = watermill.NewUUID()
	}

	msg := message.NewMessage(id, payload)
	for k, v := range event.Headers(e) {
		msg.Metadata.Set(k, v)
	}
	msg.Metadata.Set(event.HeaderEventID, id)
	msg.Metadata.Set(MetadataPartitionKey, e.PartitionKey())
	msg.SetContext(ctx)

	return msg, nil
}
