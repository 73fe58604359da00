package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go-shortener-pipeline/internal/biz"
	"go-shortener-pipeline/internal/conf"
	"go-shortener-pipeline/internal/domain"
	"go-shortener-pipeline/internal/domain/event"
	"go-shortener-pipeline/internal/infra/batcher"
	"go-shortener-pipeline/internal/infra/metrics"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/samber/lo"
)

var (
	_ transport.Server = (*Consumer[domain.ClickEvent])(nil)

	ErrUnexpectedEventType = errors.New("unexpected event type")
)

// Subscriber hands out a message stream for a topic within a consumer group.
type Subscriber interface {
	Subscribe(ctx context.Context, topic, group string) (<-chan *message.Message, error)
}

// DecodeFunc turns a message into a batch item.
type DecodeFunc[T any] func(msg *message.Message) (T, error)

// ApplyFunc processes one batch and reports how many items took effect.
type ApplyFunc[T any] func(ctx context.Context, items []T) (int, error)

type pending[T any] struct {
	value T
	msg   *message.Message
}

// Consumer reads one topic, groups decoded messages into batches and acks
// every message of a batch once the batch has been processed.
type Consumer[T any] struct {
	topic   string
	group   string
	sub     Subscriber
	decode  DecodeFunc[T]
	apply   ApplyFunc[T]
	batcher *batcher.Batcher[pending[T]]
	log     *log.Helper

	stopLoop  context.CancelFunc
	cancelSub context.CancelFunc
	loop      sync.WaitGroup
}

func NewConsumer[T any](
	topic string,
	c *conf.Consumer,
	sub Subscriber,
	decode DecodeFunc[T],
	apply ApplyFunc[T],
	logger log.Logger,
) *Consumer[T] {
	cs := &Consumer[T]{
		topic:  topic,
		group:  c.Group,
		sub:    sub,
		decode: decode,
		apply:  apply,
		log:    log.NewHelper(log.With(logger, "module", "server/consumer", "topic", topic)),
	}
	cs.batcher = batcher.New(batcher.Config{
		Name:        topic,
		Size:        c.BatchSize,
		Interval:    c.BatchInterval.AsDuration(),
		MaxInFlight: c.MaxInFlight,
	}, cs.process, logger)
	return cs
}

// NewURLConsumer bulk-inserts urls from the new-urls topic.
func NewURLConsumer(c *conf.Consumers, sub Subscriber, uc *biz.URLIngestUsecase, logger log.Logger) *Consumer[*domain.URL] {
	return NewConsumer(event.TopicNewURLs, c.NewURLs, sub, decodeURLCreated, uc.AddBulk, logger)
}

// NewClickConsumer applies click events from the update-urls topic.
func NewClickConsumer(c *conf.Consumers, sub Subscriber, uc *biz.ClickUsecase, logger log.Logger) *Consumer[domain.ClickEvent] {
	return NewConsumer(event.TopicURLClicks, c.Clicks, sub, decodeURLClicked, uc.Apply, logger)
}

func (c *Consumer[T]) Start(ctx context.Context) error {
	// The subscription outlives the receive loop so that buffered batches can
	// still be acked during Stop.
	subCtx, cancelSub := context.WithCancel(context.WithoutCancel(ctx))
	msgs, err := c.sub.Subscribe(subCtx, c.topic, c.group)
	if err != nil {
		cancelSub()
		return fmt.Errorf("subscribe %s: %w", c.topic, err)
	}
	loopCtx, stopLoop := context.WithCancel(subCtx)
	c.cancelSub, c.stopLoop = cancelSub, stopLoop

	c.batcher.Start(loopCtx)
	c.loop.Add(1)
	go c.run(loopCtx, msgs)

	c.log.Infow("msg", "consumer started", "group", c.group)
	return nil
}

// Stop stops receiving, flushes and acks what is buffered, then ends the
// subscription.
func (c *Consumer[T]) Stop(ctx context.Context) error {
	if c.stopLoop == nil {
		return nil
	}
	c.stopLoop()
	c.loop.Wait()

	err := c.batcher.Stop(ctx)
	c.cancelSub()
	c.log.Infow("msg", "consumer stopped")
	return err
}

func (c *Consumer[T]) run(ctx context.Context, msgs <-chan *message.Message) {
	defer c.loop.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			c.receive(msg)
		}
	}
}

func (c *Consumer[T]) receive(msg *message.Message) {
	metrics.ConsumerReceived.WithLabelValues(c.topic).Inc()

	value, err := c.decode(msg)
	if err != nil {
		// Redelivery cannot fix a malformed payload.
		metrics.ConsumerRejected.WithLabelValues(c.topic).Inc()
		c.log.Warnw("msg", "rejecting message", "message_id", msg.UUID, "error", err)
		msg.Ack()
		return
	}
	c.batcher.Add(pending[T]{value: value, msg: msg})
}

func (c *Consumer[T]) process(ctx context.Context, batch []pending[T]) error {
	defer func() {
		for _, p := range batch {
			p.msg.Ack()
		}
	}()

	values := lo.Map(batch, func(p pending[T], _ int) T { return p.value })
	n, err := c.apply(ctx, values)
	if err != nil {
		metrics.ConsumerBatches.WithLabelValues(c.topic, "failed").Inc()
		return fmt.Errorf("apply %d messages from %s: %w", len(batch), c.topic, err)
	}

	metrics.ConsumerBatches.WithLabelValues(c.topic, "ok").Inc()
	metrics.ConsumerApplied.WithLabelValues(c.topic).Add(float64(n))
	c.log.Debugw("msg", "batch applied", "size", len(batch), "applied", n)
	return nil
}

func checkEventType(msg *message.Message, want string) error {
	if got := msg.Metadata.Get(event.HeaderEventType); got != "" && got != want {
		return fmt.Errorf("%w: %q", ErrUnexpectedEventType, got)
	}
	return nil
}

func decodeURLCreated(msg *message.Message) (*domain.URL, error) {
	if err := checkEventType(msg, domain.EventTypeURLCreated); err != nil {
		return nil, err
	}
	e, err := event.Decode[event.URLCreated](msg.Payload)
	if err != nil {
		return nil, err
	}
	return e.ToEntity()
}

func decodeURLClicked(msg *message.Message) (domain.ClickEvent, error) {
	if err := checkEventType(msg, domain.EventTypeURLClicked); err != nil {
		return domain.ClickEvent{}, err
	}
	e, err := event.Decode[event.URLClicked](msg.Payload)
	if err != nil {
		return domain.ClickEvent{}, err
	}
	return e.ToClickEvent()
}
