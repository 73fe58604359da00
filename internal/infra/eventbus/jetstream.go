package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go-shortener-pipeline/internal/conf"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"
)

const (
	defaultAckWait         = 30 * time.Second
	defaultPublishMaxAsync = 256
	defaultMaxAckPending   = 1024
	subscriberBuffer       = 64
)

// JetStream is a Watermill publisher and subscriber backed by a NATS
// JetStream stream. Topics map to subjects "<stream>.<topic>".
type JetStream struct {
	cfg    conf.NATS
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	done   chan struct{}
}

// NewJetStream connects to NATS and makes sure the stream exists.
func NewJetStream(c *conf.NATS, logger watermill.LoggerAdapter) (*JetStream, error) {
	cfg := *c
	if cfg.AckWait.AsDuration() <= 0 {
		cfg.AckWait = conf.Duration(defaultAckWait)
	}
	if cfg.PublishMaxAsync <= 0 {
		cfg.PublishMaxAsync = defaultPublishMaxAsync
	}
	if cfg.MaxAckPending <= 0 {
		cfg.MaxAckPending = defaultMaxAckPending
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("go-shortener-pipeline"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := conn.JetStream(nats.PublishAsyncMaxPending(cfg.PublishMaxAsync))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	j := &JetStream{
		cfg:    cfg,
		conn:   conn,
		js:     js,
		logger: logger.With(watermill.LogFields{"stream": cfg.Stream}),
		done:   make(chan struct{}),
	}
	if err := j.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}
	return j, nil
}

func (j *JetStream) ensureStream() error {
	subjects := []string{j.cfg.Stream + ".>"}

	_, err := j.js.StreamInfo(j.cfg.Stream)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = j.js.AddStream(&nats.StreamConfig{
			Name:     j.cfg.Stream,
			Subjects: subjects,
			Storage:  nats.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("create stream %s: %w", j.cfg.Stream, err)
		}
		j.logger.Info("stream created", watermill.LogFields{"subjects": subjects})
		return nil
	}
	if err != nil {
		return fmt.Errorf("stream info %s: %w", j.cfg.Stream, err)
	}
	return nil
}

func (j *JetStream) subject(topic string) string {
	return j.cfg.Stream + "." + topic
}

// Publish sends messages asynchronously and waits for every ack. A batch
// over the configured limits, or one the client refuses for its size, fails
// with ErrBatchTooLarge so the caller can split it.
func (j *JetStream) Publish(topic string, messages ...*message.Message) error {
	if len(messages) == 0 {
		return nil
	}
	if j.isClosed() {
		return ErrClosed
	}
	if err := j.checkBatch(messages); err != nil {
		return err
	}

	ctx := messages[0].Context()
	subject := j.subject(topic)
	futures := make([]nats.PubAckFuture, 0, len(messages))

	for _, msg := range messages {
		nm := nats.NewMsg(subject)
		nm.Data = msg.Payload
		for k, v := range msg.Metadata {
			nm.Header.Set(k, v)
		}
		nm.Header.Set(nats.MsgIdHdr, msg.UUID)

		f, err := j.js.PublishMsgAsync(nm)
		if err != nil {
			if isSizeError(err) && len(messages) > 1 {
				return fmt.Errorf("%w: %v", ErrBatchTooLarge, err)
			}
			return fmt.Errorf("publish to %s: %w", subject, err)
		}
		futures = append(futures, f)
	}

	timeout := time.NewTimer(j.cfg.AckWait.AsDuration())
	defer timeout.Stop()

	for _, f := range futures {
		select {
		case <-f.Ok():
		case err := <-f.Err():
			return fmt.Errorf("publish to %s: %w", subject, err)
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return fmt.Errorf("publish to %s: %w", subject, nats.ErrTimeout)
		}
	}
	return nil
}

func (j *JetStream) checkBatch(messages []*message.Message) error {
	if j.cfg.MaxBatchSize > 0 && len(messages) > j.cfg.MaxBatchSize {
		return fmt.Errorf("%w: %d messages, limit %d", ErrBatchTooLarge, len(messages), j.cfg.MaxBatchSize)
	}
	if j.cfg.MaxBatchBytes <= 0 || len(messages) == 1 {
		return nil
	}
	total := 0
	for _, m := range messages {
		total += len(m.Payload)
	}
	if total > j.cfg.MaxBatchBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrBatchTooLarge, total, j.cfg.MaxBatchBytes)
	}
	return nil
}

// isSizeError reports errors meaning the client cannot take more data now.
// The stalled error is not exported by nats.go.
func isSizeError(err error) bool {
	return errors.Is(err, nats.ErrMaxPayload) || strings.Contains(err.Error(), "stalled")
}

// Subscribe reads topic with a durable consumer named after the topic.
func (j *JetStream) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return j.SubscribeGroup(ctx, topic, topic)
}

// SubscribeGroup joins the queue group for topic. Members of one group share
// the messages; each NATS message is acked or nacked once the Watermill
// message is.
func (j *JetStream) SubscribeGroup(ctx context.Context, topic, group string) (<-chan *message.Message, error) {
	if j.isClosed() {
		return nil, ErrClosed
	}

	out := make(chan *message.Message, subscriberBuffer)
	subCtx, cancel := context.WithCancel(ctx)
	logFields := watermill.LogFields{"topic": topic, "group": group}

	handler := func(m *nats.Msg) {
		msg := message.NewMessage(m.Header.Get(nats.MsgIdHdr), m.Data)
		for k, vs := range m.Header {
			if k == nats.MsgIdHdr || len(vs) == 0 {
				continue
			}
			msg.Metadata.Set(k, vs[0])
		}
		msg.SetContext(subCtx)

		select {
		case out <- msg:
		case <-subCtx.Done():
			_ = m.Nak()
			return
		}

		j.wg.Add(1)
		go func() {
			defer j.wg.Done()
			j.settle(subCtx, m, msg, logFields)
		}()
	}

	durable := strings.ReplaceAll(group+"_"+topic, ".", "_")
	sub, err := j.js.QueueSubscribe(j.subject(topic), group, handler,
		nats.Durable(durable),
		nats.BindStream(j.cfg.Stream),
		nats.ManualAck(),
		nats.DeliverAll(),
		nats.AckWait(j.cfg.AckWait.AsDuration()),
		nats.MaxAckPending(j.cfg.MaxAckPending),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	j.logger.Info("subscribed", logFields)

	go func() {
		select {
		case <-ctx.Done():
		case <-j.done:
		}
		_ = sub.Drain()
		cancel()
	}()

	return out, nil
}

func (j *JetStream) settle(ctx context.Context, m *nats.Msg, msg *message.Message, fields watermill.LogFields) {
	select {
	case <-msg.Acked():
		if err := m.Ack(); err != nil {
			j.logger.Error("ack failed", err, fields)
		}
	case <-msg.Nacked():
		if err := m.Nak(); err != nil {
			j.logger.Error("nak failed", err, fields)
		}
	case <-ctx.Done():
		// Redelivered after ack_wait.
	}
}

func (j *JetStream) isClosed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closed
}

// Close drains subscriptions and the connection.
func (j *JetStream) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.done)
	j.mu.Unlock()

	select {
	case <-j.js.PublishAsyncComplete():
	case <-time.After(j.cfg.AckWait.AsDuration()):
		j.logger.Info("async publishes still pending at close", nil)
	}

	err := j.conn.Drain()
	j.wg.Wait()
	return err
}
