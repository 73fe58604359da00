package eventbus

import (
	"context"
	"sync"

	"go-shortener-pipeline/internal/conf"
	"go-shortener-pipeline/internal/domain/event"
	"go-shortener-pipeline/internal/infra/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// EventPublisher publishes one event.
type EventPublisher interface {
	Publish(ctx context.Context, e event.Event) error
}

// Emitter publishes fire-and-forget events off the request path. Emit never
// blocks: when the buffer is full the event is dropped and counted.
type Emitter struct {
	publisher EventPublisher
	events    chan event.Event
	workers   int
	log       *log.Helper

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// NewEmitter creates an emitter with c.Workers publishers and a c.Buffer deep queue.
func NewEmitter(c *conf.Emitter, publisher EventPublisher, logger log.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		events:    make(chan event.Event, c.Buffer),
		workers:   c.Workers,
		log:       log.NewHelper(log.With(logger, "module", "emitter")),
	}
}

// Start launches the publishing workers.
func (e *Emitter) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.run()
	}
	e.log.Infow("msg", "emitter started", "workers", e.workers, "buffer", cap(e.events))
	return nil
}

// Stop closes the buffer and lets workers publish what is left until ctx ends.
func (e *Emitter) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped || e.cancel == nil {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	close(e.events)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		e.cancel()
		<-done
		err = ctx.Err()
	}
	e.cancel()
	e.log.Infow("msg", "emitter stopped")
	return err
}

// Emit queues evt for publishing. It reports whether the event was accepted.
func (e *Emitter) Emit(evt event.Event) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		metrics.EmitterDropped.Inc()
		return false
	}

	select {
	case e.events <- evt:
		return true
	default:
		metrics.EmitterDropped.Inc()
		e.log.Warnw("msg", "emitter buffer full, event dropped", "event_type", evt.EventName(), "event_id", evt.EventID())
		return false
	}
}

func (e *Emitter) run() {
	defer e.wg.Done()

	for evt := range e.events {
		if e.ctx.Err() != nil {
			metrics.EmitterDropped.Inc()
			continue
		}
		if err := e.publisher.Publish(e.ctx, evt); err != nil {
			metrics.EmitterFailed.Inc()
			e.log.Errorw("msg", "emit failed", "event_type", evt.EventName(), "event_id", evt.EventID(), "error", err)
		}
	}
}
