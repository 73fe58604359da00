package publishqueue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go-shortener-pipeline/internal/conf"
	"go-shortener-pipeline/internal/infra/eventbus"
	"go-shortener-pipeline/internal/infra/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

var (
	ErrStopped    = errors.New("publish queue stopped")
	ErrNotStarted = errors.New("publish queue not started")
)

const (
	backpressureRatio  = 0.8
	drainPollInterval  = 10 * time.Millisecond
	defaultStopTimeout = 10 * time.Second
)

// Transport publishes one batch. It returns eventbus.ErrBatchTooLarge when the
// broker rejects the batch for its size.
type Transport[T any] interface {
	PublishBatch(ctx context.Context, items []T) error
}

type Option func(*options)

type options struct {
	clock Clock
}

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

type envelope[T any] struct {
	item T
	stop bool
}

// Queue is a bounded, batching outbound publisher. Enqueue never drops an
// item: once the queue is full it waits, warns, then blocks.
type Queue[T any] struct {
	cfg       conf.PublishQueue
	items     chan envelope[T]
	transport Transport[T]
	clock     Clock
	log       *log.Helper

	counters *counters
	reporter *Reporter
	pending  atomic.Int64

	ctx            context.Context
	cancel         context.CancelFunc
	reporterCancel context.CancelFunc
	workers        sync.WaitGroup
	reporterDone   sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped atomic.Bool
}

// New validates cfg and builds a queue. Every config field is required.
func New[T any](cfg *conf.PublishQueue, transport Transport[T], logger log.Logger, opts ...Option) (*Queue[T], error) {
	if err := conf.ValidatePublishQueue(cfg); err != nil {
		return nil, err
	}

	o := options{clock: RealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	q := &Queue[T]{
		cfg:       *cfg,
		items:     make(chan envelope[T], cfg.MaxQueueSize),
		transport: transport,
		clock:     o.clock,
		log:       log.NewHelper(log.With(logger, "module", "publishqueue")),
		counters:  &counters{},
	}
	q.reporter = newReporter(q.counters, q.depth, q.clock, cfg.ReportInterval.AsDuration(), q.log)
	return q, nil
}

// Start launches the workers and the reporter. It does not block.
func (q *Queue[T]) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return nil
	}
	q.started = true

	q.ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < q.cfg.WorkerCount; i++ {
		q.workers.Add(1)
		go q.worker(i)
	}

	var reporterCtx context.Context
	reporterCtx, q.reporterCancel = context.WithCancel(q.ctx)
	q.reporterDone.Add(1)
	go func() {
		defer q.reporterDone.Done()
		q.reporter.Run(reporterCtx)
	}()

	q.log.Infow(
		"msg", "publish queue started",
		"workers", q.cfg.WorkerCount,
		"max_queue_size", q.cfg.MaxQueueSize,
		"enqueue_timeout", q.cfg.EnqueueTimeout.AsDuration(),
		"batch_max_size", q.cfg.BatchMaxSize,
		"batch_window", q.cfg.BatchWindow.AsDuration(),
		"max_retries", q.cfg.MaxRetries,
		"base_backoff", q.cfg.BaseBackoff.AsDuration(),
	)
	return nil
}

// Stop drains the queue within the time left on ctx, or defaultStopTimeout.
func (q *Queue[T]) Stop(ctx context.Context) error {
	timeout := defaultStopTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	return q.Shutdown(ctx, true, timeout)
}

// Shutdown stops accepting items. With drain it waits up to timeout for the
// backlog to be published; whatever is left afterwards is discarded with a
// warning. Workers receive one stop sentinel each and are joined before the
// reporter is canceled.
func (q *Queue[T]) Shutdown(ctx context.Context, drain bool, timeout time.Duration) error {
	q.mu.Lock()
	if !q.started || q.stopped.Load() {
		q.mu.Unlock()
		return nil
	}
	q.stopped.Store(true)
	q.mu.Unlock()

	q.log.Infow("msg", "publish queue stopping", "drain", drain, "timeout", timeout, "depth", len(q.items))

	if drain && !q.waitIdle(ctx, timeout) {
		q.log.Warnw("msg", "publish queue drain timed out", "timeout", timeout, "depth", len(q.items), "pending", q.pending.Load())
	}

	if discarded := q.discardBacklog(); discarded > 0 {
		q.log.Warnw("msg", "publish queue discarded unpublished items", "count", discarded)
	}

	for i := 0; i < q.cfg.WorkerCount; i++ {
		q.items <- envelope[T]{stop: true}
	}

	joined := make(chan struct{})
	go func() {
		q.workers.Wait()
		close(joined)
	}()

	var err error
	select {
	case <-joined:
	case <-ctx.Done():
		// Abort in-flight publishes and backoff sleeps.
		q.cancel()
		<-joined
		err = ctx.Err()
	}

	q.reporterCancel()
	q.reporterDone.Wait()
	q.cancel()

	if leftover := q.discardBacklog(); leftover > 0 {
		q.log.Warnw("msg", "publish queue discarded items enqueued during shutdown", "count", leftover)
	}
	q.log.Infow("msg", "publish queue stopped")
	return err
}

// Enqueue adds item to the queue. It tries a non-blocking push first, then
// waits up to enqueue_timeout, then logs backpressure and blocks until there
// is room or ctx is done.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	if q.stopped.Load() {
		return ErrStopped
	}

	env := envelope[T]{item: item}
	q.pending.Add(1)

	select {
	case q.items <- env:
		q.accepted()
		return nil
	default:
	}

	select {
	case q.items <- env:
		q.accepted()
		return nil
	case <-q.clock.After(q.cfg.EnqueueTimeout.AsDuration()):
	case <-ctx.Done():
		q.pending.Add(-1)
		return ctx.Err()
	}

	q.counters.observeEnqueueTimeout()
	depth, capacity := q.depth()
	if float64(depth) >= float64(capacity)*backpressureRatio {
		q.log.Warnw("msg", "publish queue overloaded, applying backpressure", "depth", depth, "capacity", capacity)
	}

	select {
	case q.items <- env:
		q.accepted()
		return nil
	case <-ctx.Done():
		q.pending.Add(-1)
		return ctx.Err()
	}
}

// Depth returns the number of queued items.
func (q *Queue[T]) Depth() int {
	return len(q.items)
}

// Reporter exposes the stats reporter.
func (q *Queue[T]) Reporter() *Reporter {
	return q.reporter
}

func (q *Queue[T]) accepted() {
	q.counters.observeEnqueue()
	metrics.QueueDepth.Set(float64(len(q.items)))
}

func (q *Queue[T]) depth() (int, int) {
	return len(q.items), cap(q.items)
}

func (q *Queue[T]) waitIdle(ctx context.Context, timeout time.Duration) bool {
	deadline := q.clock.After(timeout)
	poll := q.clock.NewTicker(drainPollInterval)
	defer poll.Stop()

	for {
		if q.pending.Load() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline:
			return false
		case <-poll.C():
		}
	}
}

func (q *Queue[T]) discardBacklog() int {
	n := 0
	for {
		select {
		case env := <-q.items:
			if env.stop {
				continue
			}
			q.pending.Add(-1)
			n++
		default:
			return n
		}
	}
}

func (q *Queue[T]) worker(id int) {
	defer q.workers.Done()

	for {
		first := <-q.items
		if first.stop {
			return
		}

		batch, stop := q.collect(first.item)
		metrics.QueueDepth.Set(float64(len(q.items)))
		q.publishWithRetries(q.ctx, id, batch)
		q.pending.Add(-int64(len(batch)))

		if stop {
			return
		}
	}
}

// collect keeps taking items until batch_max_size or batch_window since the
// first item. It reports whether a stop sentinel was consumed.
func (q *Queue[T]) collect(first T) ([]T, bool) {
	batch := make([]T, 1, q.cfg.BatchMaxSize)
	batch[0] = first
	window := q.clock.After(q.cfg.BatchWindow.AsDuration())

	for len(batch) < q.cfg.BatchMaxSize {
		select {
		case env := <-q.items:
			if env.stop {
				return batch, true
			}
			batch = append(batch, env.item)
		case <-window:
			return batch, false
		}
	}
	return batch, false
}

func (q *Queue[T]) publishWithRetries(ctx context.Context, worker int, batch []T) {
	if len(batch) == 0 {
		return
	}

	var lastErr error
	for attempt := 1; attempt <= q.cfg.MaxRetries; attempt++ {
		start := q.clock.Now()
		err := q.transport.PublishBatch(ctx, batch)
		took := q.clock.Now().Sub(start)
		if err == nil {
			q.counters.observePublish(len(batch), took)
			return
		}
		lastErr = err

		if errors.Is(err, eventbus.ErrBatchTooLarge) && len(batch) > 1 {
			mid := len(batch) / 2
			q.log.Warnw(
				"msg", "publish batch too large, splitting",
				"worker", worker,
				"batch_size", len(batch),
				"left", mid,
				"right", len(batch)-mid,
			)
			q.publishWithRetries(ctx, worker, batch[:mid])
			q.publishWithRetries(ctx, worker, batch[mid:])
			return
		}

		if attempt == q.cfg.MaxRetries {
			break
		}

		backoff := q.backoff(attempt)
		q.counters.observeRetry()
		q.log.Warnw(
			"msg", "publish batch failed, retrying",
			"worker", worker,
			"attempt", attempt,
			"batch_size", len(batch),
			"took", took,
			"backoff", backoff,
			"error", err,
		)
		if err := q.clock.Sleep(ctx, backoff); err != nil {
			lastErr = fmt.Errorf("%w (retry aborted: %v)", lastErr, err)
			break
		}
	}

	q.counters.observeFailure(len(batch))
	q.log.Errorw(
		"msg", "publish batch failed permanently",
		"worker", worker,
		"batch_size", len(batch),
		"error", lastErr,
	)
}

// backoff is base_backoff * 2^(attempt-1), saturating at the largest Duration.
func (q *Queue[T]) backoff(attempt int) time.Duration {
	base := q.cfg.BaseBackoff.AsDuration()
	shift := attempt - 1
	if shift >= 62 || base > math.MaxInt64>>shift {
		return math.MaxInt64
	}
	return base << shift
}
