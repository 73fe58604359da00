package batcher

import (
	"context"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/semaphore"
)

// ProcessFunc handles one flushed batch. Errors are logged, never propagated.
type ProcessFunc[T any] func(ctx context.Context, items []T) error

type Config struct {
	Name string
	// Size triggers an immediate flush once reached.
	Size int
	// Interval flushes whatever is buffered, regardless of size.
	Interval time.Duration
	// MaxInFlight bounds the number of batches processed concurrently.
	MaxInFlight int64
}

// Batcher accumulates items and hands them to a ProcessFunc in batches.
// The buffer is swapped under the lock and processed outside it.
type Batcher[T any] struct {
	name     string
	size     int
	interval time.Duration
	process  ProcessFunc[T]
	sem      *semaphore.Weighted
	log      *log.Helper

	mu  sync.Mutex
	buf []T

	processCtx context.Context
	cancel     context.CancelFunc
	loop       sync.WaitGroup
	inflight   sync.WaitGroup
}

// New creates a batcher. Start must be called for the periodic flush to run.
func New[T any](cfg Config, process ProcessFunc[T], logger log.Logger) *Batcher[T] {
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Batcher[T]{
		name:       cfg.Name,
		size:       cfg.Size,
		interval:   cfg.Interval,
		process:    process,
		sem:        semaphore.NewWeighted(maxInFlight),
		log:        log.NewHelper(log.With(logger, "module", "batcher", "batcher", cfg.Name)),
		buf:        make([]T, 0, cfg.Size),
		processCtx: context.Background(),
	}
}

// Start launches the periodic flusher.
func (b *Batcher[T]) Start(ctx context.Context) {
	var runCtx context.Context
	runCtx, b.cancel = context.WithCancel(ctx)
	b.processCtx = context.WithoutCancel(ctx)

	b.loop.Add(1)
	go b.run(runCtx)
	b.log.Infow("msg", "batcher started", "size", b.size, "interval", b.interval)
}

// Stop halts the periodic flusher, flushes the remainder and waits for all
// in-flight batches, or until ctx is done.
func (b *Batcher[T]) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}
	b.loop.Wait()

	b.Flush()

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Infow("msg", "batcher stopped")
		return nil
	case <-ctx.Done():
		b.log.Warnw("msg", "batcher stopped with batches in flight", "error", ctx.Err())
		return ctx.Err()
	}
}

// Add appends item and triggers an asynchronous flush when the batch is full.
// It blocks while MaxInFlight batches are already being processed.
func (b *Batcher[T]) Add(item T) {
	b.mu.Lock()
	b.buf = append(b.buf, item)
	var batch []T
	if len(b.buf) >= b.size {
		batch = b.swap()
	}
	b.mu.Unlock()

	if batch != nil {
		b.dispatch(batch)
	}
}

// Flush processes everything buffered so far, asynchronously.
func (b *Batcher[T]) Flush() {
	b.mu.Lock()
	batch := b.swap()
	b.mu.Unlock()

	if len(batch) > 0 {
		b.dispatch(batch)
	}
}

// Len returns the number of buffered items.
func (b *Batcher[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Wait blocks until every dispatched batch has been processed.
func (b *Batcher[T]) Wait() {
	b.inflight.Wait()
}

// swap must be called with mu held.
func (b *Batcher[T]) swap() []T {
	if len(b.buf) == 0 {
		return nil
	}
	batch := b.buf
	b.buf = make([]T, 0, b.size)
	return batch
}

func (b *Batcher[T]) dispatch(batch []T) {
	b.inflight.Add(1)
	// processCtx is never canceled, Acquire only waits for a free slot.
	_ = b.sem.Acquire(b.processCtx, 1)

	go func() {
		defer b.inflight.Done()
		defer b.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				b.log.Errorw("msg", "batch processing panicked", "size", len(batch), "panic", r)
			}
		}()

		start := time.Now()
		if err := b.process(b.processCtx, batch); err != nil {
			b.log.Errorw("msg", "batch processing failed", "size", len(batch), "error", err)
			return
		}
		b.log.Debugw("msg", "batch processed", "size", len(batch), "took", time.Since(start))
	}()
}

func (b *Batcher[T]) run(ctx context.Context) {
	defer b.loop.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}
