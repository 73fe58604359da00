package publishqueue

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// Reporter logs windowed queue statistics every interval.
type Reporter struct {
	counters *counters
	depth    func() (depth, capacity int)
	clock    Clock
	interval time.Duration
	log      *log.Helper

	windowStart time.Time
	lastDepth   int
}

func newReporter(c *counters, depth func() (int, int), clock Clock, interval time.Duration, logger *log.Helper) *Reporter {
	return &Reporter{
		counters:    c,
		depth:       depth,
		clock:       clock,
		interval:    interval,
		log:         logger,
		windowStart: clock.Now(),
	}
}

// Run reports until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			r.Report()
		}
	}
}

// Report closes the current window, logs it and returns it.
func (r *Reporter) Report() Snapshot {
	now := r.clock.Now()
	s := r.counters.drain()
	s.Window = now.Sub(r.windowStart)
	s.Depth, s.Capacity = r.depth()
	s.DepthGrowing = s.Depth > r.lastDepth
	if s.Window > 0 {
		s.Throughput = float64(s.Published) / s.Window.Seconds()
	}

	r.windowStart = now
	r.lastDepth = s.Depth

	r.log.Infow(
		"msg", "publish queue stats",
		"window", s.Window,
		"depth", s.Depth,
		"capacity", s.Capacity,
		"depth_growing", s.DepthGrowing,
		"enqueued", s.Enqueued,
		"enqueue_timeouts", s.EnqueueTimeouts,
		"published", s.Published,
		"publish_calls", s.PublishCalls,
		"throughput_per_sec", s.Throughput,
		"avg_batch_size", s.AvgBatchSize,
		"avg_publish_latency", s.AvgLatency,
		"max_publish_latency", s.MaxLatency,
		"retries", s.Retries,
		"failures", s.Failures,
		"dropped", s.Dropped,
	)
	return s
}
