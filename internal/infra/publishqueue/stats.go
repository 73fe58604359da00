package publishqueue

import (
	"sync/atomic"
	"time"

	"go-shortener-pipeline/internal/infra/metrics"
)

// counters accumulate over one reporting window.
type counters struct {
	enqueued        atomic.Int64
	enqueueTimeouts atomic.Int64
	publishCalls    atomic.Int64
	published       atomic.Int64
	retries         atomic.Int64
	failures        atomic.Int64
	dropped         atomic.Int64
	latencySum      atomic.Int64
	latencyMax      atomic.Int64
}

func (c *counters) observeEnqueue() {
	c.enqueued.Add(1)
}

func (c *counters) observeEnqueueTimeout() {
	c.enqueueTimeouts.Add(1)
	metrics.QueueEnqueueTimeouts.Inc()
}

func (c *counters) observePublish(items int, took time.Duration) {
	c.publishCalls.Add(1)
	c.published.Add(int64(items))
	c.latencySum.Add(int64(took))
	for {
		current := c.latencyMax.Load()
		if int64(took) <= current || c.latencyMax.CompareAndSwap(current, int64(took)) {
			break
		}
	}
	metrics.QueuePublished.Add(float64(items))
	metrics.QueuePublishDuration.Observe(took.Seconds())
}

func (c *counters) observeRetry() {
	c.retries.Add(1)
	metrics.QueueRetries.Inc()
}

func (c *counters) observeFailure(items int) {
	c.failures.Add(1)
	c.dropped.Add(int64(items))
	metrics.QueueDropped.Add(float64(items))
}

// Snapshot is one window of queue statistics.
type Snapshot struct {
	Window          time.Duration
	Depth           int
	Capacity        int
	DepthGrowing    bool
	Enqueued        int64
	EnqueueTimeouts int64
	PublishCalls    int64
	Published       int64
	Retries         int64
	Failures        int64
	Dropped         int64
	Throughput      float64
	AvgBatchSize    float64
	AvgLatency      time.Duration
	MaxLatency      time.Duration
}

// drain reads and resets every counter.
func (c *counters) drain() Snapshot {
	s := Snapshot{
		Enqueued:        c.enqueued.Swap(0),
		EnqueueTimeouts: c.enqueueTimeouts.Swap(0),
		PublishCalls:    c.publishCalls.Swap(0),
		Published:       c.published.Swap(0),
		Retries:         c.retries.Swap(0),
		Failures:        c.failures.Swap(0),
		Dropped:         c.dropped.Swap(0),
		MaxLatency:      time.Duration(c.latencyMax.Swap(0)),
	}
	sum := time.Duration(c.latencySum.Swap(0))
	if s.PublishCalls > 0 {
		s.AvgLatency = sum / time.Duration(s.PublishCalls)
		s.AvgBatchSize = float64(s.Published) / float64(s.PublishCalls)
	}
	return s
}
