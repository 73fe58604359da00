package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"go-shortener-pipeline/internal/conf"
	"go-shortener-pipeline/internal/domain"
	"go-shortener-pipeline/internal/domain/event"
	"go-shortener-pipeline/internal/infra/eventbus"
	"go-shortener-pipeline/internal/infra/publishqueue"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowSink struct {
	mu     sync.Mutex
	delay  time.Duration
	urls   int
	calls  int
	clicks int
}

func (s *slowSink) PublishBatch(ctx context.Context, items []*domain.URL) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.urls += len(items)
	return nil
}

func (s *slowSink) Publish(ctx context.Context, _ event.Event) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks++
	return nil
}

func (s *slowSink) counts() (calls, urls, clicks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.urls, s.clicks
}

func newTestURL(t *testing.T, raw string) *domain.URL {
	t.Helper()
	key, err := domain.NewKey(raw)
	require.NoError(t, err)
	target, err := domain.NewTargetURL("https://example.com/" + raw)
	require.NoError(t, err)
	return domain.NewURL(key, target, uuid.New(), "")
}

func TestNewApp_StopDrainsQueueAndEmitter(t *testing.T) {
	// Arrange
	sink := &slowSink{delay: 10 * time.Millisecond}
	queue, err := publishqueue.New[*domain.URL](&conf.PublishQueue{
		MaxQueueSize:   100,
		WorkerCount:    1,
		EnqueueTimeout: conf.Duration(time.Second),
		MaxRetries:     3,
		BaseBackoff:    conf.Duration(10 * time.Millisecond),
		BatchMaxSize:   2,
		BatchWindow:    conf.Duration(5 * time.Millisecond),
		ReportInterval: conf.Duration(time.Hour),
	}, sink, log.DefaultLogger)
	require.NoError(t, err)
	emitter := eventbus.NewEmitter(&conf.Emitter{Workers: 1, Buffer: 100}, sink, log.DefaultLogger)
	hs := http.NewServer(http.Address("127.0.0.1:0"))

	app := newApp(log.DefaultLogger, &conf.Broker{Driver: "nats"}, hs, nil, queue, emitter, nil, nil)

	runErr := make(chan error, 1)
	go func() { runErr <- app.Run() }()

	for i := 0; i < 20; i++ {
		require.NoError(t, queue.Enqueue(context.Background(), newTestURL(t, "key"+string(rune('a'+i))+"xyz")))
	}
	for i := 0; i < 10; i++ {
		require.True(t, emitter.Emit(event.NewURLClicked(domain.NewClickEvent("keyaxyz"))))
	}
	require.Eventually(t, func() bool {
		calls, _, _ := sink.counts()
		return calls > 0
	}, 2*time.Second, time.Millisecond)

	// Act
	require.NoError(t, app.Stop())

	// Assert
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(drainTimeout):
		t.Fatal("app did not stop")
	}
	_, urls, clicks := sink.counts()
	assert.Equal(t, 20, urls)
	assert.Equal(t, 10, clicks)
}
