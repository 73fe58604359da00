package server

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go-shortener-pipeline/internal/biz"
	"go-shortener-pipeline/internal/conf"
	"go-shortener-pipeline/internal/data"
	"go-shortener-pipeline/internal/domain"
	"go-shortener-pipeline/internal/domain/event"
	"go-shortener-pipeline/internal/infra/eventbus"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

var memdbSeq atomic.Int64

// PipelineTestSuite runs both halves of the pipeline against the in-process
// bus and an in-memory database.
type PipelineTestSuite struct {
	suite.Suite
	ctx     context.Context
	repo    domain.URLRepository
	bus     *eventbus.EventBus
	queue   *URLQueue
	emitter *eventbus.Emitter
	urls    *Consumer[*domain.URL]
	hits    *Consumer[domain.ClickEvent]
	uc      *biz.URLUsecase
}

func TestPipelineTestSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}

func (s *PipelineTestSuite) SetupTest() {
	s.ctx = context.Background()
	logger := log.DefaultLogger

	d, cleanup, err := data.NewData(&conf.Data{Database: &conf.Database{
		Driver:  "sqlite3",
		Source:  fmt.Sprintf("file:pipeline%d?mode=memory&cache=shared", memdbSeq.Add(1)),
		Migrate: true,
	}}, logger)
	s.Require().NoError(err)
	s.T().Cleanup(cleanup)
	s.repo = data.NewURLRepo(d, logger)

	s.bus = eventbus.NewGoChannelBus(eventbus.NewLoggerAdapter(logger))
	s.T().Cleanup(func() { _ = s.bus.Close() })

	s.queue, err = NewURLQueue(&conf.PublishQueue{
		MaxQueueSize:   100,
		WorkerCount:    2,
		EnqueueTimeout: conf.Duration(100 * time.Millisecond),
		MaxRetries:     3,
		BaseBackoff:    conf.Duration(10 * time.Millisecond),
		BatchMaxSize:   10,
		BatchWindow:    conf.Duration(10 * time.Millisecond),
		ReportInterval: conf.Duration(time.Hour),
	}, eventbus.NewURLTransport(s.bus), logger)
	s.Require().NoError(err)
	s.emitter = eventbus.NewEmitter(&conf.Emitter{Workers: 2, Buffer: 100}, s.bus, logger)

	consumers := &conf.Consumers{
		NewURLs: &conf.Consumer{Group: "ingest", BatchSize: 5, BatchInterval: conf.Duration(20 * time.Millisecond), MaxInFlight: 3},
		Clicks:  &conf.Consumer{Group: "clicks", BatchSize: 5, BatchInterval: conf.Duration(20 * time.Millisecond), MaxInFlight: 3},
	}
	s.urls = NewURLConsumer(consumers, s.bus, biz.NewURLIngestUsecase(s.repo, logger), logger)
	s.hits = NewClickConsumer(consumers, s.bus, biz.NewClickUsecase(s.repo, logger), logger)

	urlCfg := &conf.URL{BaseURL: "http://sho.rt", KeyLength: 6}
	s.uc = biz.NewURLUsecase(
		s.repo,
		data.NewURLCache(d, urlCfg, logger),
		data.NewKeyAllocator(d, s.repo, urlCfg, logger),
		s.queue,
		s.emitter,
		urlCfg,
		logger,
	)

	s.Require().NoError(s.urls.Start(s.ctx))
	s.Require().NoError(s.hits.Start(s.ctx))
	s.Require().NoError(s.queue.Start(s.ctx))
	s.Require().NoError(s.emitter.Start(s.ctx))
}

func (s *PipelineTestSuite) TearDownTest() {
	s.NoError(s.queue.Stop(s.ctx))
	s.NoError(s.emitter.Stop(s.ctx))
	s.NoError(s.urls.Stop(s.ctx))
	s.NoError(s.hits.Stop(s.ctx))
}

func (s *PipelineTestSuite) stored(key domain.Key) func() bool {
	return func() bool {
		_, err := s.repo.Get(s.ctx, key)
		return err == nil
	}
}

func (s *PipelineTestSuite) TestCreatedURLsReachTheDatabase() {
	// Arrange
	userID := uuid.NewString()
	keys := make([]domain.Key, 0, 12)

	// Act
	for i := 0; i < 12; i++ {
		u, err := s.uc.Create(s.ctx, biz.CreateURL{TargetURL: fmt.Sprintf("https://example.com/%d", i), UserID: userID})
		s.Require().NoError(err)
		keys = append(keys, u.Key())
	}

	// Assert
	for _, key := range keys {
		s.Eventually(s.stored(key), 2*time.Second, 10*time.Millisecond)
	}
	_, total, err := s.uc.ListByUser(s.ctx, userID, 1, 50)
	s.Require().NoError(err)
	s.Equal(12, total)
}

func (s *PipelineTestSuite) TestRedirectsAreCounted() {
	// Arrange
	u, err := s.uc.Create(s.ctx, biz.CreateURL{TargetURL: "https://example.com", UserID: uuid.NewString()})
	s.Require().NoError(err)
	s.Require().Eventually(s.stored(u.Key()), 2*time.Second, 10*time.Millisecond)

	// Act
	for i := 0; i < 7; i++ {
		_, err := s.uc.Resolve(s.ctx, u.Key().String())
		s.Require().NoError(err)
	}

	// Assert
	s.Eventually(func() bool {
		got, err := s.uc.Stats(s.ctx, u.Key().String())
		return err == nil && got.ClicksCount() == 7
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *PipelineTestSuite) TestRepublishedClickIsCountedOnce() {
	// Arrange
	u, err := s.uc.Create(s.ctx, biz.CreateURL{TargetURL: "https://example.com", UserID: uuid.NewString()})
	s.Require().NoError(err)
	s.Require().Eventually(s.stored(u.Key()), 2*time.Second, 10*time.Millisecond)
	click := event.NewURLClicked(domain.NewClickEvent(u.Key().String()))

	// Act
	s.Require().NoError(s.bus.PublishBatch(s.ctx, event.TopicURLClicks, []event.Event{click, click, click}))

	// Assert
	s.Eventually(func() bool {
		got, err := s.uc.Stats(s.ctx, u.Key().String())
		return err == nil && got.ClicksCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	s.Never(func() bool {
		got, err := s.uc.Stats(s.ctx, u.Key().String())
		return err == nil && got.ClicksCount() > 1
	}, 100*time.Millisecond, 10*time.Millisecond)
}
