package biz

import (
	"context"
	"errors"
	"testing"

	"go-shortener-pipeline/internal/conf"
	"go-shortener-pipeline/internal/domain"
	"go-shortener-pipeline/internal/domain/event"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type URLUsecaseTestSuite struct {
	suite.Suite
	ctx       context.Context
	repo      *mockURLRepo
	cache     *mockCache
	keys      *seqAllocator
	publisher *mockPublisher
	emitter   *mockEmitter
	cfg       *conf.URL
	sut       *URLUsecase
}

func TestURLUsecaseTestSuite(t *testing.T) {
	suite.Run(t, new(URLUsecaseTestSuite))
}

func (s *URLUsecaseTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = newMockRepo()
	s.cache = newMockCache()
	s.keys = &seqAllocator{keys: []string{"aaaaa", "bbbbb", "ccccc", "ddddd"}}
	s.publisher = &mockPublisher{}
	s.emitter = &mockEmitter{}
	s.cfg = &conf.URL{BaseURL: "https://sho.rt/", KeyLength: 5, SyncPersist: true}
	s.sut = NewURLUsecase(s.repo, s.cache, s.keys, s.publisher, s.emitter, s.cfg, log.DefaultLogger)
}

func (s *URLUsecaseTestSuite) create() *domain.URL {
	u, err := s.sut.Create(s.ctx, CreateURL{TargetURL: "https://example.com/a", UserID: uuid.NewString(), Name: " docs "})
	s.Require().NoError(err)
	return u
}

func (s *URLUsecaseTestSuite) TestCreate_PersistsAndEnqueues() {
	// Act
	u := s.create()

	// Assert
	s.Equal("aaaaa", u.Key().String())
	s.Equal("docs", u.Name())
	s.Contains(s.repo.urls, "aaaaa")
	s.Len(s.publisher.queued, 1)
	s.Equal(u, s.publisher.queued[0])
	s.Equal("https://sho.rt/r/aaaaa", s.sut.ShortURL(u))
}

func (s *URLUsecaseTestSuite) TestCreate_QueueOnly() {
	// Arrange
	s.cfg.SyncPersist = false

	// Act
	u := s.create()

	// Assert
	s.Empty(s.repo.urls)
	s.Len(s.publisher.queued, 1)
	s.Equal("aaaaa", u.Key().String())
}

func (s *URLUsecaseTestSuite) TestCreate_RedrawsKeyTakenInDatabase() {
	// Arrange
	s.repo.rejectFirst = 2

	// Act
	u := s.create()

	// Assert
	s.Equal("ccccc", u.Key().String())
}

func (s *URLUsecaseTestSuite) TestCreate_RedrawReleasesReservedKey() {
	// Arrange
	key, err := domain.NewKey("aaaaa")
	s.Require().NoError(err)
	target, err := domain.NewTargetURL("https://original.example/")
	s.Require().NoError(err)
	s.repo.urls["aaaaa"] = domain.NewURL(key, target, uuid.New(), "")
	s.keys.reserve = s.cache

	// Act
	u := s.create()

	// Assert
	s.Equal("bbbbb", u.Key().String())
	s.NotContains(s.cache.urls, "aaaaa")
	got, err := s.sut.Resolve(s.ctx, "aaaaa")
	s.Require().NoError(err)
	s.Equal("https://original.example/", got.TargetURL().String())
}

func (s *URLUsecaseTestSuite) TestCreate_EnqueueFailure() {
	tests := []struct {
		name        string
		syncPersist bool
		wantErr     bool
	}{
		{name: "persisted url still succeeds", syncPersist: true, wantErr: false},
		{name: "queue only fails", syncPersist: false, wantErr: true},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			// Arrange
			s.SetupTest()
			s.cfg.SyncPersist = tt.syncPersist
			s.publisher.err = errors.New("queue stopped")

			// Act
			_, err := s.sut.Create(s.ctx, CreateURL{TargetURL: "https://example.com", UserID: uuid.NewString()})

			// Assert
			if tt.wantErr {
				s.Error(err)
			} else {
				s.NoError(err)
			}
		})
	}
}

func (s *URLUsecaseTestSuite) TestCreate_InvalidInput() {
	tests := []struct {
		name    string
		in      CreateURL
		wantErr error
	}{
		{name: "bad url", in: CreateURL{TargetURL: "not a url", UserID: uuid.NewString()}, wantErr: domain.ErrInvalidURL},
		{name: "ftp scheme", in: CreateURL{TargetURL: "ftp://example.com", UserID: uuid.NewString()}, wantErr: domain.ErrInvalidURL},
		{name: "bad user", in: CreateURL{TargetURL: "https://example.com", UserID: "nope"}, wantErr: domain.ErrInvalidUserID},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.sut.Create(s.ctx, tt.in)

			s.ErrorIs(err, tt.wantErr)
		})
	}
	s.Empty(s.publisher.queued)
}

func (s *URLUsecaseTestSuite) TestCreate_AllocatorError() {
	// Arrange
	s.keys.err = domain.ErrKeyExhausted

	// Act
	_, err := s.sut.Create(s.ctx, CreateURL{TargetURL: "https://example.com", UserID: uuid.NewString()})

	// Assert
	s.ErrorIs(err, domain.ErrKeyExhausted)
}

func (s *URLUsecaseTestSuite) TestResolve_CacheMissPopulatesCacheAndEmitsClick() {
	// Arrange
	u := s.create()

	// Act
	got, err := s.sut.Resolve(s.ctx, "aaaaa")

	// Assert
	s.Require().NoError(err)
	s.Equal(u.TargetURL(), got.TargetURL())
	s.Contains(s.cache.urls, "aaaaa")
	s.Require().Len(s.emitter.events, 1)
	click, ok := s.emitter.events[0].(event.URLClicked)
	s.Require().True(ok)
	s.Equal("aaaaa", click.Key)
	s.NotEmpty(click.ID)
}

func (s *URLUsecaseTestSuite) TestResolve_CacheHitSkipsDatabase() {
	// Arrange
	s.cfg.SyncPersist = false
	u := s.create()
	s.Require().NoError(s.cache.Set(s.ctx, u))

	// Act
	_, err := s.sut.Resolve(s.ctx, "aaaaa")

	// Assert
	s.NoError(err)
	s.Zero(s.repo.getCalls)
}

func (s *URLUsecaseTestSuite) TestResolve_Errors() {
	// Arrange
	s.create()
	inactive := false
	_, err := s.sut.Update(s.ctx, "aaaaa", nil, &inactive)
	s.Require().NoError(err)

	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{name: "inactive", key: "aaaaa", wantErr: domain.ErrURLInactive},
		{name: "unknown", key: "zzzzz", wantErr: domain.ErrURLNotFound},
		{name: "malformed", key: "no!", wantErr: domain.ErrInvalidKey},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.sut.Resolve(s.ctx, tt.key)

			s.ErrorIs(err, tt.wantErr)
		})
	}
	s.Empty(s.emitter.events)
}

func (s *URLUsecaseTestSuite) TestUpdate_InvalidatesCache() {
	// Arrange
	s.create()
	_, err := s.sut.Resolve(s.ctx, "aaaaa")
	s.Require().NoError(err)
	name := "renamed"

	// Act
	u, err := s.sut.Update(s.ctx, "aaaaa", &name, nil)

	// Assert
	s.Require().NoError(err)
	s.Equal("renamed", u.Name())
	s.True(u.IsActive())
	s.NotContains(s.cache.urls, "aaaaa")
	s.Equal([]string{"aaaaa"}, s.cache.invalidated)
}

func (s *URLUsecaseTestSuite) TestDelete() {
	// Arrange
	s.create()

	// Act
	err := s.sut.Delete(s.ctx, "aaaaa")

	// Assert
	s.NoError(err)
	s.ErrorIs(s.sut.Delete(s.ctx, "aaaaa"), domain.ErrURLNotFound)
	_, err = s.sut.Stats(s.ctx, "aaaaa")
	s.ErrorIs(err, domain.ErrURLNotFound)
}

func (s *URLUsecaseTestSuite) TestListByUser() {
	// Arrange
	userID := uuid.NewString()
	for i := 0; i < 2; i++ {
		_, err := s.sut.Create(s.ctx, CreateURL{TargetURL: "https://example.com", UserID: userID})
		s.Require().NoError(err)
	}
	s.create()

	// Act
	urls, total, err := s.sut.ListByUser(s.ctx, userID, 1, 10)

	// Assert
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Len(urls, 2)

	_, _, err = s.sut.ListByUser(s.ctx, "bad", 1, 10)
	s.ErrorIs(err, domain.ErrInvalidUserID)
}
