package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"go-shortener-pipeline/internal/biz"
	"go-shortener-pipeline/internal/conf"
	"go-shortener-pipeline/internal/data"
	"go-shortener-pipeline/internal/domain"
	"go-shortener-pipeline/internal/domain/event"
	"go-shortener-pipeline/internal/infra/publishqueue"
	"go-shortener-pipeline/pkg/problemdetails"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/suite"
)

var memdbSeq atomic.Int64

type recordingPublisher struct {
	mu   sync.Mutex
	urls []*domain.URL
	err  error
}

func (p *recordingPublisher) Enqueue(_ context.Context, u *domain.URL) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.urls = append(p.urls, u)
	return nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []event.Event
}

func (e *recordingEmitter) Emit(evt event.Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
	return true
}

func (e *recordingEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

type URLServiceTestSuite struct {
	suite.Suite
	router    *mux.Router
	publisher *recordingPublisher
	clicks    *recordingEmitter
	userID    string
}

func TestURLServiceTestSuite(t *testing.T) {
	suite.Run(t, new(URLServiceTestSuite))
}

func (s *URLServiceTestSuite) SetupTest() {
	d, cleanup, err := data.NewData(&conf.Data{Database: &conf.Database{
		Driver:  "sqlite3",
		Source:  fmt.Sprintf("file:service%d?mode=memory&cache=shared", memdbSeq.Add(1)),
		Migrate: true,
	}}, log.DefaultLogger)
	s.Require().NoError(err)
	s.T().Cleanup(cleanup)

	cfg := &conf.URL{BaseURL: "http://sho.rt", KeyLength: 7, SyncPersist: true}
	repo := data.NewURLRepo(d, log.DefaultLogger)
	s.publisher = &recordingPublisher{}
	s.clicks = &recordingEmitter{}
	uc := biz.NewURLUsecase(
		repo,
		data.NewURLCache(d, cfg, log.DefaultLogger),
		data.NewKeyAllocator(d, repo, cfg, log.DefaultLogger),
		s.publisher,
		s.clicks,
		cfg,
		log.DefaultLogger,
	)

	s.router = mux.NewRouter()
	NewURLService(uc, log.DefaultLogger).RegisterRoutes(s.router)
	s.userID = uuid.NewString()
}

func (s *URLServiceTestSuite) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *URLServiceTestSuite) create(target string) URLResponse {
	rec := s.do(http.MethodPost, "/v1/urls", fmt.Sprintf(`{"target_url":%q,"user_id":%q,"name":"docs"}`, target, s.userID))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var resp URLResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (s *URLServiceTestSuite) problem(rec *httptest.ResponseRecorder) problemdetails.ProblemDetail {
	s.Equal("application/problem+json", rec.Header().Get("Content-Type"))
	var p problemdetails.ProblemDetail
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func (s *URLServiceTestSuite) TestCreateURL() {
	// Act
	resp := s.create("https://example.com/docs")

	// Assert
	s.Len(resp.Key, 7)
	s.Equal("http://sho.rt/r/"+resp.Key, resp.ShortURL)
	s.Equal("https://example.com/docs", resp.TargetURL)
	s.Equal(s.userID, resp.UserID)
	s.Equal("docs", resp.Name)
	s.True(resp.IsActive)
	s.Len(s.publisher.urls, 1)
}

func (s *URLServiceTestSuite) TestCreateURL_Rejected() {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantType   string
	}{
		{name: "malformed json", body: `{`, wantStatus: http.StatusBadRequest, wantType: problemdetails.TypeInvalidRequest},
		{name: "missing target", body: `{"user_id":"` + uuid.NewString() + `"}`, wantStatus: http.StatusBadRequest, wantType: problemdetails.TypeValidationError},
		{name: "user id not a uuid", body: `{"target_url":"https://example.com","user_id":"bob"}`, wantStatus: http.StatusBadRequest, wantType: problemdetails.TypeValidationError},
		{name: "bad scheme", body: `{"target_url":"ftp://example.com","user_id":"` + uuid.NewString() + `"}`, wantStatus: http.StatusBadRequest, wantType: problemdetails.TypeInvalidURL},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			// Act
			rec := s.do(http.MethodPost, "/v1/urls", tt.body)

			// Assert
			s.Equal(tt.wantStatus, rec.Code)
			s.True(strings.HasSuffix(s.problem(rec).Type, tt.wantType), rec.Body.String())
		})
	}
}

func (s *URLServiceTestSuite) TestCreateURL_ValidationNamesJSONFields() {
	// Act
	rec := s.do(http.MethodPost, "/v1/urls", `{"user_id":"`+uuid.NewString()+`"}`)

	// Assert
	p := s.problem(rec)
	s.Require().Len(p.Errors, 1)
	s.Equal("target_url", p.Errors[0].Field)
}

func (s *URLServiceTestSuite) TestCreateURL_QueueStopped() {
	// Arrange
	s.publisher.err = publishqueue.ErrStopped

	// Act
	rec := s.do(http.MethodPost, "/v1/urls", fmt.Sprintf(`{"target_url":"https://example.com","user_id":%q}`, s.userID))

	// Assert
	// The row was persisted synchronously, so the request still succeeds.
	s.Equal(http.StatusCreated, rec.Code)
}

func (s *URLServiceTestSuite) TestRedirect() {
	// Arrange
	created := s.create("https://example.com/landing")

	// Act
	rec := s.do(http.MethodGet, "/r/"+created.Key, "")

	// Assert
	s.Equal(http.StatusFound, rec.Code)
	s.Equal("https://example.com/landing", rec.Header().Get("Location"))
	s.Equal(1, s.clicks.count())
}

func (s *URLServiceTestSuite) TestRedirect_Errors() {
	// Arrange
	created := s.create("https://example.com")
	rec := s.do(http.MethodPatch, "/v1/urls/"+created.Key, `{"is_active":false}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{name: "unknown key", key: "Zz99Zz9", wantStatus: http.StatusNotFound},
		{name: "malformed key", key: "no-dash", wantStatus: http.StatusNotFound},
		{name: "inactive", key: created.Key, wantStatus: http.StatusGone},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			// Act
			rec := s.do(http.MethodGet, "/r/"+tt.key, "")

			// Assert
			s.Equal(tt.wantStatus, rec.Code)
			s.Equal(tt.wantStatus, s.problem(rec).Status)
		})
	}
	s.Zero(s.clicks.count())
}

func (s *URLServiceTestSuite) TestGetURL() {
	// Arrange
	created := s.create("https://example.com")

	// Act
	rec := s.do(http.MethodGet, "/v1/urls/"+created.Key, "")

	// Assert
	s.Equal(http.StatusOK, rec.Code)
	var got URLResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal(created.Key, got.Key)
	s.Zero(got.ClicksCount)
}

func (s *URLServiceTestSuite) TestUpdateURL() {
	// Arrange
	created := s.create("https://example.com")

	// Act
	rec := s.do(http.MethodPatch, "/v1/urls/"+created.Key, `{"name":"renamed"}`)

	// Assert
	s.Equal(http.StatusOK, rec.Code)
	var got URLResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal("renamed", got.Name)
	s.True(got.IsActive)
}

func (s *URLServiceTestSuite) TestDeleteURL() {
	// Arrange
	created := s.create("https://example.com")

	// Act
	first := s.do(http.MethodDelete, "/v1/urls/"+created.Key, "")
	second := s.do(http.MethodDelete, "/v1/urls/"+created.Key, "")

	// Assert
	s.Equal(http.StatusNoContent, first.Code)
	s.Equal(http.StatusNotFound, second.Code)
}

func (s *URLServiceTestSuite) TestListURLs() {
	// Arrange
	for i := 0; i < 3; i++ {
		s.create(fmt.Sprintf("https://example.com/%d", i))
	}

	// Act
	rec := s.do(http.MethodGet, "/v1/urls?user_id="+s.userID+"&page=1&page_size=2", "")

	// Assert
	s.Equal(http.StatusOK, rec.Code)
	var got ListURLsResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal(3, got.Total)
	s.Len(got.URLs, 2)
	s.Equal(2, got.PageSize)
}

func (s *URLServiceTestSuite) TestListURLs_HugePageIsClamped() {
	// Arrange
	s.create("https://example.com/only")

	// Act
	rec := s.do(http.MethodGet, "/v1/urls?user_id="+s.userID+"&page=9223372036854775807&page_size=100", "")

	// Assert
	s.Equal(http.StatusOK, rec.Code)
	var got ListURLsResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal(1, got.Total)
	s.Empty(got.URLs)
	s.Equal(maxPage, got.Page)
}

func (s *URLServiceTestSuite) TestListURLs_InvalidUser() {
	// Act
	rec := s.do(http.MethodGet, "/v1/urls?user_id=nobody", "")

	// Assert
	s.Equal(http.StatusBadRequest, rec.Code)
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{raw: "", want: 5},
		{raw: "abc", want: 5},
		{raw: "0", want: 5},
		{raw: "-3", want: 5},
		{raw: "7", want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := queryInt(tt.raw, 5); got != tt.want {
				t.Errorf("queryInt(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}
