package service

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go-shortener-pipeline/internal/biz"
	"go-shortener-pipeline/internal/domain"
	"go-shortener-pipeline/pkg/problemdetails"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// Keeps (page-1)*page_size far from integer overflow.
	maxPage         = 100_000
)

type CreateURLRequest struct {
	TargetURL string `json:"target_url" validate:"required,max=2048"`
	UserID    string `json:"user_id" validate:"required,uuid"`
	Name      string `json:"name" validate:"max=255"`
}

type UpdateURLRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=255"`
	IsActive *bool   `json:"is_active"`
}

// URLResponse describes one url.
type URLResponse struct {
	Key         string    `json:"key"`
	ShortURL    string    `json:"short_url"`
	TargetURL   string    `json:"target_url"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name,omitempty"`
	IsActive    bool      `json:"is_active"`
	ClicksCount int64     `json:"clicks_count"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsed    time.Time `json:"last_used"`
}

type ListURLsResponse struct {
	URLs     []URLResponse `json:"urls"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// URLService serves the HTTP API.
type URLService struct {
	uc       *biz.URLUsecase
	validate *validator.Validate
	log      *log.Helper
}

func NewURLService(uc *biz.URLUsecase, logger log.Logger) *URLService {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})

	return &URLService{
		uc:       uc,
		validate: validate,
		log:      log.NewHelper(log.With(logger, "module", "service/url")),
	}
}

// RegisterRoutes mounts the API on r.
func (s *URLService) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/r/{key}", s.Redirect).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/v1/urls", s.CreateURL).Methods(http.MethodPost)
	r.HandleFunc("/v1/urls", s.ListURLs).Methods(http.MethodGet)
	r.HandleFunc("/v1/urls/{key}", s.GetURL).Methods(http.MethodGet)
	r.HandleFunc("/v1/urls/{key}", s.UpdateURL).Methods(http.MethodPatch)
	r.HandleFunc("/v1/urls/{key}", s.DeleteURL).Methods(http.MethodDelete)
}

// CreateURL handles POST /v1/urls.
func (s *URLService) CreateURL(w http.ResponseWriter, r *http.Request) {
	var req CreateURLRequest
	if !s.decode(w, r, &req) {
		return
	}

	u, err := s.uc.Create(r.Context(), biz.CreateURL{
		TargetURL: req.TargetURL,
		UserID:    req.UserID,
		Name:      req.Name,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.toResponse(u))
}

// Redirect handles GET /r/{key} with a 302 to the target.
func (s *URLService) Redirect(w http.ResponseWriter, r *http.Request) {
	u, err := s.uc.Resolve(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, u.TargetURL().String(), http.StatusFound)
}

// GetURL handles GET /v1/urls/{key}.
func (s *URLService) GetURL(w http.ResponseWriter, r *http.Request) {
	u, err := s.uc.Stats(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toResponse(u))
}

// UpdateURL handles PATCH /v1/urls/{key}.
func (s *URLService) UpdateURL(w http.ResponseWriter, r *http.Request) {
	var req UpdateURLRequest
	if !s.decode(w, r, &req) {
		return
	}

	u, err := s.uc.Update(r.Context(), mux.Vars(r)["key"], req.Name, req.IsActive)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toResponse(u))
}

// DeleteURL handles DELETE /v1/urls/{key}.
func (s *URLService) DeleteURL(w http.ResponseWriter, r *http.Request) {
	if err := s.uc.Delete(r.Context(), mux.Vars(r)["key"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListURLs handles GET /v1/urls?user_id=&page=&page_size=.
func (s *URLService) ListURLs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := min(queryInt(q.Get("page"), 1), maxPage)
	pageSize := min(queryInt(q.Get("page_size"), defaultPageSize), maxPageSize)

	urls, total, err := s.uc.ListByUser(r.Context(), q.Get("user_id"), page, pageSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ListURLsResponse{
		URLs:     lo.Map(urls, func(u *domain.URL, _ int) URLResponse { return s.toResponse(u) }),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

func (s *URLService) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		problemdetails.Write(w, problemdetails.New(
			http.StatusBadRequest,
			problemdetails.TypeInvalidRequest,
			"Invalid Request",
			"Request body must be valid JSON",
		))
		return false
	}

	if err := s.validate.Struct(v); err != nil {
		var fields []problemdetails.FieldError
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, problemdetails.FieldError{
					Field:   fe.Field(),
					Message: "failed on the '" + fe.Tag() + "' rule",
				})
			}
		}
		problemdetails.Write(w, problemdetails.NewValidation(fields))
		return false
	}
	return true
}

func (s *URLService) fail(w http.ResponseWriter, r *http.Request, err error) {
	e := toError(err)
	if e.Code >= http.StatusInternalServerError {
		s.log.WithContext(r.Context()).Errorw("msg", "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, err)
}

func (s *URLService) toResponse(u *domain.URL) URLResponse {
	return URLResponse{
		Key:         u.Key().String(),
		ShortURL:    s.uc.ShortURL(u),
		TargetURL:   u.TargetURL().String(),
		UserID:      u.UserID().String(),
		Name:        u.Name(),
		IsActive:    u.IsActive(),
		ClicksCount: u.ClicksCount(),
		CreatedAt:   u.CreatedAt(),
		LastUsed:    u.LastUsed(),
	}
}

func queryInt(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
