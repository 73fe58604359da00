package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go-shortener-pipeline/internal/conf"
	"go-shortener-pipeline/internal/domain"
	"go-shortener-pipeline/internal/domain/event"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

const persistAttempts = 3

// CreateURL is the input of URLUsecase.Create.
type CreateURL struct {
	TargetURL string
	UserID    string
	Name      string
}

// URLUsecase owns the request-path operations: create, resolve and manage.
type URLUsecase struct {
	repo      domain.URLRepository
	cache     URLCache
	keys      KeyAllocator
	publisher URLPublisher
	clicks    ClickEmitter
	cfg       *conf.URL
	log       *log.Helper
}

func NewURLUsecase(
	repo domain.URLRepository,
	cache URLCache,
	keys KeyAllocator,
	publisher URLPublisher,
	clicks ClickEmitter,
	cfg *conf.URL,
	logger log.Logger,
) *URLUsecase {
	return &URLUsecase{
		repo:      repo,
		cache:     cache,
		keys:      keys,
		publisher: publisher,
		clicks:    clicks,
		cfg:       cfg,
		log:       log.NewHelper(log.With(logger, "module", "biz/url")),
	}
}

// Create allocates a key for the target and hands the url to the publish
// queue. With sync_persist the row is inserted first, so the url survives a
// lost publish.
func (uc *URLUsecase) Create(ctx context.Context, in CreateURL) (*domain.URL, error) {
	target, err := domain.NewTargetURL(in.TargetURL)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", in.UserID, domain.ErrInvalidUserID)
	}

	u, err := uc.allocate(ctx, domain.NewURL(domain.Key{}, target, userID, strings.TrimSpace(in.Name)))
	if err != nil {
		return nil, err
	}

	if err := uc.publisher.Enqueue(ctx, u); err != nil {
		if !uc.cfg.SyncPersist {
			return nil, fmt.Errorf("enqueue url: %w", err)
		}
		uc.log.WithContext(ctx).Warnw("msg", "url persisted but not published", "key", u.Key().String(), "error", err)
	}

	uc.log.WithContext(ctx).Infow("msg", "url created", "key", u.Key().String(), "user_id", userID.String())
	return u, nil
}

// allocate keys u and, with sync_persist, inserts it. A key already taken in
// the database is released from the cache and drawn again.
func (uc *URLUsecase) allocate(ctx context.Context, u *domain.URL) (*domain.URL, error) {
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		keyed, err := uc.keys.Allocate(ctx, u)
		if err != nil {
			return nil, err
		}
		if !uc.cfg.SyncPersist {
			return keyed, nil
		}

		n, err := uc.repo.AddBulk(ctx, []*domain.URL{keyed})
		if err != nil {
			return nil, fmt.Errorf("persist url: %w", err)
		}
		if n == 1 {
			return keyed, nil
		}
		uc.log.WithContext(ctx).Warnw("msg", "allocated key already stored", "key", keyed.Key().String(), "attempt", attempt)
		// A reserving allocator may have cached keyed under the stored key.
		uc.invalidate(ctx, keyed.Key())
	}
	return nil, domain.ErrKeyExhausted
}

// Resolve returns the target of an active url and emits a click event.
func (uc *URLUsecase) Resolve(ctx context.Context, rawKey string) (*domain.URL, error) {
	key, err := domain.NewKey(rawKey)
	if err != nil {
		return nil, err
	}

	u, err := uc.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := u.CanRedirect(); err != nil {
		return nil, err
	}

	uc.clicks.Emit(event.NewURLClicked(domain.NewClickEvent(key.String())))
	return u, nil
}

// lookup reads through the cache.
func (uc *URLUsecase) lookup(ctx context.Context, key domain.Key) (*domain.URL, error) {
	if cached, err := uc.cache.Get(ctx, key); err == nil && cached != nil {
		return cached, nil
	}

	u, err := uc.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = uc.cache.Set(ctx, u)
	return u, nil
}

// Stats reads the url from the database, bypassing the cache, so counters
// are current.
func (uc *URLUsecase) Stats(ctx context.Context, rawKey string) (*domain.URL, error) {
	key, err := domain.NewKey(rawKey)
	if err != nil {
		return nil, err
	}
	return uc.repo.Get(ctx, key)
}

// Update changes name and is_active. Nil leaves a field unchanged.
func (uc *URLUsecase) Update(ctx context.Context, rawKey string, name *string, isActive *bool) (*domain.URL, error) {
	key, err := domain.NewKey(rawKey)
	if err != nil {
		return nil, err
	}

	u, err := uc.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	u.Update(name, isActive)
	if err := uc.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	uc.invalidate(ctx, key)
	return u, nil
}

func (uc *URLUsecase) Delete(ctx context.Context, rawKey string) error {
	key, err := domain.NewKey(rawKey)
	if err != nil {
		return err
	}
	if err := uc.repo.Delete(ctx, key); err != nil {
		return err
	}
	uc.invalidate(ctx, key)
	return nil
}

func (uc *URLUsecase) ListByUser(ctx context.Context, rawUserID string, page, pageSize int) ([]*domain.URL, int, error) {
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return nil, 0, fmt.Errorf("%q: %w", rawUserID, domain.ErrInvalidUserID)
	}
	return uc.repo.ListByUser(ctx, userID, page, pageSize)
}

// ShortURL is the public redirect address of u.
func (uc *URLUsecase) ShortURL(u *domain.URL) string {
	return strings.TrimRight(uc.cfg.BaseURL, "/") + "/r/" + u.Key().String()
}

func (uc *URLUsecase) invalidate(ctx context.Context, key domain.Key) {
	if err := uc.cache.Invalidate(ctx, key); err != nil && !errors.Is(err, context.Canceled) {
		uc.log.WithContext(ctx).Warnw("msg", "cache invalidation failed", "key", key.String(), "error", err)
	}
}
