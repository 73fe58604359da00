package data

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go-shortener-pipeline/internal/biz"
	"go-shortener-pipeline/internal/conf"
	"go-shortener-pipeline/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	urlCachePrefix     = "short:"
	defaultURLCacheTTL = 24 * time.Hour
)

// Compile-time interface checks
var (
	_ biz.URLCache = (*RedisURLCache)(nil)
	_ biz.URLCache = (*noopURLCache)(nil)
)

// RedisURLCache stores urls as JSON under short:{key}.
type RedisURLCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *log.Helper
}

// NewURLCache returns a no-op cache when redis is not configured.
func NewURLCache(data *Data, c *conf.URL, logger log.Logger) biz.URLCache {
	if data.rdb == nil {
		return &noopURLCache{}
	}
	ttl := c.CacheTTL.AsDuration()
	if ttl <= 0 {
		ttl = defaultURLCacheTTL
	}
	return &RedisURLCache{
		rdb: data.rdb,
		ttl: ttl,
		log: log.NewHelper(log.With(logger, "module", "data/cache")),
	}
}

// cachedURL is the serialization format for cached urls.
type cachedURL struct {
	ID          int64     `json:"id,omitempty"`
	Key         string    `json:"key"`
	TargetURL   string    `json:"target_url"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name,omitempty"`
	IsActive    bool      `json:"is_active"`
	ClicksCount int64     `json:"clicks_count"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsed    time.Time `json:"last_used"`
}

func cacheKey(key string) string {
	return urlCachePrefix + key
}

func marshalURL(u *domain.URL) ([]byte, error) {
	return json.Marshal(cachedURL{
		ID:          u.ID(),
		Key:         u.Key().String(),
		TargetURL:   u.TargetURL().String(),
		UserID:      u.UserID().String(),
		Name:        u.Name(),
		IsActive:    u.IsActive(),
		ClicksCount: u.ClicksCount(),
		CreatedAt:   u.CreatedAt(),
		LastUsed:    u.LastUsed(),
	})
}

func unmarshalURL(data []byte) (*domain.URL, error) {
	var c cachedURL
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	key, err := domain.NewKey(c.Key)
	if err != nil {
		return nil, err
	}
	target, err := domain.NewTargetURL(c.TargetURL)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return nil, domain.ErrInvalidUserID
	}
	return domain.ReconstructURL(c.ID, key, target, userID, c.Name, c.IsActive, c.ClicksCount, c.CreatedAt, c.LastUsed), nil
}

func (c *RedisURLCache) Get(ctx context.Context, key domain.Key) (*domain.URL, error) {
	data, err := c.rdb.Get(ctx, cacheKey(key.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		c.log.WithContext(ctx).Warnw("msg", "cache get failed", "key", key.String(), "error", err)
		return nil, nil
	}

	u, err := unmarshalURL(data)
	if err != nil {
		c.log.WithContext(ctx).Warnw("msg", "dropping unreadable cache entry", "key", key.String(), "error", err)
		_ = c.rdb.Del(ctx, cacheKey(key.String())).Err()
		return nil, nil
	}
	return u, nil
}

func (c *RedisURLCache) Set(ctx context.Context, u *domain.URL) error {
	data, err := marshalURL(u)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, cacheKey(u.Key().String()), data, c.ttl).Err(); err != nil {
		c.log.WithContext(ctx).Warnw("msg", "cache set failed", "key", u.Key().String(), "error", err)
		return err
	}
	return nil
}

func (c *RedisURLCache) Invalidate(ctx context.Context, key domain.Key) error {
	return c.rdb.Del(ctx, cacheKey(key.String())).Err()
}

// noopURLCache is used when redis is not configured.
type noopURLCache struct{}

func (noopURLCache) Get(context.Context, domain.Key) (*domain.URL, error) { return nil, nil }
func (noopURLCache) Set(context.Context, *domain.URL) error               { return nil }
func (noopURLCache) Invalidate(context.Context, domain.Key) error         { return nil }
