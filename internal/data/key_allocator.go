package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-shortener-pipeline/internal/biz"
	"go-shortener-pipeline/internal/conf"
	"go-shortener-pipeline/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// MaxKeyAttempts bounds random key draws per allocation.
const MaxKeyAttempts = 50

// Compile-time interface checks
var (
	_ biz.KeyAllocator = (*redisKeyAllocator)(nil)
	_ biz.KeyAllocator = (*repoKeyAllocator)(nil)
)

// NewKeyAllocator reserves keys in redis with SETNX when redis is
// configured, and probes the database otherwise.
func NewKeyAllocator(data *Data, repo domain.URLRepository, c *conf.URL, logger log.Logger) biz.KeyAllocator {
	helper := log.NewHelper(log.With(logger, "module", "data/keys"))
	length := c.KeyLength
	if length == 0 {
		length = domain.DefaultKeyLength
	}
	if data.rdb == nil {
		helper.Warn("redis not configured, allocating keys by database lookup")
		return &repoKeyAllocator{repo: repo, length: length}
	}
	ttl := c.CacheTTL.AsDuration()
	if ttl <= 0 {
		ttl = defaultURLCacheTTL
	}
	return &redisKeyAllocator{rdb: data.rdb, length: length, ttl: ttl, log: helper}
}

// redisKeyAllocator stores the url under short:{key} with SETNX. The
// reservation doubles as the redirect cache entry.
type redisKeyAllocator struct {
	rdb    *redis.Client
	length int
	ttl    time.Duration
	log    *log.Helper
}

func (a *redisKeyAllocator) Allocate(ctx context.Context, u *domain.URL) (*domain.URL, error) {
	for attempt := 1; attempt <= MaxKeyAttempts; attempt++ {
		key, err := domain.GenerateKey(a.length)
		if err != nil {
			return nil, err
		}
		keyed := u.WithKey(key)

		payload, err := marshalURL(keyed)
		if err != nil {
			return nil, err
		}
		ok, err := a.rdb.SetNX(ctx, cacheKey(key.String()), payload, a.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("reserve key: %w", err)
		}
		if ok {
			return keyed, nil
		}
		a.log.WithContext(ctx).Debugw("msg", "key collision", "key", key.String(), "attempt", attempt)
	}
	return nil, domain.ErrKeyExhausted
}

type repoKeyAllocator struct {
	repo   domain.URLRepository
	length int
}

func (a *repoKeyAllocator) Allocate(ctx context.Context, u *domain.URL) (*domain.URL, error) {
	for attempt := 1; attempt <= MaxKeyAttempts; attempt++ {
		key, err := domain.GenerateKey(a.length)
		if err != nil {
			return nil, err
		}
		_, err = a.repo.Get(ctx, key)
		if errors.Is(err, domain.ErrURLNotFound) {
			return u.WithKey(key), nil
		}
		if err != nil {
			return nil, err
		}
	}
	return nil, domain.ErrKeyExhausted
}
