package biz

import (
	"context"

	"go-shortener-pipeline/internal/domain"
	"go-shortener-pipeline/internal/domain/event"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(NewURLUsecase, NewURLIngestUsecase, NewClickUsecase)

// URLCache caches urls by key. A miss returns nil, nil.
type URLCache interface {
	Get(ctx context.Context, key domain.Key) (*domain.URL, error)
	Set(ctx context.Context, u *domain.URL) error
	Invalidate(ctx context.Context, key domain.Key) error
}

// KeyAllocator binds a fresh unique key to a url.
type KeyAllocator interface {
	Allocate(ctx context.Context, u *domain.URL) (*domain.URL, error)
}

// URLPublisher queues created urls for the new-urls topic.
type URLPublisher interface {
	Enqueue(ctx context.Context, u *domain.URL) error
}

// ClickEmitter publishes click events without blocking the caller.
type ClickEmitter interface {
	Emit(e event.Event) bool
}
