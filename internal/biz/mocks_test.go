package biz

import (
	"context"
	"sync"

	"go-shortener-pipeline/internal/domain"
	"go-shortener-pipeline/internal/domain/event"

	"github.com/google/uuid"
)

type mockURLRepo struct {
	mu          sync.Mutex
	urls        map[string]*domain.URL
	inbox       map[uuid.UUID]struct{}
	addErr      error
	getErr      error
	getCalls    int
	rejectFirst int
}

func newMockRepo() *mockURLRepo {
	return &mockURLRepo{
		urls:  make(map[string]*domain.URL),
		inbox: make(map[uuid.UUID]struct{}),
	}
}

func (m *mockURLRepo) AddBulk(_ context.Context, urls []*domain.URL) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return 0, m.addErr
	}
	n := 0
	for _, u := range urls {
		if m.rejectFirst > 0 {
			m.rejectFirst--
			continue
		}
		if _, ok := m.urls[u.Key().String()]; ok {
			continue
		}
		m.urls[u.Key().String()] = u
		n++
	}
	return n, nil
}

func (m *mockURLRepo) ApplyClickEvents(_ context.Context, events []domain.ClickEvent) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range events {
		if _, ok := m.inbox[e.EventID]; ok {
			continue
		}
		m.inbox[e.EventID] = struct{}{}
		n++
	}
	return n, nil
}

func (m *mockURLRepo) Get(_ context.Context, key domain.Key) (*domain.URL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, ok := m.urls[key.String()]
	if !ok {
		return nil, domain.ErrURLNotFound
	}
	return u, nil
}

func (m *mockURLRepo) Update(_ context.Context, u *domain.URL) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.urls[u.Key().String()]; !ok {
		return domain.ErrURLNotFound
	}
	m.urls[u.Key().String()] = u
	return nil
}

func (m *mockURLRepo) Delete(_ context.Context, key domain.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.urls[key.String()]; !ok {
		return domain.ErrURLNotFound
	}
	delete(m.urls, key.String())
	return nil
}

func (m *mockURLRepo) ListByUser(_ context.Context, userID uuid.UUID, _, _ int) ([]*domain.URL, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.URL
	for _, u := range m.urls {
		if u.UserID() == userID {
			out = append(out, u)
		}
	}
	return out, len(out), nil
}

type mockCache struct {
	urls        map[string]*domain.URL
	invalidated []string
}

func newMockCache() *mockCache {
	return &mockCache{urls: make(map[string]*domain.URL)}
}

func (c *mockCache) Get(_ context.Context, key domain.Key) (*domain.URL, error) {
	return c.urls[key.String()], nil
}

func (c *mockCache) Set(_ context.Context, u *domain.URL) error {
	c.urls[u.Key().String()] = u
	return nil
}

func (c *mockCache) Invalidate(_ context.Context, key domain.Key) error {
	delete(c.urls, key.String())
	c.invalidated = append(c.invalidated, key.String())
	return nil
}

// seqAllocator hands out keys in order. With reserve set it caches each
// keyed url, like a SETNX reservation does.
type seqAllocator struct {
	keys    []string
	next    int
	err     error
	reserve *mockCache
}

func (a *seqAllocator) Allocate(_ context.Context, u *domain.URL) (*domain.URL, error) {
	if a.err != nil {
		return nil, a.err
	}
	key, err := domain.NewKey(a.keys[a.next])
	if err != nil {
		return nil, err
	}
	a.next++
	keyed := u.WithKey(key)
	if a.reserve != nil {
		_ = a.reserve.Set(context.Background(), keyed)
	}
	return keyed, nil
}

type mockPublisher struct {
	queued []*domain.URL
	err    error
}

func (p *mockPublisher) Enqueue(_ context.Context, u *domain.URL) error {
	if p.err != nil {
		return p.err
	}
	p.queued = append(p.queued, u)
	return nil
}

type mockEmitter struct {
	events []event.Event
}

func (e *mockEmitter) Emit(evt event.Event) bool {
	e.events = append(e.events, evt)
	return true
}
