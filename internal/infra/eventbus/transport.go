package eventbus

import (
	"context"

	"go-shortener-pipeline/internal/domain"
	"go-shortener-pipeline/internal/domain/event"
)

// URLTransport publishes created urls to the new-urls topic. It is the
// transport of the outbound publish queue.
type URLTransport struct {
	bus *EventBus
}

func NewURLTransport(bus *EventBus) *URLTransport {
	return &URLTransport{bus: bus}
}

func (t *URLTransport) PublishBatch(ctx context.Context, urls []*domain.URL) error {
	events := make([]event.Event, len(urls))
	for i, u := range urls {
		events[i] = event.NewURLCreated(u)
	}
	return t.bus.PublishBatch(ctx, event.TopicNewURLs, events)
}
