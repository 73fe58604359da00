package server

import (
	"go-shortener-pipeline/internal/conf"
	"go-shortener-pipeline/internal/domain"
	"go-shortener-pipeline/internal/infra/eventbus"
	"go-shortener-pipeline/internal/infra/publishqueue"

	"github.com/go-kratos/kratos/v2/log"
)

// URLQueue batches created urls onto the new-urls topic.
type URLQueue = publishqueue.Queue[*domain.URL]

func NewURLQueue(c *conf.PublishQueue, t *eventbus.URLTransport, logger log.Logger) (*URLQueue, error) {
	return publishqueue.New[*domain.URL](c, t, logger)
}
