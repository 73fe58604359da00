package server

import (
	"go-shortener-pipeline/internal/biz"
	"go-shortener-pipeline/internal/infra/eventbus"

	"github.com/google/wire"
)

// ConsumerSet builds the new-urls and update-urls consumers.
var ConsumerSet = wire.NewSet(
	NewURLConsumer,
	NewClickConsumer,
	wire.Bind(new(Subscriber), new(*eventbus.EventBus)),
)

// ProviderSet is server providers for the API process.
var ProviderSet = wire.NewSet(
	NewHTTPServer,
	NewGRPCServer,
	NewURLQueue,
	ConsumerSet,
	wire.Bind(new(biz.URLPublisher), new(*URLQueue)),
	wire.Bind(new(biz.ClickEmitter), new(*eventbus.Emitter)),
)

// ConsumerProviderSet is server providers for the consumer process.
var ConsumerProviderSet = wire.NewSet(
	NewAdminHTTPServer,
	ConsumerSet,
)
