package eventbus

import (
	"github.com/google/wire"
)

// ProviderSet is eventbus providers.
var ProviderSet = wire.NewSet(
	NewLoggerAdapter,
	NewEventBus,
	NewURLTransport,
	NewEmitter,
	wire.Bind(new(EventPublisher), new(*EventBus)),
)
