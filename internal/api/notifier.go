package api

import (
	"context"

	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/resourcecache"
)

// BrokerNotifier publishes CACHE_UPDATED to SSE subscribers.
type BrokerNotifier struct {
	publisher sse.Publisher
}

// NewBrokerNotifier returns a notifier backed by publisher.
func NewBrokerNotifier(publisher sse.Publisher) *BrokerNotifier {
	return &BrokerNotifier{publisher: publisher}
}

func (n *BrokerNotifier) NotifyUpdated(ctx context.Context, u resourcecache.Update) error {
	return n.publisher.Publish(ctx, sse.NewCacheUpdatedEvent(u.Version, u.At))
}
