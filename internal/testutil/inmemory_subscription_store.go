package testutil

import (
	"context"
	"sync"

	"github.com/meterline/meterline/internal/domain/subscription"
	ierr "github.com/meterline/meterline/internal/errors"
)

// InMemorySubscriptionResolver implements subscription.Resolver over a map.
type InMemorySubscriptionResolver struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription.Subscription
}

func NewInMemorySubscriptionResolver() *InMemorySubscriptionResolver {
	return &InMemorySubscriptionResolver{
		subscriptions: make(map[string]*subscription.Subscription),
	}
}

func (r *InMemorySubscriptionResolver) Add(sub *subscription.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions[sub.ID] = sub
}

func (r *InMemorySubscriptionResolver) Resolve(ctx context.Context, id string) (*subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subscriptions[id]
	if !ok {
		return nil, ierr.NewError("subscription not found").
			WithHint("Unknown subscription").
			WithReportableDetails(map[string]any{"subscription_id": id}).
			Mark(ierr.ErrNotFound)
	}
	return sub, nil
}

var _ subscription.Resolver = (*InMemorySubscriptionResolver)(nil)
