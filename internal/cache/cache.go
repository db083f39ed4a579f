package cache

import (
	"context"
	"time"

	"cucibersih/backend/internal/domain"
)

// SubscriptionCache holds the current subscription snapshot per merchant so
// the auth middleware does not hit the store on every request. Entries are
// invalidated whenever billing changes a subscription.
type SubscriptionCache interface {
	Get(ctx context.Context, merchantID string) (*domain.Subscription, bool, error)
	Set(ctx context.Context, merchantID string, sub *domain.Subscription, ttl time.Duration) error
	Invalidate(ctx context.Context, merchantID string) error
}

type NoopSubscriptionCache struct{}

func (NoopSubscriptionCache) Get(_ context.Context, _ string) (*domain.Subscription, bool, error) {
	return nil, false, nil
}

func (NoopSubscriptionCache) Set(_ context.Context, _ string, _ *domain.Subscription, _ time.Duration) error {
	return nil
}

func (NoopSubscriptionCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
