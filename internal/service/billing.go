package service

import (
	"context"
	"errors"

	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/store"
)

func (s *Service) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	return s.repo.ListPlans(ctx)
}

// CurrentSubscription returns the actor's subscription through the cached
// lookup, or nil when the merchant has never subscribed.
func (s *Service) CurrentSubscription(ctx context.Context) (*domain.Subscription, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := s.subs.CurrentSubscription(ctx, actor.MerchantID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return sub, err
}

func (s *Service) ListBillingInvoices(ctx context.Context) ([]domain.BillingInvoice, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBillingInvoices(ctx, actor.MerchantID)
}
