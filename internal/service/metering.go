package service

import (
	"context"

	"github.com/meterline/meterline/internal/domain/subscription"
	"github.com/meterline/meterline/internal/domain/usage"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/logger"
	"github.com/meterline/meterline/internal/types"
)

// UsageService is the caller-facing surface of the ledger. It resolves the
// usage group and subscription behind each request and dispatches to the
// group's usage type variant.
type UsageService interface {
	RegisterUsage(ctx context.Context, groupName, subscriptionID string, quantity, start int64, end *int64) error
	GetCurrentUsage(ctx context.Context, groupName, subscriptionID string, cycle *types.BillingCycle) (int64, error)
	GetCharges(ctx context.Context, groupName, subscriptionID string, cycle types.BillingCycle) ([]usage.Charge, error)
	IsComplete(ctx context.Context, groupName, subscriptionID string, cycle types.BillingCycle) (bool, error)

	// NotifySubscriptionChange runs every group's subscription-change hook
	// for the given subscription.
	NotifySubscriptionChange(ctx context.Context, subscriptionID string) error
}

type ServiceParams struct {
	Logger       *logger.Logger
	Repo         usage.Repository
	Groups       []types.UsageGroup
	Resolver     subscription.Resolver
	TypeRegistry *subscription.TypeRegistry
	FreeUsage    subscription.FreeUsageProvider
	InitialUsage subscription.InitialUsageProvider
	Now          func() int64
	Locks        *LockSet
}

type usageService struct {
	ServiceParams
	groups map[string]types.UsageGroup
}

func NewUsageService(params ServiceParams) UsageService {
	groups := make(map[string]types.UsageGroup, len(params.Groups))
	for _, g := range params.Groups {
		groups[g.Name] = g
	}
	return &usageService{
		ServiceParams: params,
		groups:        groups,
	}
}

func (s *usageService) RegisterUsage(ctx context.Context, groupName, subscriptionID string, quantity, start int64, end *int64) error {
	ut, err := s.usageTypeFor(ctx, groupName, subscriptionID)
	if err != nil {
		return err
	}
	return ut.AddUsage(ctx, quantity, start, end)
}

func (s *usageService) GetCurrentUsage(ctx context.Context, groupName, subscriptionID string, cycle *types.BillingCycle) (int64, error) {
	ut, err := s.usageTypeFor(ctx, groupName, subscriptionID)
	if err != nil {
		return 0, err
	}
	return ut.CurrentUsage(ctx, cycle)
}

func (s *usageService) GetCharges(ctx context.Context, groupName, subscriptionID string, cycle types.BillingCycle) ([]usage.Charge, error) {
	ut, err := s.usageTypeFor(ctx, groupName, subscriptionID)
	if err != nil {
		return nil, err
	}
	return ut.GetCharges(ctx, cycle)
}

func (s *usageService) IsComplete(ctx context.Context, groupName, subscriptionID string, cycle types.BillingCycle) (bool, error) {
	ut, err := s.usageTypeFor(ctx, groupName, subscriptionID)
	if err != nil {
		return false, err
	}
	return ut.IsComplete(ctx, cycle)
}

func (s *usageService) NotifySubscriptionChange(ctx context.Context, subscriptionID string) error {
	for name := range s.groups {
		ut, err := s.usageTypeFor(ctx, name, subscriptionID)
		if err != nil {
			return err
		}
		if err := ut.OnSubscriptionChange(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *usageService) usageTypeFor(ctx context.Context, groupName, subscriptionID string) (UsageType, error) {
	group, ok := s.groups[groupName]
	if !ok {
		return nil, ierr.NewError("unknown usage group").
			WithHint("No usage group with this name is configured").
			WithReportableDetails(map[string]any{"group_name": groupName}).
			Mark(ierr.ErrNotFound)
	}

	sub, err := s.Resolver.Resolve(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	subType, err := s.TypeRegistry.Get(sub.TypeID)
	if err != nil {
		return nil, err
	}

	return NewUsageType(UsageTypeParams{
		Group:            group,
		Subscription:     sub,
		SubscriptionType: subType,
		Repo:             s.Repo,
		FreeUsage:        s.FreeUsage,
		InitialUsage:     s.InitialUsage,
		Logger:           s.Logger,
		Now:              s.Now,
		Locks:            s.Locks,
	})
}
