package service

import (
	"context"
	"sync"
	"time"

	"github.com/meterline/meterline/internal/domain/subscription"
	"github.com/meterline/meterline/internal/domain/usage"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/logger"
	"github.com/meterline/meterline/internal/types"
)

// UsageType is the operation surface of a usage group bound to one
// subscription. Counter and Gauge are the two variants.
type UsageType interface {
	Kind() types.UsageTypeKind

	// AddUsage registers a quantity over [start, end]. A nil end means the
	// usage is open-ended and still accruing. Calls for the same group and
	// subscription are serialized internally.
	AddUsage(ctx context.Context, quantity, start int64, end *int64) error

	// CurrentUsage reports the usage level for the cycle. Counter sums the
	// cycle's records and requires a cycle; Gauge returns the most recent
	// level and accepts a nil cycle.
	CurrentUsage(ctx context.Context, cycle *types.BillingCycle) (int64, error)

	// IsComplete reports whether the cycle has enough data to bill.
	IsComplete(ctx context.Context, cycle types.BillingCycle) (bool, error)

	// GetCharges computes per-variation billable quantities for the cycle,
	// net of free allowances and never negative.
	GetCharges(ctx context.Context, cycle types.BillingCycle) ([]usage.Charge, error)

	// OnSubscriptionChange reacts to plan or state changes of the owning
	// subscription, e.g. by seeding a gauge with its initial level.
	OnSubscriptionChange(ctx context.Context) error

	// EnforceChangeScheduling reports whether a proposed change to a
	// subscription property must be deferred to the next cycle.
	EnforceChangeScheduling(property string, oldValue, newValue any) bool
}

// UsageTypeParams carries everything a usage type variant needs. Now and
// Locks are optional; they default to the wall clock and a process-wide set.
type UsageTypeParams struct {
	Group            types.UsageGroup
	Subscription     *subscription.Subscription
	SubscriptionType *subscription.SubscriptionType
	Repo             usage.Repository
	FreeUsage        subscription.FreeUsageProvider
	InitialUsage     subscription.InitialUsageProvider
	Logger           *logger.Logger
	Now              func() int64
	Locks            *LockSet
}

// requiredCapabilities declares, per variant, what the owning subscription
// type must implement.
var requiredCapabilities = map[types.UsageTypeKind][]types.SubscriptionCapability{
	types.UsageTypeCounter: {types.CapabilityFreeUsage},
	types.UsageTypeGauge:   {types.CapabilityFreeUsage, types.CapabilityInitialUsage},
}

// NewUsageType builds the variant the group's kind selects. Attaching a
// variant to a subscription type lacking a required capability is a
// programmer error and fails here, before any usage can be recorded.
func NewUsageType(params UsageTypeParams) (UsageType, error) {
	if err := params.Group.Validate(); err != nil {
		return nil, err
	}
	if params.Subscription == nil || params.SubscriptionType == nil {
		return nil, ierr.NewError("usage type requires a subscription and its type").
			WithHint("Usage groups must be attached to a subscription").
			Mark(ierr.ErrConfiguration)
	}
	if params.Repo == nil {
		return nil, ierr.NewError("usage type requires a record repository").
			WithHint("Usage groups must be attached to a usage record store").
			Mark(ierr.ErrConfiguration)
	}

	for _, capability := range requiredCapabilities[params.Group.Kind] {
		if !params.SubscriptionType.HasCapability(capability) {
			return nil, ierr.NewErrorf("usage groups of type %s require the %s capability", params.Group.Kind, capability).
				WithHint("The subscription type does not support this usage group").
				WithReportableDetails(map[string]any{
					"subscription_type": params.SubscriptionType.ID,
					"usage_type":        params.Group.Kind,
					"capability":        capability,
				}).
				Mark(ierr.ErrConfiguration)
		}
	}

	base := baseUsageType{
		group:        params.Group,
		sub:          params.Subscription,
		repo:         params.Repo,
		freeUsage:    params.FreeUsage,
		initialUsage: params.InitialUsage,
		log:          params.Logger,
		now:          params.Now,
		locks:        params.Locks,
	}
	if base.log == nil {
		base.log = logger.GetLogger()
	}
	if base.now == nil {
		base.now = wallClock
	}
	if base.locks == nil {
		base.locks = defaultLocks
	}

	switch params.Group.Kind {
	case types.UsageTypeCounter:
		return &counterUsageType{baseUsageType: base}, nil
	case types.UsageTypeGauge:
		return &gaugeUsageType{baseUsageType: base}, nil
	default:
		return nil, ierr.NewErrorf("unknown usage type kind %s", params.Group.Kind).
			Mark(ierr.ErrConfiguration)
	}
}

// baseUsageType carries the state and logic shared by both variants.
type baseUsageType struct {
	group        types.UsageGroup
	sub          *subscription.Subscription
	repo         usage.Repository
	freeUsage    subscription.FreeUsageProvider
	initialUsage subscription.InitialUsageProvider
	log          *logger.Logger
	now          func() int64
	locks        *LockSet
}

// usageHistory fetches the records overlapping the cycle and clips every
// in-memory copy to the cycle bounds, so downstream aggregation never has to
// special-case boundaries or open-ended records. Clipped copies are never
// written back.
func (b *baseUsageType) usageHistory(ctx context.Context, cycle types.BillingCycle) ([]*usage.UsageRecord, error) {
	records, err := b.repo.FetchCycleRecords(ctx, b.group.Name, b.sub.ID, &cycle)
	if err != nil {
		return nil, err
	}

	clipped := make([]*usage.UsageRecord, 0, len(records))
	for _, r := range records {
		clipped = append(clipped, r.ClipTo(cycle))
	}
	return clipped, nil
}

func (b *baseUsageType) lockKey() string {
	return b.group.Name + "/" + b.sub.ID
}

func (b *baseUsageType) newRecord(quantity, start int64, end *int64) *usage.UsageRecord {
	return usage.NewUsageRecord(b.group.Name, b.sub.ID, b.group.ProductVariationID, quantity, start, end)
}

func (b *baseUsageType) validateUsage(quantity, start int64, end *int64) error {
	if quantity < 0 {
		return ierr.NewError("usage quantity is negative").
			WithHint("Usage quantity must not be negative").
			WithReportableDetails(map[string]any{"quantity": quantity}).
			Mark(ierr.ErrValidation)
	}
	if end != nil && *end < start {
		return ierr.NewError("usage interval end precedes start").
			WithHint("Usage interval end must not be before its start").
			WithReportableDetails(map[string]any{
				"start": start,
				"end":   *end,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// EnforceChangeScheduling defaults to not blocking any subscription change.
func (b *baseUsageType) EnforceChangeScheduling(property string, oldValue, newValue any) bool {
	return false
}

func wallClock() int64 {
	return time.Now().Unix()
}

// LockSet serializes read-reconcile-write sequences per key, so concurrent
// AddUsage calls against the same group and subscription cannot interleave
// and break the gauge non-overlap invariant.
type LockSet struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLockSet() *LockSet {
	return &LockSet{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its release function.
func (s *LockSet) Lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

var defaultLocks = NewLockSet()
