package subscription

import (
	"context"

	"github.com/meterline/meterline/internal/types"
)

// Resolver resolves a subscription by identifier. Usage records store plain
// subscription IDs and dereference them through this on demand.
type Resolver interface {
	Resolve(ctx context.Context, id string) (*Subscription, error)
}

// FreeUsageProvider supplies the free allowance to deduct from a proposed
// charge. Subscription types that meter usage but give nothing away can
// return 0 for every group.
type FreeUsageProvider interface {
	GetFreeQuantity(ctx context.Context, groupName, productVariationID string, cycle types.BillingCycle) (int64, error)
}

// InitialUsageProvider supplies the seed quantity a gauge group registers
// when the owning subscription activates or changes plan.
type InitialUsageProvider interface {
	GetInitialUsage(ctx context.Context, groupName, productVariationID string) (int64, error)
}
