package service

import (
	"context"
	"sort"

	"github.com/samber/lo"

	"github.com/meterline/meterline/internal/domain/usage"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
)

// counterUsageType models usage as discrete point charges accumulated by
// summation. Counter records are points (start == end), so they never
// conflict and need no reconciliation against each other.
type counterUsageType struct {
	baseUsageType
}

func (t *counterUsageType) Kind() types.UsageTypeKind {
	return types.UsageTypeCounter
}

// AddUsage registers a point charge at start. The end argument, if any, is
// ignored.
func (t *counterUsageType) AddUsage(ctx context.Context, quantity, start int64, end *int64) error {
	if err := t.validateUsage(quantity, start, nil); err != nil {
		return err
	}

	unlock := t.locks.Lock(t.lockKey())
	defer unlock()

	record := t.newRecord(quantity, start, &start)
	if err := t.repo.SetRecords(ctx, []*usage.UsageRecord{record}); err != nil {
		return err
	}

	t.log.Debugw("registered counter usage",
		"group", t.group.Name,
		"subscription_id", t.sub.ID,
		"quantity", quantity,
		"start", start,
	)
	return nil
}

// CurrentUsage sums the quantity of every record in the cycle.
func (t *counterUsageType) CurrentUsage(ctx context.Context, cycle *types.BillingCycle) (int64, error) {
	if cycle == nil {
		return 0, ierr.NewError("counter usage requires a billing cycle").
			WithHint("A billing cycle is required to aggregate counter usage").
			Mark(ierr.ErrValidation)
	}

	records, err := t.usageHistory(ctx, *cycle)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, r := range records {
		total += r.Quantity
	}
	return total, nil
}

// Counter usage has no completeness requirement; records arrive as events
// happen and any subset is billable.
func (t *counterUsageType) IsComplete(ctx context.Context, cycle types.BillingCycle) (bool, error) {
	return true, nil
}

// GetCharges adds up the cycle's records per product variation, deducts the
// free quantity the subscription grants, and floors each charge at zero.
func (t *counterUsageType) GetCharges(ctx context.Context, cycle types.BillingCycle) ([]usage.Charge, error) {
	records, err := t.usageHistory(ctx, cycle)
	if err != nil {
		return nil, err
	}

	byVariation := lo.GroupBy(records, func(r *usage.UsageRecord) string {
		return r.ProductVariationID
	})

	charges := make([]usage.Charge, 0, len(byVariation))
	for variationID, group := range byVariation {
		quantity := lo.SumBy(group, func(r *usage.UsageRecord) int64 {
			return r.Quantity
		})

		free, err := t.freeUsage.GetFreeQuantity(ctx, t.group.Name, variationID, cycle)
		if err != nil {
			return nil, err
		}

		net := quantity - free
		if net < 0 {
			net = 0
		}
		charges = append(charges, usage.Charge{
			ProductVariationID: variationID,
			Quantity:           net,
		})
	}

	sort.Slice(charges, func(i, j int) bool {
		return charges[i].ProductVariationID < charges[j].ProductVariationID
	})
	return charges, nil
}

// Counter groups have nothing to register when the subscription changes.
func (t *counterUsageType) OnSubscriptionChange(ctx context.Context) error {
	return nil
}
