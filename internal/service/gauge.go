package service

import (
	"context"
	"sort"

	"github.com/samber/lo"

	"github.com/meterline/meterline/internal/domain/usage"
	"github.com/meterline/meterline/internal/types"
)

// gaugeUsageType models usage as a level that holds over an interval until
// explicitly superseded. Its records must form a non-overlapping partition
// of time per group and subscription, and AddUsage moves every conflicting
// record out of the way so that even bad callers cannot break that.
type gaugeUsageType struct {
	baseUsageType
}

func (t *gaugeUsageType) Kind() types.UsageTypeKind {
	return types.UsageTypeGauge
}

// AddUsage reconciles the new interval against every existing record for
// this group and subscription:
//
//   - records reaching into the new interval from the left are truncated to
//     end just before it; when they also run past its end, their tail is
//     preserved as a fresh record
//   - with an open-ended new interval, every record starting at or after it
//     is superseded and deleted
//   - with a bounded new interval, contained records are deleted and
//     overhanging ones are truncated to start just after it
//
// Updates plus the new record are written first, deletions second, each as
// one atomic batch.
func (t *gaugeUsageType) AddUsage(ctx context.Context, quantity, start int64, end *int64) error {
	if err := t.validateUsage(quantity, start, end); err != nil {
		return err
	}

	unlock := t.locks.Lock(t.lockKey())
	defer unlock()

	// Reconciliation needs true record boundaries, so fetch raw records,
	// not cycle-clipped ones.
	records, err := t.repo.FetchCycleRecords(ctx, t.group.Name, t.sub.ID, nil)
	if err != nil {
		return err
	}

	newRecord := t.newRecord(quantity, start, end)
	updates := []*usage.UsageRecord{newRecord}
	var deletions []*usage.UsageRecord

	for _, r := range records {
		if r.Start < start {
			if r.End != nil && *r.End < start {
				// Lies entirely before the new interval.
				continue
			}

			// Reaches into the new interval from the left. When it also
			// runs past the new interval's end, keep the overhang as a
			// fresh record before truncating.
			if end != nil && (r.End == nil || *r.End > *end) {
				tail := r.Clone()
				tail.ID = 0
				tail.Start = *end + 1
				updates = append(updates, tail)
			}

			truncatedEnd := start - 1
			r.End = &truncatedEnd
			updates = append(updates, r)
			continue
		}

		// r.Start >= start from here on.
		if end == nil {
			// The new record runs forever and supersedes everything at or
			// after its start.
			deletions = append(deletions, r)
			continue
		}
		if r.Start > *end {
			// Lies entirely after the new interval.
			continue
		}
		if r.End != nil && *r.End <= *end {
			// Fully contained in the new interval.
			deletions = append(deletions, r)
			continue
		}
		// Extends past the new interval; keep the tail.
		r.Start = *end + 1
		updates = append(updates, r)
	}

	if err := t.repo.SetRecords(ctx, updates); err != nil {
		return err
	}
	if err := t.repo.DeleteRecords(ctx, deletions); err != nil {
		return err
	}

	t.log.Debugw("reconciled gauge usage",
		"group", t.group.Name,
		"subscription_id", t.sub.ID,
		"quantity", quantity,
		"start", start,
		"open_ended", end == nil,
		"updated", len(updates),
		"deleted", len(deletions),
	)
	return nil
}

// CurrentUsage returns the level of the most recently started record, which
// is the gauge's current value rather than a sum. A nil cycle considers the
// whole timeline.
func (t *gaugeUsageType) CurrentUsage(ctx context.Context, cycle *types.BillingCycle) (int64, error) {
	records, err := t.repo.FetchCycleRecords(ctx, t.group.Name, t.sub.ID, cycle)
	if err != nil {
		return 0, err
	}

	var latest *usage.UsageRecord
	for _, r := range records {
		if latest == nil || r.Start > latest.Start {
			latest = r
		}
	}

	if latest == nil {
		// No usage registered.
		return 0, nil
	}
	return latest.Quantity, nil
}

// IsComplete checks that the cycle-clipped records tile the whole cycle.
// The clipped lengths must add up to the cycle length exactly; the records
// cannot overlap after AddUsage reconciliation, so an equal sum means there
// are no gaps and billing can proceed.
func (t *gaugeUsageType) IsComplete(ctx context.Context, cycle types.BillingCycle) (bool, error) {
	records, err := t.usageHistory(ctx, cycle)
	if err != nil {
		return false, err
	}

	var covered int64
	for _, r := range records {
		covered += r.Length()
	}
	return covered == cycle.Length(), nil
}

// GetCharges bills each variation's level for the cycle: the quantity of the
// variation's most recently started record within the cycle, net of the free
// and initial allowances the subscription grants, floored at zero.
func (t *gaugeUsageType) GetCharges(ctx context.Context, cycle types.BillingCycle) ([]usage.Charge, error) {
	records, err := t.usageHistory(ctx, cycle)
	if err != nil {
		return nil, err
	}

	byVariation := lo.GroupBy(records, func(r *usage.UsageRecord) string {
		return r.ProductVariationID
	})

	charges := make([]usage.Charge, 0, len(byVariation))
	for variationID, group := range byVariation {
		level := lo.MaxBy(group, func(a, b *usage.UsageRecord) bool {
			return a.Start > b.Start
		}).Quantity

		free, err := t.freeUsage.GetFreeQuantity(ctx, t.group.Name, variationID, cycle)
		if err != nil {
			return nil, err
		}
		initial, err := t.initialUsage.GetInitialUsage(ctx, t.group.Name, variationID)
		if err != nil {
			return nil, err
		}

		net := level - free - initial
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

// OnSubscriptionChange seeds the gauge with the subscription's initial level
// from now on. Reconciliation truncates whatever level was in effect.
func (t *gaugeUsageType) OnSubscriptionChange(ctx context.Context) error {
	initial, err := t.initialUsage.GetInitialUsage(ctx, t.group.Name, t.group.ProductVariationID)
	if err != nil {
		return err
	}
	return t.AddUsage(ctx, initial, t.now(), nil)
}
